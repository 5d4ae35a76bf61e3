// Package storetest holds the behaviour every models.Store backend must share.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	models "github.com/CodeAndHammer/roundguess/internal/models"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) models.Store

func Run(t *testing.T, newStore Factory) {
	t.Run("UsersCreateIfAbsent", func(t *testing.T) { testUsersCreateIfAbsent(t, newStore(t)) })
	t.Run("UsersListSorted", func(t *testing.T) { testUsersListSorted(t, newStore(t)) })
	t.Run("AddScoreMissingUser", func(t *testing.T) { testAddScoreMissingUser(t, newStore(t)) })
	t.Run("ConcurrentCreate", func(t *testing.T) { testConcurrentCreate(t, newStore(t)) })
	t.Run("Guesses", func(t *testing.T) { testGuesses(t, newStore(t)) })
	t.Run("RoundState", func(t *testing.T) { testRoundState(t, newStore(t)) })
	t.Run("TxCommit", func(t *testing.T) { testTxCommit(t, newStore(t)) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, newStore(t)) })
}

func testUsersCreateIfAbsent(t *testing.T, s models.Store) {
	ctx := context.Background()

	if _, err := s.GetUser(ctx, "alice"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("GetUser on empty store = %v, want ErrNotFound", err)
	}

	created, err := s.CreateUserIfAbsent(ctx, "alice")
	if err != nil || !created {
		t.Fatalf("first CreateUserIfAbsent = (%v, %v), want (true, nil)", created, err)
	}
	if err := s.AddScore(ctx, "alice", 10); err != nil {
		t.Fatalf("AddScore: %v", err)
	}

	created, err = s.CreateUserIfAbsent(ctx, "alice")
	if err != nil || created {
		t.Fatalf("second CreateUserIfAbsent = (%v, %v), want (false, nil)", created, err)
	}

	user, err := s.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.Score != 10 {
		t.Errorf("score after repeat create = %d, want 10", user.Score)
	}

	// Usernames are case-sensitive.
	if _, err := s.GetUser(ctx, "Alice"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetUser(Alice) = %v, want ErrNotFound", err)
	}
}

func testUsersListSorted(t *testing.T, s models.Store) {
	ctx := context.Background()
	for _, name := range []string{"zed", "amy", "mo"} {
		if _, err := s.CreateUserIfAbsent(ctx, name); err != nil {
			t.Fatalf("CreateUserIfAbsent(%s): %v", name, err)
		}
	}
	if err := s.AddScore(ctx, "mo", 20); err != nil {
		t.Fatalf("AddScore: %v", err)
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	want := []models.User{{Username: "amy"}, {Username: "mo", Score: 20}, {Username: "zed"}}
	if diff := cmp.Diff(want, users); diff != "" {
		t.Errorf("ListUsers mismatch (-want +got):\n%s", diff)
	}
}

func testAddScoreMissingUser(t *testing.T, s models.Store) {
	if err := s.AddScore(context.Background(), "ghost", 10); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("AddScore on missing user = %v, want ErrNotFound", err)
	}
}

func testConcurrentCreate(t *testing.T, s models.Store) {
	ctx := context.Background()
	const workers = 8

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		errs    []error
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.CreateUserIfAbsent(ctx, "racer")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			if ok {
				created++
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("concurrent CreateUserIfAbsent errors: %v", errs)
	}
	if created != 1 {
		t.Fatalf("created reported %d times, want 1", created)
	}
	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("ListUsers = %v, want one user", users)
	}
}

func testGuesses(t *testing.T, s models.Store) {
	ctx := context.Background()

	if _, err := s.GetGuess(ctx, "bob"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("GetGuess on empty store = %v, want ErrNotFound", err)
	}

	for _, g := range []models.Guess{
		{Username: "bob", Guess: "first"},
		{Username: "amy", Guess: ""},
		{Username: "bob", Guess: "second"},
	} {
		if err := s.UpsertGuess(ctx, g); err != nil {
			t.Fatalf("UpsertGuess(%+v): %v", g, err)
		}
	}

	got, err := s.GetGuess(ctx, "bob")
	if err != nil {
		t.Fatalf("GetGuess: %v", err)
	}
	if got.Guess != "second" {
		t.Errorf("GetGuess(bob) = %q, want last write %q", got.Guess, "second")
	}

	list, err := s.ListGuesses(ctx)
	if err != nil {
		t.Fatalf("ListGuesses: %v", err)
	}
	want := []models.Guess{{Username: "amy", Guess: ""}, {Username: "bob", Guess: "second"}}
	if diff := cmp.Diff(want, list); diff != "" {
		t.Errorf("ListGuesses mismatch (-want +got):\n%s", diff)
	}

	deleted, err := s.DeleteGuess(ctx, "amy")
	if err != nil || !deleted {
		t.Fatalf("DeleteGuess(amy) = (%v, %v), want (true, nil)", deleted, err)
	}
	deleted, err = s.DeleteGuess(ctx, "amy")
	if err != nil || deleted {
		t.Fatalf("second DeleteGuess(amy) = (%v, %v), want (false, nil)", deleted, err)
	}

	if err := s.DeleteAllGuesses(ctx); err != nil {
		t.Fatalf("DeleteAllGuesses: %v", err)
	}
	list, err = s.ListGuesses(ctx)
	if err != nil {
		t.Fatalf("ListGuesses: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("ListGuesses after DeleteAllGuesses = %v, want empty", list)
	}
	if err := s.DeleteAllGuesses(ctx); err != nil {
		t.Fatalf("DeleteAllGuesses on empty collection: %v", err)
	}
}

func testRoundState(t *testing.T, s models.Store) {
	ctx := context.Background()

	if _, err := s.GetRoundState(ctx); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("GetRoundState on empty store = %v, want ErrNotFound", err)
	}
	if err := s.InitRoundState(ctx, models.RoundState{RoundOpen: true}); err != nil {
		t.Fatalf("InitRoundState: %v", err)
	}
	if err := s.SetRoundState(ctx, models.RoundState{RoundOpen: false}); err != nil {
		t.Fatalf("SetRoundState: %v", err)
	}
	// A second init must not overwrite the stored state.
	if err := s.InitRoundState(ctx, models.RoundState{RoundOpen: true}); err != nil {
		t.Fatalf("InitRoundState again: %v", err)
	}
	state, err := s.GetRoundState(ctx)
	if err != nil {
		t.Fatalf("GetRoundState: %v", err)
	}
	if state.RoundOpen {
		t.Errorf("round open after re-init, want closed")
	}
}

func testTxCommit(t *testing.T, s models.Store) {
	ctx := context.Background()
	if _, err := s.CreateUserIfAbsent(ctx, "alice"); err != nil {
		t.Fatalf("CreateUserIfAbsent: %v", err)
	}
	if err := s.UpsertGuess(ctx, models.Guess{Username: "alice", Guess: "A"}); err != nil {
		t.Fatalf("UpsertGuess: %v", err)
	}

	err := s.RunInTx(ctx, func(ctx context.Context, tx models.Store) error {
		if err := tx.AddScore(ctx, "alice", 10); err != nil {
			return err
		}
		if err := tx.DeleteAllGuesses(ctx); err != nil {
			return err
		}
		return tx.SetRoundState(ctx, models.RoundState{RoundOpen: true})
	})
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}

	user, err := s.GetUser(ctx, "alice")
	if err != nil || user.Score != 10 {
		t.Fatalf("GetUser after commit = (%+v, %v), want score 10", user, err)
	}
	guesses, err := s.ListGuesses(ctx)
	if err != nil || len(guesses) != 0 {
		t.Fatalf("ListGuesses after commit = (%v, %v), want empty", guesses, err)
	}
}

func testTxRollback(t *testing.T, s models.Store) {
	if !s.Transactional() {
		t.Skip("backend runs RunInTx without a transaction")
	}
	ctx := context.Background()
	if _, err := s.CreateUserIfAbsent(ctx, "alice"); err != nil {
		t.Fatalf("CreateUserIfAbsent: %v", err)
	}
	if err := s.UpsertGuess(ctx, models.Guess{Username: "alice", Guess: "A"}); err != nil {
		t.Fatalf("UpsertGuess: %v", err)
	}

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(ctx context.Context, tx models.Store) error {
		if err := tx.AddScore(ctx, "alice", 10); err != nil {
			return err
		}
		if err := tx.DeleteAllGuesses(ctx); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTx error = %v, want %v", err, boom)
	}

	user, err := s.GetUser(ctx, "alice")
	if err != nil || user.Score != 0 {
		t.Fatalf("GetUser after rollback = (%+v, %v), want score 0", user, err)
	}
	guesses, err := s.ListGuesses(ctx)
	if err != nil || len(guesses) != 1 {
		t.Fatalf("ListGuesses after rollback = (%v, %v), want the original guess", guesses, err)
	}
}
