package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	models "github.com/CodeAndHammer/roundguess/internal/models"
	"github.com/CodeAndHammer/roundguess/internal/storetest"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "database.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) models.Store { return openTempStore(t) })
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	s := openTempStore(t)
	users, err := s.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("ListUsers = %v, want empty", users)
	}
	if _, err := os.Stat(s.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file should not exist before the first write, stat err = %v", err)
	}
}

func TestStatePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "database.json")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.CreateUserIfAbsent(ctx, "alice"); err != nil {
		t.Fatalf("CreateUserIfAbsent: %v", err)
	}
	if err := s.AddScore(ctx, "alice", 30); err != nil {
		t.Fatalf("AddScore: %v", err)
	}
	if err := s.UpsertGuess(ctx, models.Guess{Username: "alice", Guess: "B"}); err != nil {
		t.Fatalf("UpsertGuess: %v", err)
	}
	if err := s.SetRoundState(ctx, models.RoundState{RoundOpen: false}); err != nil {
		t.Fatalf("SetRoundState: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	user, err := reopened.GetUser(ctx, "alice")
	if err != nil || user.Score != 30 {
		t.Fatalf("GetUser after reopen = (%+v, %v), want score 30", user, err)
	}
	guess, err := reopened.GetGuess(ctx, "alice")
	if err != nil || guess.Guess != "B" {
		t.Fatalf("GetGuess after reopen = (%+v, %v), want B", guess, err)
	}
	state, err := reopened.GetRoundState(ctx)
	if err != nil || state.RoundOpen {
		t.Fatalf("GetRoundState after reopen = (%+v, %v), want closed", state, err)
	}
}

func TestOpenReadsExistingDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	doc := `{
  "users": {"小明": {"score": 20}, "bob": {"score": 0}},
  "guesses": {"bob": "A"},
  "roundOpen": true
}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	user, err := s.GetUser(ctx, "小明")
	if err != nil || user.Score != 20 {
		t.Fatalf("GetUser = (%+v, %v), want score 20", user, err)
	}
	state, err := s.GetRoundState(ctx)
	if err != nil || !state.RoundOpen {
		t.Fatalf("GetRoundState = (%+v, %v), want open", state, err)
	}
}

func TestOpenRejectsCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestWrittenDocumentShape(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)
	if _, err := s.CreateUserIfAbsent(ctx, "alice"); err != nil {
		t.Fatalf("CreateUserIfAbsent: %v", err)
	}
	if err := s.UpsertGuess(ctx, models.Guess{Username: "alice", Guess: "x"}); err != nil {
		t.Fatalf("UpsertGuess: %v", err)
	}
	if err := s.InitRoundState(ctx, models.RoundState{RoundOpen: true}); err != nil {
		t.Fatalf("InitRoundState: %v", err)
	}

	raw, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	var doc struct {
		Users     map[string]map[string]int `json:"users"`
		Guesses   map[string]string         `json:"guesses"`
		RoundOpen bool                      `json:"roundOpen"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode: %v\n%s", err, raw)
	}
	if doc.Users["alice"]["score"] != 0 || doc.Guesses["alice"] != "x" || !doc.RoundOpen {
		t.Errorf("unexpected document: %s", raw)
	}

	leftovers, err := filepath.Glob(s.Path() + ".tmp-*")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestFailedTxLeavesDiskUntouched(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)
	if _, err := s.CreateUserIfAbsent(ctx, "alice"); err != nil {
		t.Fatalf("CreateUserIfAbsent: %v", err)
	}
	before, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	err = s.RunInTx(ctx, func(ctx context.Context, tx models.Store) error {
		if err := tx.AddScore(ctx, "alice", 10); err != nil {
			return err
		}
		return tx.AddScore(ctx, "nobody", 10)
	})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("RunInTx = %v, want ErrNotFound", err)
	}

	after, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(before) != string(after) {
		t.Errorf("file changed after failed tx:\nbefore %s\nafter %s", before, after)
	}
}
