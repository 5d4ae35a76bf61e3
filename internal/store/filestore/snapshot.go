package filestore

import (
	"context"
	"maps"
	"slices"

	models "github.com/CodeAndHammer/roundguess/internal/models"
)

func (snap *snapshot) getUser(username string) (models.User, error) {
	rec, ok := snap.Users[username]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	return models.User{Username: username, Score: rec.Score}, nil
}

func (snap *snapshot) createUserIfAbsent(username string) bool {
	if _, ok := snap.Users[username]; ok {
		return false
	}
	snap.Users[username] = userRecord{Score: 0}
	return true
}

func (snap *snapshot) addScore(username string, delta int) error {
	rec, ok := snap.Users[username]
	if !ok {
		return models.ErrNotFound
	}
	rec.Score += delta
	snap.Users[username] = rec
	return nil
}

func (snap *snapshot) listUsers() []models.User {
	users := make([]models.User, 0, len(snap.Users))
	for _, name := range slices.Sorted(maps.Keys(snap.Users)) {
		users = append(users, models.User{Username: name, Score: snap.Users[name].Score})
	}
	return users
}

func (snap *snapshot) getGuess(username string) (models.Guess, error) {
	value, ok := snap.Guesses[username]
	if !ok {
		return models.Guess{}, models.ErrNotFound
	}
	return models.Guess{Username: username, Guess: value}, nil
}

func (snap *snapshot) listGuesses() []models.Guess {
	guesses := make([]models.Guess, 0, len(snap.Guesses))
	for _, name := range slices.Sorted(maps.Keys(snap.Guesses)) {
		guesses = append(guesses, models.Guess{Username: name, Guess: snap.Guesses[name]})
	}
	return guesses
}

func (snap *snapshot) deleteGuess(username string) bool {
	if _, ok := snap.Guesses[username]; !ok {
		return false
	}
	delete(snap.Guesses, username)
	return true
}

func (snap *snapshot) getRoundState() (models.RoundState, error) {
	if snap.RoundOpen == nil {
		return models.RoundState{}, models.ErrNotFound
	}
	return models.RoundState{RoundOpen: *snap.RoundOpen}, nil
}

func (snap *snapshot) setRoundState(state models.RoundState) {
	open := state.RoundOpen
	snap.RoundOpen = &open
}

// txStore exposes a snapshot copy owned by Store.RunInTx. It takes no locks
// and never touches the disk; the enclosing RunInTx commits it.
type txStore struct {
	snap *snapshot
}

func (t *txStore) GetUser(ctx context.Context, username string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	return t.snap.getUser(username)
}

func (t *txStore) CreateUserIfAbsent(ctx context.Context, username string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return t.snap.createUserIfAbsent(username), nil
}

func (t *txStore) AddScore(ctx context.Context, username string, delta int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.snap.addScore(username, delta)
}

func (t *txStore) ListUsers(ctx context.Context) ([]models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.snap.listUsers(), nil
}

func (t *txStore) GetGuess(ctx context.Context, username string) (models.Guess, error) {
	if err := ctx.Err(); err != nil {
		return models.Guess{}, err
	}
	return t.snap.getGuess(username)
}

func (t *txStore) UpsertGuess(ctx context.Context, guess models.Guess) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.snap.Guesses[guess.Username] = guess.Guess
	return nil
}

func (t *txStore) ListGuesses(ctx context.Context) ([]models.Guess, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.snap.listGuesses(), nil
}

func (t *txStore) DeleteGuess(ctx context.Context, username string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return t.snap.deleteGuess(username), nil
}

func (t *txStore) DeleteAllGuesses(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.snap.Guesses = make(map[string]string)
	return nil
}

func (t *txStore) GetRoundState(ctx context.Context) (models.RoundState, error) {
	if err := ctx.Err(); err != nil {
		return models.RoundState{}, err
	}
	return t.snap.getRoundState()
}

func (t *txStore) SetRoundState(ctx context.Context, state models.RoundState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.snap.setRoundState(state)
	return nil
}

func (t *txStore) InitRoundState(ctx context.Context, state models.RoundState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.snap.RoundOpen == nil {
		t.snap.setRoundState(state)
	}
	return nil
}

func (t *txStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx models.Store) error) error {
	return fn(ctx, t)
}

func (t *txStore) Transactional() bool {
	return true
}

func (t *txStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (t *txStore) Close() error {
	return nil
}

var _ models.Store = (*txStore)(nil)
