// Package filestore keeps the whole game in one JSON document on disk.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"

	models "github.com/CodeAndHammer/roundguess/internal/models"
)

type userRecord struct {
	Score int `json:"score"`
}

// snapshot is the on-disk document:
// {"users": {"name": {"score": 0}}, "guesses": {"name": "A"}, "roundOpen": true}
type snapshot struct {
	Users     map[string]userRecord `json:"users"`
	Guesses   map[string]string     `json:"guesses"`
	RoundOpen *bool                 `json:"roundOpen,omitempty"`
}

func newSnapshot() snapshot {
	return snapshot{
		Users:   make(map[string]userRecord),
		Guesses: make(map[string]string),
	}
}

func (s snapshot) clone() snapshot {
	next := snapshot{
		Users:   maps.Clone(s.Users),
		Guesses: maps.Clone(s.Guesses),
	}
	if next.Users == nil {
		next.Users = make(map[string]userRecord)
	}
	if next.Guesses == nil {
		next.Guesses = make(map[string]string)
	}
	if s.RoundOpen != nil {
		open := *s.RoundOpen
		next.RoundOpen = &open
	}
	return next
}

// Store serves every read from memory and rewrites the file after each
// successful mutation.
type Store struct {
	path string
	mu   sync.Mutex
	data snapshot
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("data file path is required")
	}
	s := &Store{path: filepath.Clean(path), data: newSnapshot()}

	raw, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read data file: %w", err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return s, nil
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode data file %s: %w", s.path, err)
	}
	s.data = snap.clone()
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) read(ctx context.Context, fn func(snap *snapshot) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.data)
}

func (s *Store) mutate(ctx context.Context, fn func(snap *snapshot) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.data.clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := s.persist(next); err != nil {
		return err
	}
	s.data = next
	return nil
}

// persist writes to a temp file in the same directory and renames it over
// the target so readers never observe a half-written document.
func (s *Store) persist(snap snapshot) error {
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace data file: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := s.read(ctx, func(snap *snapshot) error {
		var err error
		user, err = snap.getUser(username)
		return err
	})
	return user, err
}

func (s *Store) CreateUserIfAbsent(ctx context.Context, username string) (bool, error) {
	var exists bool
	// Skip the rewrite when the user already exists.
	if err := s.read(ctx, func(snap *snapshot) error {
		_, exists = snap.Users[username]
		return nil
	}); err != nil || exists {
		return false, err
	}
	var created bool
	err := s.mutate(ctx, func(snap *snapshot) error {
		created = snap.createUserIfAbsent(username)
		return nil
	})
	return created, err
}

func (s *Store) AddScore(ctx context.Context, username string, delta int) error {
	return s.mutate(ctx, func(snap *snapshot) error {
		return snap.addScore(username, delta)
	})
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.read(ctx, func(snap *snapshot) error {
		users = snap.listUsers()
		return nil
	})
	return users, err
}

func (s *Store) GetGuess(ctx context.Context, username string) (models.Guess, error) {
	var guess models.Guess
	err := s.read(ctx, func(snap *snapshot) error {
		var err error
		guess, err = snap.getGuess(username)
		return err
	})
	return guess, err
}

func (s *Store) UpsertGuess(ctx context.Context, guess models.Guess) error {
	return s.mutate(ctx, func(snap *snapshot) error {
		snap.Guesses[guess.Username] = guess.Guess
		return nil
	})
}

func (s *Store) ListGuesses(ctx context.Context) ([]models.Guess, error) {
	var guesses []models.Guess
	err := s.read(ctx, func(snap *snapshot) error {
		guesses = snap.listGuesses()
		return nil
	})
	return guesses, err
}

func (s *Store) DeleteGuess(ctx context.Context, username string) (bool, error) {
	var deleted bool
	err := s.mutate(ctx, func(snap *snapshot) error {
		deleted = snap.deleteGuess(username)
		return nil
	})
	return deleted, err
}

func (s *Store) DeleteAllGuesses(ctx context.Context) error {
	return s.mutate(ctx, func(snap *snapshot) error {
		snap.Guesses = make(map[string]string)
		return nil
	})
}

func (s *Store) GetRoundState(ctx context.Context) (models.RoundState, error) {
	var state models.RoundState
	err := s.read(ctx, func(snap *snapshot) error {
		var err error
		state, err = snap.getRoundState()
		return err
	})
	return state, err
}

func (s *Store) SetRoundState(ctx context.Context, state models.RoundState) error {
	return s.mutate(ctx, func(snap *snapshot) error {
		snap.setRoundState(state)
		return nil
	})
}

func (s *Store) InitRoundState(ctx context.Context, state models.RoundState) error {
	var exists bool
	if err := s.read(ctx, func(snap *snapshot) error {
		exists = snap.RoundOpen != nil
		return nil
	}); err != nil || exists {
		return err
	}
	return s.mutate(ctx, func(snap *snapshot) error {
		if snap.RoundOpen == nil {
			snap.setRoundState(state)
		}
		return nil
	})
}

// RunInTx applies fn to a private copy of the snapshot and commits it with a
// single file write. The Store passed to fn must be used instead of s.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx models.Store) error) error {
	return s.mutate(ctx, func(snap *snapshot) error {
		return fn(ctx, &txStore{snap: snap})
	})
}

func (s *Store) Transactional() bool {
	return true
}

func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("data directory: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}

var _ models.Store = (*Store)(nil)
