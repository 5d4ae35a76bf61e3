package models

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Store persists users, the current round's guesses and the round state.
// Listing methods return records ordered by username ascending.
type Store interface {
	GetUser(ctx context.Context, username string) (User, error)
	CreateUserIfAbsent(ctx context.Context, username string) (bool, error)
	AddScore(ctx context.Context, username string, delta int) error
	ListUsers(ctx context.Context) ([]User, error)

	GetGuess(ctx context.Context, username string) (Guess, error)
	UpsertGuess(ctx context.Context, guess Guess) error
	ListGuesses(ctx context.Context) ([]Guess, error)
	DeleteGuess(ctx context.Context, username string) (bool, error)
	DeleteAllGuesses(ctx context.Context) error

	GetRoundState(ctx context.Context) (RoundState, error)
	SetRoundState(ctx context.Context, state RoundState) error
	InitRoundState(ctx context.Context, state RoundState) error

	// RunInTx runs fn against a Store whose writes commit together when
	// the backend supports it. Transactional reports whether it does.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
	Transactional() bool

	Ping(ctx context.Context) error
	Close() error
}
