// Package sqlitestore provides a SQLite-backed game store with one table per
// collection.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	models "github.com/CodeAndHammer/roundguess/internal/models"
	"github.com/CodeAndHammer/roundguess/internal/store/sqlitestore/migrations"
)

const roundStateID = "round"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store persists game state in SQLite. A Store handed out by RunInTx is
// bound to the open transaction.
type Store struct {
	sqlDB *sql.DB
	q     querier
	inTx  bool
}

// Open opens a SQLite game store and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps writers from tripping over SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, q: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil || s.inTx {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.sqlDB.PingContext(ctx)
}

func (s *Store) GetUser(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := s.q.QueryRowContext(ctx,
		`SELECT username, score FROM users WHERE username = ?`,
		username,
	).Scan(&user.Username, &user.Score)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, models.ErrNotFound
		}
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *Store) CreateUserIfAbsent(ctx context.Context, username string) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO users (username, score) VALUES (?, 0)
		 ON CONFLICT(username) DO NOTHING`,
		username,
	)
	if err != nil {
		return false, fmt.Errorf("create user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create user: %w", err)
	}
	return n == 1, nil
}

func (s *Store) AddScore(ctx context.Context, username string, delta int) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE users SET score = score + ? WHERE username = ?`,
		delta, username,
	)
	if err != nil {
		return fmt.Errorf("add score: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("add score: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT username, score FROM users ORDER BY username ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.Username, &user.Score); err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *Store) GetGuess(ctx context.Context, username string) (models.Guess, error) {
	var guess models.Guess
	err := s.q.QueryRowContext(ctx,
		`SELECT username, guess FROM guesses WHERE username = ?`,
		username,
	).Scan(&guess.Username, &guess.Guess)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Guess{}, models.ErrNotFound
		}
		return models.Guess{}, fmt.Errorf("get guess: %w", err)
	}
	return guess, nil
}

func (s *Store) UpsertGuess(ctx context.Context, guess models.Guess) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO guesses (username, guess) VALUES (?, ?)
		 ON CONFLICT(username) DO UPDATE SET guess = excluded.guess`,
		guess.Username, guess.Guess,
	)
	if err != nil {
		return fmt.Errorf("upsert guess: %w", err)
	}
	return nil
}

func (s *Store) ListGuesses(ctx context.Context) ([]models.Guess, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT username, guess FROM guesses ORDER BY username ASC`)
	if err != nil {
		return nil, fmt.Errorf("list guesses: %w", err)
	}
	defer rows.Close()

	guesses := make([]models.Guess, 0)
	for rows.Next() {
		var guess models.Guess
		if err := rows.Scan(&guess.Username, &guess.Guess); err != nil {
			return nil, fmt.Errorf("list guesses: %w", err)
		}
		guesses = append(guesses, guess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list guesses: %w", err)
	}
	return guesses, nil
}

func (s *Store) DeleteGuess(ctx context.Context, username string) (bool, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM guesses WHERE username = ?`, username)
	if err != nil {
		return false, fmt.Errorf("delete guess: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete guess: %w", err)
	}
	return n > 0, nil
}

func (s *Store) DeleteAllGuesses(ctx context.Context) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM guesses`); err != nil {
		return fmt.Errorf("delete guesses: %w", err)
	}
	return nil
}

func (s *Store) GetRoundState(ctx context.Context) (models.RoundState, error) {
	var open int64
	err := s.q.QueryRowContext(ctx,
		`SELECT round_open FROM system WHERE id = ?`,
		roundStateID,
	).Scan(&open)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RoundState{}, models.ErrNotFound
		}
		return models.RoundState{}, fmt.Errorf("get round state: %w", err)
	}
	return models.RoundState{RoundOpen: open != 0}, nil
}

func (s *Store) SetRoundState(ctx context.Context, state models.RoundState) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO system (id, round_open) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET round_open = excluded.round_open`,
		roundStateID, boolToInt(state.RoundOpen),
	)
	if err != nil {
		return fmt.Errorf("set round state: %w", err)
	}
	return nil
}

func (s *Store) InitRoundState(ctx context.Context, state models.RoundState) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO system (id, round_open) VALUES (?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		roundStateID, boolToInt(state.RoundOpen),
	)
	if err != nil {
		return fmt.Errorf("init round state: %w", err)
	}
	return nil
}

// RunInTx executes fn inside a *sql.Tx.
// If fn returns an error the tx rolls back, else it commits.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx models.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(ctx, &Store{sqlDB: s.sqlDB, q: tx, inTx: true}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) Transactional() bool {
	return true
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

var _ models.Store = (*Store)(nil)
