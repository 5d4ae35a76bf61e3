package game

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	constants "github.com/CodeAndHammer/roundguess/internal/constants"
	models "github.com/CodeAndHammer/roundguess/internal/models"
	util "github.com/CodeAndHammer/roundguess/internal/util"
)

var (
	ErrInvalidInput    = errors.New(constants.ErrorCodeInvalidInput)
	ErrUnauthenticated = errors.New(constants.ErrorCodeUnauthenticated)
	ErrRoundClosed     = errors.New(constants.ErrorCodeRoundClosed)
	ErrStorage         = errors.New(constants.ErrorCodeStorageFailure)
)

func storageError(app *models.App, ctx context.Context, op string, err error) error {
	app.Metrics.StoreError(op)
	util.LogError(util.WithRequestID(ctx, "Storage failure during %s: %v"), op, err)
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

func NormalizeUsername(input string) string {
	return strings.TrimSpace(input)
}

// NormalizeAnswer is applied to both guesses and the correct answer before
// they are compared.
func NormalizeAnswer(input string) string {
	return strings.ToUpper(strings.TrimSpace(input))
}

// EnsureRound creates the round record, open, on first run.
func EnsureRound(app *models.App, ctx context.Context) error {
	if err := app.Store.InitRoundState(ctx, models.RoundState{RoundOpen: true}); err != nil {
		return storageError(app, ctx, "init round", err)
	}
	open, err := isRoundOpen(ctx, app.Store)
	if err != nil {
		return storageError(app, ctx, "read round", err)
	}
	app.Metrics.RoundOpen(open)
	util.LogInfo("Round state ready (open=%v)", open)
	return nil
}

// isRoundOpen treats a missing round record as open.
func isRoundOpen(ctx context.Context, store models.Store) (bool, error) {
	state, err := store.GetRoundState(ctx)
	if errors.Is(err, models.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return state.RoundOpen, nil
}

// EnsureUser is the single create-if-absent path for user records. Login
// and guess submission both go through it.
func EnsureUser(ctx context.Context, store models.Store, username string) (bool, error) {
	return store.CreateUserIfAbsent(ctx, username)
}

// Login registers username if it is new. Existing scores are left alone.
func Login(app *models.App, ctx context.Context, rawUsername string) (string, error) {
	username := NormalizeUsername(rawUsername)
	if username == "" {
		return "", ErrInvalidInput
	}

	created, err := EnsureUser(ctx, app.Store, username)
	if err != nil {
		return "", storageError(app, ctx, "login", err)
	}
	app.Metrics.Login(created)
	if created {
		util.LogInfo(util.WithRequestID(ctx, "Registered new user: %s"), username)
	} else {
		util.LogInfo(util.WithRequestID(ctx, "User logged in: %s"), username)
	}
	return username, nil
}

// SubmitGuess records the caller's guess for the open round, replacing any
// earlier one. A caller without a user record gets one with score 0.
func SubmitGuess(app *models.App, ctx context.Context, username, rawGuess string) error {
	username = NormalizeUsername(username)
	if username == "" {
		return ErrUnauthenticated
	}
	guess := strings.TrimSpace(rawGuess)

	app.RoundMutex.Lock()
	defer app.RoundMutex.Unlock()

	err := app.Store.RunInTx(ctx, func(ctx context.Context, tx models.Store) error {
		open, err := isRoundOpen(ctx, tx)
		if err != nil {
			return err
		}
		if !open {
			return ErrRoundClosed
		}

		created, err := EnsureUser(ctx, tx, username)
		if err != nil {
			return err
		}
		if created {
			util.LogWarn(util.WithRequestID(ctx, "Repaired missing user record for %s on guess"), username)
		}
		return tx.UpsertGuess(ctx, models.Guess{Username: username, Guess: guess})
	})
	switch {
	case errors.Is(err, ErrRoundClosed):
		util.LogWarn(util.WithRequestID(ctx, "User %s guessed while the round is closed"), username)
		return ErrRoundClosed
	case err != nil:
		return storageError(app, ctx, "submit guess", err)
	}

	app.Metrics.GuessAccepted()
	util.LogInfo(util.WithRequestID(ctx, "User %s guessed: %q"), username, guess)
	return nil
}

// Settle awards PointsPerCorrectGuess to every guess matching
// correctAnswer, clears all guesses and reopens the round. Winners are
// returned in guess listing order (username ascending).
func Settle(app *models.App, ctx context.Context, correctAnswer string) ([]string, error) {
	answer := NormalizeAnswer(correctAnswer)

	app.RoundMutex.Lock()
	defer app.RoundMutex.Unlock()

	var (
		winners []string
		err     error
	)
	if app.Store.Transactional() {
		err = app.Store.RunInTx(ctx, func(ctx context.Context, tx models.Store) error {
			var txErr error
			winners, txErr = settleInTx(ctx, tx, answer)
			return txErr
		})
	} else {
		winners, err = settleByClaiming(ctx, app.Store, answer)
	}
	if err != nil {
		return nil, storageError(app, ctx, "settle", err)
	}

	app.Metrics.Settled(len(winners))
	app.Metrics.RoundOpen(true)
	util.LogInfo(util.WithRequestID(ctx, "Round settled with answer %q: %d winner(s) %v"), answer, len(winners), winners)
	return winners, nil
}

func matchingGuesses(guesses []models.Guess, answer string) []models.Guess {
	return lo.Filter(guesses, func(g models.Guess, _ int) bool {
		return NormalizeAnswer(g.Guess) == answer
	})
}

// award adds the round's points to username. It reports false for guesses
// whose owner has no user record.
func award(ctx context.Context, store models.Store, username string) (bool, error) {
	err := store.AddScore(ctx, username, constants.PointsPerCorrectGuess)
	if errors.Is(err, models.ErrNotFound) {
		util.LogWarn(util.WithRequestID(ctx, "Skipping correct guess from %s: no user record"), username)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func settleInTx(ctx context.Context, tx models.Store, answer string) ([]string, error) {
	guesses, err := tx.ListGuesses(ctx)
	if err != nil {
		return nil, err
	}

	winners := make([]string, 0)
	for _, g := range matchingGuesses(guesses, answer) {
		ok, err := award(ctx, tx, g.Username)
		if err != nil {
			return nil, err
		}
		if ok {
			winners = append(winners, g.Username)
		}
	}

	if err := tx.DeleteAllGuesses(ctx); err != nil {
		return nil, err
	}
	if err := tx.SetRoundState(ctx, models.RoundState{RoundOpen: true}); err != nil {
		return nil, err
	}
	return winners, nil
}

// settleByClaiming is used when the store cannot commit the whole
// settlement at once. Each guess is deleted before its owner is scored, so
// re-running after a partial failure never scores a guess twice.
func settleByClaiming(ctx context.Context, store models.Store, answer string) ([]string, error) {
	guesses, err := store.ListGuesses(ctx)
	if err != nil {
		return nil, err
	}

	winners := make([]string, 0)
	for _, g := range guesses {
		claimed, err := store.DeleteGuess(ctx, g.Username)
		if err != nil {
			return nil, err
		}
		if !claimed || NormalizeAnswer(g.Guess) != answer {
			continue
		}
		ok, err := award(ctx, store, g.Username)
		if err != nil {
			return nil, err
		}
		if ok {
			winners = append(winners, g.Username)
		}
	}

	if err := store.DeleteAllGuesses(ctx); err != nil {
		return nil, err
	}
	if err := store.SetRoundState(ctx, models.RoundState{RoundOpen: true}); err != nil {
		return nil, err
	}
	return winners, nil
}

// CloseRound stops the round from accepting guesses until the next
// settlement or OpenRound.
func CloseRound(app *models.App, ctx context.Context) error {
	return setRoundOpen(app, ctx, false)
}

func OpenRound(app *models.App, ctx context.Context) error {
	return setRoundOpen(app, ctx, true)
}

func setRoundOpen(app *models.App, ctx context.Context, open bool) error {
	app.RoundMutex.Lock()
	defer app.RoundMutex.Unlock()

	if err := app.Store.SetRoundState(ctx, models.RoundState{RoundOpen: open}); err != nil {
		return storageError(app, ctx, "set round state", err)
	}
	app.Metrics.RoundOpen(open)
	util.LogInfo(util.WithRequestID(ctx, "Round open set to %v"), open)
	return nil
}
