package game

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"github.com/samber/lo"

	models "github.com/CodeAndHammer/roundguess/internal/models"
)

// BuildLeaderboard orders users by score, highest first. Equal scores are
// ordered by name ascending.
func BuildLeaderboard(users []models.User) []models.LeaderboardEntry {
	entries := lo.Map(users, func(u models.User, _ int) models.LeaderboardEntry {
		return models.LeaderboardEntry{Name: u.Username, Score: u.Score}
	})
	slices.SortFunc(entries, func(a, b models.LeaderboardEntry) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return entries
}

// GetStatus is a read-only view of the round for username. An empty
// username yields the anonymous view.
func GetStatus(app *models.App, ctx context.Context, username string) (models.Status, error) {
	username = NormalizeUsername(username)

	open, err := isRoundOpen(ctx, app.Store)
	if err != nil {
		return models.Status{}, storageError(app, ctx, "status round", err)
	}
	users, err := app.Store.ListUsers(ctx)
	if err != nil {
		return models.Status{}, storageError(app, ctx, "status users", err)
	}

	status := models.Status{
		RoundOpen:   open,
		Leaderboard: BuildLeaderboard(users),
	}
	if username == "" {
		return status, nil
	}

	status.IsLoggedIn = true
	status.CurrentUser = &username
	if user, ok := lo.Find(users, func(u models.User) bool { return u.Username == username }); ok {
		status.MyScore = user.Score
	}

	guess, err := app.Store.GetGuess(ctx, username)
	switch {
	case err == nil:
		status.MyGuess = &guess.Guess
	case !errors.Is(err, models.ErrNotFound):
		return models.Status{}, storageError(app, ctx, "status guess", err)
	}
	return status, nil
}
