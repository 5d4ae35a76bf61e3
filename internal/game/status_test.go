package game

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	models "github.com/CodeAndHammer/roundguess/internal/models"
)

func TestBuildLeaderboardOrdersByScoreThenName(t *testing.T) {
	users := []models.User{
		{Username: "z", Score: 30},
		{Username: "y", Score: 10},
		{Username: "x", Score: 30},
		{Username: "w", Score: 0},
	}
	got := BuildLeaderboard(users)
	want := []models.LeaderboardEntry{
		{Name: "x", Score: 30},
		{Name: "z", Score: 30},
		{Name: "y", Score: 10},
		{Name: "w", Score: 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("leaderboard mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildLeaderboardEmpty(t *testing.T) {
	got := BuildLeaderboard(nil)
	if got == nil || len(got) != 0 {
		t.Errorf("BuildLeaderboard(nil) = %#v, want empty non-nil slice", got)
	}
}

func TestGetStatusAnonymous(t *testing.T) {
	forEachBackend(t, func(t *testing.T, app *models.App) {
		mustLogin(t, app, "alice")
		mustGuess(t, app, "alice", "A")

		status := mustStatus(t, app, "")
		if status.IsLoggedIn || status.CurrentUser != nil || status.MyGuess != nil || status.MyScore != 0 {
			t.Errorf("anonymous status leaked user fields: %+v", status)
		}
		if !status.RoundOpen {
			t.Error("round should be open")
		}
		want := []models.LeaderboardEntry{{Name: "alice", Score: 0}}
		if diff := cmp.Diff(want, status.Leaderboard); diff != "" {
			t.Errorf("leaderboard mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestGetStatusForUnknownUser(t *testing.T) {
	forEachBackend(t, func(t *testing.T, app *models.App) {
		status := mustStatus(t, app, "stranger")
		if !status.IsLoggedIn || status.CurrentUser == nil || *status.CurrentUser != "stranger" {
			t.Errorf("status = %+v, want logged in as stranger", status)
		}
		if status.MyScore != 0 || status.MyGuess != nil {
			t.Errorf("unknown user should have score 0 and no guess, got %+v", status)
		}
		// Status is read-only: no user record appears.
		users, err := app.Store.ListUsers(context.Background())
		if err != nil || len(users) != 0 {
			t.Errorf("GetStatus created users: (%v, %v)", users, err)
		}
	})
}

func TestGetStatusLeaderboardTies(t *testing.T) {
	forEachBackend(t, func(t *testing.T, app *models.App) {
		ctx := context.Background()
		for name, score := range map[string]int{"x": 30, "y": 10, "z": 30} {
			mustLogin(t, app, name)
			if err := app.Store.AddScore(ctx, name, score); err != nil {
				t.Fatalf("AddScore: %v", err)
			}
		}

		status := mustStatus(t, app, "y")
		want := []models.LeaderboardEntry{{Name: "x", Score: 30}, {Name: "z", Score: 30}, {Name: "y", Score: 10}}
		if diff := cmp.Diff(want, status.Leaderboard); diff != "" {
			t.Errorf("leaderboard mismatch (-want +got):\n%s", diff)
		}
		if status.MyScore != 10 {
			t.Errorf("myScore = %d, want 10", status.MyScore)
		}
	})
}

func TestGetStatusDefaultsToOpenWithoutRoundRecord(t *testing.T) {
	app := &models.App{Store: openFileStore(t)}
	status, err := GetStatus(app, context.Background(), "")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if !status.RoundOpen {
		t.Error("missing round record should read as open")
	}
}
