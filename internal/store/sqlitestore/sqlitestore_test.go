package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"

	models "github.com/CodeAndHammer/roundguess/internal/models"
	"github.com/CodeAndHammer/roundguess/internal/storetest"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "roundguess.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return s
}

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) models.Store { return openTempStore(t) })
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestReopenKeepsDataAndSkipsAppliedMigrations(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "roundguess.db")

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.CreateUserIfAbsent(ctx, "alice"); err != nil {
		t.Fatalf("CreateUserIfAbsent: %v", err)
	}
	if err := s.AddScore(ctx, "alice", 10); err != nil {
		t.Fatalf("AddScore: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	user, err := reopened.GetUser(ctx, "alice")
	if err != nil || user.Score != 10 {
		t.Fatalf("GetUser after reopen = (%+v, %v), want score 10", user, err)
	}

	var applied int
	if err := reopened.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+migrationTable).Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied != 1 {
		t.Errorf("applied migrations = %d, want 1", applied)
	}
}

func TestExtractUpMigration(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"no markers", "CREATE TABLE a (x);", "CREATE TABLE a (x);"},
		{"up only", "-- +migrate Up\nCREATE TABLE a (x);", "\nCREATE TABLE a (x);"},
		{"up and down", "-- +migrate Up\nCREATE TABLE a (x);\n-- +migrate Down\nDROP TABLE a;", "\nCREATE TABLE a (x);\n"},
	}
	for _, c := range cases {
		if got := extractUpMigration(c.content); got != c.want {
			t.Errorf("%s: extractUpMigration = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestScoreCannotGoNegative(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)
	if _, err := s.CreateUserIfAbsent(ctx, "alice"); err != nil {
		t.Fatalf("CreateUserIfAbsent: %v", err)
	}
	if err := s.AddScore(ctx, "alice", -5); err == nil {
		t.Fatal("expected CHECK constraint to reject a negative score")
	}
}
