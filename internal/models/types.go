package models

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/CodeAndHammer/roundguess/internal/metrics"
)

type User struct {
	Username string `json:"username" bson:"_id"`
	Score    int    `json:"score" bson:"score"`
}

type Guess struct {
	Username string `json:"username" bson:"_id"`
	Guess    string `json:"guess" bson:"guess"`
}

type RoundState struct {
	RoundOpen bool `json:"roundOpen" bson:"roundOpen"`
}

type LeaderboardEntry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Status is the per-caller view returned by the status endpoint.
// MyGuess is nil when the caller has no live guess this round.
type Status struct {
	IsLoggedIn  bool               `json:"isLoggedIn"`
	CurrentUser *string            `json:"currentUser"`
	MyScore     int                `json:"myScore"`
	MyGuess     *string            `json:"myGuess"`
	RoundOpen   bool               `json:"roundOpen"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

// RateLimiterEntry represents a rate limiter entry for a client IP
type RateLimiterEntry struct {
	Limiter    *rate.Limiter
	LastAccess time.Time
}

type App struct {
	Store          Store
	RoundMutex     sync.Mutex
	LimiterMap     map[string]*RateLimiterEntry
	LimiterMutex   sync.RWMutex
	Metrics        *metrics.Recorder
	IsProduction   bool
	StartTime      time.Time
	CookieMaxAge   time.Duration
	StaticCacheAge time.Duration
	RateLimitRPS   int
	RateLimitBurst int
	RateLimiterTTL time.Duration
	AdminToken     string
	StoreBackend   string
}
