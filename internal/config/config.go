package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/CodeAndHammer/roundguess/internal/constants"
)

type Config struct {
	Port    string `env:"PORT" envDefault:"3000"`
	Env     string `env:"ENV"`
	GinMode string `env:"GIN_MODE"`

	StoreBackend      string `env:"STORE_BACKEND" envDefault:"file"`
	DataFile          string `env:"DATA_FILE" envDefault:"database.json"`
	SQLitePath        string `env:"SQLITE_PATH" envDefault:"roundguess.db"`
	MongoURI          string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase     string `env:"MONGO_DATABASE" envDefault:"roundguess"`
	MongoTransactions bool   `env:"MONGO_TRANSACTIONS" envDefault:"false"`

	CookieMaxAge   time.Duration `env:"COOKIE_MAX_AGE" envDefault:"25h"`
	StaticDir      string        `env:"STATIC_DIR" envDefault:"public"`
	StaticCacheAge time.Duration `env:"STATIC_CACHE_AGE" envDefault:"5m"`
	RateLimitRPS   int           `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst int           `env:"RATE_LIMIT_BURST" envDefault:"10"`
	RateLimiterTTL time.Duration `env:"RATE_LIMITER_TTL" envDefault:"1h"`
	AdminToken     string        `env:"ADMIN_TOKEN"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return Parse()
}

func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case constants.StoreBackendFile, constants.StoreBackendSQLite, constants.StoreBackendMongo:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if strings.TrimSpace(c.Port) == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.CookieMaxAge <= 0 {
		return fmt.Errorf("COOKIE_MAX_AGE must be positive")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.GinMode == "release" || c.Env == "production"
}
