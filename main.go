package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ginGzip "github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	cachecontrol "go.eigsys.de/gin-cachecontrol/v2"

	config "github.com/CodeAndHammer/roundguess/internal/config"
	constants "github.com/CodeAndHammer/roundguess/internal/constants"
	game "github.com/CodeAndHammer/roundguess/internal/game"
	handlers "github.com/CodeAndHammer/roundguess/internal/handlers"
	"github.com/CodeAndHammer/roundguess/internal/metrics"
	middleware "github.com/CodeAndHammer/roundguess/internal/middleware"
	models "github.com/CodeAndHammer/roundguess/internal/models"
	"github.com/CodeAndHammer/roundguess/internal/store/filestore"
	"github.com/CodeAndHammer/roundguess/internal/store/mongostore"
	"github.com/CodeAndHammer/roundguess/internal/store/sqlitestore"
	util "github.com/CodeAndHammer/roundguess/internal/util"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		util.LogFatal("Invalid configuration: %v", err)
	}

	isProduction := cfg.IsProduction()
	util.SetupLogger(os.Stderr, isProduction, cfg.LogLevel)
	if isProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	util.LogInfo("Starting roundguess in %s mode", map[bool]string{true: "production", false: "development"}[isProduction])

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := openStore(ctx, cfg)
	cancel()
	if err != nil {
		util.LogFatal("Failed to open %s store: %v", cfg.StoreBackend, err)
	}
	util.LogInfo("Using %s store", cfg.StoreBackend)

	app := newApp(cfg, store)
	if err := game.EnsureRound(app, context.Background()); err != nil {
		util.LogFatal("Failed to initialise round state: %v", err)
	}

	router := setupRouter(app, cfg)

	bgCtx, stopBackground := context.WithCancel(context.Background())
	middleware.StartLimiterCleanup(bgCtx, app, 30*time.Minute)

	startServer(router, cfg.Port)

	stopBackground()
	if err := store.Close(); err != nil {
		util.LogWarn("Failed to close store: %v", err)
	}
	util.LogInfo("Store closed")
}

func openStore(ctx context.Context, cfg config.Config) (models.Store, error) {
	switch cfg.StoreBackend {
	case constants.StoreBackendFile:
		return filestore.Open(cfg.DataFile)
	case constants.StoreBackendSQLite:
		return sqlitestore.Open(ctx, cfg.SQLitePath)
	case constants.StoreBackendMongo:
		return mongostore.Open(ctx, mongostore.Options{
			URI:          cfg.MongoURI,
			Database:     cfg.MongoDatabase,
			Transactions: cfg.MongoTransactions,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func newApp(cfg config.Config, store models.Store) *models.App {
	return &models.App{
		Store:          store,
		LimiterMap:     make(map[string]*models.RateLimiterEntry),
		Metrics:        metrics.New(),
		IsProduction:   cfg.IsProduction(),
		StartTime:      time.Now(),
		CookieMaxAge:   cfg.CookieMaxAge,
		StaticCacheAge: cfg.StaticCacheAge,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		RateLimiterTTL: cfg.RateLimiterTTL,
		AdminToken:     cfg.AdminToken,
		StoreBackend:   cfg.StoreBackend,
	}
}

func setupRouter(app *models.App, cfg config.Config) *gin.Engine {
	router := gin.Default()

	router.Use(middleware.RequestID())
	router.Use(middleware.SecurityHeaders())

	router.Use(ginGzip.Gzip(ginGzip.DefaultCompression,
		ginGzip.WithExcludedExtensions([]string{".svg", ".ico", ".png", ".jpg", ".jpeg", ".gif"}),
		ginGzip.WithExcludedPaths([]string{constants.RouteMetrics})))

	if err := router.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		util.LogWarn("Failed to set trusted proxies: %v", err)
	}

	router.Use(func(c *gin.Context) {
		applyCacheHeaders(app, c)
	})

	wrap := func(h func(*models.App, *gin.Context)) gin.HandlerFunc {
		return func(c *gin.Context) { h(app, c) }
	}
	limited := middleware.RateLimit(app)

	router.GET(constants.RouteStatus, wrap(handlers.StatusHandler))
	router.POST(constants.RouteLogin, limited, wrap(handlers.LoginHandler))
	router.POST(constants.RouteLogout, limited, wrap(handlers.LogoutHandler))
	router.POST(constants.RouteGuess, limited, wrap(handlers.GuessHandler))

	admin := router.Group("/", limited, middleware.AdminGuard(app))
	admin.POST(constants.RouteSettle, wrap(handlers.SettleHandler))
	admin.POST(constants.RouteCloseRound, wrap(handlers.CloseRoundHandler))
	admin.POST(constants.RouteOpenRound, wrap(handlers.OpenRoundHandler))

	router.GET(constants.RouteHealthz, wrap(handlers.HealthzHandler))
	router.GET(constants.RouteMetrics, gin.WrapH(app.Metrics.Handler()))

	if util.DirExists(cfg.StaticDir) {
		util.LogInfo("Serving static files from %s", cfg.StaticDir)
		fileServer := http.FileServer(gin.Dir(cfg.StaticDir, false))
		router.NoRoute(func(c *gin.Context) {
			if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
				c.Status(http.StatusNotFound)
				return
			}
			fileServer.ServeHTTP(c.Writer, c.Request)
		})
	} else {
		util.LogWarn("Static directory %s not found, serving API only", cfg.StaticDir)
	}

	return router
}

func isDynamicPath(path string) bool {
	return strings.HasPrefix(path, "/api/") || path == constants.RouteHealthz || path == constants.RouteMetrics
}

func applyCacheHeaders(app *models.App, c *gin.Context) {
	if app.IsProduction && !isDynamicPath(c.Request.URL.Path) {
		cachecontrol.New(cachecontrol.Config{
			Public: true,
			MaxAge: cachecontrol.Duration(app.StaticCacheAge),
		})(c)
		c.Header("Vary", "Accept-Encoding")
		return
	}
	cachecontrol.New(cachecontrol.Config{
		NoStore:        true,
		NoCache:        true,
		MustRevalidate: true,
	})(c)
}

func startServer(router *gin.Engine, port string) {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
		<-sigint
		util.LogInfo("Shutdown signal received, shutting down server gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			util.LogWarn("HTTP server Shutdown: %v", err)
		}
		close(idleConnsClosed)
	}()

	util.LogInfo("Server starting on http://localhost:%s", port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		util.LogFatal("Server failed to start: %v", err)
	}
	<-idleConnsClosed
	util.LogInfo("Server shutdown complete")
}
