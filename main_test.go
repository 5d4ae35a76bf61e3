package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	config "github.com/CodeAndHammer/roundguess/internal/config"
	constants "github.com/CodeAndHammer/roundguess/internal/constants"
	game "github.com/CodeAndHammer/roundguess/internal/game"
	models "github.com/CodeAndHammer/roundguess/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	static := filepath.Join(dir, "public")
	if err := os.Mkdir(static, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>roundguess</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	return config.Config{
		Port:           "0",
		StoreBackend:   constants.StoreBackendFile,
		DataFile:       filepath.Join(dir, "database.json"),
		SQLitePath:     filepath.Join(dir, "roundguess.db"),
		CookieMaxAge:   constants.UsernameCookieTTL,
		StaticDir:      static,
		StaticCacheAge: 5 * time.Minute,
		RateLimitRPS:   100,
		RateLimitBurst: 100,
		RateLimiterTTL: time.Hour,
	}
}

func testRouter(t *testing.T, cfg config.Config) (*gin.Engine, *models.App) {
	t.Helper()
	store, err := openStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	app := newApp(cfg, store)
	if err := game.EnsureRound(app, context.Background()); err != nil {
		t.Fatalf("EnsureRound: %v", err)
	}
	return setupRouter(app, cfg), app
}

func serve(router *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestOpenStoreBackends(t *testing.T) {
	cfg := testConfig(t)
	for _, backend := range []string{constants.StoreBackendFile, constants.StoreBackendSQLite} {
		cfg.StoreBackend = backend
		store, err := openStore(context.Background(), cfg)
		if err != nil {
			t.Fatalf("openStore(%s): %v", backend, err)
		}
		if err := store.Ping(context.Background()); err != nil {
			t.Errorf("%s ping: %v", backend, err)
		}
		_ = store.Close()
	}

	cfg.StoreBackend = "postgres"
	if _, err := openStore(context.Background(), cfg); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestRouterServesAPIWithRequestID(t *testing.T) {
	router, _ := testRouter(t, testConfig(t))
	w := serve(router, http.MethodGet, constants.RouteStatus, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Error("missing X-Request-Id")
	}
	if cc := w.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Errorf("API Cache-Control = %q, want no-store", cc)
	}
}

func TestRouterServesStaticIndex(t *testing.T) {
	router, _ := testRouter(t, testConfig(t))
	w := serve(router, http.MethodGet, "/", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "roundguess") {
		t.Errorf("GET / = %d %q", w.Code, w.Body.String())
	}
	if w = serve(router, http.MethodPost, "/nowhere", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("POST /nowhere = %d, want 404", w.Code)
	}
}

func TestRouterAdminToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.AdminToken = "s3cret"
	router, _ := testRouter(t, cfg)

	body := `{"correctAnswer":"A"}`
	if w := serve(router, http.MethodPost, constants.RouteSettle, body, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("settle without token = %d, want 401", w.Code)
	}
	w := serve(router, http.MethodPost, constants.RouteSettle, body, map[string]string{constants.AdminTokenHeader: "s3cret"})
	if w.Code != http.StatusOK {
		t.Errorf("settle with token = %d %s", w.Code, w.Body.String())
	}
}

func TestRouterRateLimitsMutatingRoutes(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimitRPS = 1
	cfg.RateLimitBurst = 1
	router, _ := testRouter(t, cfg)

	body := `{"username":"alice"}`
	if w := serve(router, http.MethodPost, constants.RouteLogin, body, nil); w.Code != http.StatusOK {
		t.Fatalf("first login = %d", w.Code)
	}
	if w := serve(router, http.MethodPost, constants.RouteLogin, body, nil); w.Code != http.StatusTooManyRequests {
		t.Errorf("second login = %d, want 429", w.Code)
	}
	if w := serve(router, http.MethodGet, constants.RouteStatus, "", nil); w.Code != http.StatusOK {
		t.Errorf("status is not rate limited, got %d", w.Code)
	}
}

func TestRouterExposesMetrics(t *testing.T) {
	router, _ := testRouter(t, testConfig(t))
	serve(router, http.MethodPost, constants.RouteLogin, `{"username":"alice"}`, nil)

	w := serve(router, http.MethodGet, constants.RouteMetrics, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics = %d", w.Code)
	}
	for _, want := range []string{"roundguess_logins_total", "roundguess_round_open 1"} {
		if !strings.Contains(w.Body.String(), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestApplyCacheHeadersInProduction(t *testing.T) {
	cfg := testConfig(t)
	router, app := testRouter(t, cfg)
	app.IsProduction = true

	w := serve(router, http.MethodGet, "/", "", nil)
	if cc := w.Header().Get("Cache-Control"); !strings.Contains(cc, "public") || !strings.Contains(cc, "max-age") {
		t.Errorf("static Cache-Control = %q", cc)
	}
	w = serve(router, http.MethodGet, constants.RouteStatus, "", nil)
	if cc := w.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Errorf("API Cache-Control = %q", cc)
	}
}
