package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	constants "github.com/CodeAndHammer/roundguess/internal/constants"
	models "github.com/CodeAndHammer/roundguess/internal/models"
	util "github.com/CodeAndHammer/roundguess/internal/util"
)

const cspPolicy = "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'; object-src 'none'; base-uri 'self'; form-action 'self'; frame-ancestors 'none';"

func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Security-Policy", cspPolicy)
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=63072000; includeSubDomains; preload")
		}
		c.Next()
	}
}

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.Request.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(c.Request.Context(), constants.RequestIDKey, reqID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-Id", reqID)
		c.Next()
	}
}

func getLimiter(app *models.App, key string) *rate.Limiter {
	app.LimiterMutex.RLock()
	entry, ok := app.LimiterMap[key]
	app.LimiterMutex.RUnlock()
	if ok {
		app.LimiterMutex.Lock()
		if entry, ok = app.LimiterMap[key]; ok {
			entry.LastAccess = time.Now()
		}
		app.LimiterMutex.Unlock()
		if ok {
			return entry.Limiter
		}
	}

	app.LimiterMutex.Lock()
	defer app.LimiterMutex.Unlock()
	if entry, ok = app.LimiterMap[key]; ok {
		entry.LastAccess = time.Now()
		return entry.Limiter
	}

	if key == "" || key == "::1" {
		util.LogWarn("Rate limiter key is empty or loopback: %q", key)
	}
	rps := app.RateLimitRPS
	if rps <= 0 {
		rps = 1
	}
	burst := app.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Every(time.Second/time.Duration(rps)), burst)
	if app.LimiterMap == nil {
		app.LimiterMap = make(map[string]*models.RateLimiterEntry)
	}
	app.LimiterMap[key] = &models.RateLimiterEntry{
		Limiter:    lim,
		LastAccess: time.Now(),
	}
	return lim
}

func RateLimit(app *models.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if !getLimiter(app, key).Allow() {
			app.Metrics.Rejected(constants.ErrorCodeRateLimited)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": constants.ErrorCodeRateLimited})
			return
		}
		c.Next()
	}
}

// AdminGuard requires the configured admin token on admin routes. With no
// token configured the routes stay open.
func AdminGuard(app *models.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if app.AdminToken == "" {
			c.Next()
			return
		}
		given := c.GetHeader(constants.AdminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(given), []byte(app.AdminToken)) != 1 {
			util.LogWarn(util.WithRequestID(c.Request.Context(), "Rejected admin request to %s from %s"), c.Request.URL.Path, c.ClientIP())
			app.Metrics.Rejected(constants.ErrorCodeAdminTokenRequired)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": constants.ErrorCodeAdminTokenRequired})
			return
		}
		c.Next()
	}
}

// CleanupStaleRateLimiters drops limiters idle for longer than the TTL and
// halves the map when it grows past the emergency threshold.
func CleanupStaleRateLimiters(app *models.App) int {
	app.LimiterMutex.Lock()
	defer app.LimiterMutex.Unlock()

	cutoffTime := time.Now().Add(-app.RateLimiterTTL)
	removedCount := 0

	for key, entry := range app.LimiterMap {
		if entry.LastAccess.Before(cutoffTime) {
			delete(app.LimiterMap, key)
			removedCount++
		}
	}

	if len(app.LimiterMap) > 50000 {
		util.LogInfo("Rate limiter map too large (%d entries), performing emergency cleanup", len(app.LimiterMap))

		type limiterInfo struct {
			key        string
			lastAccess time.Time
		}
		limiters := make([]limiterInfo, 0, len(app.LimiterMap))
		for key, entry := range app.LimiterMap {
			limiters = append(limiters, limiterInfo{key: key, lastAccess: entry.LastAccess})
		}
		sort.Slice(limiters, func(i, j int) bool {
			return limiters[i].lastAccess.Before(limiters[j].lastAccess)
		})

		entriesToRemove := len(limiters) / 2
		for i := 0; i < entriesToRemove; i++ {
			delete(app.LimiterMap, limiters[i].key)
			removedCount++
		}
		util.LogInfo("Removed %d oldest rate limiters", entriesToRemove)
	}

	if removedCount > 0 {
		util.LogInfo("Cleaned up %d stale rate limiters", removedCount)
	}
	return removedCount
}

// StartLimiterCleanup runs CleanupStaleRateLimiters every interval until ctx
// is done.
func StartLimiterCleanup(ctx context.Context, app *models.App, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				CleanupStaleRateLimiters(app)
			}
		}
	}()
	util.LogInfo("Started rate limiter cleanup routine")
}
