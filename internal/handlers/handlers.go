package handlers

import (
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	constants "github.com/CodeAndHammer/roundguess/internal/constants"
	game "github.com/CodeAndHammer/roundguess/internal/game"
	models "github.com/CodeAndHammer/roundguess/internal/models"
	session "github.com/CodeAndHammer/roundguess/internal/session"
	util "github.com/CodeAndHammer/roundguess/internal/util"
)

type loginRequest struct {
	Username *string `json:"username"`
}

type guessRequest struct {
	Guess *string `json:"guess"`
}

type settleRequest struct {
	CorrectAnswer *string `json:"correctAnswer"`
}

func StatusHandler(app *models.App, c *gin.Context) {
	ctx := c.Request.Context()
	username, _ := session.GetUsername(c)

	status, err := game.GetStatus(app, ctx, username)
	if err != nil {
		writeError(app, c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func LoginHandler(app *models.App, c *gin.Context) {
	ctx := c.Request.Context()

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == nil {
		util.LogWarn(util.WithRequestID(ctx, "Malformed login request from %s"), c.ClientIP())
		writeError(app, c, game.ErrInvalidInput)
		return
	}

	username, err := game.Login(app, ctx, *req.Username)
	if err != nil {
		writeError(app, c, err)
		return
	}
	session.SetUsername(app, c, username)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func LogoutHandler(app *models.App, c *gin.Context) {
	if username, ok := session.GetUsername(c); ok {
		util.LogInfo(util.WithRequestID(c.Request.Context(), "User logged out: %s"), username)
	}
	session.ClearUsername(app, c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func GuessHandler(app *models.App, c *gin.Context) {
	ctx := c.Request.Context()

	username, ok := session.GetUsername(c)
	if !ok {
		writeError(app, c, game.ErrUnauthenticated)
		return
	}

	var req guessRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Guess == nil {
		util.LogWarn(util.WithRequestID(ctx, "Malformed guess request from %s"), username)
		writeError(app, c, game.ErrInvalidInput)
		return
	}

	if err := game.SubmitGuess(app, ctx, username, *req.Guess); err != nil {
		writeError(app, c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func SettleHandler(app *models.App, c *gin.Context) {
	ctx := c.Request.Context()

	var req settleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.CorrectAnswer == nil {
		util.LogWarn(util.WithRequestID(ctx, "Settle request without correctAnswer from %s"), c.ClientIP())
		writeError(app, c, game.ErrInvalidInput)
		return
	}

	winners, err := game.Settle(app, ctx, *req.CorrectAnswer)
	if err != nil {
		writeError(app, c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "winners": winners})
}

func CloseRoundHandler(app *models.App, c *gin.Context) {
	if err := game.CloseRound(app, c.Request.Context()); err != nil {
		writeError(app, c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "roundOpen": false})
}

func OpenRoundHandler(app *models.App, c *gin.Context) {
	if err := game.OpenRound(app, c.Request.Context()); err != nil {
		writeError(app, c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "roundOpen": true})
}

func HealthzHandler(app *models.App, c *gin.Context) {
	ctx := c.Request.Context()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	uptime := time.Since(app.StartTime)

	app.LimiterMutex.RLock()
	limiterCount := len(app.LimiterMap)
	app.LimiterMutex.RUnlock()

	body := gin.H{
		"status":          "ok",
		"env":             map[bool]string{true: "production", false: "development"}[app.IsProduction],
		"store":           app.StoreBackend,
		"active_limiters": limiterCount,
		"memory_alloc_mb": m.Alloc / 1024 / 1024,
		"memory_sys_mb":   m.Sys / 1024 / 1024,
		"memory_gc_count": m.NumGC,
		"uptime":          util.FormatUptime(uptime),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	}

	if err := app.Store.Ping(ctx); err != nil {
		util.LogError(util.WithRequestID(ctx, "Health check store ping failed: %v"), err)
		body["status"] = "unavailable"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}

	if users, err := app.Store.ListUsers(ctx); err == nil {
		body["users"] = len(users)
	}
	if guesses, err := app.Store.ListGuesses(ctx); err == nil {
		body["guesses"] = len(guesses)
	}
	c.JSON(http.StatusOK, body)
}

// writeError maps game errors onto status codes. Storage details stay in
// the log.
func writeError(app *models.App, c *gin.Context, err error) {
	var (
		status int
		code   string
	)
	switch {
	case errors.Is(err, game.ErrInvalidInput):
		status, code = http.StatusBadRequest, constants.ErrorCodeInvalidInput
	case errors.Is(err, game.ErrUnauthenticated):
		status, code = http.StatusUnauthorized, constants.ErrorCodeUnauthenticated
	case errors.Is(err, game.ErrRoundClosed):
		status, code = http.StatusForbidden, constants.ErrorCodeRoundClosed
	default:
		if !errors.Is(err, game.ErrStorage) {
			util.LogError(util.WithRequestID(c.Request.Context(), "Unexpected error: %v"), err)
		}
		status, code = http.StatusInternalServerError, constants.ErrorCodeStorageFailure
	}
	app.Metrics.Rejected(code)
	c.AbortWithStatusJSON(status, gin.H{"error": code})
}
