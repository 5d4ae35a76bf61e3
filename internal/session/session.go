package session

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	constants "github.com/CodeAndHammer/roundguess/internal/constants"
	models "github.com/CodeAndHammer/roundguess/internal/models"
	util "github.com/CodeAndHammer/roundguess/internal/util"
)

// GetUsername returns the identity the client claims through its cookie.
// The value is trusted as-is; nothing server-side vouches for it.
func GetUsername(c *gin.Context) (string, bool) {
	raw, err := c.Cookie(constants.UsernameCookieName)
	if err != nil {
		return "", false
	}
	username := strings.TrimSpace(raw)
	return username, username != ""
}

// SetUsername issues the identity cookie with a fixed lifetime. Every
// login renews it.
func SetUsername(app *models.App, c *gin.Context, username string) {
	maxAge := app.CookieMaxAge
	if maxAge <= 0 {
		maxAge = constants.UsernameCookieTTL
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(constants.UsernameCookieName, username, int(maxAge.Seconds()), "/", "", app.IsProduction, true)
	util.LogInfo(util.WithRequestID(c.Request.Context(), "Issued identity cookie for %s"), username)
}

func ClearUsername(app *models.App, c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(constants.UsernameCookieName, "", -1, "/", "", app.IsProduction, true)
}
