package session

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	constants "github.com/CodeAndHammer/roundguess/internal/constants"
	models "github.com/CodeAndHammer/roundguess/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func contextWithCookie(value string) *gin.Context {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if value != "" {
		req.AddCookie(&http.Cookie{Name: constants.UsernameCookieName, Value: url.QueryEscape(value)})
	}
	c.Request = req
	return c
}

func TestGetUsername(t *testing.T) {
	cases := []struct {
		cookie string
		want   string
		ok     bool
	}{
		{"", "", false},
		{"alice", "alice", true},
		{"  bob  ", "bob", true},
		{"   ", "", false},
		{"小明", "小明", true},
	}
	for _, c := range cases {
		got, ok := GetUsername(contextWithCookie(c.cookie))
		if got != c.want || ok != c.ok {
			t.Errorf("GetUsername(cookie=%q) = (%q, %v), want (%q, %v)", c.cookie, got, ok, c.want, c.ok)
		}
	}
}

func TestSetUsernameIssuesLongLivedCookie(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/login", nil)

	SetUsername(&models.App{CookieMaxAge: constants.UsernameCookieTTL}, c, "小明")

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %v, want one", cookies)
	}
	got := cookies[0]
	if got.Name != constants.UsernameCookieName {
		t.Errorf("cookie name = %q", got.Name)
	}
	if value, _ := url.QueryUnescape(got.Value); value != "小明" {
		t.Errorf("cookie value = %q, want 小明", value)
	}
	if want := int((25 * time.Hour).Seconds()); got.MaxAge != want {
		t.Errorf("MaxAge = %d, want %d", got.MaxAge, want)
	}
	if !got.HttpOnly {
		t.Error("cookie should be HttpOnly")
	}
}

func TestSetUsernameFallsBackToDefaultTTL(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/login", nil)

	SetUsername(&models.App{}, c, "alice")

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge != int(constants.UsernameCookieTTL.Seconds()) {
		t.Fatalf("cookies = %+v, want default TTL", cookies)
	}
}

func TestClearUsername(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/logout", nil)

	ClearUsername(&models.App{}, c)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("cookies = %+v, want an expired cookie", cookies)
	}
}
