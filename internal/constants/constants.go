package constants

import "time"

const (
	PointsPerCorrectGuess = 10
)

const (
	UsernameCookieName = "username"
	UsernameCookieTTL  = 90000000 * time.Millisecond
	AdminTokenHeader   = "X-Admin-Token"
)

const (
	RouteStatus     = "/api/status"
	RouteLogin      = "/api/login"
	RouteLogout     = "/api/logout"
	RouteGuess      = "/api/guess"
	RouteSettle     = "/api/admin/settle"
	RouteCloseRound = "/api/admin/close"
	RouteOpenRound  = "/api/admin/open"
	RouteHealthz    = "/healthz"
	RouteMetrics    = "/metrics"
)

const (
	ErrorCodeInvalidInput       = "invalid_input"
	ErrorCodeUnauthenticated    = "unauthenticated"
	ErrorCodeRoundClosed        = "round_closed"
	ErrorCodeStorageFailure     = "storage_failure"
	ErrorCodeRateLimited        = "rate_limited"
	ErrorCodeAdminTokenRequired = "admin_token_required"
)

const (
	StoreBackendFile   = "file"
	StoreBackendSQLite = "sqlite"
	StoreBackendMongo  = "mongo"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
)
