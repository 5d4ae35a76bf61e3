package util

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/CodeAndHammer/roundguess/internal/constants"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

// SetupLogger switches between the console writer used in development and
// plain JSON lines in production.
func SetupLogger(out io.Writer, production bool, level string) {
	if !production {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	logger = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	if err != nil {
		LogWarn("Invalid log level %q, using info", level)
	}
}

func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false
		}
		LogWarn("Error checking directory existence: %v", err)
		return false
	}
	return info.IsDir()
}

func FormatUptime(d time.Duration) string {
	seconds := int(d.Seconds()) % 60
	minutes := int(d.Minutes()) % 60
	hours := int(d.Hours())
	switch {
	case hours > 0:
		return fmt.Sprintf("%d hour%s, %d minute%s, %d second%s",
			hours, plural(hours),
			minutes, plural(minutes),
			seconds, plural(seconds))
	case minutes > 0:
		return fmt.Sprintf("%d minute%s, %d second%s",
			minutes, plural(minutes),
			seconds, plural(seconds))
	default:
		return fmt.Sprintf("%d second%s", seconds, plural(seconds))
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	reqID, _ := ctx.Value(constants.RequestIDKey).(string)
	return reqID
}

// WithRequestID prefixes format with the request ID carried by ctx, if any.
func WithRequestID(ctx context.Context, format string) string {
	if reqID := RequestID(ctx); reqID != "" {
		return "[request_id=" + reqID + "] " + format
	}
	return format
}

func LogInfo(format string, v ...any) {
	logger.Info().Msgf(format, v...)
}

func LogWarn(format string, v ...any) {
	logger.Warn().Msgf(format, v...)
}

func LogError(format string, v ...any) {
	logger.Error().Msgf(format, v...)
}

func LogFatal(format string, v ...any) {
	logger.Fatal().Msgf(format, v...)
}
