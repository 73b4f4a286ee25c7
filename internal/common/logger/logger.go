package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"bell-backend/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// New builds the process logger. Local runs get a human readable console writer.
func New(level, env string) zerolog.Logger {
	return NewWithWriter(os.Stdout, level, env)
}

// NewWithWriter builds a logger writing to w
func NewWithWriter(w io.Writer, level, env string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	out := w
	if utils.NormalizeEnvironment(env) == utils.EnvLocal {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "bell-backend").Logger()
}

// WithContext attaches l to ctx so it can be read back with zerolog.Ctx
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}

// RequestLogger logs every request once it completes and injects the logger into the request context
func RequestLogger(l zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		c.Next()

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = l.Error()
		case status >= 400:
			event = l.Warn()
		default:
			event = l.Info()
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request completed")
	}
}

// MaskDestination hides most of a phone number or email address for logging
// 9876543210 → 98******10
// alice@example.com → a***@example.com
func MaskDestination(destination string) string {
	if at := strings.LastIndex(destination, "@"); at >= 0 {
		local, domain := destination[:at], destination[at:]
		if len(local) <= 1 {
			return "*" + domain
		}
		return local[:1] + "***" + domain
	}
	if len(destination) <= 4 {
		return strings.Repeat("*", len(destination))
	}
	return destination[:2] + strings.Repeat("*", len(destination)-4) + destination[len(destination)-2:]
}
