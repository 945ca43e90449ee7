// Package middleware contains the Gin middleware shared by the library API:
// request correlation, access logging with redaction, panic recovery,
// authentication, idempotent quick-rate handling, rate limiting, security
// headers and Prometheus metrics. Router order matters:
//
//  1. RequestID()
//  2. RedactingLogger(...)
//  3. Recovery()
//
// so that access logs and recovered panics carry the correlation ID.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-library-backend/internal/sysutil"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	// maxRequestIDLen bounds client supplied IDs; they end up in logs, events
	// and Kafka headers.
	maxRequestIDLen = 128

	maxQueryLogLength = 2048
)

// validRequestID accepts 1..maxRequestIDLen characters from [A-Za-z0-9._:-].
func validRequestID(s string) bool {
	if s == "" || len(s) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		switch b := s[i]; {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		case b == '-', b == '_', b == '.', b == ':':
		default:
			return false
		}
	}
	return true
}

// RequestID adopts a well-formed incoming X-Request-ID or mints a UUIDv4,
// echoes it on the response and threads it into the request context for
// services and published events.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !validRequestID(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Request = c.Request.WithContext(sysutil.WithRequestID(c.Request.Context(), rid))
		c.Next()
	}
}

// RequestIDFrom returns the correlation ID set by RequestID, falling back to
// the response header. Unvalidated request headers are never echoed.
func RequestIDFrom(c *gin.Context) string {
	if s := c.GetString(requestIDKey); s != "" {
		return s
	}
	return c.Writer.Header().Get(requestIDHeader)
}

// Recovery turns a panic into the standard 500 envelope and logs it with the
// stack, route and caller.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			rid := RequestIDFrom(c)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("route", routeLabel(c)).
				Str("user_id", UserID(c)).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "Something went wrong",
			})
		}()
		c.Next()
	}
}

// attachLogger stores l in the Gin context and in the request context, where
// zerolog.Ctx finds it from the service layer.
func attachLogger(c *gin.Context, l zerolog.Logger) {
	c.Set(loggerKey, &l)
	c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
}

// LoggerFrom returns the request-scoped logger or, outside RedactingLogger,
// the global one. Never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if lg, ok := c.Value(loggerKey).(*zerolog.Logger); ok {
		return lg
	}
	return &log.Logger
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// truncate caps s at max bytes plus an ellipsis; max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
