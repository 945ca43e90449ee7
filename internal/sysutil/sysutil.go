// Package sysutil holds process-wide helpers: log level parsing and the
// request correlation ID carried through a context.Context into services and
// published events.
package sysutil

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ParseLogLevel maps LOG_LEVEL values onto zerolog levels. Only debug, info,
// warn (or warning), error, fatal and panic are accepted; "" means info.
func ParseLogLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		s = "warn"
	case "trace", "disabled":
		return zerolog.NoLevel, fmt.Errorf("unsupported log level %q", s)
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.NoLevel, fmt.Errorf("unsupported log level %q", s)
	}
	return lvl, nil
}

// SetLogLevel sets the global zerolog level, falling back to info for values
// ParseLogLevel rejects.
func SetLogLevel(s string) zerolog.Level {
	lvl, err := ParseLogLevel(s)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	return lvl
}

type requestIDKey struct{}

// WithRequestID returns a copy of ctx carrying the request correlation ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the correlation ID stored by WithRequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
