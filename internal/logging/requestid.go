// Package logging carries per-request correlation ids through contexts and
// into structured log records.
package logging

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// HeaderRequestID is the header a request id is read from and echoed on.
const HeaderRequestID = "X-Request-ID"

type requestIDKey struct{}

// maxRequestIDLen bounds caller-supplied ids so they stay log friendly.
const maxRequestIDLen = 128

// NewRequestID returns a fresh random request id.
func NewRequestID() string {
	return uuid.NewString()
}

// ValidRequestID reports whether a caller-supplied id can be reused as is.
func ValidRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	return !strings.ContainsFunc(id, func(r rune) bool {
		return r < 0x21 || r > 0x7e
	})
}

// WithRequestID returns a copy of ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// FromContext returns logger annotated with the request id in ctx, if any.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := RequestID(ctx); id != "" {
		return logger.With("request_id", id)
	}
	return logger
}
