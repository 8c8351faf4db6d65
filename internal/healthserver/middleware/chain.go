package middleware

import (
	"log/slog"
	"net/http"
)

// Option applies one middleware layer to a handler.
type Option func(http.Handler) http.Handler

// Apply wraps handler with options in order, so the first option given
// becomes the outermost layer.
func Apply(handler http.Handler, options ...Option) http.Handler {
	for i := len(options) - 1; i >= 0; i-- {
		handler = options[i](handler)
	}

	return handler
}

// WithCorrelationID adds correlation id propagation.
func WithCorrelationID() Option {
	return func(next http.Handler) http.Handler { return CorrelationID()(next) }
}

// WithRecovery adds panic recovery.
func WithRecovery(logger *slog.Logger) Option {
	return func(next http.Handler) http.Handler { return Recovery(logger)(next) }
}

// WithRequestLogger adds request logging.
func WithRequestLogger(logger *slog.Logger) Option {
	return func(next http.Handler) http.Handler { return RequestLogger(logger)(next) }
}
