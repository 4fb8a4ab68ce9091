// Package middleware provides ready-made hooks and HTTP middleware for
// servers generated by routetree.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/broady/routetree"
)

// LogRequest returns an OnRequest hook that logs every request reaching a
// route below the directory that installs it.
func LogRequest(logger *slog.Logger) routetree.HookFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) error {
		logger.InfoContext(r.Context(), "request started",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		return nil
	}
}

// AccessLog returns an HTTP middleware that logs the outcome of every
// request with its status and duration. Responses with a 5xx status are
// logged as errors.
func AccessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
			}
			if rec.status >= http.StatusInternalServerError {
				logger.ErrorContext(r.Context(), "request failed", attrs...)
				return
			}
			logger.InfoContext(r.Context(), "request completed", attrs...)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
