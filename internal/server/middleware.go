package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type ctxKey int

const ctxKeyRequestID ctxKey = iota

// RequestIDFromContext extracts the request id assigned by requestLogger.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// requestLogger tags every request with an id and logs one line per request
// once the handler returns. An inbound X-Request-ID is honored so callers
// can correlate their own logs with the daemon's; otherwise a fresh id is
// generated.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = requestID()
			}
			ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
			w.Header().Set("X-Request-ID", reqID)

			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"bytes", rec.bytes,
				"remote", r.RemoteAddr,
				"duration", time.Since(start).String(),
				"request_id", reqID,
			)
		})
	}
}

// responseRecorder captures the status code and body size for the log line.
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *responseRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseRecorder) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}
