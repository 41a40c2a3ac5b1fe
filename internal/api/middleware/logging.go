// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meshforge/cadmirror/internal/api/handlers"
	"github.com/meshforge/cadmirror/pkg/logger"
)

// RequestLogger returns a middleware that logs HTTP requests. The request ID
// is threaded into the context so downstream component loggers pick it up,
// and health probes log at debug to keep poller noise out of the access log.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			ctx := context.WithValue(r.Context(), logger.RequestIDKey, chimw.GetReqID(r.Context()))

			defer func() {
				entry := log.WithContext(ctx).Logger
				if runID := ww.Header().Get(handlers.RunIDHeader); runID != "" {
					entry = entry.With("run_id", runID)
				}

				logFn := entry.Info
				if r.URL.Path == "/health" {
					logFn = entry.Debug
				}
				logFn("request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start).String(),
					"remote_addr", r.RemoteAddr,
				)
			}()

			next.ServeHTTP(ww, r.WithContext(ctx))
		})
	}
}
