package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// NoCache disables the browser cache for shader sources so edits show up on
// reload.
func NoCache(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".glsl") {
			w.Header().Set("Cache-Control", "no-store")
		}

		h.ServeHTTP(w, r)
	})
}

// RequestLogger logs every request once it has been served.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			status := wrapped.Status()
			if status == 0 {
				status = http.StatusOK
			}

			event := log.Debug()
			if status >= http.StatusInternalServerError {
				event = log.Error()
			}

			event.
				Str("service", "http").
				Str("requestId", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("host", r.RemoteAddr).
				Int("status", status).
				Int("bytes", wrapped.BytesWritten()).
				Dur("took", time.Since(start)).
				Msg("request")
		}()

		next.ServeHTTP(wrapped, r)
	})
}
