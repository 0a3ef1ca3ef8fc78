package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/navikt/zseats/internal/utils"
	"github.com/rs/zerolog"
)

// HTTPProtocolMiddleware prevents HTTP/3 QUIC protocol issues in cloud environments.
// Browsers that try HTTP/3 behind some proxies drop long-lived event streams.
func HTTPProtocolMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Alt-Svc", "clear")

		// Force HTTP/1.1 semantics for SSE
		if strings.HasPrefix(r.URL.Path, "/events") {
			w.Header().Set("Connection", "keep-alive")
			w.Header().Set("X-Force-HTTP1", "true")
		}

		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs one line per request. Event streams are logged when they end.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	log := utils.Module(logger, "web.http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			ev := log.Info()
			if status >= http.StatusInternalServerError {
				ev = log.Error()
			}
			ev.Str("req_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}
