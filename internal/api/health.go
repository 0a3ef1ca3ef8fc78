// Package api provides the HTTP handlers for the zseats API
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/navikt/zseats/internal/utils"
	"github.com/navikt/zseats/internal/web"
	"github.com/rs/zerolog"
)

// HealthResponse represents the response for health check endpoints
type HealthResponse struct {
	Status string `json:"status"`
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthLiveHandler handles Kubernetes liveness probe requests
func HealthLiveHandler(w http.ResponseWriter, r *http.Request) {
	web.JSON(w, http.StatusOK, HealthResponse{Status: "UP"})
}

// HealthReadyHandler handles Kubernetes readiness probe requests. The
// service is ready when its store answers.
func HealthReadyHandler(store Pinger, logger zerolog.Logger) http.HandlerFunc {
	log := utils.Module(logger, "api.health")
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("store not ready")
			web.JSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "DOWN"})
			return
		}
		web.JSON(w, http.StatusOK, HealthResponse{Status: "UP"})
	}
}
