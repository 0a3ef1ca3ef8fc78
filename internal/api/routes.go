package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/navikt/zseats/internal/web"
	"github.com/rs/zerolog"
)

// RouterConfig collects what the HTTP routes depend on
type RouterConfig struct {
	Service           RoomServicer
	Identity          *web.IdentityMiddleware
	HeartbeatInterval time.Duration
	Logger            zerolog.Logger
}

// SetupRoutes configures the HTTP routes for the API
func SetupRoutes(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(web.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(web.HTTPProtocolMiddleware)

	// Health check endpoints for Kubernetes
	r.Get("/health/live", HealthLiveHandler)
	r.Get("/health/ready", HealthReadyHandler(cfg.Service, cfg.Logger))

	// Event streams are read-only and open to any client that knows the room id
	stream := web.NewEventStream(cfg.Service, cfg.HeartbeatInterval, cfg.Logger)
	r.Method(http.MethodGet, "/events/rooms/{roomID}", stream)
	r.Method(http.MethodOptions, "/events/rooms/{roomID}", stream)

	h := NewRoomHandler(cfg.Service, cfg.Logger)
	r.Route("/api/rooms", func(rr chi.Router) {
		rr.Use(cfg.Identity.Handler)

		rr.Post("/", h.createRoom)
		rr.Get("/code/{code}", h.resolveCode)

		rr.Route("/{roomID}", func(room chi.Router) {
			room.Get("/", h.getRoom)
			room.Post("/close", h.closeRoom)
			room.Post("/join", h.join)
			room.Post("/leave", h.leave)
			room.Get("/participants", h.participants)
			room.Get("/snapshot", h.snapshot)
			room.Get("/requests", h.pendingRequests)
			room.Post("/hand", h.raiseHand)
			room.Delete("/hand", h.lowerHand)

			room.Post("/seats/{userID}/grant", h.seat(grant))
			room.Post("/seats/{userID}/revoke", h.seat(revoke))
			room.Post("/seats/{userID}/deny", h.seat(deny))
		})
	})

	return r
}
