package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/navikt/zseats/internal/api"
	"github.com/navikt/zseats/internal/config"
	"github.com/navikt/zseats/internal/notifier"
	"github.com/navikt/zseats/internal/repository"
	"github.com/navikt/zseats/internal/service"
	"github.com/navikt/zseats/internal/utils"
	"github.com/navikt/zseats/internal/voice"
	"github.com/navikt/zseats/internal/web"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := utils.NewLogger("info", "console", os.Stderr)
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	logger := utils.NewLogger(cfg.Server.LogLevel, cfg.Server.LogFormat, os.Stdout)
	if err := run(cfg, logger); err != nil {
		log := utils.Module(logger, "main")
		log.Error().Err(err).Msg("Server stopped with error")
		os.Exit(1)
	}
}

// run wires the service and serves until a signal arrives or the listener
// fails. Every resource it opens is released before it returns.
func run(cfg config.Config, logger zerolog.Logger) error {
	log := utils.Module(logger, "main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize the repository using the factory
	repo, err := repository.NewRepository(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize %s repository: %w", cfg.Store.Backend, err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing repository")
		}
	}()

	hub := notifier.NewHub(cfg.Server.SubscriberBuffer, logger)

	var transport voice.Transport
	if cfg.Voice.IsVoiceTransportConfigured() {
		transport = voice.NewHTTPTransport(cfg.Voice)
		log.Info().Str("url", cfg.Voice.URL).Msg("Delivering audio directives over HTTP")
	} else {
		transport = voice.NewLogTransport(logger)
		log.Warn().Msg("VOICE_TRANSPORT_URL not configured - audio directives are only logged")
	}
	dispatcher := voice.NewDispatcher(transport, cfg.Voice.Workers, cfg.Voice.BacklogWarn, cfg.Voice.Timeout, logger)

	svc := service.New(repo, hub, dispatcher, service.Options{
		SeatCapacity:   cfg.Server.SeatCapacity,
		CommitAttempts: cfg.Server.CommitAttempts,
		Logger:         logger,
	})

	if cfg.Identity.IntrospectionEndpoint == "" {
		log.Warn().Str("header", web.UserIDHeader).Msg("No introspection endpoint - trusting caller identity header")
	}

	handler := api.SetupRoutes(api.RouterConfig{
		Service:           svc,
		Identity:          web.NewIdentityMiddleware(cfg.Identity, logger),
		HeartbeatInterval: cfg.Server.HeartbeatInterval,
		Logger:            logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disable write timeout for SSE connections
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().
			Str("port", cfg.Server.Port).
			Str("backend", cfg.Store.Backend).
			Int("seat_capacity", svc.SeatCapacity()).
			Msg("Starting zseats server")
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		shutdown(server, hub, dispatcher, log)
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}

	case <-ctx.Done():
		log.Info().Msg("Shutting down server...")
		shutdown(server, hub, dispatcher, log)
	}
	return nil
}

// shutdown ends event streams first so the server does not wait on them,
// then drains HTTP requests and queued audio directives
func shutdown(server *http.Server, hub *notifier.Hub, dispatcher *voice.Dispatcher, log zerolog.Logger) {
	hub.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error shutting down server")
		server.Close()
	}

	dispatcher.Close()
	log.Info().Msg("Server gracefully stopped")
}
