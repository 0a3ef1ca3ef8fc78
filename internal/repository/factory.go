package repository

import (
	"context"
	"fmt"

	"github.com/navikt/zseats/internal/config"
	"github.com/navikt/zseats/internal/repository/memory"
	"github.com/navikt/zseats/internal/repository/postgres"
	"github.com/navikt/zseats/internal/repository/redis"
	"github.com/navikt/zseats/internal/utils"
	"github.com/rs/zerolog"
)

// NewRepository creates the repository selected by the store configuration
func NewRepository(ctx context.Context, cfg config.Config, logger zerolog.Logger) (Repository, error) {
	log := utils.Module(logger, "repository")

	switch cfg.Store.Backend {
	case config.BackendRedis:
		repo, err := redis.NewRepository(cfg.Redis)
		if err != nil {
			return nil, err
		}
		log.Info().Str("backend", "redis").Msg("using redis store")
		return repo, nil

	case config.BackendPostgres:
		repo, err := postgres.NewRepository(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, err
		}
		log.Info().Str("backend", "postgres").Msg("using postgres store")
		return repo, nil

	case config.BackendMemory, "":
		log.Info().Str("backend", "memory").Msg("using in-memory store")
		return memory.NewRepository(), nil
	}

	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}
