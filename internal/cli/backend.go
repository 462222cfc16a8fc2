package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"example.com/octofit/internal/api"
	"example.com/octofit/internal/catalog"
	"example.com/octofit/internal/config"
	"example.com/octofit/internal/domain"
	"example.com/octofit/internal/ledger"
	"example.com/octofit/internal/membership"
	"example.com/octofit/internal/persistence/memory"
	"example.com/octofit/internal/persistence/postgres"
	"example.com/octofit/internal/persistence/sqlite"
	"example.com/octofit/internal/profile"
	"example.com/octofit/internal/ranking"
	"example.com/octofit/internal/scoring"
)

// backend is an opened store. pool is set only for PostgreSQL.
type backend struct {
	store domain.Store
	pool  *pgxpool.Pool
}

func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	switch cfg.Store {
	case config.StoreMemory:
		log.Warn().Msg("using in-memory store; data is lost on exit")
		return &backend{store: memory.NewStore()}, nil
	case config.StoreSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("sqlite store opened")
		return &backend{store: s}, nil
	case config.StorePostgres:
		pool, err := connectPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		return &backend{store: postgres.NewRepository(pool), pool: pool}, nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// connectPostgres opens a pool and brings the schema up to date.
func connectPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := postgres.Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return pool, nil
}

func (b *backend) Close() error { return b.store.Close() }

func (b *backend) services(clock domain.Clock) api.Services {
	return api.Services{
		Catalog:  catalog.NewRegistry(b.store, clock),
		Ledger:   ledger.NewService(b.store, scoring.NewEngine(b.store), clock),
		Teams:    membership.NewManager(b.store, clock),
		Rankings: ranking.NewAggregator(b.store, b.store),
		Profiles: profile.NewService(b.store, b.store, clock),
	}
}
