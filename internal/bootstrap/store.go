// Package bootstrap opens the workout store selected by configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/workouts/internal/config"
	"example.com/workouts/internal/domain"
	"example.com/workouts/internal/persistence/memory"
	"example.com/workouts/internal/persistence/postgres"
	"example.com/workouts/internal/persistence/sqlite"
)

// SchemaStore is a domain.Store that owns its schema.
type SchemaStore interface {
	domain.Store
	EnsureSchema(ctx context.Context) error
	Reset(ctx context.Context) error
}

// Store bundles the opened store with the resources behind it.
type Store struct {
	SchemaStore
	// Pool is set for the postgres driver only.
	Pool   *pgxpool.Pool
	closer func()
}

// Close releases the underlying connections.
func (s *Store) Close() {
	if s.closer != nil {
		s.closer()
	}
}

// OpenStore connects to the configured driver and ensures its schema exists.
// Change events are recorded only for postgres with Kafka brokers configured.
func OpenStore(ctx context.Context, cfg config.Config, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	var st *Store
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		var opts []postgres.Option
		if cfg.EventsEnabled() {
			opts = append(opts, postgres.WithEvents())
		}
		st = &Store{SchemaStore: postgres.NewStore(pool, opts...), Pool: pool, closer: pool.Close}

	case config.DriverSQLite:
		s, err := sqlite.New(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		st = &Store{SchemaStore: s, closer: func() { _ = s.Close() }}

	case config.DriverMemory:
		st = &Store{SchemaStore: memory.NewStore()}

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if err := st.EnsureSchema(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	log.Info("workout store ready",
		"driver", cfg.StoreDriver,
		"events", cfg.StoreDriver == config.DriverPostgres && cfg.EventsEnabled(),
	)
	return st, nil
}
