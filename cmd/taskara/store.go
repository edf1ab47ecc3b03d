package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alecgard/taskara/internal/config"
	"github.com/alecgard/taskara/internal/metrics"
	"github.com/alecgard/taskara/internal/project"
	"github.com/alecgard/taskara/internal/store/memory"
	"github.com/alecgard/taskara/internal/store/mongodb"
	"github.com/alecgard/taskara/internal/store/postgres"
	"github.com/alecgard/taskara/internal/ticket"
	"github.com/alecgard/taskara/internal/user"
)

// repository is everything the services need from a store backend.
type repository interface {
	user.Repository
	project.Repository
	ticket.Repository
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// openStore connects the configured backend. When m is non-nil the
// connection pool of a database backend is registered as gauges.
func openStore(ctx context.Context, cfg config.DatabaseConfig, m *metrics.Metrics) (repository, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		s, err := mongodb.Open(ctx, mongodb.Config{
			URI:          cfg.URL,
			Database:     cfg.Name,
			Transactions: cfg.Transactions,
		})
		if err != nil {
			return nil, err
		}
		registerPool(m, cfg.Driver, s.PoolStats)
		slog.Info("connected to mongodb", "database", cfg.Name, "transactions", cfg.Transactions)
		return s, nil
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		registerPool(m, cfg.Driver, s.PoolStats)
		slog.Info("connected to postgres")
		return s, nil
	case config.DriverMemory:
		slog.Warn("using in-memory store; data is lost on exit")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func registerPool(m *metrics.Metrics, driver string, stats func() (limit, idle, acquired int32)) {
	if m == nil {
		return
	}
	m.RegisterPool(driver, func() metrics.PoolStats {
		limit, idle, acquired := stats()
		return metrics.PoolStats{Max: limit, Idle: idle, Acquired: acquired}
	})
}
