// Package app wires the process-level dependencies shared by the commands.
package app

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-realtime-checkout/internal/config"
	"github.com/ariefcatur/go-realtime-checkout/internal/storage"
	"github.com/ariefcatur/go-realtime-checkout/internal/storage/postgres"
	"github.com/ariefcatur/go-realtime-checkout/internal/storage/sqlite"
	"go.uber.org/zap"
)

// OpenStore connects the configured backend and brings its schema up to date.
func OpenStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		logger.Info("store ready", zap.String("driver", cfg.StoreDriver))
		return postgres.New(pool, cfg.LockTimeout), nil
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("store ready", zap.String("driver", cfg.StoreDriver), zap.String("path", cfg.SQLitePath))
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
