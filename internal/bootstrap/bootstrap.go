// Package bootstrap opens the backends shared by the service binaries.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-pipeline/internal/config"
	"github.com/spec-kit/helpdesk-pipeline/internal/integrations/helpdesk"
	"github.com/spec-kit/helpdesk-pipeline/internal/persistence"
	"github.com/spec-kit/helpdesk-pipeline/internal/repository"
)

// Database is the store handle selected by STORE_DRIVER.
type Database interface {
	Ping(ctx context.Context) error
	Close()
}

// OpenStore connects the configured database, applies migrations when
// enabled and returns the repositories bound to it.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*repository.Store, Database, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverSQLite:
		db, err := persistence.NewSQLite(ctx, cfg.SQLite, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Store.RunMigrations {
			if err := db.Migrate(ctx, logger); err != nil {
				db.Close()
				return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
			}
		}
		return repository.NewSQLiteStore(db.DB), db, nil
	default:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Store.RunMigrations {
			if err := pg.Migrate(ctx, logger); err != nil {
				pg.Close()
				return nil, nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		return repository.NewPostgresStore(pg.PoolHandle()), pg, nil
	}
}

// NewHelpdeskClient builds the helpdesk client, caching access tokens in
// Redis when a client is given.
func NewHelpdeskClient(cfg config.HelpdeskConfig, redisDB *persistence.Redis, logger *zap.Logger) *helpdesk.Client {
	var tokens helpdesk.TokenCache = helpdesk.NewMemoryTokenCache()
	if redisDB != nil && redisDB.Client != nil {
		tokens = helpdesk.NewRedisTokenCache(redisDB.Client)
	}
	return helpdesk.NewClient(cfg, nil, tokens, logger)
}
