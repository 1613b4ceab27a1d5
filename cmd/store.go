package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jmehdipour/sms-relay/internal/config"
	"github.com/jmehdipour/sms-relay/internal/db"
	"github.com/jmehdipour/sms-relay/internal/repository"
)

func sqlOpts(c config.DatabaseConfig) db.SQLOpts {
	return db.SQLOpts{
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
		PingTimeout:     c.PingTimeout,
	}
}

// openStore opens the configured durable store. Unreachable backends fail here, before serving.
func openStore(ctx context.Context, cfg config.Config) (repository.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreMemory:
		return repository.NewMemoryStore(), nil

	case config.StoreFile:
		s, err := repository.NewFileStore(cfg.Store.Dir)
		if err != nil {
			return nil, fmt.Errorf("file store: %w", err)
		}
		return s, nil

	case config.StoreSQL:
		if cfg.Store.SQL.Driver == db.DriverSQLite {
			if err := os.MkdirAll(cfg.Store.Dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		sqlDB, err := db.NewSQLConnection(cfg.Store.SQL.Driver, cfg.Store.SQL.DSN, sqlOpts(cfg.Store.SQL.DatabaseConfig))
		if err != nil {
			return nil, fmt.Errorf("%s connect: %w", cfg.Store.SQL.Driver, err)
		}
		if cfg.Store.SQL.AutoMigrate {
			if err := db.Migrate(ctx, sqlDB); err != nil {
				_ = sqlDB.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return repository.NewSQLStore(sqlDB), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
