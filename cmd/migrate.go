package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/jmehdipour/sms-relay/internal/config"
	"github.com/jmehdipour/sms-relay/internal/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create relay tables (SQL store and ClickHouse archive) if missing",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		ctx := context.Background()

		ran := false
		if cfg.Store.Backend == config.StoreSQL {
			sqlDB, err := db.NewSQLConnection(cfg.Store.SQL.Driver, cfg.Store.SQL.DSN, sqlOpts(cfg.Store.SQL.DatabaseConfig))
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer sqlDB.Close()

			if err := db.Migrate(ctx, sqlDB); err != nil {
				return fmt.Errorf("migrate %s: %w", cfg.Store.SQL.Driver, err)
			}
			log.Printf(">> %s schema ready", cfg.Store.SQL.Driver)
			ran = true
		}

		if cfg.ClickHouse.DSN != "" {
			chDB, err := db.NewClickHouseConnection(cfg.ClickHouse.DSN, sqlOpts(cfg.ClickHouse))
			if err != nil {
				return fmt.Errorf("clickhouse connect: %w", err)
			}
			defer chDB.Close()

			if err := db.Migrate(ctx, chDB); err != nil {
				return fmt.Errorf("migrate clickhouse: %w", err)
			}
			log.Printf(">> clickhouse archive schema ready")
			ran = true
		}

		if !ran {
			log.Printf(">> nothing to migrate: store.backend=%s and no clickhouse.dsn", cfg.Store.Backend)
		}
		return nil
	},
}
