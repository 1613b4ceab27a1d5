package db

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the idempotent (create-if-not-exists) schema for db's driver.
// ClickHouse connections use the "clickhouse" schema.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	name := db.DriverName()
	raw, err := migrations.ReadFile("migrations/" + name + ".sql")
	if err != nil {
		return fmt.Errorf("no migration for driver %q: %w", name, err)
	}

	for i, stmt := range splitStatements(string(raw)) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %s statement %d: %w", name, i+1, err)
		}
	}
	return nil
}

// splitStatements splits a migration file on ";" line ends; statements hold no literal semicolons.
func splitStatements(sql string) []string {
	var out []string
	for _, part := range strings.Split(sql, ";") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
