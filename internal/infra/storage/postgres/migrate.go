package postgres

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"
)

// Migrate applies any pending goose migrations from the configured
// directory. Safe to run on every start.
func Migrate(ctx context.Context, db *DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.DB.DB, db.cfg.MigrationsDir); err != nil {
		return fmt.Errorf("migrate db: %w", err)
	}
	return nil
}
