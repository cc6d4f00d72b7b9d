package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationDirection selects which goose command RunMigrationsDirection executes.
type MigrationDirection string

const (
	MigrateUp     MigrationDirection = "up"
	MigrateDown   MigrationDirection = "down"
	MigrateStatus MigrationDirection = "status"
)

// RunMigrations applies embedded SQL migrations via goose. If database is nil, it's a no-op.
func RunMigrations(ctx context.Context, database *sql.DB) error {
	return RunMigrationsDirection(ctx, database, MigrateUp)
}

// RunMigrationsDirection runs one goose command against the embedded migrations.
func RunMigrationsDirection(ctx context.Context, database *sql.DB, dir MigrationDirection) error {
	if database == nil {
		return nil
	}
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	switch dir {
	case MigrateUp, "":
		return goose.UpContext(ctx, database, "migrations")
	case MigrateDown:
		return goose.DownContext(ctx, database, "migrations")
	case MigrateStatus:
		return goose.StatusContext(ctx, database, "migrations")
	default:
		return fmt.Errorf("unknown migration direction %q", dir)
	}
}
