package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"

	"finreport-backend/internal/shared/telemetry"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationsDir = "migrations"

// gooseLogger routes goose output through telemetry.
type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...any) {
	telemetry.Info("db.migration", map[string]any{"detail": strings.TrimSpace(fmt.Sprintf(format, v...))})
}

func (gooseLogger) Fatalf(format string, v ...any) {
	telemetry.Error("db.migration_fatal", map[string]any{"detail": strings.TrimSpace(fmt.Sprintf(format, v...))})
}

func prepareGoose() error {
	goose.SetBaseFS(migrationFiles)
	goose.SetLogger(gooseLogger{})
	return goose.SetDialect("postgres")
}

// RunMigrations brings the usage and profiles schema up to date. A nil
// database is a no-op.
func RunMigrations(ctx context.Context, database *sql.DB) error {
	if database == nil {
		return nil
	}
	if err := prepareGoose(); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, database, migrationsDir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// SchemaVersion reports the latest applied migration.
func SchemaVersion(ctx context.Context, database *sql.DB) (int64, error) {
	if err := prepareGoose(); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, database)
}
