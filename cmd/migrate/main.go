package main

// Run database migrations:
//   go run ./cmd/migrate

import (
	"context"
	"os"

	"finreport-backend/internal/shared/config"
	"finreport-backend/internal/shared/storage/db"
	"finreport-backend/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		telemetry.Error("migrate.connect_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		telemetry.Error("migrate.failed", map[string]any{"error": err.Error()})
		sqlDB.Close()
		os.Exit(1)
	}
	fields := map[string]any{}
	if version, err := db.SchemaVersion(ctx, sqlDB); err == nil {
		fields["version"] = version
	}
	telemetry.Info("migrate.done", fields)
}
