// Command migrate applies the queue event schema to PostgreSQL.
package main

import (
	"context"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/leejennwah/compliance-queue/internal/config"
)

const migrationFile = "migrations/001_init.sql"

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect to database", zap.Error(err))
	}
	defer pool.Close()

	migration, err := os.ReadFile(migrationFile)
	if err != nil {
		logger.Fatal("read migration file", zap.String("file", migrationFile), zap.Error(err))
	}

	if _, err := pool.Exec(ctx, string(migration)); err != nil {
		logger.Fatal("apply migration", zap.Error(err))
	}

	logger.Info("migrations applied", zap.String("file", migrationFile))
}
