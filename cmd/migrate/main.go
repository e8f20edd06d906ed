package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/karaoke-session-system/internal/config"
	"github.com/karaoke-session-system/pkg/database"
	"github.com/karaoke-session-system/pkg/logger"
)

func main() {
	cfg := config.Load()
	dir := flag.String("dir", cfg.MigrationsDir, "directory containing *.sql migration files")
	flag.Parse()

	mode := logger.DevelopmentMode
	if cfg.IsProduction() {
		mode = logger.ProductionMode
	}
	log := logger.New(mode)
	logger.SetGlobalLogger(log)
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.NewMySQLDB(
		cfg.MySQLHost,
		cfg.MySQLPort,
		cfg.MySQLUser,
		cfg.MySQLPassword,
		cfg.MySQLDatabase,
		false,
	)
	if err != nil {
		log.Errorf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	results, err := database.ApplyDir(ctx, db, *dir, log)
	if err != nil {
		log.Errorf("Migration aborted: %v", err)
		os.Exit(1)
	}

	failed := 0
	for _, r := range results {
		log.Infof("%s: %d/%d statements applied (batched=%t, failed=%d)",
			r.File, r.Succeeded, r.Statements, r.Batched, r.Failed)
		failed += r.Failed
	}
	log.Infof("Applied %d migration files, %d failed statements", len(results), failed)

	// Smoke test: the store must be able to hand out a session code.
	code, err := db.GenerateSessionCode(ctx)
	if err != nil {
		log.Errorf("Session code generation failed: %v", err)
		os.Exit(1)
	}
	log.Infof("Session code generation works (sample %s)", code)

	if failed > 0 {
		os.Exit(2)
	}
}
