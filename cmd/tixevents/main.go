package main

import (
	"context"
	"log/slog"
	"os"
	"strings"

	_ "github.com/kirinyoku/tix-events/docs"
	"github.com/kirinyoku/tix-events/internal/app"
	"github.com/kirinyoku/tix-events/internal/config"
	flag "github.com/spf13/pflag"
)

// @title Tix Events API
// @version 1.0
// @description Event listings, ticket checkout and payment fulfillment.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	envFile := flag.String("env-file", "", "path to a .env file (default ./.env when present)")
	migrateOnly := flag.Bool("migrate-only", false, "apply the database schema and exit")
	flag.Parse()

	cfg, err := config.New(*envFile)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)

	if *migrateOnly {
		if err := app.Migrate(context.Background(), cfg, logger); err != nil {
			logger.Error("migration failed", "error", err)
			os.Exit(1)
		}
		logger.Info("schema is up to date")
		return
	}

	application, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create application", "error", err)
		os.Exit(1)
	}

	err = application.Run(context.Background())
	application.Close()
	if err != nil {
		logger.Error("application finished with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
