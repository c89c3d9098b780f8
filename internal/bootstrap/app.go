// Package bootstrap handles application initialization and lifecycle
// management for the ingestion engine.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/mirzemehdi/ArchGee-All/internal/config"
	"github.com/mirzemehdi/ArchGee-All/internal/logger"
)

// Start initializes and runs the engine until shutdown.
func Start(configPath string) error {
	cfg, configErr := config.Load(configPath)
	if configErr != nil {
		return fmt.Errorf("config: %w", configErr)
	}

	log, logErr := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if logErr != nil {
		return fmt.Errorf("logger: %w", logErr)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting ingestion engine",
		logger.String("name", cfg.Service.Name),
		logger.String("version", cfg.Service.Version),
		logger.Int("port", cfg.Service.Port),
		logger.String("enrichment_mode", cfg.Enrichment.Mode))

	db, dbErr := SetupDatabase(cfg)
	if dbErr != nil {
		return fmt.Errorf("database: %w", dbErr)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("failed to close database", logger.Error(closeErr))
		}
	}()
	log.Info("database connection established")

	redisClient := SetupRedis(cfg, log)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	app := BuildApp(cfg, db, redisClient, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app.StartBackground(ctx)
	defer app.StopBackground()

	if runErr := app.Server.Run(ctx); runErr != nil {
		return fmt.Errorf("server: %w", runErr)
	}

	log.Info("ingestion engine stopped")

	return nil
}
