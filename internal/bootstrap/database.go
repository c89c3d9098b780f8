package bootstrap

import (
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mirzemehdi/ArchGee-All/internal/config"
	"github.com/mirzemehdi/ArchGee-All/internal/database"
	"github.com/mirzemehdi/ArchGee-All/internal/logger"
)

// SetupDatabase creates the PostgreSQL connection pool from config.
func SetupDatabase(cfg *config.Config) (*sql.DB, error) {
	db, connErr := database.Connect(database.Config{
		DSN:             cfg.Database.DSN(),
		MaxConnections:  cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if connErr != nil {
		return nil, fmt.Errorf("database connection: %w", connErr)
	}

	return db, nil
}

// SetupRedis creates the moderation stream client, or nil when no address is
// configured. The engine runs fine without it; transitions are then visible
// only through the job rows.
func SetupRedis(cfg *config.Config, log logger.Logger) *redis.Client {
	if cfg.Redis.Addr == "" {
		log.Warn("redis address not configured, moderation events disabled")
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
}
