// Command migrate creates or updates the service_orders and
// service_order_history tables.
package main

import (
	"flag"
	"os"

	"github.com/willianribas/bots/internal/config"
	"github.com/willianribas/bots/internal/logger"
	"github.com/willianribas/bots/internal/repository"
)

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "gets-monitor-migrate",
	})
	logger.SetDefaultLogger(appLogger)

	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// InitDB migrates on its own when auto_migrate is set
	cfg.Database.AutoMigrate = false
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	if err := repository.Migrate(db); err != nil {
		appLogger.WithError(err).Fatal("Migration failed")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	appLogger.WithField("driver", cfg.Database.Driver).Info("Schema is up to date")
}
