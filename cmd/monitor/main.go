// Command monitor runs the scrape loop on its own, without the chat bot or
// the admin API. It exits when the portal session cannot be recovered.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/willianribas/bots/internal/app"
	"github.com/willianribas/bots/internal/config"
	"github.com/willianribas/bots/internal/logger"
	"github.com/willianribas/bots/internal/service"
)

func main() {
	appLogger := logger.NewFromEnv(nil)
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	// the standalone loop serves no admin API
	cfg.Admin.Enabled = false
	if err := cfg.Validate(); err != nil {
		appLogger.WithError(err).Fatal("Invalid config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize monitor")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		appLogger.WithField("signal", sig.String()).Info("Shutting down monitor...")
		a.Monitor.Stop()
		cancel()
	}()

	appLogger.WithFields(logger.Fields{
		"interval": cfg.Monitor.Interval.String(),
		"timezone": cfg.Monitor.Timezone,
	}).Info("Starting monitor")

	runErr := a.Monitor.Run(ctx)
	a.Close()
	if runErr != nil {
		appLogger.WithError(runErr).Error("Monitor exited")
		if errors.Is(runErr, service.ErrSessionUnrecoverable) {
			logger.Sync()
			os.Exit(1)
		}
	}
	appLogger.Info("Monitor exited")
}
