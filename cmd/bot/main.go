// Command bot runs the monitor loop behind the Telegram command surface, the
// heartbeat watchdog and the admin API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/willianribas/bots/internal/app"
	"github.com/willianribas/bots/internal/bot"
	"github.com/willianribas/bots/internal/config"
	"github.com/willianribas/bots/internal/logger"
	"github.com/willianribas/bots/internal/service"
)

func main() {
	appLogger := logger.NewFromEnv(nil)
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to config file")
	autostart := flag.Bool("autostart", true, "Start the monitor loop immediately")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		appLogger.WithError(err).Fatal("Invalid config")
	}
	if !cfg.Telegram.Enabled() {
		appLogger.Fatal("telegram.token and telegram.chat_id are required for the bot")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize monitor")
	}

	chat := bot.New(a.Telegram, a.Controller, a.Zone, bot.Options{
		ChatID:        cfg.Telegram.ChatID,
		PollTimeout:   cfg.Telegram.PollTimeout,
		SearchTimeout: cfg.Telegram.SearchTimeout,
	})
	botDone := make(chan struct{})
	go func() {
		defer close(botDone)
		if err := chat.Run(ctx); err != nil {
			appLogger.WithError(err).Error("Telegram bot stopped")
		}
	}()

	watchdog := service.NewWatchdog(a.Controller, a.Alerter, cfg.Monitor.Heartbeat.Timeout, cfg.Monitor.Heartbeat.Check)
	if err := watchdog.Start(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to start watchdog")
	}

	var srv *http.Server
	if cfg.Admin.Enabled {
		srv = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: a.Router(appLogger),
		}
		go func() {
			appLogger.WithFields(logger.Fields{
				"port": cfg.Server.Port,
				"mode": cfg.Server.Mode,
			}).Info("Starting admin API")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLogger.WithError(err).Fatal("Failed to start admin API")
			}
		}()
	}

	if *autostart {
		if err := a.Controller.Start(ctx); err != nil {
			appLogger.WithError(err).Error("Failed to start monitor")
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.WithError(err).Error("Admin API forced to shutdown")
		}
	}
	watchdog.Stop()
	if err := a.Controller.Stop(shutdownCtx); err != nil && !errors.Is(err, service.ErrNotRunning) {
		appLogger.WithError(err).Error("Monitor did not stop cleanly")
	}
	cancel()
	<-botDone
	a.Close()

	appLogger.Info("Exited")
}
