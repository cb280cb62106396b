// Package app wires the monitor's components from configuration. The
// entry points under cmd/ differ only in which parts they run.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/willianribas/bots/internal/api"
	"github.com/willianribas/bots/internal/api/handler"
	"github.com/willianribas/bots/internal/api/middleware"
	"github.com/willianribas/bots/internal/cache"
	"github.com/willianribas/bots/internal/clock"
	"github.com/willianribas/bots/internal/config"
	"github.com/willianribas/bots/internal/logger"
	"github.com/willianribas/bots/internal/notify"
	"github.com/willianribas/bots/internal/repository"
	"github.com/willianribas/bots/internal/service"
	"github.com/willianribas/bots/internal/source/gets"
	"github.com/willianribas/bots/internal/storage"
	"gorm.io/gorm"
)

// App holds the wired components.
type App struct {
	Config     *config.Config
	DB         *gorm.DB
	Orders     *repository.OrderRepository
	History    *repository.HistoryRepository
	Cache      *cache.RecordCache
	Zone       *clock.Zone
	Telegram   *notify.Telegram // nil when chat alerts are not configured
	Alerter    notify.Alerter
	Portal     *gets.Portal
	Monitor    *service.Monitor
	Controller *service.Controller
}

// New connects to the database and builds every component. Nothing runs yet.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	zone, err := clock.NewZone(cfg.Monitor.Timezone, nil)
	if err != nil {
		return nil, err
	}

	gate, err := clock.NewGate(zone, cfg.Monitor.Schedule.Enabled, cfg.Monitor.Schedule.Start, cfg.Monitor.Schedule.End)
	if err != nil {
		return nil, fmt.Errorf("monitor.schedule: %w", err)
	}
	daily, err := clock.NewDailyWindow(zone, cfg.Monitor.DailyReconcile.Start, cfg.Monitor.DailyReconcile.Window)
	if err != nil {
		return nil, fmt.Errorf("monitor.daily_reconcile: %w", err)
	}
	snapshots, err := snapshotStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, err
	}
	orders := repository.NewOrderRepository(db)
	history := repository.NewHistoryRepository(db)
	recordCache := cache.New(snapshots, zone, cfg.Monitor.CacheTTL)

	a := &App{
		Config:  cfg,
		DB:      db,
		Orders:  orders,
		History: history,
		Cache:   recordCache,
		Zone:    zone,
		Alerter: notify.Nop{},
		Portal:  gets.NewPortal(cfg.Scraper),
	}
	if cfg.Telegram.Enabled() {
		a.Telegram = notify.NewTelegram(cfg.Telegram)
		a.Alerter = a.Telegram
	} else {
		logger.CtxWarn(ctx, "telegram not configured, alerts are disabled")
	}

	a.Monitor = service.NewMonitor(service.MonitorDeps{
		Portal:     a.Portal,
		Cache:      recordCache,
		Detector:   service.NewChangeDetector(recordCache, orders),
		Reconciler: service.NewReconciler(orders, history, a.Alerter, zone, cfg.Monitor.CriticalCloseThreshold),
		Catalog:    orders,
		Alerter:    a.Alerter,
		Zone:       zone,
		Gate:       gate,
		Daily:      daily,
	}, service.MonitorOptions{
		Interval:        cfg.Monitor.Interval,
		SaveProbability: cfg.Monitor.SaveProbability,
		StoreImport:     cfg.Monitor.StoreImport,
		RowWorkers:      cfg.Scraper.RowWorkers,
	})
	a.Controller = service.NewController(a.Monitor, recordCache, orders, a.Alerter, zone, service.ControllerOptions{
		RestartGrace:     cfg.Monitor.RestartGrace,
		AutoRestartDelay: cfg.Monitor.AutoRestartDelay,
	})
	return a, nil
}

// snapshotStore is the cache file, mirrored to S3 when configured.
func snapshotStore(ctx context.Context, cfg *config.Config) (storage.SnapshotStore, error) {
	if dir := filepath.Dir(cfg.Monitor.CacheFile); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}
	file := storage.NewFileStore(cfg.Monitor.CacheFile)
	if !cfg.Snapshot.Enabled {
		return file, nil
	}

	mirror, err := storage.NewS3Store(ctx, &storage.S3Config{
		Endpoint:  cfg.Snapshot.Endpoint,
		AccessKey: cfg.Snapshot.AccessKey,
		SecretKey: cfg.Snapshot.SecretKey,
		UseSSL:    cfg.Snapshot.UseSSL,
		Bucket:    cfg.Snapshot.Bucket,
		Region:    cfg.Snapshot.Region,
		Key:       cfg.Snapshot.Key,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot mirror: %w", err)
	}
	return storage.NewMirrored(file, mirror), nil
}

// Router builds the admin API over the controller and repositories.
func (a *App) Router(log *logger.Logger) *gin.Engine {
	auth := middleware.NewAuthenticator(a.Config.Admin.JWTSecret, a.Config.Admin.TokenTTL)
	return api.SetupRouter(api.Handlers{
		Health:  handler.NewHealthHandler(a.pingDB),
		Auth:    handler.NewAuthHandler(a.Config.Admin.Username, a.Config.Admin.PasswordHash, auth),
		Monitor: handler.NewMonitorHandler(a.Controller),
		Orders:  handler.NewOrderHandler(a.Orders, a.History, a.Controller),
	}, auth, a.Config.Server, log)
}

func (a *App) pingDB(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close flushes pending alerts and releases the database.
func (a *App) Close() {
	if a.Telegram != nil {
		a.Telegram.Wait()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
