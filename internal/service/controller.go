package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/willianribas/bots/internal/cache"
	"github.com/willianribas/bots/internal/clock"
	"github.com/willianribas/bots/internal/domain"
	"github.com/willianribas/bots/internal/logger"
	"github.com/willianribas/bots/internal/metrics"
	"github.com/willianribas/bots/internal/notify"
)

// Lookup sources reported by Search.
const (
	FoundInCache = "cache"
	FoundInStore = "store"
)

// Status is a point-in-time view of the monitor for the command surface.
type Status struct {
	Running       bool          `json:"running"`
	Paused        bool          `json:"paused"`
	LastHeartbeat time.Time     `json:"last_heartbeat"`
	HeartbeatAge  time.Duration `json:"heartbeat_age"`
	Now           time.Time     `json:"now"`
	CacheSize     int           `json:"cache_size"`
	LastError     string        `json:"last_error,omitempty"`
}

// ControllerOptions tunes restarts.
type ControllerOptions struct {
	// RestartGrace is the pause between stop and start on Restart.
	RestartGrace time.Duration
	// AutoRestartDelay restarts the loop after an unrecoverable session
	// failure. Zero disables it.
	AutoRestartDelay time.Duration
}

// Controller is the command surface over a single Monitor: start, stop,
// restart, status, search, clear_cache and stats.
type Controller struct {
	monitor *Monitor
	cache   *cache.RecordCache
	catalog OrderCatalog
	alerter notify.Alerter
	zone    *clock.Zone
	opts    ControllerOptions

	running atomic.Bool

	mu          sync.Mutex
	done        chan struct{}
	cancel      context.CancelFunc
	lastErr     error
	autoRestart *time.Timer
}

// NewController creates a Controller around monitor.
func NewController(monitor *Monitor, c *cache.RecordCache, catalog OrderCatalog, alerter notify.Alerter, zone *clock.Zone, opts ControllerOptions) *Controller {
	if alerter == nil {
		alerter = notify.Nop{}
	}
	return &Controller{
		monitor: monitor,
		cache:   c,
		catalog: catalog,
		alerter: alerter,
		zone:    zone,
		opts:    opts,
	}
}

// Start launches the monitor loop in the background. The loop outlives
// ctx's cancellation; only Stop ends it.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running.Load() {
		return ErrAlreadyRunning
	}
	if c.autoRestart != nil {
		c.autoRestart.Stop()
		c.autoRestart = nil
	}

	c.monitor.Rearm()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.done = done
	c.cancel = cancel
	c.lastErr = nil
	c.running.Store(true)
	metrics.Running.Set(metrics.BoolGauge(true))

	go c.run(runCtx, done)
	logger.CtxInfo(ctx, "monitor started")
	return nil
}

func (c *Controller) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	err := c.monitor.Run(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.running.Store(false)
	metrics.Running.Set(metrics.BoolGauge(false))
	c.lastErr = err

	if err == nil {
		return
	}
	logger.FromContext(ctx).WithError(err).Error("monitor loop exited")
	if errors.Is(err, ErrSessionUnrecoverable) && c.opts.AutoRestartDelay > 0 {
		c.alerter.Alert(ctx, "🔄 Restarting the monitor automatically in "+c.opts.AutoRestartDelay.String()+".")
		c.autoRestart = time.AfterFunc(c.opts.AutoRestartDelay, func() {
			if err := c.Start(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
				logger.FromContext(ctx).WithError(err).Error("automatic restart failed")
			}
		})
	}
}

// Stop asks the loop to exit and waits for it. If ctx ends first the loop
// is cancelled and ctx's error returned.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.autoRestart != nil {
		c.autoRestart.Stop()
		c.autoRestart = nil
	}
	if !c.running.Load() {
		c.mu.Unlock()
		return ErrNotRunning
	}
	done, cancel := c.done, c.cancel
	c.mu.Unlock()

	c.monitor.Stop()
	select {
	case <-done:
		cancel()
		logger.CtxInfo(ctx, "monitor stopped")
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

// Restart stops the loop if running, waits the grace delay and starts it again.
func (c *Controller) Restart(ctx context.Context) error {
	if err := c.Stop(ctx); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	if c.opts.RestartGrace > 0 {
		t := time.NewTimer(c.opts.RestartGrace)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return c.Start(ctx)
}

// Wait blocks until the current loop, if any, has exited.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Running reports whether the loop is active.
func (c *Controller) Running() bool {
	return c.running.Load()
}

// Status reports the loop state and heartbeat age in the monitor zone.
func (c *Controller) Status() Status {
	now := c.zone.Now()
	st := Status{
		Running:   c.running.Load(),
		Paused:    c.monitor.Paused(),
		Now:       now,
		CacheSize: c.cache.Len(),
	}
	if hb := c.monitor.LastHeartbeat(); !hb.IsZero() {
		st.LastHeartbeat = hb
		st.HeartbeatAge = now.Sub(hb)
	}
	c.mu.Lock()
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	c.mu.Unlock()
	return st
}

// Search looks number up in the cache first and then in the store.
// Returns:
//   - *domain.ServiceOrder: the order found.
//   - string: FoundInCache or FoundInStore.
//   - err: ErrInvalidOrderNumber, ErrNotFound or a store error.
func (c *Controller) Search(ctx context.Context, number string) (*domain.ServiceOrder, string, error) {
	number = strings.TrimSpace(number)
	if !domain.ValidOrderNumber(number) {
		return nil, "", ErrInvalidOrderNumber
	}
	if e, ok := c.cache.Get(number); ok {
		order := e.ServiceOrder
		return &order, FoundInCache, nil
	}
	order, err := c.catalog.FindByNumber(ctx, number)
	if err != nil {
		return nil, "", err
	}
	if order == nil {
		return nil, "", ErrNotFound
	}
	return order, FoundInStore, nil
}

// ClearCache empties the cache, persists the empty state and returns how
// many entries were removed.
func (c *Controller) ClearCache(ctx context.Context) (int, error) {
	n, err := c.cache.Clear(ctx)
	metrics.CacheSize.Set(0)
	if err != nil {
		return n, err
	}
	logger.With(nil).WithCount(n).Info(ctx, "cache cleared")
	return n, nil
}

// Stats combines store statistics with loop counters.
func (c *Controller) Stats(ctx context.Context) (domain.MonitorStats, error) {
	var s domain.MonitorStats
	orders, err := c.catalog.Stats(ctx)
	if err != nil {
		return s, err
	}
	s.OrderStats = orders
	s.CacheSize = c.cache.Len()
	c.monitor.Counters(&s)
	return s, nil
}
