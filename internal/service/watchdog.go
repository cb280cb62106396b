package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/willianribas/bots/internal/logger"
	"github.com/willianribas/bots/internal/notify"
)

// StatusReader is the view of the loop the watchdog polls.
type StatusReader interface {
	Status() Status
}

// Watchdog alerts once when a running, unpaused loop stops beating and
// once more when it beats again.
type Watchdog struct {
	cron    *cron.Cron
	status  StatusReader
	alerter notify.Alerter
	timeout time.Duration
	check   time.Duration

	mu    sync.Mutex
	stale bool
}

func NewWatchdog(status StatusReader, alerter notify.Alerter, timeout, check time.Duration) *Watchdog {
	return &Watchdog{
		cron:    cron.New(),
		status:  status,
		alerter: alerter,
		timeout: timeout,
		check:   check,
	}
}

// Start schedules the heartbeat check.
func (w *Watchdog) Start(ctx context.Context) error {
	ctx = logger.SetComponent(context.WithoutCancel(ctx), "watchdog")
	_, err := w.cron.AddFunc(fmt.Sprintf("@every %s", w.check), func() { w.Check(ctx) })
	if err != nil {
		return fmt.Errorf("schedule heartbeat check: %w", err)
	}
	w.cron.Start()
	logger.CtxInfo(ctx, "heartbeat watchdog started (timeout %s, every %s)", w.timeout, w.check)
	return nil
}

// Stop halts the schedule and waits for a running check.
func (w *Watchdog) Stop() {
	<-w.cron.Stop().Done()
}

// Check runs one heartbeat evaluation.
func (w *Watchdog) Check(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := w.status.Status()
	if !st.Running || st.Paused || st.LastHeartbeat.IsZero() {
		w.stale = false
		return
	}

	if st.HeartbeatAge > w.timeout {
		if !w.stale {
			w.stale = true
			logger.CtxWarn(ctx, "no heartbeat for %s", st.HeartbeatAge.Round(time.Second))
			w.alerter.Alert(ctx, fmt.Sprintf("⚠️ Monitor unresponsive: no heartbeat for %s.",
				st.HeartbeatAge.Round(time.Second)))
		}
		return
	}
	if w.stale {
		w.stale = false
		logger.CtxInfo(ctx, "heartbeat recovered")
		w.alerter.Alert(ctx, "✅ Monitor heartbeat recovered.")
	}
}
