package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/willianribas/bots/internal/cache"
	"github.com/willianribas/bots/internal/clock"
	"github.com/willianribas/bots/internal/domain"
	"github.com/willianribas/bots/internal/logger"
	"github.com/willianribas/bots/internal/metrics"
	"github.com/willianribas/bots/internal/notify"
	"github.com/willianribas/bots/internal/source"
)

// MonitorOptions tunes the scrape loop.
type MonitorOptions struct {
	Interval        time.Duration
	SaveProbability float64
	StoreImport     bool
	RowWorkers      int
}

// MonitorDeps holds the collaborators of a Monitor.
type MonitorDeps struct {
	Portal     source.Portal
	Cache      *cache.RecordCache
	Detector   *ChangeDetector
	Reconciler *Reconciler
	Catalog    OrderCatalog
	Alerter    notify.Alerter
	Zone       *clock.Zone
	Gate       *clock.Gate
	Daily      *clock.DailyWindow
}

// Monitor runs the scrape cycle loop. Only one Run may be active at a time;
// Controller enforces that.
type Monitor struct {
	portal     source.Portal
	cache      *cache.RecordCache
	detector   *ChangeDetector
	reconciler *Reconciler
	catalog    OrderCatalog
	alerter    notify.Alerter
	zone       *clock.Zone
	gate       *clock.Gate
	daily      *clock.DailyWindow
	opts       MonitorOptions
	random     func() float64

	stop   atomic.Bool
	paused atomic.Bool
	wake   chan struct{}

	heartbeat       atomic.Int64
	cycles          atomic.Int64
	lastCycleAt     atomic.Int64
	lastCycleWrites atomic.Int64

	// owned by the Run goroutine
	lastDaily time.Time
}

// NewMonitor creates a Monitor.
func NewMonitor(deps MonitorDeps, opts MonitorOptions) *Monitor {
	if deps.Alerter == nil {
		deps.Alerter = notify.Nop{}
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	return &Monitor{
		portal:     deps.Portal,
		cache:      deps.Cache,
		detector:   deps.Detector,
		reconciler: deps.Reconciler,
		catalog:    deps.Catalog,
		alerter:    deps.Alerter,
		zone:       deps.Zone,
		gate:       deps.Gate,
		daily:      deps.Daily,
		opts:       opts,
		random:     rand.Float64,
		wake:       make(chan struct{}, 1),
	}
}

// Run opens the portal session and loops until Stop, ctx cancellation or an
// unrecoverable session failure. A clean stop returns nil, also when it
// interrupts a cycle in flight. A Stop issued before Run holds until Rearm.
func (m *Monitor) Run(ctx context.Context) error {
	ctx = logger.SetComponent(ctx, "monitor")
	log := logger.FromContext(ctx)

	if err := m.openSession(ctx); err != nil {
		return err
	}
	defer m.shutdown(ctx)

	if n, ok := m.cache.Load(ctx); ok {
		log.Infof("resuming with %d cached orders", n)
	}
	if m.opts.StoreImport {
		m.importFromStore(ctx)
	}
	metrics.CacheSize.Set(float64(m.cache.Len()))
	m.alerter.Alert(ctx, "✅ Monitor started.")

	for {
		if m.stop.Load() || ctx.Err() != nil {
			log.Info("monitor loop stopped")
			return nil
		}
		m.beat()

		if m.gate != nil && !m.gate.Open() {
			m.pause(ctx)
			continue
		}
		m.resume(ctx)

		if err := m.runCycle(ctx); err != nil {
			if m.stop.Load() || ctx.Err() != nil {
				log.WithError(err).Info("cycle interrupted by stop")
				return nil
			}
			log.WithError(err).Warn("scrape cycle failed, recovering session")
			m.alerter.Alert(ctx, fmt.Sprintf("⚠️ Scrape cycle failed: %v\nRecovering session...", err))
			if rerr := m.recoverSession(ctx); rerr != nil {
				m.alerter.Alert(ctx, fmt.Sprintf("❌ Session recovery failed: %v\nMonitor stopped.", rerr))
				return fmt.Errorf("%w: %w", ErrSessionUnrecoverable, rerr)
			}
		}

		m.sleep(ctx, m.opts.Interval)
	}
}

// Rearm clears a previous Stop so the next Run loops again. Call it before
// starting Run, never concurrently with it.
func (m *Monitor) Rearm() {
	m.stop.Store(false)
	m.drainWake()
}

// Stop asks the loop to exit at the next iteration boundary.
func (m *Monitor) Stop() {
	m.stop.Store(true)
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// LastHeartbeat is the start of the latest loop iteration, zero before the first.
func (m *Monitor) LastHeartbeat() time.Time {
	ms := m.heartbeat.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).In(m.zone.Location())
}

// Paused reports whether the loop is parked outside the operating window.
func (m *Monitor) Paused() bool {
	return m.paused.Load()
}

// Counters reports cycle progress into s.
func (m *Monitor) Counters(s *domain.MonitorStats) {
	s.CyclesCompleted = m.cycles.Load()
	s.LastCycleWrites = int(m.lastCycleWrites.Load())
	if ms := m.lastCycleAt.Load(); ms != 0 {
		s.LastCycleAt = time.UnixMilli(ms).In(m.zone.Location())
	}
}

func (m *Monitor) beat() {
	m.heartbeat.Store(m.zone.Now().UnixMilli())
}

func (m *Monitor) openSession(ctx context.Context) error {
	if err := m.portal.Open(ctx); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("initial login failed, retrying once")
		if rerr := m.recoverSession(ctx); rerr != nil {
			m.alerter.Alert(ctx, fmt.Sprintf("❌ Could not log in to the portal: %v", rerr))
			return fmt.Errorf("%w: %w", ErrSessionUnrecoverable, rerr)
		}
	}
	return nil
}

func (m *Monitor) recoverSession(ctx context.Context) error {
	if err := m.portal.Recover(ctx); err != nil {
		metrics.SessionRecoveries.WithLabelValues(metrics.ResultFailed).Inc()
		logger.FromContext(ctx).WithError(err).Error("session recovery failed")
		return err
	}
	metrics.SessionRecoveries.WithLabelValues(metrics.ResultOK).Inc()
	logger.CtxInfo(ctx, "session recovered")
	return nil
}

func (m *Monitor) shutdown(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if err := m.cache.Save(ctx); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("failed to save cache on shutdown")
	}
	if err := m.portal.Close(); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("failed to close portal session")
	}
	m.paused.Store(false)
}

func (m *Monitor) importFromStore(ctx context.Context) {
	rows, err := m.catalog.ListAll(ctx)
	if err != nil {
		metrics.StoreErrors.Inc()
		logger.FromContext(ctx).WithError(err).Warn("store import failed, monitoring visible orders only")
		return
	}
	added := m.cache.ImportFromStore(rows)
	logger.With(logger.Fields{"stored": len(rows)}).WithCount(added).Info(ctx, "imported stored orders into cache")
}

func (m *Monitor) pause(ctx context.Context) {
	next, wait := m.gate.NextOpening()
	if !m.paused.Swap(true) {
		metrics.CyclesTotal.WithLabelValues(metrics.ResultPaused).Inc()
		logger.CtxInfo(ctx, "outside operating window, sleeping until %s", next.Format(time.DateTime))
		m.alerter.Alert(ctx, fmt.Sprintf("⏸️ Monitoring paused outside %s-%s.\nResumes at %s.",
			m.gate.Start(), m.gate.End(), next.Format("02/01 15:04")))
	}
	m.sleep(ctx, wait)
}

func (m *Monitor) resume(ctx context.Context) {
	if m.paused.Swap(false) {
		logger.CtxInfo(ctx, "operating window open, resuming")
		m.alerter.Alert(ctx, "▶️ Monitoring resumed.")
	}
}

// runCycle performs one refresh-extract-reconcile pass. Only page errors are
// returned; store failures are handled per order.
func (m *Monitor) runCycle(ctx context.Context) error {
	ctx = logger.SetCycleID(ctx, uuid.NewString())
	started := time.Now()

	rows, err := m.portal.Rows(ctx)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues(metrics.ResultFailed).Inc()
		return err
	}
	orders := source.ParseRows(ctx, rows, m.opts.RowWorkers)
	metrics.RowsScraped.Add(float64(len(orders)))

	if n := m.cache.EvictExpired(); n > 0 {
		metrics.CacheEvictions.Add(float64(n))
		logger.With(nil).WithCount(n).Debug(ctx, "evicted expired cache entries")
	}

	writes := 0
	for _, order := range orders {
		if m.detector.HasChanged(ctx, order) {
			wrote, err := m.reconciler.Reconcile(ctx, order, TriggerChange)
			if err != nil {
				continue
			}
			if wrote {
				writes++
			}
		}
		m.cache.Put(order)
	}

	if m.daily != nil && m.daily.Due(m.lastDaily) {
		writes += m.forceReconcile(ctx)
	}

	if writes > 0 || m.random() < m.opts.SaveProbability {
		if err := m.cache.Save(ctx); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("failed to save cache")
		}
	}

	elapsed := time.Since(started)
	metrics.CycleDuration.Observe(elapsed.Seconds())
	metrics.CyclesTotal.WithLabelValues(metrics.ResultOK).Inc()
	metrics.CacheSize.Set(float64(m.cache.Len()))
	m.cycles.Add(1)
	m.lastCycleAt.Store(m.zone.Now().UnixMilli())
	m.lastCycleWrites.Store(int64(writes))

	logger.With(logger.Fields{logger.FieldWrites: writes}).
		WithCount(len(orders)).
		WithDuration(elapsed.Milliseconds()).
		Info(ctx, "cycle complete")
	return nil
}

// forceReconcile pushes every cached order through the reconciler once per day.
func (m *Monitor) forceReconcile(ctx context.Context) int {
	m.lastDaily = m.zone.Now()
	orders := m.cache.Orders()
	logger.With(nil).WithCount(len(orders)).Info(ctx, "daily forced reconciliation started")

	writes := 0
	for _, order := range orders {
		if m.reconciler.Upsert(ctx, order, TriggerDaily) {
			writes++
		}
	}
	logger.With(logger.Fields{logger.FieldWrites: writes}).Info(ctx, "daily forced reconciliation finished")
	return writes
}

func (m *Monitor) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-m.wake:
	case <-t.C:
	}
}

func (m *Monitor) drainWake() {
	select {
	case <-m.wake:
	default:
	}
}
