package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/willianribas/bots/internal/cache"
	"github.com/willianribas/bots/internal/clock"
	"github.com/willianribas/bots/internal/domain"
)

type monitorFixture struct {
	monitor *Monitor
	portal  *fakePortal
	store   *fakeStore
	cache   *cache.RecordCache
	snaps   *memSnapshots
	alerts  *recordingAlerter
	clock   *manualClock
	zone    *clock.Zone
}

// newMonitorFixture builds a Monitor at 2025-06-10 hh:mm São Paulo time with
// an operating window of 06:45-19:45 and a daily reconcile at 08:00.
func newMonitorFixture(t *testing.T, hour, min int, scheduled bool) *monitorFixture {
	t.Helper()
	z, clk := newTestZone(t, 2025, 6, 10, hour, min)
	c, snaps := newTestCache(clk)
	store := newFakeStore()
	alerts := &recordingAlerter{}
	portal := &fakePortal{}

	gate, err := clock.NewGate(z, scheduled, "06:45", "19:45")
	require.NoError(t, err)
	daily, err := clock.NewDailyWindow(z, "08:00", 10*time.Minute)
	require.NoError(t, err)

	m := NewMonitor(MonitorDeps{
		Portal:     portal,
		Cache:      c,
		Detector:   NewChangeDetector(c, store),
		Reconciler: NewReconciler(store, store, alerts, z, 24*time.Hour),
		Catalog:    store,
		Alerter:    alerts,
		Zone:       z,
		Gate:       gate,
		Daily:      daily,
	}, MonitorOptions{Interval: 5 * time.Millisecond, StoreImport: true, RowWorkers: 2})
	m.random = func() float64 { return 1 }

	return &monitorFixture{
		monitor: m, portal: portal, store: store, cache: c,
		snaps: snaps, alerts: alerts, clock: clk, zone: z,
	}
}

func (f *monitorFixture) runAsync(ctx context.Context) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- f.monitor.Run(ctx) }()
	return errc
}

func TestRunCycleWritesOnlyChanges(t *testing.T) {
	f := newMonitorFixture(t, 10, 0, true)
	f.portal.setRows(
		rawRow("25.0001", "AE", "Bob", false),
		rawRow("25.0002", "SOS", "Alice", true),
	)
	ctx := context.Background()

	require.NoError(t, f.monitor.runCycle(ctx))
	assert.Equal(t, 2, f.store.upsertCount())
	assert.Equal(t, 2, f.cache.Len())
	assert.Equal(t, 1, f.snaps.Writes())

	require.NoError(t, f.monitor.runCycle(ctx))
	assert.Equal(t, 2, f.store.upsertCount(), "unchanged page must not write")
	assert.Equal(t, 1, f.snaps.Writes(), "no writes and no random save")

	f.portal.setRows(
		rawRow("25.0001", "AVT", "Bob", false),
		rawRow("25.0002", "SOS", "Alice", true),
	)
	require.NoError(t, f.monitor.runCycle(ctx))
	assert.Equal(t, 3, f.store.upsertCount())
	require.Len(t, f.store.historyEntries(), 1)

	var stats domain.MonitorStats
	f.monitor.Counters(&stats)
	assert.EqualValues(t, 3, stats.CyclesCompleted)
	assert.Equal(t, 1, stats.LastCycleWrites)
}

func TestRunCycleProbabilisticSave(t *testing.T) {
	f := newMonitorFixture(t, 10, 0, true)
	f.monitor.opts.SaveProbability = 0.1
	f.monitor.random = func() float64 { return 0.05 }

	require.NoError(t, f.monitor.runCycle(context.Background()))
	assert.Equal(t, 0, f.store.upsertCount())
	assert.Equal(t, 1, f.snaps.Writes())
}

func TestRunCycleKeepsCacheWhenWriteFails(t *testing.T) {
	f := newMonitorFixture(t, 10, 0, true)
	f.store.upsertErr = errors.New("connection reset")
	f.portal.setRows(rawRow("25.0001", "AE", "Bob", false))
	ctx := context.Background()

	require.NoError(t, f.monitor.runCycle(ctx))
	assert.Zero(t, f.cache.Len(), "failed write must be re-detected next cycle")

	f.store.mu.Lock()
	f.store.upsertErr = nil
	f.store.mu.Unlock()
	require.NoError(t, f.monitor.runCycle(ctx))
	assert.Equal(t, 1, f.store.upsertCount())
	assert.Equal(t, 1, f.cache.Len())
}

func TestRunCycleDailyReconcileOncePerDay(t *testing.T) {
	f := newMonitorFixture(t, 8, 5, true)
	stored := order("24.9999", domain.StatusAE, "Bob")
	stored.StatusChangeDate = domain.Date{Year: 2025, Month: time.June, Day: 7}
	f.store.orders[stored.OrderNumber] = stored
	f.cache.ImportFromStore([]domain.ServiceOrder{stored})
	ctx := context.Background()

	require.NoError(t, f.monitor.runCycle(ctx))
	assert.Equal(t, 1, f.store.upsertCount())
	got, _ := f.store.get("24.9999")
	assert.Equal(t, 3, got.DaysInCurrentStatus)

	require.NoError(t, f.monitor.runCycle(ctx))
	assert.Equal(t, 1, f.store.upsertCount(), "forced reconcile runs once per day")

	f.clock.Advance(24 * time.Hour)
	f.cache.Put(stored)
	require.NoError(t, f.monitor.runCycle(ctx))
	assert.Equal(t, 2, f.store.upsertCount())
}

func TestRunCycleOutsideDailyWindowDoesNotForce(t *testing.T) {
	f := newMonitorFixture(t, 9, 0, true)
	stored := order("24.9999", domain.StatusAE, "Bob")
	stored.StatusChangeDate = domain.Date{Year: 2025, Month: time.June, Day: 7}
	f.store.orders[stored.OrderNumber] = stored
	f.cache.ImportFromStore([]domain.ServiceOrder{stored})

	require.NoError(t, f.monitor.runCycle(context.Background()))
	assert.Zero(t, f.store.upsertCount())
}

func TestMonitorRunStopsCleanly(t *testing.T) {
	f := newMonitorFixture(t, 10, 0, true)
	f.portal.setRows(rawRow("25.0001", "AE", "Bob", false))

	errc := f.runAsync(context.Background())
	require.Eventually(t, func() bool {
		_, _, _, reads := f.portal.counts()
		return reads >= 3
	}, time.Second, time.Millisecond)

	f.monitor.Stop()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}

	opens, recovers, closes, _ := f.portal.counts()
	assert.Equal(t, 1, opens)
	assert.Zero(t, recovers)
	assert.Equal(t, 1, closes)
	assert.Equal(t, 1, f.store.upsertCount())
	assert.False(t, f.monitor.LastHeartbeat().IsZero())
	assert.GreaterOrEqual(t, f.snaps.Writes(), 2, "saved after the write and on shutdown")
}

func TestMonitorRunStopDuringCycleIsClean(t *testing.T) {
	f := newMonitorFixture(t, 10, 0, true)
	f.portal.blockRows = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := f.runAsync(ctx)
	require.Eventually(t, func() bool {
		_, _, _, reads := f.portal.counts()
		return reads >= 1
	}, time.Second, time.Millisecond)

	f.monitor.Stop()
	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}

	_, recovers, closes, _ := f.portal.counts()
	assert.Zero(t, recovers)
	assert.Equal(t, 1, closes)
	assert.Zero(t, f.alerts.Count("Scrape cycle failed"))
	assert.Zero(t, f.alerts.Count("Session recovery failed"))
}

func TestMonitorStopBeforeRunHoldsUntilRearm(t *testing.T) {
	f := newMonitorFixture(t, 10, 0, true)

	f.monitor.Stop()
	require.NoError(t, f.monitor.Run(context.Background()))
	_, _, _, reads := f.portal.counts()
	assert.Zero(t, reads)

	f.monitor.Rearm()
	errc := f.runAsync(context.Background())
	require.Eventually(t, func() bool {
		_, _, _, reads := f.portal.counts()
		return reads >= 1
	}, time.Second, time.Millisecond)
	f.monitor.Stop()
	require.NoError(t, <-errc)
}

func TestMonitorRunImportsStoreOnStart(t *testing.T) {
	f := newMonitorFixture(t, 10, 0, true)
	f.store.orders["24.0001"] = order("24.0001", domain.StatusCO, "Bob")
	ctx, cancel := context.WithCancel(context.Background())

	errc := f.runAsync(ctx)
	require.Eventually(t, func() bool {
		_, _, _, reads := f.portal.counts()
		return reads >= 1
	}, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-errc)

	_, ok := f.cache.Get("24.0001")
	assert.True(t, ok)
}

func TestMonitorRunRecoversFromCycleFailure(t *testing.T) {
	f := newMonitorFixture(t, 10, 0, true)
	f.portal.rowsErrs = []error{errors.New("element wait timed out")}
	f.portal.setRows(rawRow("25.0001", "AE", "Bob", false))

	errc := f.runAsync(context.Background())
	require.Eventually(t, func() bool { return f.store.upsertCount() == 1 }, time.Second, time.Millisecond)
	f.monitor.Stop()
	require.NoError(t, <-errc)

	_, recovers, _, _ := f.portal.counts()
	assert.Equal(t, 1, recovers)
	assert.Equal(t, 1, f.alerts.Count("Scrape cycle failed"))
}

func TestMonitorRunUnrecoverable(t *testing.T) {
	t.Run("recovery after cycle failure fails", func(t *testing.T) {
		f := newMonitorFixture(t, 10, 0, true)
		f.portal.rowsErr = errors.New("redirected to login")
		f.portal.recoverErr = errors.New("invalid password")

		err := f.monitor.Run(context.Background())
		require.ErrorIs(t, err, ErrSessionUnrecoverable)
		_, _, closes, _ := f.portal.counts()
		assert.Equal(t, 1, closes)
		assert.Equal(t, 1, f.alerts.Count("Session recovery failed"))
	})

	t.Run("initial login and retry fail", func(t *testing.T) {
		f := newMonitorFixture(t, 10, 0, true)
		f.portal.openErr = errors.New("login timed out")
		f.portal.recoverErr = errors.New("login timed out")

		err := f.monitor.Run(context.Background())
		require.ErrorIs(t, err, ErrSessionUnrecoverable)
		opens, recovers, _, reads := f.portal.counts()
		assert.Equal(t, 1, opens)
		assert.Equal(t, 1, recovers)
		assert.Zero(t, reads)
	})

	t.Run("initial login retried once", func(t *testing.T) {
		f := newMonitorFixture(t, 10, 0, true)
		f.portal.openErr = errors.New("login timed out")
		ctx, cancel := context.WithCancel(context.Background())

		errc := f.runAsync(ctx)
		require.Eventually(t, func() bool {
			_, _, _, reads := f.portal.counts()
			return reads >= 1
		}, time.Second, time.Millisecond)
		cancel()
		require.NoError(t, <-errc)
	})
}

func TestMonitorPausesOutsideWindow(t *testing.T) {
	f := newMonitorFixture(t, 22, 0, true)

	errc := f.runAsync(context.Background())
	require.Eventually(t, f.monitor.Paused, time.Second, time.Millisecond)
	assert.Equal(t, 1, f.alerts.Count("paused"))

	f.monitor.Stop()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("paused monitor did not stop")
	}
	_, _, _, reads := f.portal.counts()
	assert.Zero(t, reads)
	assert.False(t, f.monitor.Paused())
}

func TestMonitorScheduleDisabledRunsAtNight(t *testing.T) {
	f := newMonitorFixture(t, 23, 30, false)
	ctx, cancel := context.WithCancel(context.Background())

	errc := f.runAsync(ctx)
	require.Eventually(t, func() bool {
		_, _, _, reads := f.portal.counts()
		return reads >= 1
	}, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-errc)
}
