package service

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/willianribas/bots/internal/cache"
	"github.com/willianribas/bots/internal/clock"
	"github.com/willianribas/bots/internal/domain"
	"github.com/willianribas/bots/internal/source"
	"github.com/willianribas/bots/internal/storage"
)

const testZone = "America/Sao_Paulo"

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// newTestZone returns a zone whose clock starts at the given local time.
func newTestZone(t *testing.T, year int, month time.Month, day, hour, min int) (*clock.Zone, *manualClock) {
	t.Helper()
	loc, err := time.LoadLocation(testZone)
	require.NoError(t, err)
	c := &manualClock{now: time.Date(year, month, day, hour, min, 0, 0, loc)}
	z, err := clock.NewZone(testZone, c)
	require.NoError(t, err)
	return z, c
}

type memSnapshots struct {
	mu     sync.Mutex
	data   []byte
	writes int
}

func (m *memSnapshots) Read(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, storage.ErrNotFound
	}
	return m.data, nil
}

func (m *memSnapshots) Write(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	m.writes++
	return nil
}

func (m *memSnapshots) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// fakeStore implements every store interface the service uses.
type fakeStore struct {
	mu      sync.Mutex
	orders  map[string]domain.ServiceOrder
	history []domain.HistoryEntry
	upserts int
	tagRead int

	findErr    error
	upsertErr  error
	historyErr error
	tagErr     error
}

func newFakeStore(rows ...domain.ServiceOrder) *fakeStore {
	s := &fakeStore{orders: make(map[string]domain.ServiceOrder)}
	for _, r := range rows {
		s.orders[r.OrderNumber] = r
	}
	return s
}

func (s *fakeStore) FindByNumber(_ context.Context, number string) (*domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	o, ok := s.orders[number]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *fakeStore) Upsert(_ context.Context, order *domain.ServiceOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.orders[order.OrderNumber] = *order
	s.upserts++
	return nil
}

func (s *fakeStore) Insert(_ context.Context, entry *domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyErr != nil {
		return s.historyErr
	}
	s.history = append(s.history, *entry)
	return nil
}

func (s *fakeStore) SourceTag(_ context.Context, number string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tagRead++
	if s.tagErr != nil {
		return "", false, s.tagErr
	}
	o, ok := s.orders[number]
	return o.SourceTag, ok, nil
}

func (s *fakeStore) ListAll(context.Context) ([]domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ServiceOrder, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNumber < out[j].OrderNumber })
	return out, nil
}

func (s *fakeStore) Stats(context.Context) (domain.OrderStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st domain.OrderStats
	var days int
	for _, o := range s.orders {
		st.Total++
		if o.Active() {
			st.Active++
		}
		if o.IsCritical {
			st.Critical++
		}
		days += o.DaysOpen
	}
	if st.Total > 0 {
		st.AverageDaysOpen = float64(days) / float64(st.Total)
	}
	return st, nil
}

func (s *fakeStore) get(number string) (domain.ServiceOrder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[number]
	return o, ok
}

func (s *fakeStore) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

func (s *fakeStore) historyEntries() []domain.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

type recordingAlerter struct {
	mu       sync.Mutex
	messages []string
}

func (a *recordingAlerter) Alert(_ context.Context, text string) {
	a.mu.Lock()
	a.messages = append(a.messages, text)
	a.mu.Unlock()
}

func (a *recordingAlerter) Messages() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.messages)
}

func (a *recordingAlerter) Count(substr string) int {
	n := 0
	for _, m := range a.Messages() {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}

// fakePortal serves a fixed page and counts session calls. rowsErrs are
// returned one per read before falling back to rowsErr.
type fakePortal struct {
	mu         sync.Mutex
	rows       []source.RawRow
	rowsErr    error
	rowsErrs   []error
	openErr    error
	recoverErr error
	// blockRows makes Rows wait for ctx like a page reload in flight
	blockRows  bool
	opens      int
	recovers   int
	closes     int
	reads      int
}

func (p *fakePortal) Open(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opens++
	return p.openErr
}

func (p *fakePortal) Recover(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recovers++
	return p.recoverErr
}

func (p *fakePortal) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

func (p *fakePortal) Rows(ctx context.Context) (iter.Seq[source.RawRow], error) {
	p.mu.Lock()
	p.reads++
	if p.blockRows {
		p.mu.Unlock()
		<-ctx.Done()
		return nil, fmt.Errorf("%w: reload: %w", source.ErrExtraction, ctx.Err())
	}
	defer p.mu.Unlock()
	if len(p.rowsErrs) > 0 {
		err := p.rowsErrs[0]
		p.rowsErrs = p.rowsErrs[1:]
		return nil, err
	}
	if p.rowsErr != nil {
		return nil, p.rowsErr
	}
	return slices.Values(slices.Clone(p.rows)), nil
}

func (p *fakePortal) setRows(rows ...source.RawRow) {
	p.mu.Lock()
	p.rows = rows
	p.mu.Unlock()
}

func (p *fakePortal) counts() (opens, recovers, closes, reads int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opens, p.recovers, p.closes, p.reads
}

func rawRow(number, status, executor string, critical bool) source.RawRow {
	return source.RawRow{
		OrderNumber:    number,
		RowText:        "MC " + number,
		OriginText:     "MC",
		EquipmentText:  "10234 - VENTILADOR PULMONAR  " + status + " (x) Aberta em 5/3/2025 (12 dias)",
		CriticalMarker: critical,
		ExecutorText:   executor + " Neste estado há 1 dia",
	}
}

func newTestCache(c clock.Clock) (*cache.RecordCache, *memSnapshots) {
	snaps := &memSnapshots{}
	return cache.New(snaps, c, 5*time.Minute), snaps
}

func order(number string, status domain.Status, executor string) domain.ServiceOrder {
	return domain.ServiceOrder{
		OrderNumber:          number,
		SourceTag:            domain.SourceCorrective,
		EquipmentCode:        "10234",
		EquipmentDescription: "VENTILADOR PULMONAR",
		Status:               status,
		OpenedAt:             domain.Date{Year: 2025, Month: time.March, Day: 5},
		DaysOpen:             12,
		ExecutorName:         executor,
	}
}
