package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/willianribas/bots/internal/clock"
	"github.com/willianribas/bots/internal/domain"
	"github.com/willianribas/bots/internal/logger"
	"github.com/willianribas/bots/internal/metrics"
	"github.com/willianribas/bots/internal/notify"
)

// Upsert triggers, used as metric labels.
const (
	TriggerChange = "change"
	TriggerDaily  = "daily"
)

// Reconciler writes detected changes to the durable store with their
// derived fields and history.
type Reconciler struct {
	orders            OrderStore
	history           HistoryStore
	alerter           notify.Alerter
	zone              *clock.Zone
	criticalThreshold time.Duration
}

// NewReconciler creates a Reconciler. criticalThreshold is the age under
// which a critical order going SOS -> CO raises an alert.
func NewReconciler(orders OrderStore, history HistoryStore, alerter notify.Alerter, zone *clock.Zone, criticalThreshold time.Duration) *Reconciler {
	if alerter == nil {
		alerter = notify.Nop{}
	}
	return &Reconciler{
		orders:            orders,
		history:           history,
		alerter:           alerter,
		zone:              zone,
		criticalThreshold: criticalThreshold,
	}
}

// Upsert persists incoming when it differs from the stored row and reports
// whether a write happened. Store failures are alerted and swallowed.
func (r *Reconciler) Upsert(ctx context.Context, incoming domain.ServiceOrder, trigger string) bool {
	wrote, _ := r.Reconcile(ctx, incoming, trigger)
	return wrote
}

// Reconcile is Upsert that also returns the store failure, already alerted,
// so the caller can leave its cache untouched and retry next cycle.
func (r *Reconciler) Reconcile(ctx context.Context, incoming domain.ServiceOrder, trigger string) (bool, error) {
	ctx = logger.WithField(ctx, logger.FieldOrderNumber, incoming.OrderNumber)
	log := logger.FromContext(ctx)

	existing, err := r.orders.FindByNumber(ctx, incoming.OrderNumber)
	if err != nil {
		metrics.StoreErrors.Inc()
		log.WithError(err).Error("failed to load stored order")
		r.alerter.Alert(ctx, fmt.Sprintf("Failed to read order %s from the database.", incoming.OrderNumber))
		return false, err
	}

	now := r.zone.Now()
	today := domain.DateOf(now)
	row := incoming

	switch {
	case existing == nil:
		row.DaysInCurrentStatus = 0
		row.StatusChangeDate = today
	case existing.Status != incoming.Status:
		r.appendHistory(ctx, incoming.OrderNumber, domain.FieldStatus, string(existing.Status), string(incoming.Status))
		if r.closedTooFast(existing, incoming, now) {
			r.alerter.Alert(ctx, criticalCloseMessage(incoming, now.Sub(incoming.OpenedAt.In(r.zone.Location())), r.criticalThreshold))
			log.Warn("critical order closed within threshold")
		}
		row.DaysInCurrentStatus = 0
		row.StatusChangeDate = today
	default:
		row.StatusChangeDate = existing.StatusChangeDate
		if row.StatusChangeDate.IsZero() {
			row.StatusChangeDate = today
		}
		row.DaysInCurrentStatus = row.StatusChangeDate.DaysUntil(today)
	}

	if existing != nil && existing.ExecutorName != incoming.ExecutorName {
		r.appendHistory(ctx, incoming.OrderNumber, domain.FieldExecutor, existing.ExecutorName, incoming.ExecutorName)
	}

	if existing != nil && !differs(*existing, row) {
		return false, nil
	}

	row.UpdatedAt = now.UTC()
	if err := r.orders.Upsert(ctx, &row); err != nil {
		metrics.StoreErrors.Inc()
		log.WithError(err).Error("failed to upsert order")
		r.alerter.Alert(ctx, fmt.Sprintf("Failed to save order %s to the database.", incoming.OrderNumber))
		return false, err
	}
	metrics.WritesTotal.WithLabelValues(trigger).Inc()
	log.WithField("trigger", trigger).Debug("order upserted")
	return true, nil
}

// closedTooFast matches a critical order moving SOS -> CO less than the
// threshold after it was opened.
func (r *Reconciler) closedTooFast(existing *domain.ServiceOrder, incoming domain.ServiceOrder, now time.Time) bool {
	if existing.Status != domain.StatusSOS || incoming.Status != domain.StatusCO || !incoming.IsCritical {
		return false
	}
	if incoming.OpenedAt.IsZero() {
		return false
	}
	return now.Sub(incoming.OpenedAt.In(r.zone.Location())) < r.criticalThreshold
}

func (r *Reconciler) appendHistory(ctx context.Context, number, field, oldValue, newValue string) {
	err := r.history.Insert(ctx, &domain.HistoryEntry{
		OrderNumber: number,
		FieldName:   field,
		OldValue:    oldValue,
		NewValue:    newValue,
		Actor:       domain.ActorAutomation,
	})
	if err != nil {
		metrics.StoreErrors.Inc()
		logger.FromContext(ctx).WithError(err).Error("failed to append history")
		r.alerter.Alert(ctx, fmt.Sprintf("Failed to record %s history for order %s.", field, number))
		return
	}
	metrics.HistoryEntries.WithLabelValues(field).Inc()
}

// differs compares every column the portal or the reconciler controls.
func differs(stored, next domain.ServiceOrder) bool {
	return stored.SourceTag != next.SourceTag ||
		!stored.SameScrapedFields(next) ||
		stored.DaysInCurrentStatus != next.DaysInCurrentStatus
}

func criticalCloseMessage(o domain.ServiceOrder, elapsed, threshold time.Duration) string {
	var b strings.Builder
	b.WriteString("🚨 CRITICAL ORDER CLOSED QUICKLY\n\n")
	fmt.Fprintf(&b, "Order: %s\n", o.OrderNumber)
	fmt.Fprintf(&b, "Equipment: %s\n", o.EquipmentDescription)
	b.WriteString("Status: SOS → CO\n")
	fmt.Fprintf(&b, "Elapsed: %dh %dmin\n", int(elapsed.Hours()), int(elapsed.Minutes())%60)
	fmt.Fprintf(&b, "Executor: %s\n\n", o.ExecutorName)
	fmt.Fprintf(&b, "⚠️ Critical order closed in under %s.", formatThreshold(threshold))
	return b.String()
}

// formatThreshold renders whole hours as "24h" and anything else as a Duration.
func formatThreshold(d time.Duration) string {
	if d > 0 && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return d.String()
}
