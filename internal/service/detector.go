package service

import (
	"context"

	"github.com/willianribas/bots/internal/cache"
	"github.com/willianribas/bots/internal/domain"
	"github.com/willianribas/bots/internal/logger"
	"github.com/willianribas/bots/internal/metrics"
)

// ChangeDetector decides whether a scraped order carries news worth writing.
type ChangeDetector struct {
	cache *cache.RecordCache
	store SourceTagReader
}

func NewChangeDetector(c *cache.RecordCache, store SourceTagReader) *ChangeDetector {
	return &ChangeDetector{cache: c, store: store}
}

// HasChanged compares incoming with its cached version. A differing source
// tag is confirmed against the store, which owns that field; a failed
// lookup does not force a write.
func (d *ChangeDetector) HasChanged(ctx context.Context, incoming domain.ServiceOrder) bool {
	cached, ok := d.cache.Get(incoming.OrderNumber)
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return true
	}

	if cached.SourceTag != incoming.SourceTag {
		stored, found, err := d.store.SourceTag(ctx, incoming.OrderNumber)
		switch {
		case err != nil:
			logger.FromContext(ctx).WithField(logger.FieldOrderNumber, incoming.OrderNumber).
				WithError(err).Warn("source tag lookup failed")
		case found && stored != incoming.SourceTag:
			metrics.CacheLookups.WithLabelValues("changed").Inc()
			return true
		}
	}

	if !cached.SameScrapedFields(incoming) {
		metrics.CacheLookups.WithLabelValues("changed").Inc()
		return true
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return false
}
