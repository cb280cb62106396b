package service

import (
	"context"
	"errors"

	"github.com/willianribas/bots/internal/domain"
)

var (
	// ErrSessionUnrecoverable stops the loop: the portal session could not be re-established.
	ErrSessionUnrecoverable = errors.New("portal session unrecoverable")

	ErrAlreadyRunning     = errors.New("monitor already running")
	ErrNotRunning         = errors.New("monitor not running")
	ErrInvalidOrderNumber = errors.New("invalid order number")
	ErrNotFound           = errors.New("order not found")
)

// SourceTagReader reads the stored source tag of one order.
type SourceTagReader interface {
	SourceTag(ctx context.Context, number string) (string, bool, error)
}

// OrderStore is the part of the durable store the reconciler writes through.
type OrderStore interface {
	FindByNumber(ctx context.Context, number string) (*domain.ServiceOrder, error)
	Upsert(ctx context.Context, order *domain.ServiceOrder) error
}

// HistoryStore appends history entries.
type HistoryStore interface {
	Insert(ctx context.Context, entry *domain.HistoryEntry) error
}

// OrderCatalog is the read side used for store import, search and statistics.
type OrderCatalog interface {
	FindByNumber(ctx context.Context, number string) (*domain.ServiceOrder, error)
	ListAll(ctx context.Context) ([]domain.ServiceOrder, error)
	Stats(ctx context.Context) (domain.OrderStats, error)
}
