package repository

import (
	"context"
	"fmt"

	"github.com/willianribas/bots/internal/domain"
	"gorm.io/gorm"
)

// HistoryRepository appends to service_order_history. Rows are never updated.
type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Insert appends one entry. An empty actor is filled with the automation tag.
func (r *HistoryRepository) Insert(ctx context.Context, entry *domain.HistoryEntry) error {
	if entry.Actor == "" {
		entry.Actor = domain.ActorAutomation
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("insert history for %s: %w", entry.OrderNumber, err)
	}
	return nil
}

// ListByOrder returns an order's history, newest first.
func (r *HistoryRepository) ListByOrder(ctx context.Context, number string, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []domain.HistoryEntry
	if err := r.db.WithContext(ctx).
		Where("order_number = ?", number).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list history for %s: %w", number, err)
	}
	return rows, nil
}
