package repository

import (
	"context"
	"fmt"

	"github.com/willianribas/bots/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderRepository reads and writes the service_orders table.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new OrderRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *OrderRepository: repository instance bound to db.
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// FindByNumber returns the stored order or nil when there is none.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - number: order number.
// Returns:
//   - *domain.ServiceOrder: stored row, nil if absent.
//   - error: non-nil if the query fails.
func (r *OrderRepository) FindByNumber(ctx context.Context, number string) (*domain.ServiceOrder, error) {
	var rows []domain.ServiceOrder
	if err := r.db.WithContext(ctx).
		Where("order_number = ?", number).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("select order %s: %w", number, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// SourceTag returns only the stored source tag of an order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - number: order number.
// Returns:
//   - string: stored source tag.
//   - bool: false when the order is not stored.
//   - error: non-nil if the query fails.
func (r *OrderRepository) SourceTag(ctx context.Context, number string) (string, bool, error) {
	var tags []string
	if err := r.db.WithContext(ctx).
		Model(&domain.ServiceOrder{}).
		Where("order_number = ?", number).
		Limit(1).
		Pluck("source_tag", &tags).Error; err != nil {
		return "", false, fmt.Errorf("select source tag %s: %w", number, err)
	}
	if len(tags) == 0 {
		return "", false, nil
	}
	return tags[0], true, nil
}

// ListAll returns every stored order ordered by order number.
func (r *OrderRepository) ListAll(ctx context.Context) ([]domain.ServiceOrder, error) {
	var rows []domain.ServiceOrder
	if err := r.db.WithContext(ctx).Order("order_number").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return rows, nil
}

// Upsert inserts the order or replaces every column of the existing row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - order: full row to persist.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *OrderRepository) Upsert(ctx context.Context, order *domain.ServiceOrder) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_number"}},
		UpdateAll: true,
	}).Create(order).Error
}

// OrderFilter narrows List.
type OrderFilter struct {
	Status       domain.Status
	CriticalOnly bool
	ActiveOnly   bool
	Limit        int
	Offset       int
}

// List returns a page of orders and the total matching the filter.
func (r *OrderRepository) List(ctx context.Context, f OrderFilter) ([]domain.ServiceOrder, int64, error) {
	q := r.db.WithContext(ctx).Model(&domain.ServiceOrder{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.CriticalOnly {
		q = q.Where("is_critical = ?", true)
	}
	if f.ActiveOnly {
		q = q.Where("status <> ?", domain.StatusCO)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []domain.ServiceOrder
	if err := q.Session(&gorm.Session{}).Order("order_number").Limit(limit).Offset(f.Offset).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return rows, total, nil
}

// Stats aggregates totals over the whole table.
func (r *OrderRepository) Stats(ctx context.Context) (domain.OrderStats, error) {
	var s domain.OrderStats
	db := r.db.WithContext(ctx).Model(&domain.ServiceOrder{})

	if err := db.Session(&gorm.Session{}).Count(&s.Total).Error; err != nil {
		return s, fmt.Errorf("count orders: %w", err)
	}
	if err := db.Session(&gorm.Session{}).Where("status <> ?", domain.StatusCO).Count(&s.Active).Error; err != nil {
		return s, fmt.Errorf("count active orders: %w", err)
	}
	if err := db.Session(&gorm.Session{}).Where("is_critical = ?", true).Count(&s.Critical).Error; err != nil {
		return s, fmt.Errorf("count critical orders: %w", err)
	}
	if err := db.Session(&gorm.Session{}).Select("COALESCE(AVG(days_open), 0)").Scan(&s.AverageDaysOpen).Error; err != nil {
		return s, fmt.Errorf("average days open: %w", err)
	}
	return s, nil
}
