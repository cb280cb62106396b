package domain

import "time"

// ActorAutomation tags rows written by the monitor. The store's row policy
// only accepts history inserts carrying this actor.
const ActorAutomation = "automacao"

// Tracked history fields.
const (
	FieldStatus   = "status"
	FieldExecutor = "executor"
)

// HistoryEntry is an append-only record of a field change on an order.
type HistoryEntry struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber string    `gorm:"column:order_number;type:text;not null;index" json:"order_number"`
	FieldName   string    `gorm:"column:field_name;type:text;not null" json:"field_name"`
	OldValue    string    `gorm:"column:old_value;type:text" json:"old_value"`
	NewValue    string    `gorm:"column:new_value;type:text" json:"new_value"`
	Actor       string    `gorm:"column:actor;type:text;not null" json:"actor"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (HistoryEntry) TableName() string {
	return "service_order_history"
}
