package domain

import (
	"strings"
	"time"
)

// Status is the lifecycle code of a service order as shown by the portal.
type Status string

const (
	StatusEE   Status = "EE"
	StatusAE   Status = "AE"
	StatusOSP  Status = "OSP"
	StatusAVT  Status = "AVT"
	StatusADE  Status = "ADE"
	StatusSOS  Status = "SOS"
	StatusCO   Status = "CO"
	StatusAM   Status = "AM"
	StatusADPD Status = "ADPD"
	StatusACE  Status = "ACE"
	StatusAO   Status = "AO"
)

// KnownStatuses lists the status vocabulary in match priority order.
var KnownStatuses = []Status{
	StatusEE, StatusAE, StatusOSP, StatusAVT, StatusADE, StatusSOS,
	StatusCO, StatusAM, StatusADPD, StatusACE, StatusAO,
}

// Source tags seen on the portal.
const (
	SourcePreventive = "MP"
	SourceCorrective = "MC"
	SourceInstall    = "INST"
)

// ValidOrderNumber is the shape check applied before lookups: a YY.NNNN
// number always carries the separator and is at least five characters.
func ValidOrderNumber(s string) bool {
	return strings.Contains(s, ".") && len(s) >= 5
}

// ServiceOrder is a maintenance ticket, one durable row per OrderNumber.
type ServiceOrder struct {
	OrderNumber          string    `gorm:"column:order_number;type:text;primaryKey" json:"order_number"`
	SourceTag            string    `gorm:"column:source_tag;type:text" json:"source_tag"`
	EquipmentCode        string    `gorm:"column:equipment_code;type:text" json:"equipment_code"`
	EquipmentDescription string    `gorm:"column:equipment_description;type:text" json:"equipment_description"`
	IsCritical           bool      `gorm:"column:is_critical;not null;index" json:"is_critical"`
	Status               Status    `gorm:"column:status;type:text;index" json:"status"`
	OpenedAt             Date      `gorm:"column:opened_at" json:"opened_at"`
	DaysOpen             int       `gorm:"column:days_open;not null" json:"days_open"`
	ExecutorName         string    `gorm:"column:executor_name;type:text" json:"executor_name"`
	DaysInCurrentStatus  int       `gorm:"column:days_in_current_status;not null" json:"days_in_current_status"`
	StatusChangeDate     Date      `gorm:"column:status_change_date" json:"status_change_date"`
	UpdatedAt            time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (ServiceOrder) TableName() string {
	return "service_orders"
}

// SameScrapedFields reports whether the portal-visible fields other than
// SourceTag match. OpenedAt is compared by calendar date.
func (o ServiceOrder) SameScrapedFields(other ServiceOrder) bool {
	return o.EquipmentCode == other.EquipmentCode &&
		o.EquipmentDescription == other.EquipmentDescription &&
		o.IsCritical == other.IsCritical &&
		o.Status == other.Status &&
		o.DaysOpen == other.DaysOpen &&
		o.ExecutorName == other.ExecutorName &&
		o.OpenedAt == other.OpenedAt
}

// Active reports whether the order is still open.
func (o ServiceOrder) Active() bool {
	return o.Status != StatusCO
}
