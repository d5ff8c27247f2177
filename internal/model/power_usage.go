package model

import "time"

// PowerUsageData is the measured energy consumption of one completed order.
// The unique index on OrderID guarantees at most one reading per order.
type PowerUsageData struct {
	ID         string    `gorm:"primaryKey;size:64" json:"id"`
	OrderID    string    `gorm:"uniqueIndex;size:64;not null" json:"orderId"`
	MachineID  string    `gorm:"size:64;index;not null" json:"machineId"`
	TotalKwh   float64   `gorm:"not null" json:"totalKwh"`
	RecordedAt time.Time `gorm:"not null;index" json:"recordedAt"`

	// Associations
	Order   Order   `json:"-"`
	Machine Machine `json:"-"`
}

// TableName pins the table name; "data" does not pluralize.
func (PowerUsageData) TableName() string {
	return "power_usage_data"
}
