package model

import "time"

// WashingMode is read-mostly reference data describing a wash program.
// Prices are in VND.
type WashingMode struct {
	ID              string    `gorm:"primaryKey;size:64" json:"id"`
	Name            string    `gorm:"uniqueIndex;size:64;not null" json:"name"`
	Price           int64     `gorm:"not null" json:"price"`
	IsActive        bool      `gorm:"not null;default:true" json:"isActive"`
	DurationMinutes int       `gorm:"not null" json:"durationMinutes"`
	CapacityKg      int       `gorm:"not null" json:"capacityKg"`
	CreatedAt       time.Time `json:"-"`
	UpdatedAt       time.Time `json:"-"`
}
