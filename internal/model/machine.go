package model

import "time"

// Machine represents a physical washing machine in the fleet.
type Machine struct {
	ID        string        `gorm:"primaryKey;size:64" json:"id"`
	MachineNo int           `gorm:"uniqueIndex;not null" json:"machineNo"`
	Status    MachineStatus `gorm:"size:16;not null;default:IDLE" json:"status"`
	CreatedAt time.Time     `json:"-"`
	UpdatedAt time.Time     `json:"-"`

	// Associations
	Orders []Order `gorm:"foreignKey:MachineID" json:"-"`
}
