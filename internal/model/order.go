package model

import "time"

// Order is one customer wash. Status advances PENDING -> WASHING -> FINISHED
// through the synchronizer, or to CANCELLED through the cancellation path.
// The timestamps track the status: washing_at is set when the wash starts,
// and at most one of finished_at / cancelled_at is ever set.
type Order struct {
	ID            string      `gorm:"primaryKey;size:64" json:"id"`
	UserID        string      `gorm:"size:64;index;not null" json:"userId"`
	MachineID     string      `gorm:"size:64;index;not null" json:"machineId"`
	WashingModeID string      `gorm:"size:64;not null" json:"-"`
	IsSoak        bool        `gorm:"not null" json:"isSoak"`
	PaymentMethod string      `gorm:"size:16;not null" json:"paymentMethod"`
	Price         int64       `gorm:"not null" json:"price"`
	AuthCode      string      `gorm:"size:8;not null" json:"authCode"`
	Status        OrderStatus `gorm:"size:16;index;not null" json:"status"`
	CreatedAt     time.Time   `json:"createdAt"`
	WashingAt     *time.Time  `json:"washingAt"`
	FinishedAt    *time.Time  `json:"finishedAt"`
	CancelledAt   *time.Time  `json:"cancelledAt"`

	// Associations
	Machine     Machine     `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
	WashingMode WashingMode `json:"-"`
	User        User        `json:"-"`
}

// Active reports whether the order still occupies its machine.
func (o *Order) Active() bool {
	return o.Status == OrderPending || o.Status == OrderWashing
}
