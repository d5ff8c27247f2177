package model

import "time"

// User is the read-side view of a customer account. Account management is
// owned by the external auth layer; the core only reads name/email for
// order search and the notification preference before pushing.
type User struct {
	ID                 string    `gorm:"primaryKey;size:64" json:"id"`
	Name               string    `gorm:"size:128" json:"name"`
	Email              string    `gorm:"uniqueIndex;size:128" json:"email"`
	EnableNotification bool      `gorm:"not null;default:true" json:"enableNotification"`
	CreatedAt          time.Time `json:"-"`
	UpdatedAt          time.Time `json:"-"`
}

// PushSubscription holds a user's registered web push endpoint.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey" json:"endpoint"`
	UserID    string    `gorm:"size:64;index;not null" json:"-"`
	P256DH    string    `gorm:"column:p256dh;not null" json:"p256dh"`
	Auth      string    `gorm:"not null" json:"auth"`
	CreatedAt time.Time `gorm:"not null" json:"-"`
}
