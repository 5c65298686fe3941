package domain

import "time"

// Idempotency records a checkout already created for (session_id, key). A
// retried checkout request with the same Idempotency-Key is answered with the
// stored URL instead of opening a second provider session.
type Idempotency struct {
	ID          string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	SessionID   string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_session_key,priority:1"`
	Key         string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_session_key,priority:2"`
	Provider    string    `gorm:"type:TEXT NOT NULL"`
	CheckoutID  string    `gorm:"type:TEXT NOT NULL;default:''"`
	CheckoutURL string    `gorm:"type:TEXT NOT NULL"`
	CreatedAt   time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt   time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
