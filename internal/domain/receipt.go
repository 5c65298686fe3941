package domain

import "time"

// WebhookReceipt records a billing envelope that has already been folded
// into session state, keyed by (provider, event_id). A second delivery of
// the same envelope finds the receipt and is acknowledged without effect.
type WebhookReceipt struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Provider  string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_receipt_provider_event,priority:1"`
	EventID   string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_receipt_provider_event,priority:2"`
	EventType string    `gorm:"type:TEXT NOT NULL"`
	SessionID string    `gorm:"type:TEXT NOT NULL;default:''"`
	Outcome   string    `gorm:"type:TEXT NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
}

// TableName implements the GORM tabler interface.
func (WebhookReceipt) TableName() string { return "webhook_receipts" }
