package domain

import "time"

// FunnelStats is the aggregate view shown on the admin dashboard.
type FunnelStats struct {
	Sessions          int64   `json:"sessions"`
	Leads             int64   `json:"leads"`
	Paid              int64   `json:"paid"`
	ActiveSubscribers int64   `json:"active_subscribers"`
	MealPlans         int64   `json:"meal_plans"`
	LeadRate          float64 `json:"lead_rate"`
	ConversionRate    float64 `json:"conversion_rate"`
}

// Lead is a session that reached the email-capture step.
type Lead struct {
	SessionID     string    `json:"session_id"`
	Email         string    `json:"email"`
	PaymentStatus bool      `json:"payment_status"`
	IsSubscriber  bool      `json:"is_subscriber"`
	SelectedPlan  string    `json:"selected_plan,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
