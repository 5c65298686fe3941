// Package domain defines the persistence models and pure business rules of
// the funnel: the per-journey Session record, the billing event variants the
// reconciler consumes, the plan catalog, and the read models used by the
// admin dashboard. Types here are mapped with GORM where they are stored.
package domain

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"gorm.io/datatypes"
)

// QuizAnswers maps a question id to the list of selected option strings.
type QuizAnswers map[string][]string

// Merge applies update on top of a copy of q. Each question present in update
// replaces the stored selection; an empty selection removes the question.
func (q QuizAnswers) Merge(update QuizAnswers) QuizAnswers {
	out := make(QuizAnswers, len(q)+len(update))
	for k, v := range q {
		out[k] = v
	}
	for k, v := range update {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if len(v) == 0 {
			delete(out, k)
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	return out
}

// QuestionIDs returns the answered question ids in lexical order.
func (q QuizAnswers) QuestionIDs() []string {
	ids := make([]string, 0, len(q))
	for k := range q {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	return ids
}

// Session is the durable record of one funnel journey. It correlates quiz
// answers, payment and subscription state, and the generated meal plan.
//
// Field ownership:
//   - Email and QuizAnswers are written by client calls.
//   - PaymentStatus, PaymentTxID, IsSubscriber, SubscriptionID,
//     SubscriptionActiveUntil and SelectedPlan are written by billing events only.
//   - MealPlan and LastMealPlanAt are written by generation.
type Session struct {
	ID          string                          `json:"id"           gorm:"type:char(36);primaryKey"`
	Email       *string                         `json:"email"        gorm:"type:varchar(320);index:idx_sessions_email_created,priority:1"`
	QuizAnswers datatypes.JSONType[QuizAnswers] `json:"quiz_answers"`

	PaymentStatus bool    `json:"payment_status" gorm:"not null;default:false"`
	PaymentTxID   *string `json:"-"              gorm:"type:varchar(255)"`

	IsSubscriber            bool       `json:"is_subscriber"             gorm:"not null;default:false"`
	SubscriptionID          *string    `json:"subscription_id,omitempty" gorm:"type:varchar(255);index:idx_sessions_subscription_created,priority:1"`
	SubscriptionActiveUntil *time.Time `json:"subscription_active_until,omitempty"`
	SelectedPlan            string     `json:"selected_plan"             gorm:"type:varchar(64);not null;default:''"`

	LastMealPlanAt *time.Time     `json:"last_meal_plan_at,omitempty"`
	MealPlan       datatypes.JSON `json:"meal_plan,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"index:idx_sessions_email_created,priority:2;index:idx_sessions_subscription_created,priority:2;index"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// Answers returns the stored quiz answers, never nil.
func (s *Session) Answers() QuizAnswers {
	a := s.QuizAnswers.Data()
	if a == nil {
		return QuizAnswers{}
	}
	return a
}

// EmailAddress returns the attached email or "".
func (s *Session) EmailAddress() string {
	if s.Email == nil {
		return ""
	}
	return *s.Email
}

// HasMealPlan reports whether a generated plan has been stored.
func (s *Session) HasMealPlan() bool {
	return len(s.MealPlan) > 0 && string(s.MealPlan) != "null"
}

// Plan decodes the stored meal plan. It returns (nil, nil) when none exists.
func (s *Session) Plan() (*MealPlan, error) {
	if !s.HasMealPlan() {
		return nil, nil
	}
	var p MealPlan
	if err := json.Unmarshal(s.MealPlan, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// HasActiveSubscription reports whether the subscription expiry lies strictly
// after now. IsSubscriber alone is never sufficient.
func (s *Session) HasActiveSubscription(now time.Time) bool {
	return s.IsSubscriber &&
		s.SubscriptionActiveUntil != nil &&
		s.SubscriptionActiveUntil.After(now)
}

// Entitled reports whether the session may pass the payment wall at now.
func (s *Session) Entitled(now time.Time) bool {
	return s.PaymentStatus || s.HasActiveSubscription(now)
}

// DefaultBillingPeriod is the generation-cap window for subscribers.
const DefaultBillingPeriod = 30 * 24 * time.Hour

// GenerationEligibility applies the once-per-period cap. It is eligible when
// no plan was ever generated or the last one is more than period old;
// otherwise daysLeft is the whole number of days (rounded up) until it is.
func GenerationEligibility(last *time.Time, now time.Time, period time.Duration) (eligible bool, daysLeft int) {
	if last == nil {
		return true, 0
	}
	next := last.Add(period)
	if now.After(next) {
		return true, 0
	}
	remaining := next.Sub(now)
	daysLeft = int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) != 0 {
		daysLeft++
	}
	return false, daysLeft
}

// NormalizeEmail trims and case-folds an address so lookups by email are
// stable regardless of how the provider or client capitalized it.
func NormalizeEmail(email string) string {
	// Casers are stateful; one per call.
	return cases.Fold().String(strings.TrimSpace(email))
}
