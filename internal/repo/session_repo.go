// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Session
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, so the same
// call works on the root handle or inside a transaction. They follow the
// "thin repository" approach: no business logic, only persistence and query
// composition. Each update writes only the columns its caller owns, so
// concurrent writers from different event sources never clobber each other.
//
// Resolution rule: whenever several sessions match an email or subscription
// id, the most recently created one wins, ties broken by id descending
// (see newestFirst). Every lookup in this file uses that single ordering.
//
// Error semantics:
//   - Missing rows return gorm.ErrRecordNotFound (exported as ErrNotFound).
//   - Updates that match no row return ErrNotFound.
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/mealplan-funnel/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// newestFirst is the ordering used for most-recent-session resolution.
const newestFirst = "created_at DESC, id DESC"

// CreateSession inserts an empty session with a random UUID and UTC
// creation time.
func CreateSession(ctx context.Context, db *gorm.DB) (*domain.Session, error) {
	now := time.Now().UTC()
	s := &domain.Session{
		ID:          uuid.NewString(),
		QuizAnswers: datatypes.NewJSONType(domain.QuizAnswers{}),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// GetSession fetches a session by id.
func GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.Session, error) {
	var s domain.Session
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// LatestSessionByEmail returns the most recently created session carrying
// email. The address must already be normalized.
func LatestSessionByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Session, error) {
	var s domain.Session
	err := db.WithContext(ctx).
		Where("email = ?", email).
		Order(newestFirst).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// LatestSessionBySubscription returns the most recently created session
// bearing subscriptionID.
func LatestSessionBySubscription(ctx context.Context, db *gorm.DB, subscriptionID string) (*domain.Session, error) {
	var s domain.Session
	err := db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order(newestFirst).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// MergeQuizAnswers applies update to the stored answers inside a transaction
// and returns the updated session.
func MergeQuizAnswers(ctx context.Context, db *gorm.DB, id string, update domain.QuizAnswers) (*domain.Session, error) {
	var out *domain.Session
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := GetSession(ctx, tx, id)
		if err != nil {
			return err
		}
		merged := s.Answers().Merge(update)
		s.QuizAnswers = datatypes.NewJSONType(merged)
		if err := tx.Model(&domain.Session{}).
			Where("id = ?", id).
			Update("quiz_answers", s.QuizAnswers).Error; err != nil {
			return err
		}
		out = s
		return nil
	})
	return out, err
}

// AttachEmail sets the session email.
func AttachEmail(ctx context.Context, db *gorm.DB, id, email string) error {
	return updateSession(ctx, db, map[string]any{"email": email}, "id = ?", id)
}

// MarkPaid records a settled one-time payment.
func MarkPaid(ctx context.Context, db *gorm.DB, id, txID, plan string) error {
	fields := map[string]any{"payment_status": true, "payment_tx_id": txID}
	if plan != "" {
		fields["selected_plan"] = plan
	}
	return updateSession(ctx, db, fields, "id = ?", id)
}

// ActivateSubscription opens a recurring entitlement on session id. The
// generation stamp is set so the first plan counts against the cap.
func ActivateSubscription(ctx context.Context, db *gorm.DB, id, subscriptionID, plan string, until, stamp time.Time) error {
	fields := map[string]any{
		"is_subscriber":             true,
		"subscription_id":           subscriptionID,
		"subscription_active_until": until,
		"last_meal_plan_at":         stamp,
	}
	if plan != "" {
		fields["selected_plan"] = plan
	}
	return updateSession(ctx, db, fields, "id = ?", id)
}

// ExtendSubscription sets a new expiry on an active subscription. Callers
// compute until so it never moves backwards.
func ExtendSubscription(ctx context.Context, db *gorm.DB, id, subscriptionID string, until time.Time) error {
	return updateSession(ctx, db, map[string]any{"subscription_active_until": until},
		"id = ? AND subscription_id = ? AND is_subscriber = ?", id, subscriptionID, true)
}

// CancelSubscription clears the entitlement of subscriptionID on session id.
// The subscription id is kept so later events still resolve to the session.
func CancelSubscription(ctx context.Context, db *gorm.DB, id, subscriptionID string) error {
	return updateSession(ctx, db, map[string]any{
		"is_subscriber":             false,
		"subscription_active_until": nil,
	}, "id = ? AND subscription_id = ?", id, subscriptionID)
}

// SaveMealPlan stores a generated plan and its generation time.
func SaveMealPlan(ctx context.Context, db *gorm.DB, id string, plan datatypes.JSON, at time.Time) error {
	return updateSession(ctx, db, map[string]any{
		"meal_plan":         plan,
		"last_meal_plan_at": at,
	}, "id = ?", id)
}

// CountLeads returns the number of sessions that captured an email.
func CountLeads(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("email IS NOT NULL AND email <> ''").
		Count(&total).Error
	return total, err
}

// ListLeadsPage returns a page of sessions with an email, newest first.
// Use CountLeads for pagination metadata.
func ListLeadsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Session, error) {
	var out []domain.Session
	err := db.WithContext(ctx).
		Where("email IS NOT NULL AND email <> ''").
		Order(newestFirst).
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

func updateSession(ctx context.Context, db *gorm.DB, fields map[string]any, query string, args ...any) error {
	fields["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where(query, args...).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
