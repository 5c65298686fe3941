// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the Idempotency
// model (checkout retries) and for WebhookReceipt (billing event replays).
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/mealplan-funnel/internal/domain"
)

// ErrDuplicate indicates that a record with the same unique key already
// exists: an idempotency record for (session_id, key) or a receipt for
// (provider, event_id).
var ErrDuplicate = errors.New("duplicate")

// GetIdempotency returns a non-expired record or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, sessionID, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("session_id = ? AND key = ? AND expires_at > ?", sessionID, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency stores the checkout produced for (sessionID, key) and
// returns ErrDuplicate on unique violation.
func CreateIdempotency(ctx context.Context, db *gorm.DB, sessionID, key, provider, checkoutID, checkoutURL string, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Key:         key,
		Provider:    provider,
		CheckoutID:  checkoutID,
		CheckoutURL: checkoutURL,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// HasReceipt reports whether (provider, eventID) was already applied.
func HasReceipt(ctx context.Context, db *gorm.DB, provider, eventID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.WebhookReceipt{}).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Count(&n).Error
	return n > 0, err
}

// CreateReceipt records an applied envelope. A concurrent delivery that won
// the race surfaces as ErrDuplicate.
func CreateReceipt(ctx context.Context, db *gorm.DB, provider, eventID, eventType, sessionID, outcome string) error {
	rec := &domain.WebhookReceipt{
		ID:        uuid.NewString(),
		Provider:  provider,
		EventID:   eventID,
		EventType: eventType,
		SessionID: sessionID,
		Outcome:   outcome,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func isUniqueViolation(err error) bool {
	// glebarez/sqlite often returns plain-text errors for UNIQUE violations;
	// pgx reports SQLSTATE 23505.
	low := strings.ToLower(err.Error())
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "sqlstate 23505")
}
