// Package services – EntitlementService
//
// This file implements the entitlement gate read by the paid pages: whether
// an identity may pass the payment wall, and whether it may request a new
// meal plan now. It never writes.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/mealplan-funnel/internal/domain"
	"github.com/tbourn/mealplan-funnel/internal/repo"
)

// Access is the gate's answer for one session.
type Access struct {
	SessionID         string     `json:"session_id"`
	Entitled          bool       `json:"entitled"`
	Subscriber        bool       `json:"subscriber"`
	ActiveUntil       *time.Time `json:"active_until,omitempty"`
	HasMealPlan       bool       `json:"has_meal_plan"`
	CanGenerate       bool       `json:"can_generate"`
	DaysUntilEligible int        `json:"days_until_eligible"`
}

// EntitlementService evaluates access against the wall clock.
type EntitlementService struct {
	DB      *gorm.DB
	Catalog domain.Catalog
	Now     func() time.Time
}

func (s *EntitlementService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// CheckByEmail evaluates the most recent session for email.
func (s *EntitlementService) CheckByEmail(ctx context.Context, email string) (Access, error) {
	ctx, span := otel.Tracer("services/EntitlementService").Start(ctx, "CheckByEmail")
	defer span.End()

	email = domain.NormalizeEmail(email)
	if email == "" {
		return Access{}, ErrIdentityRequired
	}
	sess, err := repo.LatestSessionByEmail(ctx, s.DB, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Access{}, ErrSessionNotFound
	}
	if err != nil {
		return Access{}, err
	}
	return s.Evaluate(sess, s.now()), nil
}

// CheckBySession evaluates the session with id.
func (s *EntitlementService) CheckBySession(ctx context.Context, id string) (Access, error) {
	ctx, span := otel.Tracer("services/EntitlementService").Start(ctx, "CheckBySession",
		trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	if strings.TrimSpace(id) == "" {
		return Access{}, ErrIdentityRequired
	}
	sess, err := repo.GetSession(ctx, s.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Access{}, ErrSessionNotFound
	}
	if err != nil {
		return Access{}, err
	}
	return s.Evaluate(sess, s.now()), nil
}

// Evaluate computes Access for sess at now.
//
// A one-time buyer may generate once. An active subscriber may generate when
// no plan is stored yet or the last one is older than the plan's billing
// period; otherwise DaysUntilEligible says when.
//
// The missing-plan rule overrides the last_meal_plan_at cap: activation
// stamps last_meal_plan_at with the purchase time, so a new subscriber would
// otherwise wait a full period for the plan they just paid for. Keep it.
func (s *EntitlementService) Evaluate(sess *domain.Session, now time.Time) Access {
	a := Access{
		SessionID:   sess.ID,
		Entitled:    sess.Entitled(now),
		Subscriber:  sess.HasActiveSubscription(now),
		HasMealPlan: sess.HasMealPlan(),
	}
	if a.Subscriber {
		a.ActiveUntil = sess.SubscriptionActiveUntil
	}
	if !a.Entitled {
		return a
	}
	if !a.HasMealPlan {
		a.CanGenerate = true
		return a
	}
	if a.Subscriber {
		a.CanGenerate, a.DaysUntilEligible = domain.GenerationEligibility(
			sess.LastMealPlanAt, now, s.Catalog.PeriodFor(sess.SelectedPlan))
	}
	return a
}
