// Package services – CheckoutService
//
// This file implements CheckoutService, which opens hosted checkouts for a
// session and confirms Stripe checkouts when the buyer is redirected back.
// The session id is the only correlation key handed to the provider.
// Retries carrying the same Idempotency-Key are answered from the stored
// record instead of opening a second checkout.
package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/mealplan-funnel/internal/billing"
	"github.com/tbourn/mealplan-funnel/internal/domain"
	"github.com/tbourn/mealplan-funnel/internal/repo"
)

// CheckoutGateway opens hosted checkouts with one provider.
type CheckoutGateway interface {
	Name() string
	CreateCheckout(ctx context.Context, req billing.CheckoutRequest) (billing.Checkout, error)
}

// CheckoutConfirmer retrieves a completed checkout as a billing envelope.
type CheckoutConfirmer interface {
	ConfirmCheckout(ctx context.Context, checkoutID string) (domain.Envelope, error)
}

// CheckoutInput is a checkout request for one session.
type CheckoutInput struct {
	SessionID      string
	PlanID         string
	Provider       string
	IdempotencyKey string
}

// CheckoutService creates and confirms checkouts.
type CheckoutService struct {
	DB       *gorm.DB
	Catalog  domain.Catalog
	Gateways map[string]CheckoutGateway
	// DefaultProvider is used when the input names none.
	DefaultProvider string
	// Confirmer and Reconciler back ConfirmStripe; both may be nil when
	// Stripe is disabled.
	Confirmer  CheckoutConfirmer
	Reconciler *Reconciler

	PublicBaseURL  string
	IdempotencyTTL time.Duration
	Now            func() time.Time
}

func (s *CheckoutService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Create opens a checkout for the session's plan. The session must exist and
// carry an email.
func (s *CheckoutService) Create(ctx context.Context, in CheckoutInput) (billing.Checkout, error) {
	ctx, span := otel.Tracer("services/CheckoutService").Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("session.id", in.SessionID),
			attribute.String("plan.id", in.PlanID),
			attribute.String("billing.provider", in.Provider),
		),
	)
	defer span.End()

	sess, err := repo.GetSession(ctx, s.DB, in.SessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return billing.Checkout{}, ErrSessionNotFound
	}
	if err != nil {
		return billing.Checkout{}, err
	}
	if sess.EmailAddress() == "" {
		return billing.Checkout{}, ErrEmailRequired
	}
	plan, ok := s.Catalog.Lookup(in.PlanID)
	if !ok {
		return billing.Checkout{}, ErrUnknownPlan
	}
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		provider = s.DefaultProvider
	}
	gw, ok := s.Gateways[provider]
	if !ok || gw == nil {
		return billing.Checkout{}, ErrProviderUnavailable
	}

	if in.IdempotencyKey != "" {
		rec, err := repo.GetIdempotency(ctx, s.DB, sess.ID, in.IdempotencyKey, s.now())
		if err == nil {
			return billing.Checkout{ID: rec.CheckoutID, URL: rec.CheckoutURL}, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return billing.Checkout{}, err
		}
	}

	co, err := gw.CreateCheckout(ctx, billing.CheckoutRequest{
		SessionID:      sess.ID,
		Email:          sess.EmailAddress(),
		Plan:           plan,
		SuccessURL:     s.successURL(provider, sess.ID),
		CancelURL:      s.PublicBaseURL + "/checkout?session_id=" + url.QueryEscape(sess.ID),
		IdempotencyKey: in.IdempotencyKey,
	})
	if errors.Is(err, billing.ErrNotConfigured) {
		return billing.Checkout{}, ErrProviderUnavailable
	}
	if err != nil {
		span.RecordError(err)
		return billing.Checkout{}, err
	}

	if in.IdempotencyKey != "" {
		_, err := repo.CreateIdempotency(ctx, s.DB, sess.ID, in.IdempotencyKey, provider, co.ID, co.URL, s.IdempotencyTTL)
		if errors.Is(err, repo.ErrDuplicate) {
			// A concurrent retry stored first; answer with its checkout.
			if rec, gerr := repo.GetIdempotency(ctx, s.DB, sess.ID, in.IdempotencyKey, s.now()); gerr == nil {
				return billing.Checkout{ID: rec.CheckoutID, URL: rec.CheckoutURL}, nil
			}
		} else if err != nil {
			return billing.Checkout{}, err
		}
	}
	return co, nil
}

// ConfirmStripe retrieves a Stripe checkout after the redirect and applies it
// like the completion webhook. Both share the envelope id, so whichever
// arrives second is a duplicate.
func (s *CheckoutService) ConfirmStripe(ctx context.Context, checkoutID string) (Result, error) {
	ctx, span := otel.Tracer("services/CheckoutService").Start(ctx, "ConfirmStripe",
		trace.WithAttributes(attribute.String("checkout.id", checkoutID)))
	defer span.End()

	if s.Confirmer == nil || s.Reconciler == nil {
		return Result{}, ErrProviderUnavailable
	}
	env, err := s.Confirmer.ConfirmCheckout(ctx, checkoutID)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	return s.Reconciler.Apply(ctx, env)
}

func (s *CheckoutService) successURL(provider, sessionID string) string {
	u := s.PublicBaseURL + "/checkout/success?session_id=" + url.QueryEscape(sessionID)
	if provider == domain.ProviderStripe {
		// Stripe substitutes the literal placeholder.
		u += "&checkout_id={CHECKOUT_SESSION_ID}"
	}
	return u
}
