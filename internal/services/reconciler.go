// Package services – Reconciler
//
// This file implements the Reconciler, which folds verified billing events
// into session state. Each envelope is applied in one transaction: the
// receipt table is checked for the (provider, event id) pair, the transition
// runs against the narrow set of fields it owns, and a receipt is stored so a
// redelivery is answered as a duplicate.
//
// Transitions per subscription: none → active → active (renewed) → cancelled.
// A one-time payment opens the payment wall without a subscription.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/mealplan-funnel/internal/domain"
	"github.com/tbourn/mealplan-funnel/internal/observability"
	"github.com/tbourn/mealplan-funnel/internal/repo"
)

// Outcome describes what an envelope did to the store.
type Outcome string

const (
	// OutcomeApplied means the transition ran and a receipt was stored.
	OutcomeApplied Outcome = "applied"
	// OutcomeIgnored means the event was valid but required no change.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeDuplicate means the envelope was already applied.
	OutcomeDuplicate Outcome = "duplicate"
)

// Result is the reconciliation result of one envelope.
type Result struct {
	Outcome   Outcome `json:"outcome"`
	SessionID string  `json:"session_id,omitempty"`
}

// RenewalNotifier sends the renewal notice to a subscriber.
type RenewalNotifier interface {
	SendRenewalNotice(ctx context.Context, to, sessionID string) error
}

// Reconciler applies billing envelopes to sessions.
type Reconciler struct {
	DB       *gorm.DB
	Catalog  domain.Catalog
	Notifier RenewalNotifier
	Now      func() time.Time
}

// errReplayRace rolls back a transaction whose receipt insert lost to a
// concurrent delivery of the same envelope.
var errReplayRace = errors.New("receipt already stored")

type renewalNotice struct {
	to        string
	sessionID string
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// Apply reconciles env. Unrecognized events are ignored without touching the
// store. Errors:
//   - ErrSessionNotResolved, ErrSubscriptionNotFound, ErrAmountMismatch when
//     the event cannot be applied (no state changed)
//   - any other error is a storage failure and the delivery should be retried
func (r *Reconciler) Apply(ctx context.Context, env domain.Envelope) (Result, error) {
	kind := "unrecognized"
	if env.Event != nil {
		kind = env.Event.Kind()
	}
	ctx, span := otel.Tracer("services/Reconciler").Start(ctx, "Apply",
		trace.WithAttributes(
			attribute.String("billing.provider", env.Provider),
			attribute.String("billing.event_id", env.ID),
			attribute.String("billing.kind", kind),
		),
	)
	defer span.End()

	if env.Event == nil {
		return Result{Outcome: OutcomeIgnored}, nil
	}
	if _, ok := env.Event.(domain.Unrecognized); ok {
		return Result{Outcome: OutcomeIgnored}, nil
	}

	now := r.now()
	var (
		res    Result
		notice *renewalNotice
	)
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seen, err := repo.HasReceipt(ctx, tx, env.Provider, env.ID)
		if err != nil {
			return err
		}
		if seen {
			res = Result{Outcome: OutcomeDuplicate}
			return nil
		}

		switch ev := env.Event.(type) {
		case domain.SubscriptionActivated:
			res, err = r.activate(ctx, tx, ev, now)
		case domain.SubscriptionRenewed:
			res, notice, err = r.renew(ctx, tx, ev, now)
		case domain.SubscriptionCancelled:
			res, err = r.cancel(ctx, tx, ev)
		case domain.PaymentCompleted:
			res, err = r.pay(ctx, tx, ev)
		default:
			res = Result{Outcome: OutcomeIgnored}
		}
		if err != nil || res.Outcome != OutcomeApplied {
			return err
		}

		err = repo.CreateReceipt(ctx, tx, env.Provider, env.ID, kind, res.SessionID, string(res.Outcome))
		if errors.Is(err, repo.ErrDuplicate) {
			return errReplayRace
		}
		return err
	})
	if errors.Is(err, errReplayRace) {
		return Result{Outcome: OutcomeDuplicate}, nil
	}
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}

	if notice != nil {
		r.sendRenewalNotice(ctx, *notice)
	}
	span.SetAttributes(attribute.String("billing.outcome", string(res.Outcome)))
	return res, nil
}

func (r *Reconciler) activate(ctx context.Context, tx *gorm.DB, ev domain.SubscriptionActivated, now time.Time) (Result, error) {
	if strings.TrimSpace(ev.SubscriptionID) == "" {
		return Result{}, ErrSubscriptionNotFound
	}
	sess, err := resolveSession(ctx, tx, ev.SessionID, ev.Email)
	if err != nil {
		return Result{}, err
	}
	plan := ev.Plan
	if plan == "" {
		plan = sess.SelectedPlan
	}
	until := now.Add(r.Catalog.PeriodFor(plan))
	if err := repo.ActivateSubscription(ctx, tx, sess.ID, ev.SubscriptionID, plan, until, now); err != nil {
		return Result{}, err
	}
	return Result{Outcome: OutcomeApplied, SessionID: sess.ID}, nil
}

func (r *Reconciler) renew(ctx context.Context, tx *gorm.DB, ev domain.SubscriptionRenewed, now time.Time) (Result, *renewalNotice, error) {
	sess, err := repo.LatestSessionBySubscription(ctx, tx, ev.SubscriptionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if ev.FirstInvoice {
			// The first invoice can arrive before the activation event.
			return Result{Outcome: OutcomeIgnored}, nil, nil
		}
		return Result{}, nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return Result{}, nil, err
	}
	if !sess.IsSubscriber {
		// Cancelled; a late invoice must not reopen the entitlement.
		return Result{Outcome: OutcomeIgnored, SessionID: sess.ID}, nil, nil
	}

	until := now.Add(r.Catalog.PeriodFor(sess.SelectedPlan))
	if sess.SubscriptionActiveUntil != nil && sess.SubscriptionActiveUntil.After(until) {
		until = *sess.SubscriptionActiveUntil
	}
	if err := repo.ExtendSubscription(ctx, tx, sess.ID, ev.SubscriptionID, until); err != nil {
		return Result{}, nil, err
	}

	res := Result{Outcome: OutcomeApplied, SessionID: sess.ID}
	if ev.FirstInvoice {
		return res, nil, nil
	}
	to := sess.EmailAddress()
	if to == "" {
		to = ev.Email
	}
	return res, &renewalNotice{to: to, sessionID: sess.ID}, nil
}

func (r *Reconciler) cancel(ctx context.Context, tx *gorm.DB, ev domain.SubscriptionCancelled) (Result, error) {
	sess, err := repo.LatestSessionBySubscription(ctx, tx, ev.SubscriptionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Result{}, ErrSubscriptionNotFound
	}
	if err != nil {
		return Result{}, err
	}
	if err := repo.CancelSubscription(ctx, tx, sess.ID, ev.SubscriptionID); err != nil {
		return Result{}, err
	}
	return Result{Outcome: OutcomeApplied, SessionID: sess.ID}, nil
}

func (r *Reconciler) pay(ctx context.Context, tx *gorm.DB, ev domain.PaymentCompleted) (Result, error) {
	if strings.TrimSpace(ev.SessionID) == "" {
		return Result{}, ErrSessionNotResolved
	}
	sess, err := repo.GetSession(ctx, tx, ev.SessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Result{}, ErrSessionNotResolved
	}
	if err != nil {
		return Result{}, err
	}
	plan, ok := r.matchOneTimePrice(ev.Plan, ev.AmountMinor, ev.Currency)
	if !ok {
		log.Warn().
			Str("session_id", sess.ID).
			Str("plan", ev.Plan).
			Int64("amount", ev.AmountMinor).
			Int64("total", ev.TotalMinor).
			Str("currency", ev.Currency).
			Msg("payment does not match catalog price")
		return Result{}, ErrAmountMismatch
	}
	if err := repo.MarkPaid(ctx, tx, sess.ID, ev.TransactionID, plan.ID); err != nil {
		return Result{}, err
	}
	return Result{Outcome: OutcomeApplied, SessionID: sess.ID}, nil
}

// matchOneTimePrice returns the one-time plan the payment pays for. A named
// plan must match exactly; an unnamed payment must match some one-time price.
// The pre-tax, pre-discount amount is compared, so taxes and coupons never
// block the entitlement.
func (r *Reconciler) matchOneTimePrice(planID string, amount int64, currency string) (domain.Plan, bool) {
	currency = strings.ToLower(strings.TrimSpace(currency))
	matches := func(p domain.Plan) bool {
		return p.Mode == domain.PlanModeOneTime && p.AmountMinor == amount && p.Currency == currency
	}
	if planID != "" {
		p, ok := r.Catalog.Lookup(planID)
		return p, ok && matches(p)
	}
	for _, p := range r.Catalog.Plans {
		if matches(p) {
			return p, true
		}
	}
	return domain.Plan{}, false
}

func (r *Reconciler) sendRenewalNotice(ctx context.Context, n renewalNotice) {
	if r.Notifier == nil {
		return
	}
	err := r.Notifier.SendRenewalNotice(ctx, n.to, n.sessionID)
	observability.EmailsSent.WithLabelValues("renewal", observability.Result(err)).Inc()
	if err != nil {
		log.Error().Err(err).Str("session_id", n.sessionID).Msg("renewal notice failed")
	}
}

// resolveSession finds the session named by id, falling back to the most
// recent session for email.
func resolveSession(ctx context.Context, db *gorm.DB, id, email string) (*domain.Session, error) {
	if id = strings.TrimSpace(id); id != "" {
		sess, err := repo.GetSession(ctx, db, id)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if email = domain.NormalizeEmail(email); email != "" {
		sess, err := repo.LatestSessionByEmail(ctx, db, email)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, ErrSessionNotResolved
}
