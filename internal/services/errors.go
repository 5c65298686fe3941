// Package services defines the business logic of the funnel: sessions and
// quiz answers, billing event reconciliation, the entitlement gate, meal plan
// generation, checkout and the admin dashboard.
// This file centralizes the service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"
)

// Session errors.
var (
	// ErrSessionNotFound indicates that no session matches the given id or email.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidEmail is returned when an email address is empty or malformed.
	ErrInvalidEmail = errors.New("invalid email")

	// ErrEmptyAnswers is returned when a quiz update carries no answers.
	ErrEmptyAnswers = errors.New("no answers given")

	// ErrTooManyAnswers is returned when an update exceeds the question cap.
	ErrTooManyAnswers = errors.New("too many answers")

	// ErrTooManyOptions is returned when one question exceeds the option cap.
	ErrTooManyOptions = errors.New("too many options selected")

	// ErrEmailRequired is returned when a step needs a captured email first.
	ErrEmailRequired = errors.New("email required")

	// ErrIdentityRequired is returned when neither an email nor a session id
	// was given to the entitlement gate.
	ErrIdentityRequired = errors.New("email or session id required")
)

// Reconciliation errors.
var (
	// ErrSessionNotResolved is returned when a billing event names neither a
	// known session id nor an email with a session.
	ErrSessionNotResolved = errors.New("session not resolved")

	// ErrSubscriptionNotFound is returned when no session bears the event's
	// subscription id.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrAmountMismatch is returned when a one-time payment does not match
	// any one-time price in the catalog.
	ErrAmountMismatch = errors.New("payment amount does not match plan price")
)

// Generation errors.
var (
	// ErrNotEntitled is returned when the session has not paid or its
	// subscription has expired.
	ErrNotEntitled = errors.New("not entitled")

	// ErrAlreadyGenerated is returned when a one-time buyer already received
	// their plan.
	ErrAlreadyGenerated = errors.New("meal plan already generated")

	// ErrGenerationLimit is returned when a subscriber already generated a
	// plan in the current billing period. Use errors.As with *LimitError to
	// read the remaining days.
	ErrGenerationLimit = errors.New("generation limit reached")

	// ErrGenerationFailed is returned when the model output is not a usable
	// meal plan. Nothing is stored.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrEmailFailed is returned when the plan was stored but could not be
	// emailed.
	ErrEmailFailed = errors.New("email delivery failed")
)

// Checkout errors.
var (
	// ErrUnknownPlan is returned for a plan id missing from the catalog.
	ErrUnknownPlan = errors.New("unknown plan")

	// ErrProviderUnavailable is returned when the requested payment provider
	// is not configured.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)

// LimitError carries the days left until the next generation is allowed.
type LimitError struct {
	DaysLeft int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: next plan in %d day(s)", ErrGenerationLimit, e.DaysLeft)
}

// Is makes errors.Is(err, ErrGenerationLimit) hold.
func (e *LimitError) Is(target error) bool { return target == ErrGenerationLimit }
