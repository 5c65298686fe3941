// Package billing adapts the payment providers to the funnel. Each gateway
// verifies signed webhook deliveries against the raw request body, maps
// vendor event types onto the closed domain.BillingEvent variants, and opens
// hosted checkouts that carry the funnel session id as metadata.
//
// Vendor wire formats stop at this package: the reconciler only ever sees
// domain.Envelope values.
package billing

import (
	"errors"

	"github.com/tbourn/mealplan-funnel/internal/domain"
)

var (
	// ErrInvalidSignature is returned when the signature header is missing
	// or does not match the payload.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMalformedEvent is returned for a correctly signed body that cannot
	// be decoded.
	ErrMalformedEvent = errors.New("malformed webhook event")
	// ErrNotConfigured is returned when a plan has no product mapping for
	// the requested provider.
	ErrNotConfigured = errors.New("billing provider not configured")
)

// Metadata keys written on every checkout and read back from webhooks.
const (
	MetaSessionID = "session_id"
	MetaPlan      = "plan"
	MetaMode      = "mode"
)

// CheckoutRequest describes a hosted checkout for one funnel session.
type CheckoutRequest struct {
	SessionID      string
	Email          string
	Plan           domain.Plan
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// Checkout is the provider-hosted page the client is redirected to.
type Checkout struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
