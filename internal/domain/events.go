package domain

// Provider names used on envelopes, receipts and metrics.
const (
	ProviderStripe       = "stripe"
	ProviderLemonSqueezy = "lemonsqueezy"
)

// BillingEvent is the closed set of billing facts the reconciler understands.
// Provider adapters translate vendor payloads into one of the variants below;
// nothing outside this package can add a variant.
type BillingEvent interface {
	// Kind is a stable label for logs and metrics.
	Kind() string
	billingEvent()
}

// SubscriptionActivated grants a recurring entitlement. The target session is
// resolved by SessionID first and by Email (most recent session) otherwise.
type SubscriptionActivated struct {
	SessionID      string
	Email          string
	SubscriptionID string
	Plan           string
}

// SubscriptionRenewed reports a paid recurring invoice for SubscriptionID.
// FirstInvoice is true for the invoice that opened the subscription.
type SubscriptionRenewed struct {
	SubscriptionID string
	Email          string
	FirstInvoice   bool
}

// SubscriptionCancelled ends the entitlement of SubscriptionID.
type SubscriptionCancelled struct {
	SubscriptionID string
}

// PaymentCompleted reports a settled one-time payment for SessionID.
// AmountMinor is the list amount before tax and discounts, the figure a
// catalog price is compared with; TotalMinor is what the buyer was charged.
type PaymentCompleted struct {
	SessionID     string
	Email         string
	TransactionID string
	Plan          string
	AmountMinor   int64
	TotalMinor    int64
	Currency      string
}

// Unrecognized marks a verified event whose type this service does not act on.
type Unrecognized struct{}

func (SubscriptionActivated) Kind() string { return "subscription_activated" }
func (SubscriptionRenewed) Kind() string   { return "subscription_renewed" }
func (SubscriptionCancelled) Kind() string { return "subscription_cancelled" }
func (PaymentCompleted) Kind() string      { return "payment_completed" }
func (Unrecognized) Kind() string          { return "unrecognized" }

func (SubscriptionActivated) billingEvent() {}
func (SubscriptionRenewed) billingEvent()   {}
func (SubscriptionCancelled) billingEvent() {}
func (PaymentCompleted) billingEvent()      {}
func (Unrecognized) billingEvent()          {}

// Envelope carries a verified event together with its delivery identity.
// ID is the provider's event id (or a digest of the payload when the provider
// has none) and is the replay-suppression key together with Provider.
type Envelope struct {
	Provider   string
	ID         string
	VendorType string
	Event      BillingEvent
}
