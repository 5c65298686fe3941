package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/tbourn/mealplan-funnel/internal/domain"
)

// StripeSignatureHeader carries the Stripe webhook signature.
const StripeSignatureHeader = "Stripe-Signature"

// StripeGateway talks to Stripe through an explicitly constructed client
// rather than the package-level stripe.Key.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

// NewStripeGateway builds a gateway. backends may be nil to use Stripe's
// defaults; tests pass a backend pointed at an httptest server.
func NewStripeGateway(secretKey, webhookSecret string, backends *stripe.Backends) *StripeGateway {
	return &StripeGateway{
		api:           client.New(secretKey, backends),
		webhookSecret: webhookSecret,
	}
}

// Name implements the provider label used on receipts and metrics.
func (g *StripeGateway) Name() string { return domain.ProviderStripe }

// SignatureHeader is the request header holding the signature.
func (g *StripeGateway) SignatureHeader() string { return StripeSignatureHeader }

// ParseWebhook verifies payload against the Stripe-Signature header and maps
// the event onto a billing variant.
//
// Mapping:
//   - checkout.session.completed: paid payment-mode session → PaymentCompleted,
//     subscription-mode session → SubscriptionActivated
//   - invoice.paid → SubscriptionRenewed (first invoice when billing_reason is
//     subscription_create)
//   - customer.subscription.deleted → SubscriptionCancelled
//   - anything else → Unrecognized
//
// Checkout completions use "checkout:<cs id>" as the envelope id so a
// webhook and a redirect confirmation of the same checkout collapse into one.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (domain.Envelope, error) {
	if strings.TrimSpace(signature) == "" {
		return domain.Envelope{}, ErrInvalidSignature
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) ||
			errors.Is(err, webhook.ErrInvalidHeader) ||
			errors.Is(err, webhook.ErrNoValidSignature) ||
			errors.Is(err, webhook.ErrTooOld) {
			return domain.Envelope{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return domain.Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	env := domain.Envelope{
		Provider:   domain.ProviderStripe,
		ID:         event.ID,
		VendorType: string(event.Type),
		Event:      domain.Unrecognized{},
	}
	if event.Data == nil {
		return env, nil
	}

	switch event.Type {
	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return domain.Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		env.ID = checkoutEnvelopeID(cs.ID)
		env.Event = mapCheckoutSession(&cs)
	case "invoice.paid":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return domain.Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		if inv.Subscription == nil || inv.Subscription.ID == "" {
			// One-off invoice; nothing to reconcile.
			return env, nil
		}
		env.Event = domain.SubscriptionRenewed{
			SubscriptionID: inv.Subscription.ID,
			Email:          domain.NormalizeEmail(inv.CustomerEmail),
			FirstInvoice:   inv.BillingReason == stripe.InvoiceBillingReasonSubscriptionCreate,
		}
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return domain.Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		if sub.ID == "" {
			return domain.Envelope{}, fmt.Errorf("%w: subscription id missing", ErrMalformedEvent)
		}
		env.Event = domain.SubscriptionCancelled{SubscriptionID: sub.ID}
	}
	return env, nil
}

// CreateCheckout opens a hosted Checkout Session. The funnel session id is
// stored as client_reference_id and metadata (and on the subscription or
// payment intent) so every later event can be correlated.
func (g *StripeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	meta := map[string]string{
		MetaSessionID: req.SessionID,
		MetaPlan:      req.Plan.ID,
		MetaMode:      string(req.Plan.Mode),
	}

	params := &stripe.CheckoutSessionParams{
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.SessionID),
		LineItems:         []*stripe.CheckoutSessionLineItemParams{stripeLineItem(req.Plan)},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	for k, v := range meta {
		params.AddMetadata(k, v)
	}
	if req.Plan.Mode == domain.PlanModeSubscription {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: meta}
	} else {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: meta}
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey("checkout:" + req.SessionID + ":" + req.IdempotencyKey)
	}

	cs, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return Checkout{}, fmt.Errorf("stripe checkout: %w", err)
	}
	return Checkout{ID: cs.ID, URL: cs.URL}, nil
}

// ConfirmCheckout retrieves a Checkout Session after the customer is
// redirected back, and maps it exactly like the completion webhook.
func (g *StripeGateway) ConfirmCheckout(ctx context.Context, checkoutID string) (domain.Envelope, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := g.api.CheckoutSessions.Get(checkoutID, params)
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("stripe checkout get: %w", err)
	}
	return domain.Envelope{
		Provider:   domain.ProviderStripe,
		ID:         checkoutEnvelopeID(cs.ID),
		VendorType: "checkout.session.confirmed",
		Event:      mapCheckoutSession(cs),
	}, nil
}

func checkoutEnvelopeID(csID string) string { return "checkout:" + csID }

func stripeLineItem(p domain.Plan) *stripe.CheckoutSessionLineItemParams {
	if p.StripePriceID != "" {
		return &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(p.StripePriceID),
			Quantity: stripe.Int64(1),
		}
	}
	pd := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(p.Currency),
		UnitAmount: stripe.Int64(p.AmountMinor),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(p.Name),
		},
	}
	if p.Mode == domain.PlanModeSubscription {
		pd.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval:      stripe.String("day"),
			IntervalCount: stripe.Int64(int64(p.Period().Hours() / 24)),
		}
	}
	return &stripe.CheckoutSessionLineItemParams{PriceData: pd, Quantity: stripe.Int64(1)}
}

func mapCheckoutSession(cs *stripe.CheckoutSession) domain.BillingEvent {
	sessionID := cs.Metadata[MetaSessionID]
	if sessionID == "" {
		sessionID = cs.ClientReferenceID
	}
	email := cs.CustomerEmail
	if cs.CustomerDetails != nil && cs.CustomerDetails.Email != "" {
		email = cs.CustomerDetails.Email
	}
	email = domain.NormalizeEmail(email)
	plan := cs.Metadata[MetaPlan]

	switch cs.Mode {
	case stripe.CheckoutSessionModePayment:
		if cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			return domain.Unrecognized{}
		}
		txID := cs.ID
		if cs.PaymentIntent != nil && cs.PaymentIntent.ID != "" {
			txID = cs.PaymentIntent.ID
		}
		return domain.PaymentCompleted{
			SessionID:     sessionID,
			Email:         email,
			TransactionID: txID,
			Plan:          plan,
			AmountMinor:   cs.AmountSubtotal,
			TotalMinor:    cs.AmountTotal,
			Currency:      strings.ToLower(string(cs.Currency)),
		}
	case stripe.CheckoutSessionModeSubscription:
		if cs.Subscription == nil || cs.Subscription.ID == "" ||
			cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			return domain.Unrecognized{}
		}
		return domain.SubscriptionActivated{
			SessionID:      sessionID,
			Email:          email,
			SubscriptionID: cs.Subscription.ID,
			Plan:           plan,
		}
	}
	return domain.Unrecognized{}
}
