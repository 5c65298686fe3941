package billing

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	lemonsqueezy "github.com/NdoleStudio/lemonsqueezy-go"

	"github.com/tbourn/mealplan-funnel/internal/domain"
)

// LemonSqueezySignatureHeader carries the hex HMAC-SHA256 of the raw body.
const LemonSqueezySignatureHeader = "X-Signature"

const jsonAPI = "application/vnd.api+json"

// LemonSqueezyConfig configures the Lemon Squeezy gateway.
type LemonSqueezyConfig struct {
	APIKey        string
	StoreID       string
	WebhookSecret string
	BaseURL       string
	HTTPClient    *http.Client
}

// LemonSqueezyGateway verifies Lemon Squeezy webhooks with the lemonsqueezy-go
// client and opens checkouts through the JSON:API REST endpoints.
type LemonSqueezyGateway struct {
	cfg    LemonSqueezyConfig
	client *lemonsqueezy.Client
}

// NewLemonSqueezyGateway builds a gateway, defaulting the base URL and HTTP
// client.
func NewLemonSqueezyGateway(cfg LemonSqueezyConfig) *LemonSqueezyGateway {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.lemonsqueezy.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &LemonSqueezyGateway{
		cfg:    cfg,
		client: lemonsqueezy.New(lemonsqueezy.WithSigningSecret(cfg.WebhookSecret)),
	}
}

// Name implements the provider label used on receipts and metrics.
func (g *LemonSqueezyGateway) Name() string { return domain.ProviderLemonSqueezy }

// SignatureHeader is the request header holding the signature.
func (g *LemonSqueezyGateway) SignatureHeader() string { return LemonSqueezySignatureHeader }

type lsWebhook struct {
	Meta struct {
		EventName  string            `json:"event_name"`
		CustomData map[string]string `json:"custom_data"`
	} `json:"meta"`
	Data struct {
		Type       string `json:"type"`
		ID         string `json:"id"`
		Attributes struct {
			Status         string `json:"status"`
			UserEmail      string `json:"user_email"`
			Subtotal       int64  `json:"subtotal"`
			Total          int64  `json:"total"`
			Currency       string `json:"currency"`
			SubscriptionID flexID `json:"subscription_id"`
			BillingReason  string `json:"billing_reason"`
		} `json:"attributes"`
	} `json:"data"`
}

// flexID accepts ids encoded either as JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		*f = flexID(unq)
		return nil
	}
	if _, err := strconv.ParseInt(s, 10, 64); err != nil {
		return fmt.Errorf("invalid id %s", s)
	}
	*f = flexID(s)
	return nil
}

// ParseWebhook verifies the X-Signature HMAC over the exact payload bytes and
// maps the event:
//   - order_created (one-time checkout, status paid) → PaymentCompleted
//   - subscription_created → SubscriptionActivated
//   - subscription_payment_success → SubscriptionRenewed (billing_reason
//     "initial" marks the first invoice)
//   - subscription_expired → SubscriptionCancelled
//   - anything else → Unrecognized
//
// subscription_cancelled is deliberately Unrecognized: the subscription
// stays paid until it expires.
//
// Lemon Squeezy has no event id, so the envelope id is the SHA-256 of the
// body; redeliveries carry the same bytes.
func (g *LemonSqueezyGateway) ParseWebhook(payload []byte, signature string) (domain.Envelope, error) {
	if !g.validSignature(payload, signature) {
		return domain.Envelope{}, ErrInvalidSignature
	}
	var w lsWebhook
	if err := json.Unmarshal(payload, &w); err != nil {
		return domain.Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if w.Meta.EventName == "" {
		return domain.Envelope{}, fmt.Errorf("%w: event_name missing", ErrMalformedEvent)
	}

	sum := sha256.Sum256(payload)
	env := domain.Envelope{
		Provider:   domain.ProviderLemonSqueezy,
		ID:         hex.EncodeToString(sum[:]),
		VendorType: w.Meta.EventName,
		Event:      domain.Unrecognized{},
	}
	custom := w.Meta.CustomData
	attrs := w.Data.Attributes
	email := domain.NormalizeEmail(attrs.UserEmail)

	switch w.Meta.EventName {
	case "order_created":
		if custom[MetaMode] == string(domain.PlanModeSubscription) || attrs.Status != "paid" {
			return env, nil
		}
		env.Event = domain.PaymentCompleted{
			SessionID:     custom[MetaSessionID],
			Email:         email,
			TransactionID: w.Data.ID,
			Plan:          custom[MetaPlan],
			AmountMinor:   attrs.Subtotal,
			TotalMinor:    attrs.Total,
			Currency:      strings.ToLower(attrs.Currency),
		}
	case "subscription_created":
		if w.Data.ID == "" {
			return domain.Envelope{}, fmt.Errorf("%w: subscription id missing", ErrMalformedEvent)
		}
		env.Event = domain.SubscriptionActivated{
			SessionID:      custom[MetaSessionID],
			Email:          email,
			SubscriptionID: w.Data.ID,
			Plan:           custom[MetaPlan],
		}
	case "subscription_payment_success":
		if attrs.SubscriptionID == "" {
			return domain.Envelope{}, fmt.Errorf("%w: subscription_id missing", ErrMalformedEvent)
		}
		env.Event = domain.SubscriptionRenewed{
			SubscriptionID: string(attrs.SubscriptionID),
			Email:          email,
			FirstInvoice:   attrs.BillingReason == "initial",
		}
	case "subscription_expired":
		if w.Data.ID == "" {
			return domain.Envelope{}, fmt.Errorf("%w: subscription id missing", ErrMalformedEvent)
		}
		env.Event = domain.SubscriptionCancelled{SubscriptionID: w.Data.ID}
	}
	return env, nil
}

// validSignature fails closed on an empty secret: the client would otherwise
// accept bodies signed with the empty key.
func (g *LemonSqueezyGateway) validSignature(payload []byte, signature string) bool {
	signature = strings.ToLower(strings.TrimSpace(signature))
	if signature == "" || g.cfg.WebhookSecret == "" {
		return false
	}
	return g.client.Webhooks.Verify(context.Background(), signature, payload)
}

// CreateCheckout opens a hosted checkout for the plan's variant. The session
// id, plan and mode travel as checkout custom data and come back on every
// webhook as meta.custom_data.
func (g *LemonSqueezyGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	if req.Plan.LemonSqueezyVariantID == "" || g.cfg.StoreID == "" {
		return Checkout{}, ErrNotConfigured
	}

	body := map[string]any{
		"data": map[string]any{
			"type": "checkouts",
			"attributes": map[string]any{
				"checkout_data": map[string]any{
					"email": req.Email,
					"custom": map[string]string{
						MetaSessionID: req.SessionID,
						MetaPlan:      req.Plan.ID,
						MetaMode:      string(req.Plan.Mode),
					},
				},
				"product_options": map[string]any{
					"redirect_url": req.SuccessURL,
				},
			},
			"relationships": map[string]any{
				"store": map[string]any{
					"data": map[string]string{"type": "stores", "id": g.cfg.StoreID},
				},
				"variant": map[string]any{
					"data": map[string]string{"type": "variants", "id": req.Plan.LemonSqueezyVariantID},
				},
			},
		},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return Checkout{}, fmt.Errorf("marshal checkout request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/checkouts", bytes.NewReader(raw))
	if err != nil {
		return Checkout{}, fmt.Errorf("build checkout request: %w", err)
	}
	httpReq.Header.Set("Accept", jsonAPI)
	httpReq.Header.Set("Content-Type", jsonAPI)
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	res, err := g.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return Checkout{}, fmt.Errorf("lemonsqueezy checkout: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return Checkout{}, fmt.Errorf("lemonsqueezy checkout status %d: %s", res.StatusCode, strings.TrimSpace(string(b)))
	}

	var out struct {
		Data struct {
			ID         string `json:"id"`
			Attributes struct {
				URL string `json:"url"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return Checkout{}, fmt.Errorf("decode checkout response: %w", err)
	}
	if out.Data.Attributes.URL == "" {
		return Checkout{}, fmt.Errorf("lemonsqueezy checkout: empty url")
	}
	return Checkout{ID: out.Data.ID, URL: out.Data.Attributes.URL}, nil
}
