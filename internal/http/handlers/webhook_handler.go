// Billing webhook ingress.
//
//   - POST /webhooks/{provider}   (stripe | lemonsqueezy)
//
// The raw body is read untouched and handed to the provider gateway, which
// verifies the signature before anything is decoded. Verified envelopes go
// to the reconciler. Status codes follow the providers' retry contract:
// 2xx for applied, duplicate and ignored events; 4xx for deliveries that can
// never succeed (bad signature, unknown session); 5xx when a retry may help.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/mealplan-funnel/internal/billing"
	"github.com/tbourn/mealplan-funnel/internal/domain"
	"github.com/tbourn/mealplan-funnel/internal/http/middleware"
	"github.com/tbourn/mealplan-funnel/internal/observability"
	"github.com/tbourn/mealplan-funnel/internal/services"
)

// MaxWebhookBody caps the webhook payload size.
const MaxWebhookBody = 64 << 10

// WebhookGateway verifies and decodes one provider's deliveries.
type WebhookGateway interface {
	Name() string
	SignatureHeader() string
	ParseWebhook(payload []byte, signature string) (domain.Envelope, error)
}

// Reconciler applies verified envelopes.
type Reconciler interface {
	Apply(ctx context.Context, env domain.Envelope) (services.Result, error)
}

// WebhookAck is the body of every 2xx webhook response.
type WebhookAck struct {
	Received bool             `json:"received"`
	Outcome  services.Outcome `json:"outcome"`
}

// WebhookHandler routes deliveries to the gateway named in the path.
type WebhookHandler struct {
	rec      Reconciler
	gateways map[string]WebhookGateway
}

// NewWebhookHandler registers gws by Name(). Nil gateways are skipped.
func NewWebhookHandler(rec Reconciler, gws ...WebhookGateway) *WebhookHandler {
	m := make(map[string]WebhookGateway, len(gws))
	for _, g := range gws {
		if g != nil {
			m[g.Name()] = g
		}
	}
	return &WebhookHandler{rec: rec, gateways: m}
}

// Handle godoc
// @ID          receiveWebhook
// @Summary     Billing provider webhook
// @Description Signed event delivery from Stripe (Stripe-Signature) or Lemon Squeezy (X-Signature). Served outside the API base path.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
// @Param       provider  path  string  true  "Provider"  Enums(stripe, lemonsqueezy)
// @Success     200  {object}  handlers.WebhookAck
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid signature, malformed event or unresolvable session"
// @Failure     404  {object}  handlers.ErrorResponse  "Provider not enabled"
// @Failure     413  {object}  handlers.ErrorResponse  "Payload too large"
// @Failure     500  {object}  handlers.ErrorResponse  "Storage failure, retry"
// @Router      /webhooks/{provider} [post]
func (w *WebhookHandler) Handle(c *gin.Context) {
	provider := c.Param("provider")
	gw, found := w.gateways[provider]
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "unknown webhook provider")
		return
	}
	lg := middleware.LoggerFrom(c).With().Str("provider", provider).Logger()

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxWebhookBody+1))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "could not read body")
		return
	}
	if len(payload) > MaxWebhookBody {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "payload too large")
		return
	}

	env, err := gw.ParseWebhook(payload, c.GetHeader(gw.SignatureHeader()))
	if err != nil {
		observability.WebhookEvents.WithLabelValues(provider, "unknown", "rejected").Inc()
		lg.Warn().Err(err).Msg("webhook rejected")
		if errors.Is(err, billing.ErrInvalidSignature) {
			fail(c, http.StatusBadRequest, ErrCodeInvalidSignature, "invalid signature")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeMalformedEvent, "malformed event")
		return
	}

	kind := "unrecognized"
	if env.Event != nil {
		kind = env.Event.Kind()
	}
	lg = lg.With().Str("event_id", env.ID).Str("vendor_type", env.VendorType).Str("kind", kind).Logger()

	res, err := w.rec.Apply(c.Request.Context(), env)
	switch {
	case err == nil:
		observability.WebhookEvents.WithLabelValues(provider, kind, string(res.Outcome)).Inc()
		lg.Info().Str("outcome", string(res.Outcome)).Str("session_id", res.SessionID).Msg("webhook processed")
		ok(c, http.StatusOK, WebhookAck{Received: true, Outcome: res.Outcome})
	case errors.Is(err, services.ErrSessionNotResolved), errors.Is(err, services.ErrSubscriptionNotFound):
		observability.WebhookEvents.WithLabelValues(provider, kind, "rejected").Inc()
		lg.Warn().Err(err).Msg("webhook references no known session")
		fail(c, http.StatusBadRequest, ErrCodeUnresolvedSession, err.Error())
	case errors.Is(err, services.ErrAmountMismatch):
		observability.WebhookEvents.WithLabelValues(provider, kind, "rejected").Inc()
		lg.Warn().Err(err).Msg("webhook payment does not match catalog")
		fail(c, http.StatusBadRequest, ErrCodeAmountMismatch, err.Error())
	default:
		observability.WebhookEvents.WithLabelValues(provider, kind, "error").Inc()
		lg.Error().Err(err).Msg("webhook processing failed")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "processing failed, retry later")
	}
}
