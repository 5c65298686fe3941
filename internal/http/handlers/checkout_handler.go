// Checkout HTTP handlers.
//
//   - POST /sessions/{id}/checkout     (open a hosted checkout; Idempotency-Key aware)
//   - POST /checkout/stripe/confirm    (apply a finished Stripe checkout after redirect)
//
// Idempotency:
// A retried request with the same Idempotency-Key for the same session gets
// the checkout created the first time, with `Idempotency-Replayed: true`.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/mealplan-funnel/internal/http/middleware"
	"github.com/tbourn/mealplan-funnel/internal/services"
)

// CreateCheckoutRequest selects the plan and, optionally, the provider.
type CreateCheckoutRequest struct {
	PlanID   string `json:"plan_id" binding:"required" example:"monthly"`
	Provider string `json:"provider" example:"stripe" enums:"stripe,lemonsqueezy"`
}

// CheckoutResponse points the client at the hosted checkout page.
type CheckoutResponse struct {
	ID  string `json:"id" example:"cs_test_a1b2c3"`
	URL string `json:"url" example:"https://checkout.stripe.com/c/pay/cs_test_a1b2c3"`
}

// ConfirmCheckoutRequest carries the id Stripe substituted into the success URL.
type ConfirmCheckoutRequest struct {
	CheckoutID string `json:"checkout_id" binding:"required" example:"cs_test_a1b2c3"`
}

// CreateCheckout godoc
// @ID          createCheckout
// @Summary     Open a hosted checkout
// @Description Creates a provider checkout for the session's selected plan. The session must carry an email.
// @Tags        Checkout
// @Accept      json
// @Produce     json
// @Param       id               path    string  true   "Session ID (UUID)"  format(uuid)
// @Param       Idempotency-Key  header  string  false  "Retry-safe key"     example(6f1c2d3e-retry-1)
// @Param       body             body    handlers.CreateCheckoutRequest  true  "Plan"
// @Success     201  {object}  handlers.CheckoutResponse
// @Success     200  {object}  handlers.CheckoutResponse  "Replayed"
// @Header      200  {string}  Idempotency-Replayed  "true when replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request or unknown plan"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Email required"
// @Failure     502  {object}  handlers.ErrorResponse  "Provider error"
// @Failure     503  {object}  handlers.ErrorResponse  "Provider unavailable"
// @Router      /sessions/{id}/checkout [post]
func (h *Handlers) CreateCheckout(c *gin.Context) {
	if h.checkout == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeProviderDisabled, "checkout unavailable")
		return
	}
	id, valid := sessionParam(c)
	if !valid {
		return
	}
	var req CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.PlanID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "plan_id required")
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	co, err := h.checkout.Create(c.Request.Context(), services.CheckoutInput{
		SessionID:      id,
		PlanID:         strings.TrimSpace(req.PlanID),
		Provider:       req.Provider,
		IdempotencyKey: key,
	})
	if err != nil {
		failServiceOr(c, err, http.StatusBadGateway, ErrCodeCheckoutFailed, "could not open checkout, please try again")
		return
	}

	if middleware.IsReplay(c) {
		c.Header("Idempotency-Replayed", "true")
		ok(c, http.StatusOK, CheckoutResponse{ID: co.ID, URL: co.URL})
		return
	}
	ok(c, http.StatusCreated, CheckoutResponse{ID: co.ID, URL: co.URL})
}

// ConfirmStripeCheckout godoc
// @ID          confirmStripeCheckout
// @Summary     Confirm a Stripe checkout
// @Description Retrieves the checkout from Stripe and applies it like the completion webhook. Safe to call more than once.
// @Tags        Checkout
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.ConfirmCheckoutRequest  true  "Checkout"
// @Success     200  {object}  services.Result
// @Failure     400  {object}  handlers.ErrorResponse  "Checkout cannot be matched to a session"
// @Failure     502  {object}  handlers.ErrorResponse  "Provider error"
// @Failure     503  {object}  handlers.ErrorResponse  "Stripe disabled"
// @Router      /checkout/stripe/confirm [post]
func (h *Handlers) ConfirmStripeCheckout(c *gin.Context) {
	if h.checkout == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeProviderDisabled, "checkout unavailable")
		return
	}
	var req ConfirmCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.CheckoutID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "checkout_id required")
		return
	}
	res, err := h.checkout.ConfirmStripe(c.Request.Context(), strings.TrimSpace(req.CheckoutID))
	switch {
	case err == nil:
		ok(c, http.StatusOK, res)
	case errors.Is(err, services.ErrSessionNotResolved), errors.Is(err, services.ErrSubscriptionNotFound):
		fail(c, http.StatusBadRequest, ErrCodeUnresolvedSession, "checkout does not belong to a known session")
	case errors.Is(err, services.ErrAmountMismatch):
		fail(c, http.StatusBadRequest, ErrCodeAmountMismatch, err.Error())
	default:
		failServiceOr(c, err, http.StatusBadGateway, ErrCodeCheckoutFailed, "could not confirm checkout")
	}
}
