package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/mealplan-funnel/internal/billing"
	"github.com/tbourn/mealplan-funnel/internal/http/middleware"
	"github.com/tbourn/mealplan-funnel/internal/services"
)

func TestCreateCheckout(t *testing.T) {
	var got services.CheckoutInput
	h := New(Deps{Checkout: stubCheckout{
		create: func(_ context.Context, in services.CheckoutInput) (billing.Checkout, error) {
			got = in
			switch in.PlanID {
			case "gold":
				return billing.Checkout{}, services.ErrUnknownPlan
			case "broken":
				return billing.Checkout{}, errBoom
			}
			return billing.Checkout{ID: "cs_1", URL: "https://pay.example/cs_1"}, nil
		},
	}})
	r := newTestRouter(h)

	w := doJSON(r, http.MethodPost, "/sessions/"+sid+"/checkout",
		map[string]string{"plan_id": " monthly ", "provider": "lemonsqueezy"},
		middleware.HeaderIdempotencyKey, "retry-1")
	var resp CheckoutResponse
	if w.Code != http.StatusCreated || json.Unmarshal(w.Body.Bytes(), &resp) != nil || resp.URL != "https://pay.example/cs_1" {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	if got.SessionID != sid || got.PlanID != "monthly" || got.Provider != "lemonsqueezy" || got.IdempotencyKey != "retry-1" {
		t.Fatalf("input = %+v", got)
	}
	if w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("first request is not a replay")
	}

	expectErr(t, doJSON(r, http.MethodPost, "/sessions/"+sid+"/checkout", map[string]string{}), http.StatusBadRequest, ErrCodeBadRequest)
	expectErr(t, doJSON(r, http.MethodPost, "/sessions/"+sid+"/checkout", map[string]string{"plan_id": "gold"}), http.StatusBadRequest, ErrCodeUnknownPlan)
	expectErr(t, doJSON(r, http.MethodPost, "/sessions/"+sid+"/checkout", map[string]string{"plan_id": "broken"}), http.StatusBadGateway, ErrCodeCheckoutFailed)
}

func TestCreateCheckout_ReplayHeader(t *testing.T) {
	h := New(Deps{Checkout: stubCheckout{
		create: func(context.Context, services.CheckoutInput) (billing.Checkout, error) {
			return billing.Checkout{ID: "cs_1", URL: "https://pay.example/cs_1"}, nil
		},
	}})
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, func(_ context.Context, sessionID, key string, _ time.Time) (bool, error) {
		return sessionID == sid && key == "retry-1", nil
	}))
	r.POST("/sessions/:id/checkout", h.CreateCheckout)

	w := doJSON(r, http.MethodPost, "/sessions/"+sid+"/checkout", map[string]string{"plan_id": "monthly"},
		middleware.HeaderIdempotencyKey, "retry-1")
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay: %d headers=%v", w.Code, w.Header())
	}
}

func TestCreateCheckout_Disabled(t *testing.T) {
	r := newTestRouter(New(Deps{}))
	expectErr(t, doJSON(r, http.MethodPost, "/sessions/"+sid+"/checkout", map[string]string{"plan_id": "monthly"}),
		http.StatusServiceUnavailable, ErrCodeProviderDisabled)
	expectErr(t, doJSON(r, http.MethodPost, "/checkout/stripe/confirm", map[string]string{"checkout_id": "cs_1"}),
		http.StatusServiceUnavailable, ErrCodeProviderDisabled)
}

func TestConfirmStripeCheckout(t *testing.T) {
	r := newTestRouter(New(Deps{Checkout: stubCheckout{
		confirm: func(_ context.Context, id string) (services.Result, error) {
			switch id {
			case "cs_orphan":
				return services.Result{}, services.ErrSessionNotResolved
			case "cs_cheap":
				return services.Result{}, services.ErrAmountMismatch
			case "cs_down":
				return services.Result{}, services.ErrProviderUnavailable
			case "cs_err":
				return services.Result{}, errBoom
			}
			return services.Result{Outcome: services.OutcomeApplied, SessionID: sid}, nil
		},
	}}))

	w := doJSON(r, http.MethodPost, "/checkout/stripe/confirm", map[string]string{"checkout_id": "cs_ok"})
	var res services.Result
	if w.Code != http.StatusOK || json.Unmarshal(w.Body.Bytes(), &res) != nil || res.Outcome != services.OutcomeApplied {
		t.Fatalf("confirm: %d %s", w.Code, w.Body.String())
	}
	for id, want := range map[string]struct {
		status int
		code   string
	}{
		"cs_orphan": {http.StatusBadRequest, ErrCodeUnresolvedSession},
		"cs_cheap":  {http.StatusBadRequest, ErrCodeAmountMismatch},
		"cs_down":   {http.StatusServiceUnavailable, ErrCodeProviderDisabled},
		"cs_err":    {http.StatusBadGateway, ErrCodeCheckoutFailed},
	} {
		expectErr(t, doJSON(r, http.MethodPost, "/checkout/stripe/confirm", map[string]string{"checkout_id": id}), want.status, want.code)
	}
	expectErr(t, doJSON(r, http.MethodPost, "/checkout/stripe/confirm", map[string]string{}), http.StatusBadRequest, ErrCodeBadRequest)
}
