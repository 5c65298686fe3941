package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/mealplan-funnel/internal/billing"
	"github.com/tbourn/mealplan-funnel/internal/domain"
	"github.com/tbourn/mealplan-funnel/internal/http/middleware"
	"github.com/tbourn/mealplan-funnel/internal/services"
)

const sid = "141add05-4415-4938-b5a1-17e0d3171aff"

var errBoom = errors.New("boom")

// ---------- stubs ----------

type stubSessions struct {
	start   func(context.Context) (*domain.Session, error)
	get     func(context.Context, string) (*domain.Session, error)
	answers func(context.Context, string, domain.QuizAnswers) (*domain.Session, error)
	email   func(context.Context, string, string) (*domain.Session, error)
}

func (s stubSessions) Start(ctx context.Context) (*domain.Session, error) {
	if s.start != nil {
		return s.start(ctx)
	}
	return &domain.Session{ID: sid}, nil
}

func (s stubSessions) Get(ctx context.Context, id string) (*domain.Session, error) {
	if s.get != nil {
		return s.get(ctx, id)
	}
	return &domain.Session{ID: id}, nil
}

func (s stubSessions) SaveAnswers(ctx context.Context, id string, a domain.QuizAnswers) (*domain.Session, error) {
	if s.answers != nil {
		return s.answers(ctx, id, a)
	}
	return &domain.Session{ID: id}, nil
}

func (s stubSessions) CaptureEmail(ctx context.Context, id, email string) (*domain.Session, error) {
	if s.email != nil {
		return s.email(ctx, id, email)
	}
	return &domain.Session{ID: id, Email: &email}, nil
}

type stubEntitlements struct {
	byEmail   func(context.Context, string) (services.Access, error)
	bySession func(context.Context, string) (services.Access, error)
}

func (s stubEntitlements) CheckByEmail(ctx context.Context, email string) (services.Access, error) {
	if s.byEmail != nil {
		return s.byEmail(ctx, email)
	}
	return services.Access{}, nil
}

func (s stubEntitlements) CheckBySession(ctx context.Context, id string) (services.Access, error) {
	if s.bySession != nil {
		return s.bySession(ctx, id)
	}
	return services.Access{}, nil
}

type stubGeneration struct {
	preview  func(context.Context, string) (string, error)
	generate func(context.Context, string) (*domain.MealPlan, error)
	stream   func(context.Context, string, func(string) error) (*domain.MealPlan, error)
}

func (s stubGeneration) Preview(ctx context.Context, id string) (string, error) {
	if s.preview != nil {
		return s.preview(ctx, id)
	}
	return "", nil
}

func (s stubGeneration) Generate(ctx context.Context, id string) (*domain.MealPlan, error) {
	if s.generate != nil {
		return s.generate(ctx, id)
	}
	return nil, errBoom
}

func (s stubGeneration) Stream(ctx context.Context, id string, onDelta func(string) error) (*domain.MealPlan, error) {
	if s.stream != nil {
		return s.stream(ctx, id, onDelta)
	}
	return nil, errBoom
}

type stubCheckout struct {
	create  func(context.Context, services.CheckoutInput) (billing.Checkout, error)
	confirm func(context.Context, string) (services.Result, error)
}

func (s stubCheckout) Create(ctx context.Context, in services.CheckoutInput) (billing.Checkout, error) {
	return s.create(ctx, in)
}

func (s stubCheckout) ConfirmStripe(ctx context.Context, id string) (services.Result, error) {
	return s.confirm(ctx, id)
}

type stubAdmin struct {
	metrics func(context.Context) (domain.FunnelStats, error)
	leads   func(context.Context, int, int) ([]domain.Lead, int64, error)
	version func(context.Context) (int64, *time.Time, error)
}

func (s stubAdmin) Metrics(ctx context.Context) (domain.FunnelStats, error) { return s.metrics(ctx) }

func (s stubAdmin) Leads(ctx context.Context, page, size int) ([]domain.Lead, int64, error) {
	return s.leads(ctx, page, size)
}

func (s stubAdmin) LeadsVersion(ctx context.Context) (int64, *time.Time, error) {
	return s.version(ctx)
}

type stubTokens struct {
	token string
	err   error
}

func (s stubTokens) Issue() (string, time.Time, error) {
	return s.token, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), s.err
}

// ---------- router + request helpers ----------

// newTestRouter mounts h the way the production router does, without the
// cross-cutting middleware.
func newTestRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-test")
		c.Next()
	})
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))

	r.POST("/sessions", h.StartSession)
	r.GET("/sessions/:id", h.GetSession)
	r.PATCH("/sessions/:id/answers", h.SaveAnswers)
	r.PUT("/sessions/:id/email", h.CaptureEmail)
	r.GET("/sessions/:id/preview", h.Preview)
	r.POST("/sessions/:id/checkout", h.CreateCheckout)
	r.POST("/checkout/stripe/confirm", h.ConfirmStripeCheckout)
	r.GET("/entitlements", h.CheckEntitlement)
	r.POST("/sessions/:id/meal-plan", h.GenerateMealPlan)
	r.GET("/sessions/:id/meal-plan", h.GetMealPlan)
	r.GET("/sessions/:id/meal-plan/stream", h.StreamMealPlan)
	r.POST("/admin/login", h.AdminLogin)
	r.GET("/admin/metrics", h.AdminMetrics)
	r.GET("/admin/leads", h.ListLeads)
	return r
}

func doJSON(r http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("error body is not JSON: %v (%s)", err, w.Body.String())
	}
	return e
}

func expectErr(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d; want %d (%s)", w.Code, status, w.Body.String())
	}
	if e := decodeErr(t, w); e.Code != code || e.RequestID != "rid-test" {
		t.Fatalf("error = %+v; want code %q", e, code)
	}
}
