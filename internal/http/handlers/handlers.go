// Package handlers exposes the funnel API over Gin.
//
// Handlers are transport-thin: they bind and validate input, call the
// application services through the interfaces below and translate results
// and service errors into HTTP responses.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/mealplan-funnel/internal/billing"
	"github.com/tbourn/mealplan-funnel/internal/domain"
	"github.com/tbourn/mealplan-funnel/internal/services"
	"github.com/tbourn/mealplan-funnel/internal/utils"
)

//
// Service contracts (context-aware)
//

// SessionService manages quiz sessions.
type SessionService interface {
	Start(ctx context.Context) (*domain.Session, error)
	Get(ctx context.Context, id string) (*domain.Session, error)
	SaveAnswers(ctx context.Context, id string, answers domain.QuizAnswers) (*domain.Session, error)
	CaptureEmail(ctx context.Context, id, email string) (*domain.Session, error)
}

// EntitlementService answers the payment-wall and generation-cap checks.
type EntitlementService interface {
	CheckByEmail(ctx context.Context, email string) (services.Access, error)
	CheckBySession(ctx context.Context, id string) (services.Access, error)
}

// GenerationService produces previews and meal plans.
type GenerationService interface {
	Preview(ctx context.Context, sessionID string) (string, error)
	Generate(ctx context.Context, sessionID string) (*domain.MealPlan, error)
	Stream(ctx context.Context, sessionID string, onDelta func(string) error) (*domain.MealPlan, error)
}

// CheckoutService opens and confirms hosted checkouts.
type CheckoutService interface {
	Create(ctx context.Context, in services.CheckoutInput) (billing.Checkout, error)
	ConfirmStripe(ctx context.Context, checkoutID string) (services.Result, error)
}

// AdminService backs the dashboard.
type AdminService interface {
	Metrics(ctx context.Context) (domain.FunnelStats, error)
	Leads(ctx context.Context, page, pageSize int) ([]domain.Lead, int64, error)
	LeadsVersion(ctx context.Context) (int64, *time.Time, error)
}

// TokenIssuer mints admin tokens.
type TokenIssuer interface {
	Issue() (string, time.Time, error)
}

//
// Handler wiring
//

// Deps are the collaborators of Handlers. Checkout, Admin and Tokens may be
// nil; the matching endpoints then answer 503.
type Deps struct {
	Sessions      SessionService
	Entitlements  EntitlementService
	Generation    GenerationService
	Checkout      CheckoutService
	Admin         AdminService
	Tokens        TokenIssuer
	AdminPassword string
}

// Handlers groups the funnel endpoints.
type Handlers struct {
	sessions      SessionService
	entitlements  EntitlementService
	gen           GenerationService
	checkout      CheckoutService
	admin         AdminService
	tokens        TokenIssuer
	adminPassword string
}

// New constructs Handlers bound to d.
func New(d Deps) *Handlers {
	return &Handlers{
		sessions:      d.Sessions,
		entitlements:  d.Entitlements,
		gen:           d.Generation,
		checkout:      d.Checkout,
		admin:         d.Admin,
		tokens:        d.Tokens,
		adminPassword: d.AdminPassword,
	}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination reads page and page_size from the query.
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ClampPage(c.Query("page"), c.Query("page_size"))
}
