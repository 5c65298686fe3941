// Package httpapi wires the HTTP transport (Gin) to the funnel services,
// middleware and route handlers. Cross-cutting concerns live here: tracing,
// correlation IDs, redacted access logs, panic recovery, metrics, CORS,
// security headers, compression, idempotency and rate limiting.
//
// Layout:
//   - /health, /metrics, /swagger/*any   (root)
//   - /webhooks/{provider}               (root; raw body, no gzip, no rate limit)
//   - {APIBasePath}/...                  (public funnel API, rate limited)
//   - {APIBasePath}/admin/...            (bearer token, rate limited per admin)
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/mealplan-funnel/docs"
	"github.com/tbourn/mealplan-funnel/internal/auth"
	"github.com/tbourn/mealplan-funnel/internal/billing"
	"github.com/tbourn/mealplan-funnel/internal/config"
	"github.com/tbourn/mealplan-funnel/internal/domain"
	"github.com/tbourn/mealplan-funnel/internal/http/handlers"
	"github.com/tbourn/mealplan-funnel/internal/http/middleware"
	"github.com/tbourn/mealplan-funnel/internal/mailer"
	"github.com/tbourn/mealplan-funnel/internal/repo"
	"github.com/tbourn/mealplan-funnel/internal/services"
)

// maxRequestBody caps every request body; webhooks apply their own tighter cap.
const maxRequestBody = 1 << 20

// Dependencies are the external clients the router binds services to.
// Nil gateways disable their provider.
type Dependencies struct {
	Catalog      domain.Catalog
	Stripe       *billing.StripeGateway
	LemonSqueezy *billing.LemonSqueezyGateway
	LLM          services.Completer
	// Sender delivers transactional email; nil logs instead of sending.
	Sender mailer.Sender
	// Now overrides the clock of every service (tests).
	Now func() time.Time
}

// sessionRepoShim adapts the repository free functions to services.SessionRepo.
type sessionRepoShim struct{}

func (sessionRepoShim) CreateSession(ctx context.Context, db *gorm.DB) (*domain.Session, error) {
	return repo.CreateSession(ctx, db)
}

func (sessionRepoShim) GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.Session, error) {
	return repo.GetSession(ctx, db, id)
}

func (sessionRepoShim) MergeQuizAnswers(ctx context.Context, db *gorm.DB, id string, update domain.QuizAnswers) (*domain.Session, error) {
	return repo.MergeQuizAnswers(ctx, db, id, update)
}

func (sessionRepoShim) AttachEmail(ctx context.Context, db *gorm.DB, id, email string) error {
	return repo.AttachEmail(ctx, db, id, email)
}

// RegisterRoutes attaches all middleware and endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator, checkout route only (before the rate limiter so
//     replays bypass it)
//  8. CORS and security headers
//  9. Gzip, except for webhooks and the SSE stream
//
// The rate limiter is installed per group, after AdminAuth on the admin group
// so operators get their own bucket.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config, deps Dependencies) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxRequestBody))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
			Routes: []string{strings.TrimRight(cfg.APIBasePath, "/") + "/sessions/:id/checkout"},
		},
		func(ctx context.Context, sessionID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, sessionID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{"/webhooks/", "/metrics"}),
		gzip.WithExcludedPathsRegexs([]string{`/meal-plan/stream$`}),
	))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/clients
	sender := deps.Sender
	if sender == nil {
		sender = mailer.LogSender{}
	}
	mail := mailer.New(sender, cfg.PublicBaseURL)

	entitlements := &services.EntitlementService{DB: db, Catalog: deps.Catalog, Now: deps.Now}
	reconciler := &services.Reconciler{DB: db, Catalog: deps.Catalog, Notifier: mail, Now: deps.Now}
	checkout := &services.CheckoutService{
		DB:             db,
		Catalog:        deps.Catalog,
		Gateways:       map[string]services.CheckoutGateway{},
		Reconciler:     reconciler,
		PublicBaseURL:  cfg.PublicBaseURL,
		IdempotencyTTL: cfg.IdempotencyTTL,
		Now:            deps.Now,
	}
	var webhookGateways []handlers.WebhookGateway
	if deps.LemonSqueezy != nil {
		checkout.Gateways[domain.ProviderLemonSqueezy] = deps.LemonSqueezy
		checkout.DefaultProvider = domain.ProviderLemonSqueezy
		webhookGateways = append(webhookGateways, deps.LemonSqueezy)
	}
	if deps.Stripe != nil {
		checkout.Gateways[domain.ProviderStripe] = deps.Stripe
		checkout.DefaultProvider = domain.ProviderStripe
		checkout.Confirmer = deps.Stripe
		webhookGateways = append(webhookGateways, deps.Stripe)
	}

	tokens := auth.NewTokens(cfg.Admin.JWTKey, cfg.Admin.TokenTTL, deps.Now)
	h := handlers.New(handlers.Deps{
		Sessions:     services.NewSessionService(db, sessionRepoShim{}),
		Entitlements: entitlements,
		Generation: &services.GenerationService{
			DB:            db,
			LLM:           deps.LLM,
			Mailer:        mail,
			Entitlement:   entitlements,
			Now:           deps.Now,
			PreviewTokens: cfg.LLM.PreviewTokens,
		},
		Checkout:      checkout,
		Admin:         &services.AdminService{DB: db, Now: deps.Now},
		Tokens:        tokens,
		AdminPassword: cfg.Admin.Password,
	})

	// Billing webhooks: providers retry on 5xx, so they are never throttled.
	wh := handlers.NewWebhookHandler(reconciler, webhookGateways...)
	r.POST("/webhooks/:provider", wh.Handle)

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByAdminOrIP())
	api := groupWithPrefix(r, cfg.APIBasePath)

	public := api.Group("", rl.Handler())
	{
		// Quiz
		public.POST("/sessions", h.StartSession)
		public.GET("/sessions/:id", h.GetSession)
		public.PATCH("/sessions/:id/answers", h.SaveAnswers)
		public.PUT("/sessions/:id/email", h.CaptureEmail)
		public.GET("/sessions/:id/preview", h.Preview)

		// Checkout
		public.POST("/sessions/:id/checkout", h.CreateCheckout)
		public.POST("/checkout/stripe/confirm", h.ConfirmStripeCheckout)

		// Entitlement gate + generation
		public.GET("/entitlements", h.CheckEntitlement)
		public.POST("/sessions/:id/meal-plan", h.GenerateMealPlan)
		public.GET("/sessions/:id/meal-plan", h.GetMealPlan)
		public.GET("/sessions/:id/meal-plan/stream", h.StreamMealPlan)

		public.POST("/admin/login", h.AdminLogin)
	}

	admin := api.Group("/admin", middleware.AdminAuth(tokens), rl.Handler())
	{
		admin.GET("/metrics", h.AdminMetrics)
		admin.GET("/leads", h.ListLeads)
	}
}

// corsMiddleware allows every origin when none is configured; otherwise
// only the allowlist, echoed back in Access-Control-Allow-Origin.
func corsMiddleware(origins []string) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Retry-After", "Idempotency-Replayed", "ETag"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return cors.New(c)
}

// limitBody caps the request body at maxBytes; reads past it fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
