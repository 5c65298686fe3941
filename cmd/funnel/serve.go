package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/mealplan-funnel/internal/billing"
	"github.com/tbourn/mealplan-funnel/internal/config"
	httpapi "github.com/tbourn/mealplan-funnel/internal/http"
	"github.com/tbourn/mealplan-funnel/internal/llm"
	"github.com/tbourn/mealplan-funnel/internal/mailer"
	"github.com/tbourn/mealplan-funnel/internal/observability"
	"github.com/tbourn/mealplan-funnel/internal/repo"
	"github.com/tbourn/mealplan-funnel/internal/sysutil"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API: migrate the schema, wire the enabled billing
providers and serve until SIGINT/SIGTERM, then drain in-flight requests.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, Version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	catalog, err := config.LoadCatalog(cfg.PlansPath)
	if err != nil {
		return fmt.Errorf("plans: %w", err)
	}

	deps := httpapi.Dependencies{
		Catalog: catalog,
		LLM: llm.New(llm.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		}),
	}
	if cfg.Stripe.Enabled() {
		deps.Stripe = billing.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, nil)
	}
	if cfg.LemonSqueezy.Enabled() {
		deps.LemonSqueezy = billing.NewLemonSqueezyGateway(billing.LemonSqueezyConfig{
			APIKey:        cfg.LemonSqueezy.APIKey,
			StoreID:       cfg.LemonSqueezy.StoreID,
			WebhookSecret: cfg.LemonSqueezy.WebhookSecret,
			BaseURL:       cfg.LemonSqueezy.BaseURL,
		})
	}
	if deps.Stripe == nil && deps.LemonSqueezy == nil {
		log.Warn().Msg("no billing provider configured; checkout and webhooks are disabled")
	}
	if cfg.Email.ResendAPIKey != "" {
		deps.Sender = mailer.NewResendSender(cfg.Email.ResendAPIKey, cfg.Email.From)
	} else {
		log.Warn().Msg("RESEND_API_KEY not set; emails are logged, not sent")
	}
	if cfg.Admin.Password == "" {
		log.Warn().Msg("ADMIN_PASSWORD not set; admin login is disabled")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, cfg, deps)

	srv := &http.Server{
		Addr:              sysutil.ListenAddr(cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("api_base", cfg.APIBasePath).
			Bool("stripe", deps.Stripe != nil).
			Bool("lemonsqueezy", deps.LemonSqueezy != nil).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("stopped")
	return nil
}
