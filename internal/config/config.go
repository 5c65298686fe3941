// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, database selection, billing provider credentials, generation and
// email settings, rate limiting, and observability.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool          `env:"ENABLE_HSTS"  envDefault:"false"`
	HSTSMaxAge time.Duration `env:"HSTS_MAX_AGE" envDefault:"4320h"`
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    `env:"OTEL_ENABLED"                envDefault:"false"`
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	Insecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	ServiceName string  `env:"OTEL_SERVICE_NAME"           envDefault:"mealplan-funnel"`
	SampleRatio float64 `env:"OTEL_TRACES_SAMPLER_ARG"     envDefault:"1.0"`
}

// DBConfig selects the storage driver. SQLite is used for local runs and
// tests; Postgres is the managed database in production.
type DBConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite"` // sqlite|postgres
	Path   string `env:"DB_PATH"   envDefault:"funnel.db"`
	URL    string `env:"DATABASE_URL"`
}

// StripeConfig holds the Stripe credentials. Empty SecretKey disables the
// provider.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
}

// Enabled reports whether Stripe checkout and webhooks are configured.
func (s StripeConfig) Enabled() bool { return s.SecretKey != "" && s.WebhookSecret != "" }

// LemonSqueezyConfig holds the Lemon Squeezy credentials.
type LemonSqueezyConfig struct {
	APIKey        string `env:"LEMONSQUEEZY_API_KEY"`
	StoreID       string `env:"LEMONSQUEEZY_STORE_ID"`
	WebhookSecret string `env:"LEMONSQUEEZY_WEBHOOK_SECRET"`
	BaseURL       string `env:"LEMONSQUEEZY_BASE_URL" envDefault:"https://api.lemonsqueezy.com"`
}

// Enabled reports whether Lemon Squeezy checkout and webhooks are configured.
func (l LemonSqueezyConfig) Enabled() bool { return l.APIKey != "" && l.WebhookSecret != "" }

// LLMConfig configures the generative-text client.
type LLMConfig struct {
	APIKey        string        `env:"OPENAI_API_KEY"`
	BaseURL       string        `env:"OPENAI_BASE_URL"`
	Model         string        `env:"OPENAI_MODEL"          envDefault:"gpt-4o-mini"`
	Timeout       time.Duration `env:"OPENAI_TIMEOUT"        envDefault:"120s"`
	PreviewTokens int64         `env:"OPENAI_PREVIEW_TOKENS" envDefault:"400"`
}

// EmailConfig configures transactional email delivery.
type EmailConfig struct {
	ResendAPIKey string `env:"RESEND_API_KEY"`
	From         string `env:"EMAIL_FROM" envDefault:"Meal Plans <plans@example.com>"`
}

// AdminConfig configures the admin dashboard login.
type AdminConfig struct {
	Password string        `env:"ADMIN_PASSWORD"`
	JWTKey   string        `env:"ADMIN_JWT_SECRET"`
	TokenTTL time.Duration `env:"ADMIN_TOKEN_TTL" envDefault:"12h"`
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        `env:"PORT"                envDefault:"8080"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT"        envDefault:"15s"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"10s"`
	// Streaming generation holds the response open; keep this generous.
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT"    envDefault:"180s"`
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT"     envDefault:"60s"`
	MaxHeaderBytes int           `env:"MAX_HEADER_BYTES" envDefault:"1048576"`
	GinMode        string        `env:"GIN_MODE"         envDefault:"release"`

	// Logging / Docs
	LogLevel       string `env:"LOG_LEVEL"       envDefault:"info"`
	LogPretty      bool   `env:"LOG_PRETTY"      envDefault:"false"`
	SwaggerEnabled bool   `env:"SWAGGER_ENABLED" envDefault:"false"`
	APIBasePath    string `env:"API_BASE_PATH"   envDefault:"/api/v1"`

	// App
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:3000"`
	PlansPath     string `env:"PLANS_PATH"`

	DB DBConfig

	// Billing
	Stripe       StripeConfig
	LemonSqueezy LemonSqueezyConfig

	// Generation / delivery
	LLM   LLMConfig
	Email EmailConfig
	Admin AdminConfig

	// Rate limiting
	RateRPS   float64 `env:"RATE_RPS"   envDefault:"5"`
	RateBurst int     `env:"RATE_BURST" envDefault:"10"`

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	// --- normalization ---
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	cfg.GinMode = strings.ToLower(strings.TrimSpace(cfg.GinMode))
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	cfg.APIBasePath = normalizeBasePath(cfg.APIBasePath)
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	cfg.DB.Driver = strings.ToLower(strings.TrimSpace(cfg.DB.Driver))
	cfg.CORS.AllowedOrigins = compact(cfg.CORS.AllowedOrigins)

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if u, err := url.Parse(cfg.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return cfg, errors.New("PUBLIC_BASE_URL must be an absolute URL")
	}
	if cfg.Stripe.SecretKey != "" && cfg.Stripe.WebhookSecret == "" {
		return cfg, errors.New("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}
	if cfg.LemonSqueezy.APIKey != "" && (cfg.LemonSqueezy.WebhookSecret == "" || cfg.LemonSqueezy.StoreID == "") {
		return cfg, errors.New("LEMONSQUEEZY_WEBHOOK_SECRET and LEMONSQUEEZY_STORE_ID are required when LEMONSQUEEZY_API_KEY is set")
	}
	if cfg.LLM.Timeout <= 0 {
		return cfg, errors.New("OPENAI_TIMEOUT must be > 0")
	}
	if cfg.LLM.PreviewTokens < 1 {
		return cfg, errors.New("OPENAI_PREVIEW_TOKENS must be >= 1")
	}
	if cfg.Admin.Password != "" && len(cfg.Admin.JWTKey) < 32 {
		return cfg, errors.New("ADMIN_JWT_SECRET must be at least 32 bytes when ADMIN_PASSWORD is set")
	}
	if cfg.Admin.TokenTTL <= 0 {
		return cfg, errors.New("ADMIN_TOKEN_TTL must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
