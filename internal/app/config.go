package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/ornara/commerce-api/internal/domain/order"
)

// Config holds the complete application configuration, loadable from
// environment variables (ORNARA_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (ORNARA_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	JWTSecret   string `usage:"HMAC secret for bearer token verification (ORNARA_JWT_SECRET)" flag:"jwt-secret"`
	Charges     ChargesConfig
	SMTP        SMTPConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// ChargesConfig controls shipping and tax policy. Values are decimal strings.
type ChargesConfig struct {
	ShippingFee      string `default:"50" usage:"Flat shipping fee" flag:"shipping-fee"`
	FreeShippingOver string `default:"0" usage:"Order value over which shipping is free, 0 disables" flag:"free-shipping-over"`
	TaxRatePercent   string `default:"0" usage:"Tax rate in percent applied to the discounted amount" flag:"tax-rate"`
}

// Policy parses the charges config into an order.ChargePolicy.
func (c ChargesConfig) Policy() (order.ChargePolicy, error) {
	fee, err := decimal.NewFromString(c.ShippingFee)
	if err != nil {
		return order.ChargePolicy{}, errors.Wrap(err, "parse shipping fee")
	}
	freeOver, err := decimal.NewFromString(c.FreeShippingOver)
	if err != nil {
		return order.ChargePolicy{}, errors.Wrap(err, "parse free shipping threshold")
	}
	tax, err := decimal.NewFromString(c.TaxRatePercent)
	if err != nil {
		return order.ChargePolicy{}, errors.Wrap(err, "parse tax rate")
	}
	return order.ChargePolicy{
		ShippingFee:      fee,
		FreeShippingOver: freeOver,
		TaxRatePercent:   tax,
	}, nil
}

// SMTPConfig controls the transactional mailer. Leaving Host empty disables
// email entirely.
type SMTPConfig struct {
	Host string `default:"" usage:"SMTP relay host, empty disables email"`
	Port string `default:"25" usage:"SMTP relay port"`
	From string `default:"" usage:"Sender address for transactional email"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ORNARA",
		Files:     []string{"config.yaml", "/etc/ornara/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set ORNARA_DATABASE_URL or DATABASE_URL")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT secret is required: set ORNARA_JWT_SECRET")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's ORNARA_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
