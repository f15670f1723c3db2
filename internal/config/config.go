package config

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Environment string `env:"ENVIRONMENT,default=stage"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	Port        int    `env:"PORT,default=8080"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	// Processor merchant credentials. HashKey/HashIV feed the checksum and
	// must never be logged.
	MerchantID string `env:"MERCHANT_ID,required"`
	HashKey    string `env:"HASH_KEY,required"`
	HashIV     string `env:"HASH_IV,required"`

	// Processor endpoints.
	CheckoutURL     string `env:"PROCESSOR_CHECKOUT_URL,required"`
	BarcodeImageURL string `env:"PROCESSOR_BARCODE_IMAGE_URL,required"`

	// Public base URL of this service, used to build the two callback URLs
	// handed to the processor.
	PublicBaseURL string `env:"PUBLIC_BASE_URL,required"`

	// Order validation bounds (minor currency unit). The processor's
	// observed limits vary by contract, so they are configuration.
	MinOrderAmount int64 `env:"MIN_ORDER_AMOUNT,default=30"`
	MaxOrderAmount int64 `env:"MAX_ORDER_AMOUNT,default=20000"`

	// Days before an unpaid barcode order expires at the store counter.
	StoreExpireDays int `env:"STORE_EXPIRE_DAYS,default=7"`

	TradeNoPrefix string        `env:"TRADE_NO_PREFIX,default=MT"`
	SubmitTimeout time.Duration `env:"PROCESSOR_SUBMIT_TIMEOUT,default=10s"`
	NotifyTimeout time.Duration `env:"CLIENT_NOTIFY_TIMEOUT,default=5s"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL,default=1m"`

	// Admin operator authentication.
	GoogleClientID      string   `env:"GOOGLE_CLIENT_ID,required"`
	GoogleAllowedDomain string   `env:"GOOGLE_ALLOWED_DOMAIN,required"`
	GoogleAllowedEmails []string `env:"GOOGLE_ALLOWED_EMAILS,required"`

	CORSOrigins []string `env:"CORS_ORIGINS"`

	// HTTP server timeouts
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT,default=15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT,default=30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT,default=60s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Environment != "stage" && c.Environment != "production" {
		return fmt.Errorf("ENVIRONMENT must be 'stage' or 'production', got %q", c.Environment)
	}

	if strings.TrimSpace(c.MerchantID) == "" {
		return fmt.Errorf("MERCHANT_ID must not be blank")
	}
	if len(c.HashKey) < 8 || len(c.HashIV) < 8 {
		return fmt.Errorf("HASH_KEY and HASH_IV must each be at least 8 characters")
	}

	for name, raw := range map[string]string{
		"PROCESSOR_CHECKOUT_URL":      c.CheckoutURL,
		"PROCESSOR_BARCODE_IMAGE_URL": c.BarcodeImageURL,
		"PUBLIC_BASE_URL":             c.PublicBaseURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}

	if c.MinOrderAmount < 1 {
		return fmt.Errorf("MIN_ORDER_AMOUNT must be at least 1, got %d", c.MinOrderAmount)
	}
	if c.MaxOrderAmount <= c.MinOrderAmount {
		return fmt.Errorf("MAX_ORDER_AMOUNT (%d) must be greater than MIN_ORDER_AMOUNT (%d)",
			c.MaxOrderAmount, c.MinOrderAmount)
	}

	if c.StoreExpireDays < 1 || c.StoreExpireDays > 30 {
		return fmt.Errorf("STORE_EXPIRE_DAYS must be between 1 and 30, got %d", c.StoreExpireDays)
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}

	return nil
}

// ReturnURL is the callback endpoint the processor posts the trade result to.
func (c *Config) ReturnURL() string {
	return strings.TrimSuffix(c.PublicBaseURL, "/") + "/callbacks/return"
}

// PaymentInfoURL is the callback endpoint the processor posts barcode data to.
func (c *Config) PaymentInfoURL() string {
	return strings.TrimSuffix(c.PublicBaseURL, "/") + "/callbacks/payment-info"
}
