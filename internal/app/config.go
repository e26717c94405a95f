package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/payment"
)

// Config holds the complete application configuration, loadable from
// environment variables (KART_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (KART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (KART_API_KEY_PEPPER)" flag:"api-key-pepper"`
	RateLimit    RateLimitConfig
	Graceful     GracefulConfig
	Gateway      GatewayConfig
	Currency     CurrencyConfig
	Orders       OrdersConfig
	Redis        RedisConfig
	Notify       NotifyConfig
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// GatewayConfig holds the payment gateway credentials and redirect policy.
type GatewayConfig struct {
	Endpoint         string        `usage:"Payment initiation URL"`
	MerchantID       string        `usage:"Merchant id issued by the gateway"`
	SecretKey        string        `usage:"Shared secret for request and webhook hashes"`
	APIKey           string        `usage:"Bearer token for gateway calls"`
	Timeout          time.Duration `default:"15s" usage:"Gateway call timeout"`
	AllowedHosts     []string      `usage:"Hosts accepted in return and cancel URLs"`
	DefaultReturnURL string        `usage:"Return URL when the request has none"`
	DefaultCancelURL string        `usage:"Cancel URL when the request has none"`
}

func (g GatewayConfig) payment() payment.Config {
	return payment.Config{
		Endpoint:             g.Endpoint,
		MerchantID:           g.MerchantID,
		SecretKey:            g.SecretKey,
		APIKey:               g.APIKey,
		Timeout:              g.Timeout,
		AllowedRedirectHosts: g.AllowedHosts,
		DefaultReturnURL:     g.DefaultReturnURL,
		DefaultCancelURL:     g.DefaultCancelURL,
	}
}

// CurrencyConfig fixes the USD to KHR exchange rate.
type CurrencyConfig struct {
	KHRPerUSD string `default:"4100" usage:"Riel per US dollar"`
}

// OrdersConfig tunes order numbering, fees and delivery estimates.
type OrdersConfig struct {
	NumberPrefix     string        `default:"FF" usage:"Order number prefix"`
	DeliveryTime     time.Duration `default:"48h" usage:"Estimated delivery lead time"`
	ShippingFee      string        `default:"0" usage:"Flat shipping fee in USD"`
	FreeShippingOver string        `default:"0" usage:"Subtotal in USD above which shipping is free (0 disables)"`
}

// RedisConfig selects the idempotency key store. An empty Addr keeps keys in
// process memory.
type RedisConfig struct {
	Addr           string        `usage:"Redis address host:port"`
	Password       string        `usage:"Redis password"`
	DB             int           `default:"0" usage:"Redis database"`
	IdempotencyTTL time.Duration `default:"24h" usage:"How long order idempotency keys are remembered"`
}

// NotifyConfig selects how customer notifications leave the process.
type NotifyConfig struct {
	Driver    string        `default:"log" usage:"Notification driver: log or stan"`
	QueueSize int           `default:"256" usage:"Notification queue size"`
	Workers   int           `default:"4" usage:"Notification workers"`
	Timeout   time.Duration `default:"10s" usage:"Timeout per notification"`
	NATSURL   string        `default:"nats://localhost:4222" usage:"NATS Streaming URL"`
	ClusterID string        `default:"test-cluster" usage:"NATS Streaming cluster id"`
	ClientID  string        `default:"kart-checkout" usage:"NATS Streaming client id"`
	Subject   string        `default:"kart.orders" usage:"Subject prefix for order events"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "KART",
		Files:     []string{"config.yaml", "/etc/kart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set KART_DATABASE_URL or DATABASE_URL")
	}
	if c.APIKeyPepper == "" {
		return errors.New("API key pepper is required: set KART_API_KEY_PEPPER")
	}
	if err := c.Gateway.payment().Validate(); err != nil {
		return errors.Wrap(err, "gateway")
	}
	if _, err := c.Currency.rate(); err != nil {
		return err
	}
	if _, _, err := c.Orders.fees(); err != nil {
		return err
	}
	switch c.Notify.Driver {
	case "log", "stan":
	default:
		return errors.Errorf("unknown notify driver %q", c.Notify.Driver)
	}
	return nil
}

func (c CurrencyConfig) rate() (money.FixedRate, error) {
	d, err := decimal.NewFromString(c.KHRPerUSD)
	if err != nil {
		return money.FixedRate{}, errors.Wrap(err, "parse exchange rate")
	}
	return money.NewFixedRate(d)
}

func (o OrdersConfig) fees() (fee, freeOver decimal.Decimal, err error) {
	if fee, err = decimal.NewFromString(o.ShippingFee); err != nil {
		return fee, freeOver, errors.Wrap(err, "parse shipping fee")
	}
	if freeOver, err = decimal.NewFromString(o.FreeShippingOver); err != nil {
		return fee, freeOver, errors.Wrap(err, "parse free shipping threshold")
	}
	if fee.IsNegative() || freeOver.IsNegative() {
		return fee, freeOver, errors.New("shipping amounts must not be negative")
	}
	return fee, freeOver, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's KART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = os.Getenv("REDIS_ADDR")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
