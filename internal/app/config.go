package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Catalog backends.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds the complete application configuration, loadable from
// environment variables (CART_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Catalog     CatalogConfig
	Redis       RedisConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// CatalogConfig selects where products, coupons and orders live. Carts are
// always stored in Redis.
type CatalogConfig struct {
	Backend string `default:"redis" usage:"Catalog backend: redis or postgres"`
}

// RedisConfig configures the Redis connection shared by carts, rate limits
// and the redis catalog.
type RedisConfig struct {
	URL        string        `default:"redis://localhost:6379/0" usage:"Redis URL or host:port (CART_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	Prefix     string        `default:"kart" usage:"Key prefix"`
	SessionTTL time.Duration `default:"168h" usage:"Lifetime of cart, coupon selection and notices after the last change" flag:"session-ttl"`
}

// RateLimitConfig controls the fixed window rate limiter. Requests are
// counted per client IP and per session.
type RateLimitConfig struct {
	Max        int           `default:"100" usage:"Max requests per window, 0 disables"`
	Window     time.Duration `default:"1m"  usage:"Rate limit window duration"`
	TrustProxy bool          `default:"false" usage:"Take client IPs from X-Forwarded-For and X-Real-IP" flag:"trust-proxy"`
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

// LoadConfig loads configuration from command-line args, environment
// variables and YAML config files, then applies platform defaults.
func LoadConfig(args []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		Args:      args,
		EnvPrefix: "CART",
		Files:     []string{"config.yaml", "/etc/cart/config.yaml"},
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

// Validate reports inconsistent settings.
func (c *Config) Validate() error {
	switch c.Catalog.Backend {
	case BackendRedis:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required for the postgres catalog: set CART_DATABASE_URL or DATABASE_URL")
		}
	default:
		return errors.Errorf("unknown catalog backend %q", c.Catalog.Backend)
	}
	if c.Redis.URL == "" {
		return errors.New("redis URL is required: set CART_REDIS_URL or REDIS_URL")
	}
	if c.Redis.SessionTTL < 0 {
		return errors.New("session TTL must not be negative")
	}
	if c.RateLimit.Max > 0 && c.RateLimit.Window <= 0 {
		return errors.New("rate limit window must be positive")
	}
	return nil
}

// applyPlatformDefaults maps the variable names hosting platforms inject
// (DATABASE_URL, REDIS_URL, PORT) onto the CART_ settings.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if v := os.Getenv("REDIS_URL"); v != "" && os.Getenv("CART_REDIS_URL") == "" {
		c.Redis.URL = v
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
