package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (EPICERIE_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (EPICERIE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images" flag:"image-base-url"`
	BestSellers  int    `default:"6" usage:"Number of products on the home page" flag:"best-sellers"`
	BasePath     string `default:"/api" usage:"Path prefix of the API routes; empty serves them at the root" flag:"base-path"`
	Auth         AuthConfig
	Order        OrderConfig
	Kafka        KafkaConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// AuthConfig controls credentials and bearer tokens.
type AuthConfig struct {
	Secret        string        `usage:"HMAC secret for signing tokens (EPICERIE_AUTH_SECRET or JWT_SECRET)"`
	TTL           time.Duration `default:"24h" usage:"Token lifetime (EPICERIE_AUTH_TTL or JWT_EXPIRES_IN)"`
	BcryptCost    int           `default:"10" usage:"bcrypt cost for password hashes" flag:"bcrypt-cost"`
	SecureCookies bool          `default:"false" usage:"Mark the token cookie Secure" flag:"secure-cookies"`
}

// OrderConfig controls order placement.
type OrderConfig struct {
	Timeout        time.Duration `default:"5s" usage:"Upper bound for one order placement transaction"`
	LeadTime       time.Duration `default:"120h" usage:"Estimated delivery delay after ordering"`
	PublishTimeout time.Duration `default:"1s" usage:"Upper bound for publishing an order placed event after commit" flag:"publish-timeout"`
}

// KafkaConfig enables order events when Brokers is set.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka bootstrap brokers; empty disables order events"`
	Topic   string   `default:"orders.placed" usage:"Topic for order placed events"`
}

// RateLimitConfig controls the per-client sliding window rate limiters.
type RateLimitConfig struct {
	Max      int           `default:"100" usage:"Max requests per window"`
	Window   time.Duration `default:"1m"  usage:"Rate limit window duration"`
	LoginMax int           `default:"10"  usage:"Max login attempts per window" flag:"login-max"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"true" usage:"Allow credentials (token cookie)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files and flags, then applies platform defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "EPICERIE",
		Args:      args,
		Files:     []string{"config.yaml", "/etc/epicerie/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if err := cfg.applyPlatformDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps the unprefixed variables set by hosting
// platforms and by the legacy deployment onto the configuration.
func (c *Config) applyPlatformDefaults() error {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
	if c.Auth.Secret == "" {
		c.Auth.Secret = os.Getenv("JWT_SECRET")
	}
	if v := os.Getenv("JWT_EXPIRES_IN"); v != "" && os.Getenv("EPICERIE_AUTH_TTL") == "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "parse JWT_EXPIRES_IN %q", v)
		}
		c.Auth.TTL = ttl
	}
	return nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set EPICERIE_DATABASE_URL or DATABASE_URL")
	case len(c.Auth.Secret) < 16:
		return errors.New("token secret must be at least 16 bytes: set EPICERIE_AUTH_SECRET or JWT_SECRET")
	case c.Auth.TTL <= 0:
		return errors.New("token lifetime must be positive")
	}
	return nil
}
