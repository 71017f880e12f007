package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/coffee-shop/internal/storage/redis"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (COFFEE_ prefix), flags, .env or YAML config files.
type Config struct {
	Addr            string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL     string `usage:"PostgreSQL connection URL (COFFEE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL        string `default:"" usage:"Redis URL for cookie sessions (COFFEE_REDIS_URL or REDIS_URL); sessions are disabled without Redis" flag:"redis-url"`
	RedisAddr       string `default:"" usage:"Plain Redis host:port, overrides the URL" flag:"redis-addr"`
	DisplayTimezone string `default:"Asia/Taipei" usage:"Timezone of the date in customer-facing order codes" flag:"display-timezone"`
	Kafka           KafkaConfig
	Auth            AuthConfig
	Admin           AdminConfig
	RateLimit       RateLimitConfig
	LoginThrottle   LoginThrottleConfig
	CORS            CORSConfig
	Graceful        GracefulConfig
}

// KafkaConfig enables order event publishing when Brokers is set.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka bootstrap brokers"`
	Topic   string   `default:"coffee.orders" usage:"Topic for order lifecycle events"`
}

// AuthConfig controls bearer tokens and session cookies.
type AuthConfig struct {
	JWTSecret    string        `usage:"HMAC secret for signing bearer tokens" flag:"jwt-secret"`
	TokenTTL     time.Duration `default:"24h" usage:"Bearer token lifetime"`
	SessionTTL   time.Duration `default:"24h" usage:"Session cookie lifetime"`
	CookieName   string        `default:"sid" usage:"Session cookie name"`
	SecureCookie bool          `default:"false" usage:"Mark the session cookie Secure" flag:"secure-cookie"`
}

// AdminConfig identifies the shop administrator. PasswordHash is a bcrypt
// hash as printed by `seed-db -hash-admin-password`.
type AdminConfig struct {
	Username     string `default:"admin" usage:"Administrator username"`
	PasswordHash string `usage:"bcrypt hash of the administrator password"`
}

// RateLimitConfig controls a per-client token bucket.
type RateLimitConfig struct {
	Rate  float64 `default:"10" usage:"Sustained requests per second"`
	Burst int     `default:"50" usage:"Maximum burst size"`
}

// LoginThrottleConfig is the per-client token bucket in front of the
// sign-in and sign-up routes.
type LoginThrottleConfig struct {
	Rate  float64 `default:"0.2" usage:"Sustained login attempts per second"`
	Burst int     `default:"5" usage:"Login attempts allowed at once"`
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

// LoadConfig loads .env files into the environment, then reads configuration
// from environment variables and YAML config files, and finally applies
// platform-specific defaults.
func LoadConfig() (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "COFFEE",
		Files:     []string{"config.yaml", "/etc/coffee/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's COFFEE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set COFFEE_DATABASE_URL or DATABASE_URL")
	case c.Auth.JWTSecret == "":
		return errors.New("JWT secret is required: set COFFEE_AUTH_JWT_SECRET")
	case len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "":
		return errors.New("kafka topic is required when brokers are set")
	}
	if c.SessionsEnabled() {
		if _, err := redis.ClientOptions(c.RedisURL, c.RedisAddr); err != nil {
			return err
		}
	}
	if _, err := time.LoadLocation(c.DisplayTimezone); err != nil {
		return errors.Wrapf(err, "display timezone %q", c.DisplayTimezone)
	}
	return nil
}

// SessionsEnabled reports whether a Redis server is configured.
func (c *Config) SessionsEnabled() bool {
	return c.RedisURL != "" || c.RedisAddr != ""
}
