package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// DevJWTSecret solo sirve para desarrollo local; en producción Validate lo rechaza.
	DevJWTSecret = "petsched-dev-secret-change-me"
)

type Config struct {
	Port      string `env:"PORT, default=5000"`
	Env       string `env:"APP_ENV, default=development"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`
	LogPretty bool   `env:"LOG_PRETTY, default=false"`
	BodyLimit int64  `env:"BODY_LIMIT_BYTES, default=10485760"`

	// FrontendURL se usa en los links de los emails.
	FrontendURL string   `env:"FRONTEND_URL, default=http://localhost:3000"`
	CORSOrigins []string `env:"CORS_ORIGIN, default=http://localhost:3000"`

	// AllowAllCapabilities desactiva los límites por tier (dev / demos).
	AllowAllCapabilities bool `env:"ALLOW_ALL_CAPABILITIES, default=false"`

	Database  DatabaseConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	SMTP      SMTPConfig
	Stripe    StripeConfig
	Upload    UploadConfig
	Redis     RedisConfig
	Reminders RemindersConfig
}

type DatabaseConfig struct {
	UseSQLite      bool          `env:"USE_SQLITE, default=true"`
	SQLitePath     string        `env:"SQLITE_PATH, default=petsched.db"`
	URL            string        `env:"DATABASE_URL"`
	MaxOpenConns   int           `env:"DB_MAX_OPEN_CONNS, default=20"`
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT, default=2s"`
}

type JWTConfig struct {
	Secret           string        `env:"JWT_SECRET, default=petsched-dev-secret-change-me"`
	ExpiresIn        time.Duration `env:"JWT_EXPIRES_IN, default=168h"`
	RefreshExpiresIn time.Duration `env:"JWT_REFRESH_EXPIRES_IN, default=720h"`
}

type RateLimitConfig struct {
	Window      time.Duration `env:"RATE_LIMIT_WINDOW, default=15m"`
	MaxRequests int           `env:"RATE_LIMIT_MAX_REQUESTS, default=100"`
}

type SMTPConfig struct {
	Host string `env:"SMTP_HOST, default=smtp.gmail.com"`
	Port int    `env:"SMTP_PORT, default=587"`
	User string `env:"SMTP_USER"`
	Pass string `env:"SMTP_PASS"`
	From string `env:"SMTP_FROM"`
}

// Enabled: sin usuario SMTP no se mandan emails (se loguea y se sigue).
func (c SMTPConfig) Enabled() bool {
	return strings.TrimSpace(c.User) != ""
}

type StripeConfig struct {
	SecretKey         string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret     string `env:"STRIPE_WEBHOOK_SECRET"`
	PriceBasic        string `env:"STRIPE_PRICE_BASIC, default=price_basic"`
	PriceProfessional string `env:"STRIPE_PRICE_PROFESSIONAL, default=price_professional"`
	PriceEnterprise   string `env:"STRIPE_PRICE_ENTERPRISE, default=price_enterprise"`
}

type UploadConfig struct {
	Path      string `env:"UPLOAD_PATH, default=uploads"`
	URLPrefix string `env:"UPLOAD_URL_PREFIX, default=/api/uploads"`
	MaxBytes  int64  `env:"UPLOAD_MAX_BYTES, default=5242880"`
	MaxFiles  int    `env:"UPLOAD_MAX_FILES, default=5"`
}

type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB, default=0"`
	DedupTTL time.Duration `env:"WEBHOOK_DEDUP_TTL, default=72h"`
}

type RemindersConfig struct {
	Enabled bool   `env:"REMINDERS_ENABLED, default=false"`
	Cron    string `env:"REMINDERS_CRON, default=0 8 * * *"`
}

// Load carga .env (si existe) y después procesa el entorno.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom permite inyectar el lookuper (tests).
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	origins := c.CORSOrigins[:0]
	for _, o := range c.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSOrigins = origins
	// En producción siempre Postgres.
	if c.IsProduction() {
		c.Database.UseSQLite = false
	}
}

func (c *Config) Validate() error {
	if c.IsProduction() && (c.JWT.Secret == "" || c.JWT.Secret == DevJWTSecret) {
		return errors.New("JWT_SECRET must be set in production")
	}
	if !c.Database.UseSQLite && strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("DATABASE_URL is required when USE_SQLITE=false")
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.MaxRequests <= 0 {
		return errors.New("rate limit window and max requests must be positive")
	}
	if c.Upload.MaxBytes <= 0 || c.Upload.MaxFiles <= 0 {
		return errors.New("upload limits must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

func (c *Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}
