package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const insecureSecret = "change-me-in-production"

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL    string `env:"DATABASE_URL"`
	PGHost         string `env:"PGHOST" envDefault:"localhost"`
	PGPort         int    `env:"PGPORT" envDefault:"5432"`
	PGUser         string `env:"PGUSER" envDefault:"rafflio"`
	PGPassword     string `env:"PGPASSWORD" envDefault:"rafflio"`
	PGDatabase     string `env:"PGDATABASE" envDefault:"rafflio"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"false"`
	PGMaxConns     int32  `env:"PG_MAX_CONNS" envDefault:"20"`
	PGMinConns     int32  `env:"PG_MIN_CONNS" envDefault:"2"`

	// HTTP
	APIPort            int    `env:"API_PORT" envDefault:"3100"`
	PublicBaseURL      string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:3100"`
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Auth
	JWTSecret           string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTAdminExpiry      string        `env:"JWT_ADMIN_EXPIRY" envDefault:"8h"`
	PurchaseTokenSecret string        `env:"PURCHASE_TOKEN_SECRET" envDefault:"change-me-in-production"`
	PurchaseTokenTTL    time.Duration `env:"PURCHASE_TOKEN_TTL" envDefault:"720h"`

	// MercadoPago
	MPAccessToken   string        `env:"MP_ACCESS_TOKEN"`
	MPWebhookSecret string        `env:"MP_WEBHOOK_SECRET"`
	MPBaseURL       string        `env:"MP_BASE_URL" envDefault:"https://api.mercadopago.com"`
	MPTimeout       time.Duration `env:"MP_TIMEOUT" envDefault:"10s"`

	// Email
	BrevoAPIKey     string `env:"BREVO_API_KEY"`
	BrevoBaseURL    string `env:"BREVO_BASE_URL" envDefault:"https://api.brevo.com"`
	MailFromAddress string `env:"MAIL_FROM_ADDRESS" envDefault:"no-reply@rafflio.local"`
	MailFromName    string `env:"MAIL_FROM_NAME" envDefault:"Rafflio"`

	// Redis
	RedisURL     string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	RedisEnabled bool   `env:"REDIS_ENABLED" envDefault:"false"`

	// Kafka
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled bool   `env:"KAFKA_ENABLED" envDefault:"false"`

	// Outbox
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"500ms"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	OutboxInline       bool          `env:"OUTBOX_INLINE" envDefault:"true"`

	// Limits
	ClaimRateLimit        int           `env:"CLAIM_RATE_LIMIT" envDefault:"10"`
	ClaimRateWindow       time.Duration `env:"CLAIM_RATE_WINDOW" envDefault:"1m"`
	MaxTicketsPerPurchase int           `env:"MAX_TICKETS_PER_PURCHASE" envDefault:"100"`
	MaxTicketsPerBuyer    int           `env:"MAX_TICKETS_PER_BUYER" envDefault:"0"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig loads an optional .env file and parses environment variables
// into a Config struct. Variables already set in the environment win.
func LoadConfig(dotenvFiles ...string) (*Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass (local dev only).
func (c *Config) Validate() error {
	if c.OutboxBatchSize <= 0 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be positive")
	}
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == insecureSecret {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	if c.PurchaseTokenSecret == insecureSecret || len(c.PurchaseTokenSecret) < 32 {
		return fmt.Errorf("PURCHASE_TOKEN_SECRET must be set to at least 32 characters")
	}
	if c.MPAccessToken != "" && c.MPWebhookSecret == "" {
		return fmt.Errorf("MP_WEBHOOK_SECRET is required when MP_ACCESS_TOKEN is set")
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}

// GatewayEnabled reports whether MercadoPago credentials are configured.
func (c *Config) GatewayEnabled() bool {
	return c.MPAccessToken != ""
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS into its entries.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// AdminTokenExpiry parses JWT_ADMIN_EXPIRY, falling back to 8h.
func (c *Config) AdminTokenExpiry() time.Duration {
	d, err := time.ParseDuration(c.JWTAdminExpiry)
	if err != nil || d <= 0 {
		return 8 * time.Hour
	}
	return d
}
