package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Auth modes. Development lets unauthenticated requests through as an admin
// of DEFAULT_TENANT; local validates HMAC tokens signed with AUTH_SIGNING_KEY;
// external validates RS256 tokens against AUTH_JWKS_URL.
const (
	AuthModeDevelopment = "development"
	AuthModeLocal       = "local"
	AuthModeExternal    = "external"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	AuthMode       string        `mapstructure:"AUTH_MODE"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	DBMaxConnIdle  time.Duration `mapstructure:"DB_MAX_CONN_IDLE"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	DefaultTenant  string        `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	KafkaBrokers   []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic     string        `mapstructure:"KAFKA_TOPIC"`
	OTELEndpoint   string        `mapstructure:"OTEL_ENDPOINT"`
	OTELInsecure   bool          `mapstructure:"OTEL_INSECURE"`

	LowStockThreshold int `mapstructure:"LOW_STOCK_THRESHOLD"`
	ExpiryWarningDays int `mapstructure:"EXPIRY_WARNING_DAYS"`

	// RequireRegisteredPatients makes procedures name a patient of the
	// registry. CatalogRequired limits intake to master catalog products.
	RequireRegisteredPatients bool `mapstructure:"REQUIRE_REGISTERED_PATIENTS"`
	CatalogRequired           bool `mapstructure:"CATALOG_REQUIRED"`
}

var keys = []string{
	"PORT", "ENV", "AUTH_MODE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_MAX_CONN_IDLE",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"DEFAULT_TENANT", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"BODY_LIMIT", "REQUEST_TIMEOUT", "KAFKA_BROKERS", "KAFKA_TOPIC",
	"OTEL_ENDPOINT", "OTEL_INSECURE", "LOW_STOCK_THRESHOLD", "EXPIRY_WARNING_DAYS",
	"REQUIRE_REGISTERED_PATIENTS", "CATALOG_REQUIRED",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // inferred by ResolvedAuthMode
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DB_MAX_CONN_IDLE", "30m")
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("KAFKA_TOPIC", "clinic.inventory")
	v.SetDefault("LOW_STOCK_THRESHOLD", 10)
	v.SetDefault("EXPIRY_WARNING_DAYS", 30)
	v.SetDefault("REQUIRE_REGISTERED_PATIENTS", true)
	v.SetDefault("CATALOG_REQUIRED", false)

	// Unmarshal only sees env vars that are bound
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

// splitList reads a comma separated env value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns AUTH_MODE when set. Otherwise development
// environments get development mode, a configured issuer or JWKS URL selects
// external, and a signing key selects local.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	switch {
	case c.IsDev():
		return AuthModeDevelopment
	case c.AuthJWKSURL != "" || c.AuthIssuer != "":
		return AuthModeExternal
	default:
		return AuthModeLocal
	}
}

// EventsEnabled reports whether a broker is configured.
func (c *Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaTopic != ""
}

// Validate rejects setups that would run without authentication outside
// development, or with settings the server cannot honor.
func (c *Config) Validate() error {
	switch mode := c.ResolvedAuthMode(); mode {
	case AuthModeDevelopment:
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE %q is not allowed when ENV=production", mode)
		}
	case AuthModeExternal:
		if c.AuthJWKSURL == "" {
			return fmt.Errorf("AUTH_JWKS_URL is required when AUTH_MODE is %q", mode)
		}
		if c.AuthIssuer == "" {
			return fmt.Errorf("AUTH_ISSUER is required when AUTH_MODE is %q", mode)
		}
	case AuthModeLocal:
		if len(c.AuthSigningKey) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes when AUTH_MODE is %q", mode)
		}
	default:
		return fmt.Errorf("AUTH_MODE must be %q, %q or %q, got %q",
			AuthModeDevelopment, AuthModeLocal, AuthModeExternal, mode)
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	if c.LowStockThreshold < 0 || c.ExpiryWarningDays < 0 {
		return fmt.Errorf("LOW_STOCK_THRESHOLD and EXPIRY_WARNING_DAYS must not be negative")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}
