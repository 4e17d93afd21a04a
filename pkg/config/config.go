// Package config loads runtime settings from the environment (and an optional .env
// file) and opens the process-wide store handles.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the API server.
type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	Env      string `env:"ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	MongoURI      string `env:"MONGO_URI,required,notEmpty"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"vidtube"`

	// Optional session audit trail
	PostgresConnStr string `env:"POSTGRES_CONN_STR"`

	AccessTokenSecret  string        `env:"ACCESS_TOKEN_SECRET,required,notEmpty"`
	AccessTokenExpiry  time.Duration `env:"ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	RefreshTokenSecret string        `env:"REFRESH_TOKEN_SECRET,required,notEmpty"`
	RefreshTokenExpiry time.Duration `env:"REFRESH_TOKEN_EXPIRY" envDefault:"240h"`
	TokenIssuer        string        `env:"TOKEN_ISSUER" envDefault:"vidtube"`
	BcryptCost         int           `env:"BCRYPT_COST" envDefault:"10"`

	// Comma separated. Credentials (the session cookies) are only allowed for explicit
	// origins, so browser clients on another site need their origin listed here. The
	// wildcard is rejected in production while COOKIE_SECURE is on.
	CORSOrigin   string `env:"CORS_ORIGIN" envDefault:"*"`
	CookieSecure bool   `env:"COOKIE_SECURE" envDefault:"true"`

	// Object storage; the in-memory store is used when S3Bucket is empty
	S3Bucket        string `env:"S3_BUCKET"`
	S3Region        string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint      string `env:"S3_ENDPOINT"`
	S3PublicBaseURL string `env:"S3_PUBLIC_BASE_URL"`

	MetricsPort        string `env:"METRICS_PORT" envDefault:"9090"`
	LoginRatePerMinute int    `env:"LOGIN_RATE_PER_MINUTE" envDefault:"10"`

	LikedVideosEmptyIsNotFound bool `env:"LIKED_VIDEOS_EMPTY_IS_NOT_FOUND" envDefault:"false"`
}

// Load reads .env if present and parses the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using process environment")
	}
	return Parse()
}

// Parse maps the process environment into a Config and validates it.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ"))
	}
	if c.AccessTokenExpiry <= 0 || c.RefreshTokenExpiry <= 0 {
		errs = append(errs, errors.New("token expiries must be positive"))
	}
	if c.IsProduction() && c.CookieSecure && slices.Contains(c.CORSOrigins(), "*") {
		errs = append(errs, errors.New("CORS_ORIGIN must list explicit origins when COOKIE_SECURE is on in production"))
	}
	if c.LoginRatePerMinute <= 0 {
		errs = append(errs, errors.New("LOGIN_RATE_PER_MINUTE must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// CORSOrigins splits CORS_ORIGIN into its origins, defaulting to the wildcard.
func (c *Config) CORSOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// AuditEnabled reports whether a Postgres audit database is configured.
func (c *Config) AuditEnabled() bool {
	return c.PostgresConnStr != ""
}
