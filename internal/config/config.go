package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/labstack/gommon/bytes"
	"github.com/spf13/viper"
)

const (
	AuthModeDevelopment = "development"
	AuthModeJWT         = "jwt"
)

type Config struct {
	Port                 string        `mapstructure:"PORT"`
	Env                  string        `mapstructure:"ENV"`
	AuthMode             string        `mapstructure:"AUTH_MODE"`
	AuthSigningKey       string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer           string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience         string        `mapstructure:"AUTH_AUDIENCE"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32         `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins          []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS         float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst       int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit            string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout       time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ModelName            string        `mapstructure:"MODEL_NAME"`
	ModelTokenizerPath   string        `mapstructure:"MODEL_TOKENIZER_PATH"`
	ModelONNXPath        string        `mapstructure:"MODEL_ONNX_PATH"`
	ORTLibraryPath       string        `mapstructure:"ORT_LIBRARY_PATH"`
	ModelMaxLength       int           `mapstructure:"MODEL_MAX_LENGTH"`
	ConditionCatalogPath string        `mapstructure:"CONDITION_CATALOG_PATH"`
	MetricsEnabled       bool          `mapstructure:"METRICS_ENABLED"`
}

var keys = []string{
	"PORT",
	"ENV",
	"AUTH_MODE",
	"AUTH_SIGNING_KEY",
	"AUTH_ISSUER",
	"AUTH_AUDIENCE",
	"DATABASE_URL",
	"DB_MAX_CONNS",
	"DB_MIN_CONNS",
	"CORS_ORIGINS",
	"RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST",
	"BODY_LIMIT",
	"REQUEST_TIMEOUT",
	"MODEL_NAME",
	"MODEL_TOKENIZER_PATH",
	"MODEL_ONNX_PATH",
	"ORT_LIBRARY_PATH",
	"MODEL_MAX_LENGTH",
	"CONDITION_CATALOG_PATH",
	"METRICS_ENABLED",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "5000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // auto-detect: "" -> inferred from ENV
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("MODEL_NAME", "Bio_ClinicalBERT")
	v.SetDefault("MODEL_MAX_LENGTH", 512)
	v.SetDefault("METRICS_ENABLED", true)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// The decode hook splits on commas but keeps surrounding spaces.
	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// HasDatabase reports whether cases should be persisted in PostgreSQL.
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is explicitly
// set, it is returned. Otherwise, the mode is inferred:
//   - ENV=development  → "development" (no token check)
//   - anything else    → "jwt"
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return AuthModeDevelopment
	}
	return AuthModeJWT
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	mode := c.ResolvedAuthMode()
	if mode != AuthModeDevelopment && mode != AuthModeJWT {
		return fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthModeDevelopment, AuthModeJWT, mode)
	}
	if mode == AuthModeJWT && c.AuthSigningKey == "" {
		return fmt.Errorf(
			"AUTH_SIGNING_KEY must be set when AUTH_MODE is %q (current ENV=%q). "+
				"Refusing to start without authentication configuration", AuthModeJWT, c.Env)
	}
	if c.ModelONNXPath != "" && c.ModelTokenizerPath == "" {
		return fmt.Errorf("MODEL_TOKENIZER_PATH is required when MODEL_ONNX_PATH is set")
	}
	if c.ModelMaxLength <= 0 {
		return fmt.Errorf("MODEL_MAX_LENGTH must be positive, got %d", c.ModelMaxLength)
	}
	if c.BodyLimit != "" {
		if n, err := bytes.Parse(c.BodyLimit); err != nil || n <= 0 {
			return fmt.Errorf("BODY_LIMIT must be a positive size such as 1M, got %q", c.BodyLimit)
		}
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
