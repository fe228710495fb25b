package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultDatabaseMaxOpenConns = 25
	defaultDatabaseMaxIdleConns = 5
	defaultDatabaseConnLifetime = 30 * time.Minute
	defaultMigrationsPath       = "migrations"
	defaultPayPalBaseURL        = "https://api-m.sandbox.paypal.com"
	defaultPayPalTimeout        = 20 * time.Second
	defaultWebhookClockSkew     = 5 * time.Minute
	defaultWebhookEventTTL      = 72 * time.Hour
	defaultWebhookCleanupEvery  = time.Hour
	defaultWebhookCleanupBatch  = 200
	defaultSecurityEnvironment  = "local"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	PayPal   PayPalConfig
	Webhooks WebhookConfig
	Security SecurityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig stores PostgreSQL connection parameters.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsPath  string
}

// PayPalConfig collects credentials and endpoints for the payment gateway.
type PayPalConfig struct {
	ClientID  string
	Secret    string
	BaseURL   string
	WebhookID string
	Timeout   time.Duration
}

// WebhookConfig controls webhook event handling and replay protection.
type WebhookConfig struct {
	ClockSkew        time.Duration
	EventTTL         time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// SecurityConfig groups token verification settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls bearer token verification against an identity provider.
type OIDCConfig struct {
	JWKSURL    string
	Audience   string
	Issuers    []string
	AdminRoles []string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// and environment variables.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Database: DatabaseConfig{
			URL:             stringWithDefault(lookup, "API_DATABASE_URL", ""),
			MaxOpenConns:    intWithDefault(lookup, "API_DATABASE_MAX_OPEN_CONNS", defaultDatabaseMaxOpenConns),
			MaxIdleConns:    intWithDefault(lookup, "API_DATABASE_MAX_IDLE_CONNS", defaultDatabaseMaxIdleConns),
			ConnMaxLifetime: durationWithDefault(lookup, "API_DATABASE_CONN_MAX_LIFETIME", defaultDatabaseConnLifetime),
			MigrationsPath:  stringWithDefault(lookup, "API_DATABASE_MIGRATIONS_PATH", defaultMigrationsPath),
		},
		PayPal: PayPalConfig{
			ClientID:  stringWithDefault(lookup, "API_PAYPAL_CLIENT_ID", ""),
			Secret:    stringWithDefault(lookup, "API_PAYPAL_SECRET", ""),
			BaseURL:   stringWithDefault(lookup, "API_PAYPAL_BASE_URL", defaultPayPalBaseURL),
			WebhookID: stringWithDefault(lookup, "API_PAYPAL_WEBHOOK_ID", ""),
			Timeout:   durationWithDefault(lookup, "API_PAYPAL_TIMEOUT", defaultPayPalTimeout),
		},
		Webhooks: WebhookConfig{
			ClockSkew:        durationWithDefault(lookup, "API_WEBHOOK_CLOCK_SKEW", defaultWebhookClockSkew),
			EventTTL:         durationWithDefault(lookup, "API_WEBHOOK_EVENT_TTL", defaultWebhookEventTTL),
			CleanupInterval:  durationWithDefault(lookup, "API_WEBHOOK_CLEANUP_INTERVAL", defaultWebhookCleanupEvery),
			CleanupBatchSize: intWithDefault(lookup, "API_WEBHOOK_CLEANUP_BATCH", defaultWebhookCleanupBatch),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:    stringWithDefault(lookup, "API_SECURITY_OIDC_JWKS_URL", ""),
				Audience:   stringWithDefault(lookup, "API_SECURITY_OIDC_AUDIENCE", ""),
				Issuers:    csvWithDefault(lookup, "API_SECURITY_OIDC_ISSUERS"),
				AdminRoles: csvWithDefault(lookup, "API_SECURITY_OIDC_ADMIN_ROLES"),
			},
		},
	}

	if len(cfg.Security.OIDC.AdminRoles) == 0 {
		cfg.Security.OIDC.AdminRoles = []string{"admin"}
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Database.URL == "" {
		missing = append(missing, "Database.URL")
	}
	if cfg.Database.MaxOpenConns <= 0 {
		missing = append(missing, "Database.MaxOpenConns")
	}
	if cfg.PayPal.ClientID == "" {
		missing = append(missing, "PayPal.ClientID")
	}
	if cfg.PayPal.Secret == "" {
		missing = append(missing, "PayPal.Secret")
	}
	if cfg.PayPal.WebhookID == "" {
		missing = append(missing, "PayPal.WebhookID")
	}
	if cfg.Webhooks.EventTTL <= 0 {
		missing = append(missing, "Webhooks.EventTTL")
	}
	if cfg.Webhooks.CleanupInterval <= 0 {
		missing = append(missing, "Webhooks.CleanupInterval")
	}
	if cfg.Webhooks.CleanupBatchSize <= 0 {
		missing = append(missing, "Webhooks.CleanupBatchSize")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
