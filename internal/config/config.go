// Package config reads the supportdesk settings from goconfig with
// environment overrides for secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/real-rm/supportdesk/internal/assign"
	"github.com/real-rm/supportdesk/internal/constants"
	"github.com/real-rm/supportdesk/internal/util"
)

// Accessor is the subset of *goconfig.ConfigAccessor used here.
type Accessor interface {
	ConfigStringWithDefault(key string, defaultValue string) (string, error)
	ConfigIntWithDefault(key string, defaultValue int) (int, error)
	ConfigBoolWithDefault(key string, defaultValue bool) (bool, error)
}

// Environment overrides. Kubernetes secrets are mounted as env vars.
const (
	EnvJWTSecret     = "JWT_SECRET"
	EnvPathPrefix    = "SUPPORTDESK_PATH_PREFIX"
	EnvEncryptionKey = "ENCRYPTION_KEY"
	EnvAMQPURL       = "AMQP_URL"
	EnvOpenAIKey     = "OPENAI_API_KEY"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Assignment AssignmentConfig
	Bus        BusConfig
	AI         AIConfig
}

// ServerConfig holds HTTP, websocket and security settings.
type ServerConfig struct {
	Port                   int
	JWTSecret              string
	PathPrefix             string
	EncryptionKey          []byte
	MaxMessageSize         int64
	MaxConnectionsPerUser  int
	MessageRateLimit       int
	AllowedOrigins         []string
	CORSAllowedOrigins     []string
	TrustedProxies         []string
	MetricsAllowedNetworks []string
	Database               string
}

// AssignmentConfig controls agent selection.
type AssignmentConfig struct {
	Mode           assign.Mode
	AssignOnOnline bool
	DrainLimit     int
}

// BusConfig enables cross-process fan-out. An empty URL keeps delivery local.
type BusConfig struct {
	URL      string
	Exchange string
	Workers  int
}

// Enabled reports whether a broker URL is configured.
func (b BusConfig) Enabled() bool { return b.URL != "" }

// AIConfig configures the AI-first assistant.
type AIConfig struct {
	PersonaFile string
	BaseURL     string
	Model       string
	APIKey      string
}

// Load reads every key, applies env overrides and validates the result.
func Load(acc Accessor) (*Config, error) {
	r := &reader{acc: acc}
	cfg := &Config{
		Server: ServerConfig{
			Port:                   r.integer("server.port", constants.DefaultPort),
			JWTSecret:              r.secret(EnvJWTSecret, "supportdesk.jwt_secret", ""),
			PathPrefix:             r.override(EnvPathPrefix, "supportdesk.path_prefix", constants.DefaultPathPrefix),
			EncryptionKey:          []byte(r.secret(EnvEncryptionKey, "supportdesk.encryption_key", "")),
			MaxMessageSize:         int64(r.integer("supportdesk.max_message_size", constants.DefaultMaxMessageSize)),
			MaxConnectionsPerUser:  r.integer("supportdesk.max_connections_per_user", constants.DefaultMaxConnectionsPerUser),
			MessageRateLimit:       r.integer("supportdesk.message_rate_limit", constants.DefaultMessageRateLimit),
			AllowedOrigins:         r.list("supportdesk.allowed_origins", ""),
			CORSAllowedOrigins:     r.list("supportdesk.cors_allowed_origins", ""),
			TrustedProxies:         r.list("supportdesk.trusted_proxies", constants.DefaultTrustedProxies),
			MetricsAllowedNetworks: r.list("supportdesk.metrics_allowed_networks", constants.DefaultMetricsAllowedNetworks),
			Database:               r.str("supportdesk.database", constants.DefaultDatabase),
		},
		Assignment: AssignmentConfig{
			AssignOnOnline: r.boolean("assignment.assign_on_online", true),
			DrainLimit:     r.integer("assignment.drain_limit", constants.DefaultDrainLimit),
		},
		Bus: BusConfig{
			URL:      r.secret(EnvAMQPURL, "bus.amqp_url", ""),
			Exchange: r.str("bus.exchange", constants.DefaultExchange),
			Workers:  r.integer("bus.workers", constants.DefaultBusWorkers),
		},
		AI: AIConfig{
			PersonaFile: r.str("ai.persona_file", ""),
			BaseURL:     r.str("ai.base_url", constants.DefaultAIBaseURL),
			Model:       r.str("ai.model", constants.DefaultAIModel),
			APIKey:      r.secret(EnvOpenAIKey, "ai.api_key", ""),
		},
	}

	mode, err := assign.ParseMode(r.str("assignment.workload_mode", constants.DefaultWorkloadMode))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("assignment.workload_mode: %w", err))
	}
	cfg.Assignment.Mode = mode

	if len(r.errs) > 0 {
		return nil, fmt.Errorf("failed to load configuration: %w", errors.Join(r.errs...))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	if err := util.ValidateRange(c.Server.Port, 1, 65535, "server port"); err != nil {
		errs = append(errs, err)
	}
	if err := ValidateJWTSecret(c.Server.JWTSecret); err != nil {
		errs = append(errs, err)
	}
	if c.Server.PathPrefix == "" {
		errs = append(errs, errors.New("path prefix cannot be empty"))
	} else if !strings.HasPrefix(c.Server.PathPrefix, "/") {
		errs = append(errs, fmt.Errorf("path prefix must start with '/' (got: %s)", c.Server.PathPrefix))
	}
	if err := util.ValidateExactLength(c.Server.EncryptionKey, constants.EncryptionKeyLength, "encryption key"); err != nil {
		errs = append(errs, err)
	}
	if c.Server.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("max message size must be positive"))
	}
	if c.Server.MaxConnectionsPerUser <= 0 {
		errs = append(errs, errors.New("max connections per user must be positive"))
	}
	if c.Server.MessageRateLimit <= 0 {
		errs = append(errs, errors.New("message rate limit must be positive"))
	}
	if c.Server.Database == "" {
		errs = append(errs, errors.New("database name is required"))
	}
	if c.Assignment.DrainLimit <= 0 {
		errs = append(errs, errors.New("drain limit must be positive"))
	}
	if c.AI.APIKey != "" {
		if err := util.ValidateURL(c.AI.BaseURL, "ai base URL", "https", "http"); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Bus.Enabled() {
		if err := util.ValidateURL(c.Bus.URL, "bus amqp_url", "amqp", "amqps"); err != nil {
			errs = append(errs, err)
		}
		if c.Bus.Exchange == "" {
			errs = append(errs, errors.New("bus exchange is required when amqp_url is set"))
		}
		if c.Bus.Workers <= 0 {
			errs = append(errs, errors.New("bus workers must be positive"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// ValidateJWTSecret rejects empty, short and well-known secrets.
func ValidateJWTSecret(secret string) error {
	if secret == "" {
		return errors.New("JWT secret is required")
	}
	if len(secret) < constants.MinJWTSecretLength {
		return fmt.Errorf(
			"JWT secret must be at least %d characters (got %d). "+
				"Generate a strong secret with: openssl rand -base64 32",
			constants.MinJWTSecretLength, len(secret))
	}
	lowerSecret := strings.ToLower(secret)
	for _, weak := range constants.WeakSecrets {
		if strings.Contains(lowerSecret, weak) {
			return fmt.Errorf(
				"JWT secret appears to be weak (contains '%s'). "+
					"Use a cryptographically random secret generated with: openssl rand -base64 32",
				weak)
		}
	}
	return nil
}

// ContainsPlaceholder reports whether value still holds a deployment
// placeholder.
func ContainsPlaceholder(value string) bool {
	upper := strings.ToUpper(value)
	return strings.Contains(upper, "REPLACE_WITH") ||
		strings.Contains(upper, "PLACEHOLDER") ||
		strings.Contains(upper, "CHANGE-ME") ||
		strings.Contains(upper, "CHANGE_ME") ||
		strings.Contains(upper, "YOUR-")
}

// reader collects lookup errors so Load reports them together.
type reader struct {
	acc  Accessor
	errs []error
}

func (r *reader) str(key, def string) string {
	v, err := r.acc.ConfigStringWithDefault(key, def)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return strings.TrimSpace(v)
}

func (r *reader) integer(key string, def int) int {
	v, err := r.acc.ConfigIntWithDefault(key, def)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (r *reader) boolean(key string, def bool) bool {
	v, err := r.acc.ConfigBoolWithDefault(key, def)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

// override prefers the env var over the config file.
func (r *reader) override(env, key, def string) string {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return v
	}
	return r.str(key, def)
}

// secret is override plus a placeholder check on the file value.
func (r *reader) secret(env, key, def string) string {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return v
	}
	v := r.str(key, def)
	if v != "" && ContainsPlaceholder(v) {
		r.errs = append(r.errs, fmt.Errorf("%s contains placeholder value, set a real value before deploying", key))
	}
	return v
}

func (r *reader) list(key, def string) []string {
	var out []string
	for _, item := range strings.Split(r.str(key, def), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
