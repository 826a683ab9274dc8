package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Limits    LimitsConfig    `yaml:"limits"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Notify    NotifyConfig    `yaml:"notify"`
	Auth      AuthConfig      `yaml:"auth"`
	Export    ExportConfig    `yaml:"export"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string `yaml:"cors_origins"`
	TrustedProxies  int      `yaml:"trusted_proxies"` // reverse proxies in front; 0 ignores forwarding headers
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path             string   `yaml:"path"`
	StatementTimeout Duration `yaml:"statement_timeout"`
}

// LimitsConfig bounds submission fields, list pages and bulk requests.
type LimitsConfig struct {
	NameMax     int `yaml:"name_max"`
	EmailMax    int `yaml:"email_max"`
	MessageMin  int `yaml:"message_min"`
	MessageMax  int `yaml:"message_max"`
	TagsMax     int `yaml:"tags_max"`
	TagMax      int `yaml:"tag_max"`
	ListDefault int `yaml:"list_default"`
	ListMax     int `yaml:"list_max"`
	BulkMaxIDs  int `yaml:"bulk_max_ids"`
}

// RateLimitConfig contains per-IP submission throttling settings.
type RateLimitConfig struct {
	Backend       string   `yaml:"backend"` // store | redis
	Limit         int      `yaml:"limit"`
	Window        Duration `yaml:"window"`
	RedisAddr     string   `yaml:"redis_addr"`
	RedisPassword string   `yaml:"-"` // env-only, never in YAML
	RedisPrefix   string   `yaml:"redis_prefix"`
}

// AnalyticsConfig contains aggregation settings.
type AnalyticsConfig struct {
	Timezone    string `yaml:"timezone"`
	TrendDays   int    `yaml:"trend_days"`
	HourlyHours int    `yaml:"hourly_hours"`
}

// Location resolves Timezone.
func (a AnalyticsConfig) Location() (*time.Location, error) {
	return time.LoadLocation(a.Timezone)
}

// NotifyConfig contains notification sink settings.
type NotifyConfig struct {
	Backend   string   `yaml:"backend"` // log | ses | none
	Recipient string   `yaml:"recipient"`
	Sender    string   `yaml:"sender"`
	Region    string   `yaml:"region"`
	Timeout   Duration `yaml:"timeout"`
	AccessKey string   `yaml:"-"` // env-only, never in YAML
	SecretKey string   `yaml:"-"` // env-only, never in YAML
}

// AuthConfig contains admin authentication settings.
type AuthConfig struct {
	AdminAPIKey string `yaml:"-"` // env-only, never in YAML
}

// ExportConfig contains S3-compatible export archive settings.
// An empty Bucket disables archiving.
type ExportConfig struct {
	Bucket          string   `yaml:"bucket"`
	Endpoint        string   `yaml:"endpoint"`
	Region          string   `yaml:"region"`
	UseSSL          *bool    `yaml:"use_ssl"`
	AccessKey       string   `yaml:"-"` // env-only, never in YAML
	SecretKey       string   `yaml:"-"` // env-only, never in YAML
	URLExpiry       Duration `yaml:"url_expiry"`
	ArchiveInterval Duration `yaml:"archive_interval"` // 0 disables the worker
	Prefix          string   `yaml:"prefix"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// A .env file, when present, seeds variables that are not already set.
func Load() (*Config, error) {
	if err := loadDotEnv(getEnv("CONTACTBOX_ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := newDefaults()

	configPath := getEnv("CONTACTBOX_CONFIG_PATH", "config/contactbox.yaml")

	// Missing file is not an error
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path, which must exist.
func LoadFromFile(path string) (*Config, error) {
	if err := loadDotEnv(getEnv("CONTACTBOX_ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(60 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{
			Path:             "data/contactbox.db",
			StatementTimeout: Duration(5 * time.Second),
		},
		Limits: LimitsConfig{
			NameMax:     100,
			EmailMax:    100,
			MessageMin:  10,
			MessageMax:  2000,
			TagsMax:     20,
			TagMax:      50,
			ListDefault: 50,
			ListMax:     100,
			BulkMaxIDs:  500,
		},
		RateLimit: RateLimitConfig{
			Backend:     "store",
			Limit:       5,
			Window:      Duration(time.Minute),
			RedisPrefix: "contactbox:ratelimit",
		},
		Analytics: AnalyticsConfig{
			Timezone:    "UTC",
			TrendDays:   30,
			HourlyHours: 24,
		},
		Notify: NotifyConfig{
			Backend: "log",
			Region:  "us-east-1",
			Timeout: Duration(10 * time.Second),
		},
		Export: ExportConfig{
			URLExpiry: Duration(15 * time.Minute),
			Prefix:    "exports",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadDotEnv loads a .env file without overriding variables already set.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file: %w", err)
	}
	return nil
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values; unparsable values are ignored.
func applyEnvOverrides(cfg *Config) {
	// Server
	envInt("CONTACTBOX_PORT", &cfg.Server.Port)
	envDuration("CONTACTBOX_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("CONTACTBOX_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("CONTACTBOX_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	envInt("CONTACTBOX_TRUSTED_PROXIES", &cfg.Server.TrustedProxies)
	if v := os.Getenv("CONTACTBOX_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}

	// Database
	envString("CONTACTBOX_DB_PATH", &cfg.Database.Path)
	envDuration("CONTACTBOX_DB_STATEMENT_TIMEOUT", &cfg.Database.StatementTimeout)

	// Limits
	envInt("CONTACTBOX_LIST_MAX", &cfg.Limits.ListMax)
	envInt("CONTACTBOX_BULK_MAX_IDS", &cfg.Limits.BulkMaxIDs)

	// Rate limit
	envString("CONTACTBOX_RATE_LIMIT_BACKEND", &cfg.RateLimit.Backend)
	envInt("CONTACTBOX_RATE_LIMIT", &cfg.RateLimit.Limit)
	envDuration("CONTACTBOX_RATE_LIMIT_WINDOW", &cfg.RateLimit.Window)
	envString("CONTACTBOX_REDIS_ADDR", &cfg.RateLimit.RedisAddr)
	envString("CONTACTBOX_REDIS_PASSWORD", &cfg.RateLimit.RedisPassword)

	// Analytics
	envString("CONTACTBOX_TIMEZONE", &cfg.Analytics.Timezone)

	// Notify (AWS_* are the SDK's conventional names)
	envString("CONTACTBOX_NOTIFY_BACKEND", &cfg.Notify.Backend)
	envString("CONTACTBOX_NOTIFY_RECIPIENT", &cfg.Notify.Recipient)
	envString("CONTACTBOX_NOTIFY_SENDER", &cfg.Notify.Sender)
	envString("CONTACTBOX_AWS_REGION", &cfg.Notify.Region)
	envString("AWS_ACCESS_KEY_ID", &cfg.Notify.AccessKey)
	envString("AWS_SECRET_ACCESS_KEY", &cfg.Notify.SecretKey)

	// Auth
	envString("CONTACTBOX_ADMIN_API_KEY", &cfg.Auth.AdminAPIKey)

	// Export archive
	envString("CONTACTBOX_EXPORT_BUCKET", &cfg.Export.Bucket)
	envString("CONTACTBOX_S3_ENDPOINT", &cfg.Export.Endpoint)
	envString("CONTACTBOX_S3_REGION", &cfg.Export.Region)
	envString("CONTACTBOX_S3_ACCESS_KEY", &cfg.Export.AccessKey)
	envString("CONTACTBOX_S3_SECRET_KEY", &cfg.Export.SecretKey)
	if v := os.Getenv("CONTACTBOX_S3_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Export.UseSSL = &b
		}
	}
	envDuration("CONTACTBOX_S3_URL_EXPIRY", &cfg.Export.URLExpiry)
	envDuration("CONTACTBOX_ARCHIVE_INTERVAL", &cfg.Export.ArchiveInterval)

	// Log
	envString("CONTACTBOX_LOG_LEVEL", &cfg.Log.Level)
	envString("CONTACTBOX_LOG_FORMAT", &cfg.Log.Format)
}

// validate checks that configuration values are usable.
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.TrustedProxies < 0 {
		return fmt.Errorf("server.trusted_proxies must not be negative")
	}

	l := c.Limits
	for name, v := range map[string]int{
		"name_max": l.NameMax, "email_max": l.EmailMax, "message_min": l.MessageMin,
		"message_max": l.MessageMax, "tags_max": l.TagsMax, "tag_max": l.TagMax,
		"list_default": l.ListDefault, "list_max": l.ListMax, "bulk_max_ids": l.BulkMaxIDs,
	} {
		if v <= 0 {
			return fmt.Errorf("limits.%s must be positive", name)
		}
	}
	if l.MessageMin > l.MessageMax {
		return errors.New("limits.message_min exceeds limits.message_max")
	}
	if l.ListDefault > l.ListMax {
		return errors.New("limits.list_default exceeds limits.list_max")
	}

	switch c.RateLimit.Backend {
	case "store":
	case "redis":
		if c.RateLimit.RedisAddr == "" {
			return errors.New("rate_limit.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown rate_limit.backend %q", c.RateLimit.Backend)
	}
	if c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate_limit.limit and rate_limit.window must be positive")
	}

	if _, err := c.Analytics.Location(); err != nil {
		return fmt.Errorf("analytics.timezone: %w", err)
	}

	switch c.Notify.Backend {
	case "log", "none":
	case "ses":
		if c.Notify.Recipient == "" || c.Notify.Sender == "" {
			return errors.New("notify.recipient and notify.sender are required for the ses backend")
		}
	default:
		return fmt.Errorf("unknown notify.backend %q", c.Notify.Backend)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log.level %q", c.Log.Level)
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
