package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/replyguard/internal/domain/quota"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverValkey = "valkey"
	DriverRedis  = "redis"
)

// Config holds the replyguard configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Storage  StorageConfig  `yaml:"storage"`
	Quota    QuotaConfig    `yaml:"quota"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: determined by env)
	Format string `yaml:"format"` // json, console (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// StorageConfig holds the daily record backend settings.
type StorageConfig struct {
	Driver           string   `yaml:"driver"` // memory, sqlite, valkey, redis (default: sqlite)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	Path             string   `yaml:"path"` // sqlite file
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	RecordTTLHours   int      `yaml:"record_ttl_hours"`
}

// QuotaConfig holds the client-side quota limits.
type QuotaConfig struct {
	RequestsPerMinute      int    `yaml:"requests_per_minute"`
	RequestsPerDay         int    `yaml:"requests_per_day"`
	TokensPerMinute        int    `yaml:"tokens_per_minute"`
	ResponseTokenAllowance int    `yaml:"response_token_allowance"`
	ProcessingBuffer       int    `yaml:"processing_buffer"`
	CharsPerToken          int    `yaml:"chars_per_token"`
	WindowMS               int    `yaml:"window_ms"`
	Timezone               string `yaml:"timezone"`         // IANA name; empty = system local
	OnStorageError         string `yaml:"on_storage_error"` // "open" (default) | "closed"
	PollIntervalMS         int    `yaml:"poll_interval_ms"`
}

// UpstreamConfig holds the reply generation API settings.
type UpstreamConfig struct {
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// A .env file in the working directory, if present, is loaded into the
// process environment first.
func Load(env string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML config data, expanding ${VAR} references, then applies
// defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// Upstream generation can take most of a minute.
		c.HTTP.WriteTimeoutSec = 90
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/replyguard.db"
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "replyguard:"
	}
	if c.Storage.ReadinessTimeout <= 0 {
		c.Storage.ReadinessTimeout = 10
	}
	if c.Storage.RecordTTLHours <= 0 {
		c.Storage.RecordTTLHours = 48
	}

	q := &c.Quota
	if q.RequestsPerMinute <= 0 {
		q.RequestsPerMinute = quota.DefaultRequestsPerMinute
	}
	if q.RequestsPerDay <= 0 {
		q.RequestsPerDay = quota.DefaultRequestsPerDay
	}
	if q.TokensPerMinute <= 0 {
		q.TokensPerMinute = quota.DefaultTokensPerMinute
	}
	if q.ResponseTokenAllowance <= 0 {
		q.ResponseTokenAllowance = quota.DefaultResponseTokenAllowance
	}
	if q.ProcessingBuffer <= 0 {
		q.ProcessingBuffer = quota.DefaultProcessingBuffer
	}
	if q.CharsPerToken <= 0 {
		q.CharsPerToken = quota.DefaultCharsPerToken
	}
	if q.WindowMS <= 0 {
		q.WindowMS = int(quota.DefaultWindow / time.Millisecond)
	}
	if q.OnStorageError == "" {
		q.OnStorageError = "open"
	}
	if q.PollIntervalMS <= 0 {
		q.PollIntervalMS = 5000
	}

	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = "http://localhost:8081"
	}
	if c.Upstream.TimeoutSec <= 0 {
		c.Upstream.TimeoutSec = 60
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite:
	case DriverValkey, DriverRedis:
		if len(c.Storage.Addrs) == 0 {
			return fmt.Errorf("storage.addrs is required for driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("storage.driver must be one of memory, sqlite, valkey, redis, got %q", c.Storage.Driver)
	}

	switch c.Quota.OnStorageError {
	case "open", "closed":
	default:
		return fmt.Errorf("quota.on_storage_error must be \"open\" or \"closed\", got %q", c.Quota.OnStorageError)
	}

	if _, err := c.Quota.Location(); err != nil {
		return fmt.Errorf("quota.timezone: %w", err)
	}
	if err := c.Quota.Limits().Validate(); err != nil {
		return fmt.Errorf("quota: %w", err)
	}

	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be \"json\" or \"console\", got %q", c.Logging.Format)
	}

	if !strings.HasPrefix(c.Upstream.BaseURL, "http://") && !strings.HasPrefix(c.Upstream.BaseURL, "https://") {
		return fmt.Errorf("upstream.base_url must be an http(s) URL, got %q", c.Upstream.BaseURL)
	}
	return nil
}

// Limits converts the quota section to domain limits.
func (q QuotaConfig) Limits() quota.Limits {
	return quota.Limits{
		RequestsPerMinute:      q.RequestsPerMinute,
		RequestsPerDay:         q.RequestsPerDay,
		TokensPerMinute:        q.TokensPerMinute,
		ResponseTokenAllowance: q.ResponseTokenAllowance,
		ProcessingBuffer:       q.ProcessingBuffer,
		CharsPerToken:          q.CharsPerToken,
		Window:                 time.Duration(q.WindowMS) * time.Millisecond,
	}
}

// Location resolves the time zone that defines the calendar day.
func (q QuotaConfig) Location() (*time.Location, error) {
	if q.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(q.Timezone)
}

// PollInterval returns the usage poll interval.
func (q QuotaConfig) PollInterval() time.Duration {
	return time.Duration(q.PollIntervalMS) * time.Millisecond
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
