// ABOUTME: Configuration loading and parsing for cognee-mcp
// ABOUTME: Supports YAML files with environment variable expansion, env overrides, and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when neither the config file nor the environment sets a value.
const (
	DefaultBaseURL         = "http://localhost:8000"
	DefaultProtocolVersion = "2024-11-05"
	DefaultServerName      = "cognee-mcp-server"
	DefaultServerVersion   = "2.0.0"
)

// Config represents the complete cognee-mcp configuration.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Server   ServerConfig   `yaml:"server"`
	Features FeaturesConfig `yaml:"features"`
	Logging  LoggingConfig  `yaml:"logging"`
	History  HistoryConfig  `yaml:"history"`
}

// APIConfig holds connection settings for the upstream knowledge-graph API.
type APIConfig struct {
	BaseURL            string `yaml:"base_url"`
	Key                string `yaml:"key"`
	KeyHeader          string `yaml:"key_header"`
	KeyScheme          string `yaml:"key_scheme"`
	Email              string `yaml:"email"`
	Password           string `yaml:"password"`
	MaxRetries         int    `yaml:"max_retries"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`

	Timeout    time.Duration `yaml:"-"`
	RetryDelay time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TimeoutRaw    string `yaml:"timeout"`
	RetryDelayRaw string `yaml:"retry_delay"`
}

// ServerConfig holds MCP protocol and dispatch settings.
type ServerConfig struct {
	ProtocolVersion       string `yaml:"protocol_version"`
	Name                  string `yaml:"name"`
	Version               string `yaml:"version"`
	MaxConcurrentRequests int    `yaml:"max_concurrent_requests"`

	RequestTimeout time.Duration `yaml:"-"`

	RequestTimeoutRaw string `yaml:"request_timeout"`
}

// FeaturesConfig gates whole tool packs. All features default to enabled.
type FeaturesConfig struct {
	TimeAwareness     bool `yaml:"time_awareness"`
	OntologySupport   bool `yaml:"ontology_support"`
	AsyncMemory       bool `yaml:"async_memory"`
	SelfImproving     bool `yaml:"self_improving"`
	AdvancedAnalytics bool `yaml:"advanced_analytics"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HistoryConfig holds the tool-call history store configuration.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	MaxRows int    `yaml:"max_rows"`
}

// DefaultPath returns the config file location.
// Priority: COGNEE_MCP_CONFIG env var > XDG_CONFIG_HOME/cognee-mcp/config.yaml > ~/.config/cognee-mcp/config.yaml
func DefaultPath() string {
	if envPath := os.Getenv("COGNEE_MCP_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "cognee-mcp", "config.yaml")
}

// DefaultDataPath returns the state directory for the history database.
// Priority: XDG_DATA_HOME/cognee-mcp > ~/.local/share/cognee-mcp
func DefaultDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "cognee-mcp")
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:            DefaultBaseURL,
			KeyHeader:          "Authorization",
			KeyScheme:          "Bearer",
			Timeout:            180 * time.Second,
			MaxRetries:         3,
			RetryDelay:         time.Second,
			RateLimitPerMinute: 60,
		},
		Server: ServerConfig{
			ProtocolVersion:       DefaultProtocolVersion,
			Name:                  DefaultServerName,
			Version:               DefaultServerVersion,
			MaxConcurrentRequests: 10,
			RequestTimeout:        60 * time.Second,
		},
		Features: FeaturesConfig{
			TimeAwareness:     true,
			OntologySupport:   true,
			AsyncMemory:       true,
			SelfImproving:     true,
			AdvancedAnalytics: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    filepath.Join(DefaultDataPath(), "history.db"),
			MaxRows: 10000,
		},
	}
}

// Load reads the configuration file at path, expands ${VAR} references,
// applies environment overrides (env always wins), and validates the result.
// A missing file is not an error: the defaults plus environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case os.IsNotExist(err):
		// pure env/default configuration
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.API.TimeoutRaw != "" {
		cfg.API.Timeout, err = time.ParseDuration(cfg.API.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing api.timeout %q: %w", cfg.API.TimeoutRaw, err)
		}
	}

	if cfg.API.RetryDelayRaw != "" {
		cfg.API.RetryDelay, err = time.ParseDuration(cfg.API.RetryDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing api.retry_delay %q: %w", cfg.API.RetryDelayRaw, err)
		}
	}

	if cfg.Server.RequestTimeoutRaw != "" {
		cfg.Server.RequestTimeout, err = time.ParseDuration(cfg.Server.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing server.request_timeout %q: %w", cfg.Server.RequestTimeoutRaw, err)
		}
	}

	return nil
}

// applyEnvOverrides applies environment variables on top of file values.
func (c *Config) applyEnvOverrides() {
	setString(&c.API.BaseURL, "COGNEE_API_URL")
	setString(&c.API.Key, "COGNEE_API_KEY")
	setString(&c.API.KeyHeader, "COGNEE_API_KEY_HEADER")
	setString(&c.API.KeyScheme, "COGNEE_API_KEY_SCHEME")
	setString(&c.API.Email, "COGNEE_API_EMAIL")
	setString(&c.API.Password, "COGNEE_API_PASSWORD")
	setDuration(&c.API.Timeout, "COGNEE_TIMEOUT")
	setInt(&c.API.MaxRetries, "COGNEE_MAX_RETRIES")
	setDuration(&c.API.RetryDelay, "COGNEE_RETRY_DELAY")
	setInt(&c.API.RateLimitPerMinute, "RATE_LIMIT_REQUESTS_PER_MINUTE")

	setString(&c.Server.ProtocolVersion, "MCP_PROTOCOL_VERSION")
	setString(&c.Server.Name, "MCP_SERVER_NAME")
	setString(&c.Server.Version, "MCP_SERVER_VERSION")
	setInt(&c.Server.MaxConcurrentRequests, "MCP_MAX_CONCURRENT_REQUESTS")
	setDuration(&c.Server.RequestTimeout, "MCP_REQUEST_TIMEOUT")

	setBool(&c.Features.TimeAwareness, "FEATURE_TIME_AWARENESS")
	setBool(&c.Features.OntologySupport, "FEATURE_ONTOLOGY_SUPPORT")
	setBool(&c.Features.AsyncMemory, "FEATURE_ASYNC_MEMORY")
	setBool(&c.Features.SelfImproving, "FEATURE_SELF_IMPROVING")
	setBool(&c.Features.AdvancedAnalytics, "FEATURE_ADVANCED_ANALYTICS")

	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")

	setBool(&c.History.Enabled, "HISTORY_ENABLED")
	setString(&c.History.Path, "HISTORY_PATH")
	setInt(&c.History.MaxRows, "HISTORY_MAX_ROWS")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// setDuration accepts Go duration strings; bare integers are read as seconds
// for compatibility with COGNEE_TIMEOUT=180 style values.
func setDuration(dst *time.Duration, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url %q is not a valid URL", c.API.BaseURL)
	}

	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("api.max_retries must not be negative")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive")
	}
	if c.Server.MaxConcurrentRequests < 1 {
		return fmt.Errorf("server.max_concurrent_requests must be at least 1")
	}
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}

	// Key and email+password may both be configured; the static key wins.
	return nil
}

// AuthConfigured reports whether any upstream credentials are available.
func (c *Config) AuthConfigured() bool {
	return c.API.Key != "" || (c.API.Email != "" && c.API.Password != "")
}

// Sanitized returns the active configuration with secrets masked,
// for the config://settings resource.
func (c *Config) Sanitized() map[string]any {
	return map[string]any{
		"api": map[string]any{
			"base_url":              c.API.BaseURL,
			"key":                   mask(c.API.Key),
			"key_header":            c.API.KeyHeader,
			"key_scheme":            c.API.KeyScheme,
			"email":                 c.API.Email,
			"password":              mask(c.API.Password),
			"timeout":               c.API.Timeout.String(),
			"max_retries":           c.API.MaxRetries,
			"retry_delay":           c.API.RetryDelay.String(),
			"rate_limit_per_minute": c.API.RateLimitPerMinute,
		},
		"server": map[string]any{
			"protocol_version":        c.Server.ProtocolVersion,
			"name":                    c.Server.Name,
			"version":                 c.Server.Version,
			"max_concurrent_requests": c.Server.MaxConcurrentRequests,
			"request_timeout":         c.Server.RequestTimeout.String(),
		},
		"features": map[string]any{
			"time_awareness":     c.Features.TimeAwareness,
			"ontology_support":   c.Features.OntologySupport,
			"async_memory":       c.Features.AsyncMemory,
			"self_improving":     c.Features.SelfImproving,
			"advanced_analytics": c.Features.AdvancedAnalytics,
		},
		"logging": map[string]any{
			"level":  c.Logging.Level,
			"format": c.Logging.Format,
		},
		"history": map[string]any{
			"enabled":  c.History.Enabled,
			"path":     c.History.Path,
			"max_rows": c.History.MaxRows,
		},
	}
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + "****"
}
