// ABOUTME: Configuration loading and parsing for vpd-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete vpd-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// StorageConfig selects and configures the artifact storage backend
type StorageConfig struct {
	// Backend is "sqlite" (local artifacts + metadata) or "supabase"
	Backend  string         `yaml:"backend"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Supabase SupabaseConfig `yaml:"supabase"`
}

// SQLiteConfig holds the local storage backend configuration
type SQLiteConfig struct {
	Path        string `yaml:"path"`
	ArtifactDir string `yaml:"artifact_dir"`
}

// SupabaseConfig holds the hosted storage backend configuration
type SupabaseConfig struct {
	ProjectURL string `yaml:"project_url"`
	APIKey     string `yaml:"api_key"`
	Bucket     string `yaml:"bucket"`
}

// AnalysisConfig holds the analysis service endpoint configuration
type AnalysisConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// AlertsConfig holds the risk-score alert thresholds
type AlertsConfig struct {
	MediumThreshold float64 `yaml:"medium_threshold"`
	HighThreshold   float64 `yaml:"high_threshold"`
}

// BroadcastConfig holds event fan-out configuration
type BroadcastConfig struct {
	HeartbeatInterval time.Duration `yaml:"-"`

	HeartbeatIntervalRaw string `yaml:"heartbeat_interval"`
}

// SessionsConfig holds session lifecycle configuration
type SessionsConfig struct {
	// TTL force-finalizes sessions idle this long; empty or "0" disables
	TTL          time.Duration `yaml:"-"`
	ReapInterval time.Duration `yaml:"-"`

	TTLRaw          string `yaml:"ttl"`
	ReapIntervalRaw string `yaml:"reap_interval"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in values the file may omit.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "sqlite"
	}
	if c.Storage.SQLite.Path == "" {
		c.Storage.SQLite.Path = "vpd.db"
	}
	if c.Storage.SQLite.ArtifactDir == "" {
		c.Storage.SQLite.ArtifactDir = "artifacts"
	}
	if c.Storage.Supabase.Bucket == "" {
		c.Storage.Supabase.Bucket = "audio-chunks"
	}
	if c.Alerts.MediumThreshold == 0 {
		c.Alerts.MediumThreshold = 0.6
	}
	if c.Alerts.HighThreshold == 0 {
		c.Alerts.HighThreshold = 0.8
	}
	if c.Broadcast.HeartbeatInterval == 0 {
		c.Broadcast.HeartbeatInterval = time.Second
	}
	if c.Sessions.ReapInterval == 0 {
		c.Sessions.ReapInterval = 30 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "sqlite":
		// Paths have defaults, nothing further to require
	case "supabase":
		if c.Storage.Supabase.ProjectURL == "" {
			return fmt.Errorf("storage.supabase.project_url is required for the supabase backend")
		}
		if c.Storage.Supabase.APIKey == "" {
			return fmt.Errorf("storage.supabase.api_key is required for the supabase backend")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", "sqlite", "supabase", c.Storage.Backend)
	}

	if c.Analysis.Endpoint == "" {
		return fmt.Errorf("analysis.endpoint is required")
	}

	if c.Alerts.MediumThreshold <= 0 || c.Alerts.MediumThreshold >= 1 {
		return fmt.Errorf("alerts.medium_threshold must be in (0, 1), got %g", c.Alerts.MediumThreshold)
	}
	if c.Alerts.HighThreshold <= c.Alerts.MediumThreshold || c.Alerts.HighThreshold >= 1 {
		return fmt.Errorf("alerts.high_threshold must be in (medium_threshold, 1), got %g", c.Alerts.HighThreshold)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Analysis.TimeoutRaw != "" {
		cfg.Analysis.Timeout, err = time.ParseDuration(cfg.Analysis.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing analysis timeout %q: %w", cfg.Analysis.TimeoutRaw, err)
		}
	}

	if cfg.Broadcast.HeartbeatIntervalRaw != "" {
		cfg.Broadcast.HeartbeatInterval, err = time.ParseDuration(cfg.Broadcast.HeartbeatIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing heartbeat_interval %q: %w", cfg.Broadcast.HeartbeatIntervalRaw, err)
		}
	}

	if cfg.Sessions.TTLRaw != "" {
		cfg.Sessions.TTL, err = time.ParseDuration(cfg.Sessions.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing sessions ttl %q: %w", cfg.Sessions.TTLRaw, err)
		}
	}

	if cfg.Sessions.ReapIntervalRaw != "" {
		cfg.Sessions.ReapInterval, err = time.ParseDuration(cfg.Sessions.ReapIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sessions reap_interval %q: %w", cfg.Sessions.ReapIntervalRaw, err)
		}
	}

	return nil
}
