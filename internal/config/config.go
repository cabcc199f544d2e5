package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all chauffe configuration.
type Config struct {
	// CloudManager service connection
	CloudManager CloudManagerConfig `yaml:"cloudmanager"`

	// Versions of CloudManager this build is known to work with
	Compatibility CompatibilityConfig `yaml:"compatibility"`

	// Profile summary cache
	Cache CacheConfig `yaml:"cache"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// CloudManagerConfig configures the CloudManager API client.
type CloudManagerConfig struct {
	BaseURL   string `yaml:"base_url"`
	Timeout   string `yaml:"timeout"`
	UserAgent string `yaml:"user_agent"`
	// Max concurrent detail fetches when building an owner summary
	MaxConcurrency int `yaml:"max_concurrency"`
}

// CompatibilityConfig lists compatible CloudManager versions. Versions are
// exact strings, not ranges. When File is set it is loaded on top of Versions
// and watched for changes.
type CompatibilityConfig struct {
	Versions []string `yaml:"versions"`
	File     string   `yaml:"file"`
}

// CacheConfig configures the SQLite profile cache.
type CacheConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
	TTL          string `yaml:"ttl"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, text
	File       string          `yaml:"file"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		CloudManager: CloudManagerConfig{
			BaseURL:        "http://localhost:5000",
			Timeout:        "10s",
			UserAgent:      "MyChauffe-WebApp/1.0",
			MaxConcurrency: 4,
		},

		Compatibility: CompatibilityConfig{
			Versions: []string{"1.0.0", "1.0.1", "1.1.0"},
		},

		Cache: CacheConfig{
			Enabled:      true,
			DatabasePath: "data/chauffe-cache.db",
			TTL:          "1h",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if u := os.Getenv("CLOUDMANAGER_API_URL"); u != "" {
		c.CloudManager.BaseURL = u
	}
	if t := os.Getenv("CLOUDMANAGER_TIMEOUT"); t != "" {
		// The Django settings used bare seconds; accept both forms.
		if _, err := time.ParseDuration(t); err != nil {
			t += "s"
		}
		c.CloudManager.Timeout = t
	}
	if v := os.Getenv("CLOUDMANAGER_COMPATIBLE_VERSIONS"); v != "" {
		c.Compatibility.Versions = splitList(v)
	}
	if f := os.Getenv("CHAUFFE_COMPAT_FILE"); f != "" {
		c.Compatibility.File = f
	}
	if p := os.Getenv("CHAUFFE_CACHE_DB"); p != "" {
		c.Cache.DatabasePath = p
	}
	if l := os.Getenv("CHAUFFE_LOG_LEVEL"); l != "" {
		c.Logging.Level = l
	}
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

// GetTimeout returns the CloudManager request timeout as a duration.
func (c *Config) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.CloudManager.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// GetCacheTTL returns the profile cache TTL as a duration.
func (c *Config) GetCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// ValidLogLevels lists accepted logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.CloudManager.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid cloudmanager base_url: %q", c.CloudManager.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("cloudmanager base_url must be http or https, got %q", u.Scheme)
	}

	if len(c.Compatibility.Versions) == 0 && c.Compatibility.File == "" {
		return fmt.Errorf("no compatible CloudManager versions configured (set compatibility.versions or compatibility.file)")
	}

	if c.Logging.Level != "" {
		valid := false
		for _, l := range ValidLogLevels {
			if c.Logging.Level == l {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid logging level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
		}
	}

	if c.Cache.Enabled && c.Cache.DatabasePath == "" {
		return fmt.Errorf("cache enabled but cache.database_path is empty")
	}

	return nil
}
