package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "http://localhost:5000", cfg.CloudManager.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.GetTimeout())
	assert.Equal(t, time.Hour, cfg.GetCacheTTL())
	assert.Equal(t, []string{"1.0.0", "1.0.1", "1.1.0"}, cfg.Compatibility.Versions)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("CLOUDMANAGER_API_URL", "")
	t.Setenv("CLOUDMANAGER_TIMEOUT", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().CloudManager, cfg.CloudManager)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Setenv("CLOUDMANAGER_API_URL", "")
	t.Setenv("CLOUDMANAGER_TIMEOUT", "")
	t.Setenv("CLOUDMANAGER_COMPATIBLE_VERSIONS", "")

	path := filepath.Join(t.TempDir(), "chauffe.yaml")
	content := `
cloudmanager:
  base_url: https://cloudmanager.example.com
  timeout: 3s
compatibility:
  versions: ["2.0.0"]
logging:
  level: debug
  categories:
    compat: true
    store: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://cloudmanager.example.com", cfg.CloudManager.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.GetTimeout())
	assert.Equal(t, "MyChauffe-WebApp/1.0", cfg.CloudManager.UserAgent)
	assert.Equal(t, []string{"2.0.0"}, cfg.Compatibility.Versions)
	assert.False(t, cfg.Logging.Categories["store"])
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cloudmanager: [oops"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("CLOUDMANAGER_API_URL sets base url", func(t *testing.T) {
		t.Setenv("CLOUDMANAGER_API_URL", "http://remote:5000")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "http://remote:5000", cfg.CloudManager.BaseURL)
	})

	t.Run("bare seconds timeout", func(t *testing.T) {
		t.Setenv("CLOUDMANAGER_TIMEOUT", "30")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, 30*time.Second, cfg.GetTimeout())
	})

	t.Run("compatible versions list", func(t *testing.T) {
		t.Setenv("CLOUDMANAGER_COMPATIBLE_VERSIONS", "1.0.0, 1.2.0,,")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, []string{"1.0.0", "1.2.0"}, cfg.Compatibility.Versions)
	})

	t.Run("cache path and compat file", func(t *testing.T) {
		t.Setenv("CHAUFFE_CACHE_DB", "/tmp/x.db")
		t.Setenv("CHAUFFE_COMPAT_FILE", "/etc/chauffe/compat.yaml")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "/tmp/x.db", cfg.Cache.DatabasePath)
		assert.Equal(t, "/etc/chauffe/compat.yaml", cfg.Compatibility.File)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.CloudManager.BaseURL = "" }},
		{"non-http scheme", func(c *Config) { c.CloudManager.BaseURL = "ftp://host" }},
		{"no versions", func(c *Config) { c.Compatibility.Versions = nil }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"cache without path", func(c *Config) { c.Cache.DatabasePath = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGetters_FallBackOnGarbage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CloudManager.Timeout = "soon"
	cfg.Cache.TTL = "-1m"
	assert.Equal(t, 10*time.Second, cfg.GetTimeout())
	assert.Equal(t, time.Hour, cfg.GetCacheTTL())
}

func TestSave_RoundTrip(t *testing.T) {
	t.Setenv("CLOUDMANAGER_API_URL", "")
	t.Setenv("CLOUDMANAGER_COMPATIBLE_VERSIONS", "")
	path := filepath.Join(t.TempDir(), "nested", "chauffe.yaml")
	cfg := DefaultConfig()
	cfg.Compatibility.Versions = []string{"9.9.9"}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"9.9.9"}, loaded.Compatibility.Versions)
}
