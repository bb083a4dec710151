package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semcache/errors"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"defaults", func(*Config) {}, nil},
		{"missing name", func(c *Config) { c.Name = "" }, errors.ErrMissingConfig},
		{"zero interval", func(c *Config) { c.CleanupInterval = 0 }, errors.ErrInvalidConfig},
		{"negative watermark", func(c *Config) { c.LowWaterMark = -1 }, errors.ErrInvalidConfig},
		{"no expiry is valid", func(c *Config) { c.DefaultIdleTime, c.DefaultTimeToLive = 0, NoExpiry }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestConfig_ExpiryPolicy(t *testing.T) {
	cfg := DefaultConfig()
	assert.Nil(t, cfg.expiryPolicy())

	cfg.DefaultIdleTime = time.Minute
	p := cfg.expiryPolicy()
	require.NotNil(t, p)
	assert.Equal(t, "idle-time", p.Name())
	assert.Equal(t, cfg.CleanupInterval, p.Frequency())

	cfg.DefaultTimeToLive = time.Hour
	assert.Equal(t, "expired", cfg.expiryPolicy().Name())

	cfg.DefaultIdleTime = NoExpiry
	assert.Equal(t, "time-to-live", cfg.expiryPolicy().Name())
}

func TestConfig_UnmarshalJSON(t *testing.T) {
	data := []byte(`{
		"name": "letters",
		"default_idle_time": "30s",
		"default_time_to_live": 3600000000000,
		"cleanup_interval": "5m",
		"grouped": true,
		"atomic_group": true,
		"high_water_mark": 100
	}`)

	cfg := DefaultConfig()
	require.NoError(t, json.Unmarshal(data, &cfg))

	assert.Equal(t, "letters", cfg.Name)
	assert.Equal(t, 30*time.Second, cfg.DefaultIdleTime)
	assert.Equal(t, time.Hour, cfg.DefaultTimeToLive)
	assert.Equal(t, 5*time.Minute, cfg.CleanupInterval)
	assert.True(t, cfg.Grouped)
	assert.True(t, cfg.AtomicGroup)
	assert.Equal(t, 100, cfg.HighWaterMark)
}

func TestConfig_UnmarshalJSON_KeepsUnsetDurations(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, json.Unmarshal([]byte(`{"name":"x"}`), &cfg))
	assert.Equal(t, NoExpiry, cfg.DefaultIdleTime)
	assert.Equal(t, time.Minute, cfg.CleanupInterval)
}

func TestConfig_UnmarshalJSON_BadDuration(t *testing.T) {
	cfg := DefaultConfig()

	err := json.Unmarshal([]byte(`{"cleanup_interval":"soon"}`), &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cleanup_interval")

	err = json.Unmarshal([]byte(`{"default_idle_time":true}`), &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_idle_time")
}

func TestParseConfig_YAML(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
name: staff
default_idle_time: 45s
cleanup_interval: 10s
grouped: true
distributable: true
`))
	require.NoError(t, err)

	assert.Equal(t, "staff", cfg.Name)
	assert.Equal(t, 45*time.Second, cfg.DefaultIdleTime)
	assert.Equal(t, NoExpiry, cfg.DefaultTimeToLive, "unset fields keep their defaults")
	assert.Equal(t, 10*time.Second, cfg.CleanupInterval)
	assert.True(t, cfg.Grouped)
	assert.True(t, cfg.Distributable)
}

func TestParseConfig_Errors(t *testing.T) {
	_, err := ParseConfig([]byte("name: [unterminated"))
	assert.ErrorIs(t, err, errors.ErrParsingFailed)

	_, err = ParseConfig([]byte("name: \"\""))
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	_, err = ParseConfig([]byte("cleanup_interval: 0s"))
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: from-file\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Name)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}
