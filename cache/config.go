package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/semcache/errors"
)

// Config contains configuration for a cache manager.
type Config struct {
	// Name identifies the manager in logs, events and metric labels.
	Name string `json:"name" yaml:"name"`

	// DefaultIdleTime is the max idle time given to registered entities.
	// NoExpiry or any value <= 0 disables idle expiry.
	DefaultIdleTime time.Duration `json:"default_idle_time" yaml:"default_idle_time"`

	// DefaultTimeToLive is the max age given to registered entities.
	// NoExpiry or any value <= 0 disables TTL expiry.
	DefaultTimeToLive time.Duration `json:"default_time_to_live" yaml:"default_time_to_live"`

	// CleanupInterval is used by cleanup policies without their own frequency.
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`

	// Grouped marks the manager as holding group-aware entities; GetAll is
	// unavailable on a grouped manager.
	Grouped bool `json:"grouped" yaml:"grouped"`

	// AtomicGroup makes groups load and evict as a unit.
	AtomicGroup bool `json:"atomic_group" yaml:"atomic_group"`

	// Watermarks are exposed for management only and drive no eviction.
	HighWaterMark int `json:"high_water_mark" yaml:"high_water_mark"`
	Threshold     int `json:"threshold" yaml:"threshold"`
	LowWaterMark  int `json:"low_water_mark" yaml:"low_water_mark"`

	// Distributable and SyncCluster are informational flags for notifiers
	// that propagate events to peers.
	Distributable bool `json:"distributable" yaml:"distributable"`
	SyncCluster   bool `json:"sync_cluster" yaml:"sync_cluster"`
}

// DefaultConfig returns a lazily filled, ungrouped cache that never expires.
func DefaultConfig() Config {
	return Config{
		Name:              "default",
		DefaultIdleTime:   NoExpiry,
		DefaultTimeToLive: NoExpiry,
		CleanupInterval:   time.Minute,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "cache", "Validate", "name is required")
	}
	if c.CleanupInterval <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
			fmt.Sprintf("cleanup_interval must be positive, got %v", c.CleanupInterval))
	}
	if c.HighWaterMark < 0 || c.Threshold < 0 || c.LowWaterMark < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
			fmt.Sprintf("watermarks must not be negative, got %d/%d/%d",
				c.HighWaterMark, c.Threshold, c.LowWaterMark))
	}
	return nil
}

// expiryPolicy picks the built-in policy matching the configured defaults,
// or nil when neither expiry is enabled.
func (c Config) expiryPolicy() CleanupPolicy {
	idle := c.DefaultIdleTime > 0
	ttl := c.DefaultTimeToLive > 0
	switch {
	case idle && ttl:
		return NewExpiredPolicy(c.CleanupInterval)
	case idle:
		return NewIdleTimePolicy(c.CleanupInterval)
	case ttl:
		return NewTimeToLivePolicy(c.CleanupInterval)
	default:
		return nil
	}
}

// ParseConfig decodes a YAML (or JSON) document over DefaultConfig and
// validates the result. Durations are written as "30s" or "5m".
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"cache", "ParseConfig", "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.WrapInvalid(err, "cache", "LoadConfig", fmt.Sprintf("read %s", path))
	}
	return ParseConfig(data)
}

// UnmarshalJSON implements custom JSON unmarshaling for Config to support
// duration strings (e.g., "1h", "5m", "30s") in addition to nanosecond integers.
func (c *Config) UnmarshalJSON(data []byte) error {
	// Use an alias to avoid infinite recursion
	type Alias Config

	aux := &struct {
		DefaultIdleTime   json.RawMessage `json:"default_idle_time,omitempty"`
		DefaultTimeToLive json.RawMessage `json:"default_time_to_live,omitempty"`
		CleanupInterval   json.RawMessage `json:"cleanup_interval,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	fields := []struct {
		raw  json.RawMessage
		name string
		dst  *time.Duration
	}{
		{aux.DefaultIdleTime, "default_idle_time", &c.DefaultIdleTime},
		{aux.DefaultTimeToLive, "default_time_to_live", &c.DefaultTimeToLive},
		{aux.CleanupInterval, "cleanup_interval", &c.CleanupInterval},
	}
	for _, f := range fields {
		if len(f.raw) == 0 {
			continue
		}
		d, err := parseDurationField(f.raw, f.name)
		if err != nil {
			return err
		}
		*f.dst = d
	}

	return nil
}

// parseDurationField parses a JSON duration field that can be either:
// - An integer (nanoseconds) for backward compatibility
// - A string (duration like "1h", "5m", "30s")
func parseDurationField(data json.RawMessage, fieldName string) (time.Duration, error) {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		duration, err := time.ParseDuration(str)
		if err != nil {
			return 0, fmt.Errorf("invalid duration string for %s: %w", fieldName, err)
		}
		return duration, nil
	}

	var nsec int64
	if err := json.Unmarshal(data, &nsec); err != nil {
		return 0, fmt.Errorf("field %s must be either a duration string (e.g., '1h') or integer nanoseconds", fieldName)
	}
	return time.Duration(nsec), nil
}
