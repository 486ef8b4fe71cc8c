package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the dispatchkit.yaml configuration.
type Config struct {
	Strategies StrategiesConfig  `yaml:"strategies"`
	Settings   map[string]string `yaml:"settings"`
	Dispatch   DispatchConfig    `yaml:"dispatch"`
	Metrics    MetricsConfig     `yaml:"metrics"`
	Log        LogConfig         `yaml:"log"`
}

// StrategiesConfig lists the enabled strategy keys per family.
// A nil list enables every built-in strategy of that family; an empty list
// disables the family.
type StrategiesConfig struct {
	Payment []string `yaml:"payment"`
	Notify  []string `yaml:"notify"`
	Bonus   []string `yaml:"bonus"`
}

// DispatchConfig tunes the dispatchers.
type DispatchConfig struct {
	// RateLimit is dispatches per second across a family. Zero disables it.
	RateLimit        float64 `yaml:"rate_limit"`
	Burst            int     `yaml:"burst"`
	BatchConcurrency int     `yaml:"batch_concurrency"`
	// CacheInstances makes each registry reuse the first instance it builds
	// per key instead of building one per dispatch.
	CacheInstances bool `yaml:"cache_instances"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	Addr string `yaml:"addr"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

const (
	defaultBurst            = 1
	defaultBatchConcurrency = 4
	defaultLogLevel         = "info"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Settings: map[string]string{},
		Dispatch: DispatchConfig{
			Burst:            defaultBurst,
			BatchConcurrency: defaultBatchConcurrency,
		},
		Log: LogConfig{Level: defaultLogLevel},
	}
}

// Load reads a configuration file from the given path.
// Missing fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	// Ensure required defaults
	if cfg.Settings == nil {
		cfg.Settings = map[string]string{}
	}
	if cfg.Dispatch.Burst == 0 {
		cfg.Dispatch.Burst = defaultBurst
	}
	if cfg.Dispatch.BatchConcurrency == 0 {
		cfg.Dispatch.BatchConcurrency = defaultBatchConcurrency
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Dispatch.RateLimit < 0 {
		return fmt.Errorf("dispatch.rate_limit must not be negative, got %v", c.Dispatch.RateLimit)
	}
	if c.Dispatch.Burst < 1 {
		return fmt.Errorf("dispatch.burst must be at least 1, got %d", c.Dispatch.Burst)
	}
	if c.Dispatch.BatchConcurrency < 1 {
		return fmt.Errorf("dispatch.batch_concurrency must be at least 1, got %d", c.Dispatch.BatchConcurrency)
	}
	for k := range c.Settings {
		if k == "" {
			return fmt.Errorf("settings: empty key")
		}
	}
	return nil
}

// Enabled returns the configured key list for family. A nil result means
// every strategy of the family is enabled.
func (c *Config) Enabled(family string) []string {
	switch family {
	case "payment":
		return c.Strategies.Payment
	case "notify":
		return c.Strategies.Notify
	case "bonus":
		return c.Strategies.Bonus
	}
	return []string{}
}

// IsEnabled returns true if the strategy key of family is enabled.
// Keys compare case-insensitively.
func (c *Config) IsEnabled(family, key string) bool {
	list := c.Enabled(family)
	if list == nil {
		return true
	}
	return contains(list, key)
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
