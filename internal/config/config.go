// Package config loads the onair configuration file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cyp0633/libonair/recurrence"
	yaml "go.yaml.in/yaml/v3"
)

type Config struct {
	Timezone string        `json:"timezone"`
	Storage  StorageConfig `json:"storage"`
	Log      LogConfig     `json:"log"`
	Cache    CacheConfig   `json:"cache"`
}

type StorageConfig struct {
	Driver string `json:"driver"` // memory, sqlite or postgres
	DSN    string `json:"dsn"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type CacheConfig struct {
	Enabled         bool   `json:"enabled"`
	TTL             string `json:"ttl"`
	MaxEntries      int    `json:"max_entries"`
	CleanupInterval string `json:"cleanup_interval"`
}

// Default is used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Timezone) == "" {
		c.Timezone = "UTC"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate checks values that Load cannot default.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.Storage.Driver {
	case "memory":
	case "sqlite", "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("storage.dsn: required for driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries: must be >= 0")
	}
	if _, err := c.CacheSettings(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}

// CacheSettings converts the cache section for recurrence.NewCache. Empty
// durations fall back to recurrence.DefaultCacheConfig.
func (c *Config) CacheSettings() (recurrence.CacheConfig, error) {
	def := recurrence.DefaultCacheConfig
	ttl, err := ParseDurationOrDefault("cache.ttl", c.Cache.TTL, def.TTL)
	if err != nil {
		return recurrence.CacheConfig{}, err
	}
	interval, err := ParseDurationOrDefault("cache.cleanup_interval", c.Cache.CleanupInterval, def.CleanupInterval)
	if err != nil {
		return recurrence.CacheConfig{}, err
	}
	entries := c.Cache.MaxEntries
	if entries <= 0 {
		entries = def.MaxEntries
	}
	return recurrence.CacheConfig{TTL: ttl, MaxEntries: entries, CleanupInterval: interval}, nil
}

// Load reads a YAML or JSON file. Unknown fields are rejected.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(path, b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data as YAML when path ends in .yaml or .yml, otherwise as
// JSON. Both go through the same strict JSON decoder.
func Parse(path string, data []byte) (*Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var err error
		if data, err = yamlToJSON(data); err != nil {
			return nil, err
		}
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			err = errors.New("unexpected data after the configuration object")
		}
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// yamlToJSON re-encodes a YAML document as JSON. An empty document is {}.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}
	if doc == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(stringKeys(doc))
}

// stringKeys rewrites non-string mapping keys, which encoding/json rejects.
func stringKeys(v any) any {
	switch node := v.(type) {
	case map[string]any:
		for k, child := range node {
			node[k] = stringKeys(child)
		}
		return node
	case map[any]any:
		out := make(map[string]any, len(node))
		for k, child := range node {
			out[fmt.Sprint(k)] = stringKeys(child)
		}
		return out
	case []any:
		for i, child := range node {
			node[i] = stringKeys(child)
		}
		return node
	}
	return v
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
