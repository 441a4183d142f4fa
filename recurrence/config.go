package recurrence

import (
	"time"
)

// CacheConfig holds configuration for the occurrence cache
type CacheConfig struct {
	TTL             time.Duration // How long entries stay valid
	MaxEntries      int           // Maximum number of entries before cleanup
	CleanupInterval time.Duration // How often to run cleanup
}

// DefaultCacheConfig suits a station with a few dozen schedules
var DefaultCacheConfig = CacheConfig{
	TTL:             15 * time.Minute,
	MaxEntries:      1000,
	CleanupInterval: 5 * time.Minute,
}

// LowMemoryCacheConfig keeps few, short lived entries
var LowMemoryCacheConfig = CacheConfig{
	TTL:             5 * time.Minute,
	MaxEntries:      100,
	CleanupInterval: 2 * time.Minute,
}

func (c CacheConfig) withDefaults() CacheConfig {
	if c.TTL <= 0 {
		c.TTL = DefaultCacheConfig.TTL
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultCacheConfig.MaxEntries
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCacheConfig.CleanupInterval
	}
	return c
}
