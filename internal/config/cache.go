package config

import (
	"strings"
	"time"
)

// CacheConfig defines settings for the response cache middleware, which is
// mounted on public listing reads. When Enabled is false or no Redis client
// is configured, caching is disabled.
//
// Cached pages go stale when listings change; TTL bounds that staleness
// and live subscriptions are the way to see writes immediately. Entries are
// also dropped eagerly when a listing write is published, see
// middleware.InvalidateCache.
type CacheConfig struct {
	Enabled      bool
	TTL          time.Duration
	KeyStrategy  string // "route" or "route_query"
	Prefix       string
	MaxBodyBytes int
}

// LoadCacheConfig reads environment variables to build a CacheConfig.
func LoadCacheConfig() CacheConfig {
	cfg := CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		TTL:          envDur("CACHE_TTL", 30*time.Second),
		KeyStrategy:  strings.ToLower(envStr("CACHE_KEY_STRATEGY", "route_query")),
		Prefix:       envStr("CACHE_PREFIX", "cache"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return cfg
}
