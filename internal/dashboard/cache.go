package dashboard

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/tender-guard/internal/cache"
)

const statsKey = "dashboard:stats"

// StatsCache keeps the encoded dashboard payload
type StatsCache struct {
	cache *cache.Cache
}

// NewStatsCache creates a new dashboard cache
func NewStatsCache(ttl time.Duration) *StatsCache {
	return &StatsCache{
		cache: cache.NewCache(ttl),
	}
}

// Get retrieves the cached payload
func (sc *StatsCache) Get() (*Stats, bool) {
	data, found := sc.cache.Get(statsKey)
	if !found {
		return nil, false
	}

	var stats Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		slog.Error("Failed to unmarshal cached dashboard data", "error", err)
		sc.cache.Delete(statsKey)
		return nil, false
	}

	slog.Debug("Dashboard cache hit")
	return &stats, true
}

// Set caches the payload
func (sc *StatsCache) Set(stats *Stats) {
	data, err := json.Marshal(stats)
	if err != nil {
		slog.Error("Failed to marshal dashboard data for cache", "error", err)
		return
	}

	sc.cache.Set(statsKey, data)
}

// Invalidate drops the cached payload
func (sc *StatsCache) Invalidate() {
	sc.cache.Delete(statsKey)
}

// Close stops the underlying cache sweeper
func (sc *StatsCache) Close() {
	sc.cache.Close()
}

// GetStats returns cache statistics
func (sc *StatsCache) GetStats() map[string]interface{} {
	return sc.cache.Stats()
}
