package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ZanzyTHEbar/tender-guard/internal/database"
)

const (
	recentSuspiciousLimit = 10
	timelineDays          = 30
)

// Stats is the dashboard payload
type Stats struct {
	TotalTenders                int                             `json:"total_tenders"`
	ActiveBids                  int                             `json:"active_bids"`
	SuspiciousFlags             int                             `json:"suspicious_flags"`
	AlertsToday                 int                             `json:"alerts_today"`
	TenderStatusDistribution    map[string]int                  `json:"tender_status_distribution"`
	SuspiciousScoreDistribution []database.CountBucket          `json:"suspicious_score_distribution"`
	RecentSuspiciousBids        []database.SuspiciousBidSummary `json:"recent_suspicious_bids"`
	TenderValueDistribution     []database.CountBucket          `json:"tender_value_distribution"`
	ActivityTimeline            []database.TimelinePoint        `json:"activity_timeline"`
	GeneratedAt                 time.Time                       `json:"generated_at"`
}

// Source is the repository surface the dashboard aggregates.
// database.Repository satisfies it.
type Source interface {
	CountTenders(ctx context.Context) (int, error)
	CountActiveBids(ctx context.Context) (int, error)
	CountSuspiciousBids(ctx context.Context) (int, error)
	CountAlertsOn(ctx context.Context, t time.Time) (int, error)
	TenderStatusDistribution(ctx context.Context) (map[string]int, error)
	RiskDistribution(ctx context.Context) ([]database.CountBucket, error)
	TenderValueDistribution(ctx context.Context) ([]database.CountBucket, error)
	RecentSuspiciousBids(ctx context.Context, limit int) ([]database.SuspiciousBidSummary, error)
	ActivityTimeline(ctx context.Context, days int) ([]database.TimelinePoint, error)
}

// Service builds dashboard aggregates and keeps the last result cached
type Service struct {
	source Source
	cache  *StatsCache
	now    func() time.Time
}

// NewService creates a dashboard service with a cache of the given TTL
func NewService(source Source, ttl time.Duration) *Service {
	return NewServiceWithCache(source, NewStatsCache(ttl))
}

// NewServiceWithCache creates a dashboard service with a custom cache
func NewServiceWithCache(source Source, cache *StatsCache) *Service {
	return &Service{
		source: source,
		cache:  cache,
		now:    time.Now,
	}
}

// Invalidate drops the cached aggregates. Writes to tenders, bids or
// alerts call this.
func (s *Service) Invalidate() {
	s.cache.Invalidate()
}

// Close releases the cache
func (s *Service) Close() {
	s.cache.Close()
}

// CacheStats returns cache statistics
func (s *Service) CacheStats() map[string]interface{} {
	return s.cache.GetStats()
}

// Stats returns the dashboard aggregates, from cache when fresh
func (s *Service) Stats(ctx context.Context) (*Stats, bool, error) {
	if stats, ok := s.cache.Get(); ok {
		return stats, true, nil
	}

	stats, err := s.build(ctx)
	if err != nil {
		return nil, false, err
	}

	s.cache.Set(stats)
	return stats, false, nil
}

// build runs the aggregate queries concurrently; any failure fails the
// whole payload.
func (s *Service) build(ctx context.Context) (*Stats, error) {
	start := time.Now()
	now := s.now()
	stats := &Stats{GeneratedAt: now.UTC()}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		stats.TotalTenders, err = s.source.CountTenders(gctx)
		return wrap("total_tenders", err)
	})
	g.Go(func() (err error) {
		stats.ActiveBids, err = s.source.CountActiveBids(gctx)
		return wrap("active_bids", err)
	})
	g.Go(func() (err error) {
		stats.SuspiciousFlags, err = s.source.CountSuspiciousBids(gctx)
		return wrap("suspicious_flags", err)
	})
	g.Go(func() (err error) {
		stats.AlertsToday, err = s.source.CountAlertsOn(gctx, now)
		return wrap("alerts_today", err)
	})
	g.Go(func() (err error) {
		stats.TenderStatusDistribution, err = s.source.TenderStatusDistribution(gctx)
		return wrap("tender_status_distribution", err)
	})
	g.Go(func() (err error) {
		stats.SuspiciousScoreDistribution, err = s.source.RiskDistribution(gctx)
		return wrap("suspicious_score_distribution", err)
	})
	g.Go(func() (err error) {
		stats.RecentSuspiciousBids, err = s.source.RecentSuspiciousBids(gctx, recentSuspiciousLimit)
		return wrap("recent_suspicious_bids", err)
	})
	g.Go(func() (err error) {
		stats.TenderValueDistribution, err = s.source.TenderValueDistribution(gctx)
		return wrap("tender_value_distribution", err)
	})
	g.Go(func() (err error) {
		stats.ActivityTimeline, err = s.source.ActivityTimeline(gctx, timelineDays)
		return wrap("activity_timeline", err)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Debug("Dashboard aggregates built", "duration", time.Since(start))
	return stats, nil
}

func wrap(part string, err error) error {
	if err != nil {
		return fmt.Errorf("dashboard %s: %w", part, err)
	}
	return nil
}
