package dashboard

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/tender-guard/internal/database"
)

type fakeSource struct {
	builds  atomic.Int32
	failOn  string
	alertOn time.Time
}

func (f *fakeSource) fail(part string) error {
	if f.failOn == part {
		return errors.New(part + " failed")
	}
	return nil
}

func (f *fakeSource) CountTenders(context.Context) (int, error) {
	f.builds.Add(1)
	return 4, f.fail("tenders")
}

func (f *fakeSource) CountActiveBids(context.Context) (int, error) { return 9, nil }

func (f *fakeSource) CountSuspiciousBids(context.Context) (int, error) { return 2, f.fail("suspicious") }

func (f *fakeSource) CountAlertsOn(_ context.Context, t time.Time) (int, error) {
	f.alertOn = t
	return 1, nil
}

func (f *fakeSource) TenderStatusDistribution(context.Context) (map[string]int, error) {
	return map[string]int{database.TenderStatusActive: 4}, nil
}

func (f *fakeSource) RiskDistribution(context.Context) ([]database.CountBucket, error) {
	return []database.CountBucket{{Label: database.RiskHigh, Count: 2}, {Label: database.RiskLow, Count: 7}}, nil
}

func (f *fakeSource) TenderValueDistribution(context.Context) ([]database.CountBucket, error) {
	return []database.CountBucket{{Label: "Under $100K", Count: 4}}, nil
}

func (f *fakeSource) RecentSuspiciousBids(_ context.Context, limit int) ([]database.SuspiciousBidSummary, error) {
	return []database.SuspiciousBidSummary{{ID: 3, CompanyName: "Shell Co", AnomalyScore: 0.1}}, nil
}

func (f *fakeSource) ActivityTimeline(_ context.Context, days int) ([]database.TimelinePoint, error) {
	return []database.TimelinePoint{{Date: "2024-06-01", TenderCount: 1, BidCount: 3}}, nil
}

func newTestService(t *testing.T, src *fakeSource) *Service {
	t.Helper()
	s := NewService(src, time.Minute)
	t.Cleanup(s.Close)
	return s
}

func TestStats_Aggregates(t *testing.T) {
	src := &fakeSource{}
	s := newTestService(t, src)
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	stats, cached, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)

	assert.Equal(t, 4, stats.TotalTenders)
	assert.Equal(t, 9, stats.ActiveBids)
	assert.Equal(t, 2, stats.SuspiciousFlags)
	assert.Equal(t, 1, stats.AlertsToday)
	assert.Equal(t, 4, stats.TenderStatusDistribution[database.TenderStatusActive])
	assert.Len(t, stats.SuspiciousScoreDistribution, 2)
	assert.Len(t, stats.RecentSuspiciousBids, 1)
	assert.Len(t, stats.TenderValueDistribution, 1)
	assert.Len(t, stats.ActivityTimeline, 1)
	assert.Equal(t, fixed, stats.GeneratedAt)
	assert.Equal(t, fixed, src.alertOn)
}

func TestStats_CachedUntilInvalidated(t *testing.T) {
	src := &fakeSource{}
	s := newTestService(t, src)

	_, cached, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)

	stats, cached, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 4, stats.TotalTenders)
	assert.Equal(t, int32(1), src.builds.Load())

	s.Invalidate()
	_, cached, err = s.Stats(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int32(2), src.builds.Load())
}

func TestStats_ErrorIsNotCached(t *testing.T) {
	tests := []struct {
		name   string
		failOn string
	}{
		{"count tenders", "tenders"},
		{"count suspicious", "suspicious"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{failOn: tt.failOn}
			s := newTestService(t, src)

			_, _, err := s.Stats(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.failOn+" failed")
			assert.Equal(t, 0, s.CacheStats()["total_items"])
		})
	}
}
