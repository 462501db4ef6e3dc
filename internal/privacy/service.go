package privacy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const cleanupSchedule = "@daily"

// AuditStore is the slice of the repository retention needs
type AuditStore interface {
	DeleteAuditLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service enforces the audit log retention window. Audit entries carry
// client IPs and user agents, so they are not kept forever.
type Service struct {
	store     AuditStore
	retention time.Duration
	now       func() time.Time

	mu          sync.Mutex
	lastCleanup time.Time
	lastDeleted int64
	cron        *cron.Cron
	entry       cron.EntryID
}

// NewService creates a retention service. retentionDays <= 0 keeps entries forever.
func NewService(store AuditStore, retentionDays int) *Service {
	return &Service{
		store:     store,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Enabled reports whether a retention window is set
func (s *Service) Enabled() bool {
	return s.retention > 0
}

// Cleanup deletes audit entries older than the retention window
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}

	cutoff := s.now().Add(-s.retention)
	deleted, err := s.store.DeleteAuditLogsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.lastCleanup = s.now()
	s.lastDeleted = deleted
	s.mu.Unlock()

	slog.Info("Audit retention cleanup completed", "cutoff", cutoff.Format(time.RFC3339), "deleted", deleted)
	return deleted, nil
}

// Start runs Cleanup now and then at midnight UTC every day until ctx is done
func (s *Service) Start(ctx context.Context) {
	if !s.Enabled() {
		return
	}

	c := cron.New(cron.WithLocation(time.UTC))
	id, err := c.AddFunc(cleanupSchedule, func() { s.runCleanup(ctx) })
	if err != nil {
		slog.Error("Failed to schedule audit retention cleanup", "schedule", cleanupSchedule, "error", err)
		return
	}

	s.mu.Lock()
	s.cron, s.entry = c, id
	s.mu.Unlock()

	c.Start()
	go func() {
		s.runCleanup(ctx)
		<-ctx.Done()
		<-c.Stop().Done()
	}()
}

func (s *Service) runCleanup(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.Cleanup(ctx); err != nil && ctx.Err() == nil {
		slog.Warn("Audit retention cleanup failed", "error", err)
	}
}

// RetentionInfo describes the retention policy and the last run
func (s *Service) RetentionInfo() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := map[string]interface{}{
		"audit_retention_days": int(s.retention / (24 * time.Hour)),
		"enabled":              s.Enabled(),
		"last_deleted":         s.lastDeleted,
	}
	if !s.lastCleanup.IsZero() {
		info["last_cleanup"] = s.lastCleanup.Format(time.RFC3339)
	}
	if s.cron != nil {
		if next := s.cron.Entry(s.entry).Next; !next.IsZero() {
			info["next_cleanup"] = next.Format(time.RFC3339)
		}
	}
	return info
}
