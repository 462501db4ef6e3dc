package resilience

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// HealthLevel grades a dependency by its recent check failure rate
type HealthLevel int

const (
	LevelHealthy HealthLevel = iota
	LevelDegraded
	LevelCritical
	LevelDown
)

func (l HealthLevel) String() string {
	switch l {
	case LevelHealthy:
		return "healthy"
	case LevelDegraded:
		return "degraded"
	case LevelCritical:
		return "critical"
	case LevelDown:
		return "down"
	default:
		return "unknown"
	}
}

// MarshalText renders the level by name in JSON
func (l HealthLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Overall service status derived from dependency levels
const (
	StatusOK          = "ok"
	StatusDegraded    = "degraded"
	StatusUnavailable = "unavailable"
)

// HealthConfig holds configuration for dependency health tracking
type HealthConfig struct {
	CheckInterval     time.Duration `json:"check_interval"`
	CheckTimeout      time.Duration `json:"check_timeout"`
	Window            int           `json:"window"`             // outcomes kept per dependency
	DegradedThreshold float64       `json:"degraded_threshold"` // failure rate, 0.0-1.0
	CriticalThreshold float64       `json:"critical_threshold"`
}

// DefaultHealthConfig returns sensible defaults
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		CheckInterval:     30 * time.Second,
		CheckTimeout:      5 * time.Second,
		Window:            10,
		DegradedThreshold: 0.2,
		CriticalThreshold: 0.5,
	}
}

// HealthCheckFunc reports whether a dependency answers
type HealthCheckFunc func(ctx context.Context) error

// DependencyHealth is the reported state of one dependency
type DependencyHealth struct {
	Name          string      `json:"name"`
	Required      bool        `json:"required"`
	Level         HealthLevel `json:"level"`
	FailureRate   float64     `json:"failure_rate"`
	Samples       int         `json:"samples"`
	LastError     string      `json:"last_error,omitempty"`
	LastChecked   time.Time   `json:"last_checked"`
	DegradedSince *time.Time  `json:"degraded_since,omitempty"`
}

type dependency struct {
	health   DependencyHealth
	check    HealthCheckFunc
	outcomes []bool // true = failure, newest last
}

// HealthMonitor tracks the database, Redis, model and webhook dependencies.
// A required dependency that is down makes the whole service unavailable;
// anything else short of healthy only degrades it.
type HealthMonitor struct {
	config HealthConfig
	mu     sync.RWMutex
	deps   map[string]*dependency
	now    func() time.Time
}

// NewHealthMonitor creates a health monitor
func NewHealthMonitor(config HealthConfig) *HealthMonitor {
	if config.Window <= 0 {
		config.Window = DefaultHealthConfig().Window
	}
	return &HealthMonitor{
		config: config,
		deps:   make(map[string]*dependency),
		now:    time.Now,
	}
}

// Register adds a dependency. check may be nil for dependencies that are
// only fed through Record.
func (hm *HealthMonitor) Register(name string, required bool, check HealthCheckFunc) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.deps[name] = &dependency{
		health: DependencyHealth{Name: name, Required: required, Level: LevelHealthy},
		check:  check,
	}
	slog.Info("Registered dependency for health tracking", "dependency", name, "required", required)
}

// Record feeds one outcome for name; a nil err is a success
func (hm *HealthMonitor) Record(name string, err error) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	dep, ok := hm.deps[name]
	if !ok {
		return
	}

	dep.outcomes = append(dep.outcomes, err != nil)
	if len(dep.outcomes) > hm.config.Window {
		dep.outcomes = dep.outcomes[len(dep.outcomes)-hm.config.Window:]
	}

	now := hm.now()
	dep.health.LastChecked = now
	dep.health.Samples = len(dep.outcomes)
	if err != nil {
		dep.health.LastError = err.Error()
	}

	failures := 0
	for _, failed := range dep.outcomes {
		if failed {
			failures++
		}
	}
	dep.health.FailureRate = float64(failures) / float64(len(dep.outcomes))

	hm.updateLevel(dep, err != nil, now)
}

func (hm *HealthMonitor) updateLevel(dep *dependency, lastFailed bool, now time.Time) {
	old := dep.health.Level
	rate := dep.health.FailureRate

	var level HealthLevel
	switch {
	case lastFailed && rate >= 1.0:
		level = LevelDown
	case rate >= hm.config.CriticalThreshold:
		level = LevelCritical
	case rate >= hm.config.DegradedThreshold:
		level = LevelDegraded
	default:
		level = LevelHealthy
	}

	if level == LevelHealthy {
		dep.health.DegradedSince = nil
		dep.health.LastError = ""
	} else if dep.health.DegradedSince == nil {
		since := now
		dep.health.DegradedSince = &since
	}
	dep.health.Level = level

	if old != level {
		slog.Warn("Dependency health level changed",
			"dependency", dep.health.Name,
			"old_level", old.String(),
			"new_level", level.String(),
			"failure_rate", rate)
	}
}

// CheckAll runs every registered check concurrently and waits for them
func (hm *HealthMonitor) CheckAll(ctx context.Context) {
	hm.mu.RLock()
	checks := make(map[string]HealthCheckFunc, len(hm.deps))
	for name, dep := range hm.deps {
		if dep.check != nil {
			checks[name] = dep.check
		}
	}
	hm.mu.RUnlock()

	var wg sync.WaitGroup
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check HealthCheckFunc) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, hm.config.CheckTimeout)
			defer cancel()
			hm.Record(name, check(checkCtx))
		}(name, check)
	}
	wg.Wait()
}

// Start checks all dependencies now and then every CheckInterval until ctx
// is done.
func (hm *HealthMonitor) Start(ctx context.Context) {
	go func() {
		hm.CheckAll(ctx)

		ticker := time.NewTicker(hm.config.CheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				hm.CheckAll(ctx)
			}
		}
	}()
}

// Get returns the state of one dependency
func (hm *HealthMonitor) Get(name string) (DependencyHealth, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	dep, ok := hm.deps[name]
	if !ok {
		return DependencyHealth{}, false
	}
	return dep.health, true
}

// IsAvailable reports whether name is registered and not down
func (hm *HealthMonitor) IsAvailable(name string) bool {
	h, ok := hm.Get(name)
	return ok && h.Level != LevelDown
}

// Snapshot returns every dependency, sorted by name
func (hm *HealthMonitor) Snapshot() []DependencyHealth {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	out := make([]DependencyHealth, 0, len(hm.deps))
	for _, dep := range hm.deps {
		out = append(out, dep.health)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Overall folds the dependency levels into one service status
func (hm *HealthMonitor) Overall() string {
	status := StatusOK
	for _, h := range hm.Snapshot() {
		if h.Required && h.Level == LevelDown {
			return StatusUnavailable
		}
		if h.Level != LevelHealthy {
			status = StatusDegraded
		}
	}
	return status
}
