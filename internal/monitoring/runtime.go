package monitoring

import (
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

const mb = 1024 * 1024

// RuntimeSample is one reading of the Go runtime
type RuntimeSample struct {
	HeapAlloc     uint64    `json:"heap_alloc_bytes"`
	HeapInuse     uint64    `json:"heap_inuse_bytes"`
	HeapObjects   uint64    `json:"heap_objects"`
	Sys           uint64    `json:"sys_bytes"`
	NumGC         uint32    `json:"num_gc"`
	GCCPUFraction float64   `json:"gc_cpu_fraction"`
	NumGoroutine  int       `json:"num_goroutine"`
	Timestamp     time.Time `json:"timestamp"`
}

// RuntimeMonitor samples heap and goroutine counts. Forest training is the
// allocation-heavy path; a heap above the soft limit is logged so operators
// can size MaxSamples and the tree count.
type RuntimeMonitor struct {
	interval   time.Duration
	softLimit  uint64
	maxHistory int
	logger     *Logger

	mu       sync.RWMutex
	latest   RuntimeSample
	peakHeap uint64
	history  []RuntimeSample

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRuntimeMonitor creates a monitor that warns when the heap passes softLimit.
// Zero disables the warning.
func NewRuntimeMonitor(interval time.Duration, softLimit uint64, logger *Logger) *RuntimeMonitor {
	return &RuntimeMonitor{
		interval:   interval,
		softLimit:  softLimit,
		maxHistory: 60,
		logger:     logger,
		stop:       make(chan struct{}),
	}
}

// ApplyLimit hands the soft limit to the runtime so the GC works harder
// before the heap reaches it.
func (rm *RuntimeMonitor) ApplyLimit() {
	if rm.softLimit > 0 {
		debug.SetMemoryLimit(int64(rm.softLimit))
	}
}

// Start samples immediately and then every interval
func (rm *RuntimeMonitor) Start() {
	rm.Sample()

	go func() {
		ticker := time.NewTicker(rm.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rm.Sample()
			case <-rm.stop:
				slog.Info("Runtime monitoring stopped")
				return
			}
		}
	}()
}

// Stop stops sampling
func (rm *RuntimeMonitor) Stop() {
	rm.stopOnce.Do(func() { close(rm.stop) })
}

// Sample reads the runtime now and records the reading
func (rm *RuntimeMonitor) Sample() RuntimeSample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s := RuntimeSample{
		HeapAlloc:     ms.HeapAlloc,
		HeapInuse:     ms.HeapInuse,
		HeapObjects:   ms.HeapObjects,
		Sys:           ms.Sys,
		NumGC:         ms.NumGC,
		GCCPUFraction: ms.GCCPUFraction,
		NumGoroutine:  runtime.NumGoroutine(),
		Timestamp:     time.Now(),
	}

	rm.mu.Lock()
	rm.latest = s
	if s.HeapAlloc > rm.peakHeap {
		rm.peakHeap = s.HeapAlloc
	}
	rm.history = append(rm.history, s)
	if len(rm.history) > rm.maxHistory {
		rm.history = rm.history[1:]
	}
	rm.mu.Unlock()

	if rm.softLimit > 0 && s.HeapAlloc > rm.softLimit {
		rm.logger.PerformanceLogger("heap_over_soft_limit", float64(s.HeapAlloc)/mb, "MB")
		rm.logger.SystemLogger("runtime_pressure", fmt.Sprintf(
			"heap:%dMB limit:%dMB goroutines:%d", s.HeapAlloc/mb, rm.softLimit/mb, s.NumGoroutine))
	}

	return s
}

// GetStats returns the latest reading and derived figures
func (rm *RuntimeMonitor) GetStats() map[string]interface{} {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	heapGrowth := int64(0)
	if len(rm.history) >= 2 {
		heapGrowth = int64(rm.history[len(rm.history)-1].HeapAlloc) - int64(rm.history[0].HeapAlloc)
	}

	return map[string]interface{}{
		"heap_alloc_mb":   rm.latest.HeapAlloc / mb,
		"heap_inuse_mb":   rm.latest.HeapInuse / mb,
		"sys_mb":          rm.latest.Sys / mb,
		"peak_heap_mb":    rm.peakHeap / mb,
		"heap_growth_mb":  heapGrowth / mb,
		"num_gc":          rm.latest.NumGC,
		"gc_cpu_fraction": rm.latest.GCCPUFraction,
		"num_goroutine":   rm.latest.NumGoroutine,
		"soft_limit_mb":   rm.softLimit / mb,
		"samples":         len(rm.history),
	}
}

// History returns a copy of the recent readings, oldest first
func (rm *RuntimeMonitor) History() []RuntimeSample {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	out := make([]RuntimeSample, len(rm.history))
	copy(out, rm.history)
	return out
}
