package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ZanzyTHEbar/tender-guard/internal/analysis"
	"github.com/ZanzyTHEbar/tender-guard/internal/monitoring"
)

const defaultRunTimeout = 10 * time.Minute

// Trainer runs one training pass. analysis.Trainer satisfies it.
type Trainer interface {
	Train(ctx context.Context, retrain bool) analysis.TrainingReport
}

// Retrainer refits the model on stored bids on a cron schedule. Runs never
// overlap; a tick that fires while a run is in progress is skipped.
type Retrainer struct {
	cron     *cron.Cron
	entry    cron.EntryID
	schedule string
	trainer  Trainer
	logger   *monitoring.Logger
	timeout  time.Duration
	running  atomic.Bool
	runs     atomic.Int64

	// OnComplete, when set, receives every finished report
	OnComplete func(analysis.TrainingReport)
}

// NewRetrainer parses schedule (standard five-field spec or a descriptor
// such as @daily) and registers the job. Call Start to begin.
func NewRetrainer(schedule string, trainer Trainer, logger *monitoring.Logger) (*Retrainer, error) {
	r := &Retrainer{
		schedule: schedule,
		trainer:  trainer,
		logger:   logger,
		timeout:  defaultRunTimeout,
	}

	cronLogger := cronLogAdapter{logger: logger}
	r.cron = cron.New(cron.WithLogger(cronLogger), cron.WithChain(cron.Recover(cronLogger)))

	id, err := r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		r.RunOnce(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid retrain schedule %q: %w", schedule, err)
	}
	r.entry = id

	return r, nil
}

// Start begins the schedule in its own goroutine
func (r *Retrainer) Start() {
	r.cron.Start()
	r.logger.SystemLogger("retrain_scheduler_started", fmt.Sprintf("schedule=%s next=%s", r.schedule, r.Next().Format(time.RFC3339)))
}

// Stop halts the schedule; the returned context is done once a running
// job has finished.
func (r *Retrainer) Stop() context.Context {
	return r.cron.Stop()
}

// Next returns the next scheduled run, zero before Start
func (r *Retrainer) Next() time.Time {
	return r.cron.Entry(r.entry).Next
}

// Runs returns the number of completed runs
func (r *Retrainer) Runs() int64 {
	return r.runs.Load()
}

// RunOnce retrains immediately. It returns false without training when a
// run is already in progress.
func (r *Retrainer) RunOnce(ctx context.Context) (analysis.TrainingReport, bool) {
	if !r.running.CompareAndSwap(false, true) {
		r.logger.Warn("Scheduled retrain skipped, previous run still in progress")
		return analysis.TrainingReport{}, false
	}
	defer r.running.Store(false)

	start := time.Now()
	report := r.trainer.Train(ctx, true)
	r.runs.Add(1)

	r.logger.TrainingLogger(report.ModelID, report.NSamples, report.NOutliersDetected,
		report.UsedSyntheticData, report.ModelSaved, time.Since(start), report.Error)

	if r.OnComplete != nil {
		r.OnComplete(report)
	}
	return report, true
}

// cronLogAdapter routes cron's own logging into the structured logger
type cronLogAdapter struct {
	logger *monitoring.Logger
}

func (a cronLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug("cron: "+msg, keysAndValues...)
}

func (a cronLogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
