package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/tender-guard/internal/analysis"
	"github.com/ZanzyTHEbar/tender-guard/internal/monitoring"
)

type fakeTrainer struct {
	mu       sync.Mutex
	calls    []bool
	release  chan struct{}
	started  chan struct{}
	response analysis.TrainingReport
}

func (f *fakeTrainer) Train(_ context.Context, retrain bool) analysis.TrainingReport {
	f.mu.Lock()
	f.calls = append(f.calls, retrain)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return f.response
}

func testLogger() *monitoring.Logger {
	return monitoring.NewLoggerTo(io.Discard, slog.LevelError)
}

func TestNewRetrainer_Schedules(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		wantErr  bool
	}{
		{"descriptor", "@daily", false},
		{"every", "@every 1h", false},
		{"five field", "0 3 * * *", false},
		{"garbage", "whenever", true},
		{"six field", "0 0 3 * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRetrainer(tt.schedule, &fakeTrainer{}, testLogger())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRunOnce_RetrainsAndReports(t *testing.T) {
	trainer := &fakeTrainer{response: analysis.TrainingReport{Success: true, ModelID: "m-1", NSamples: 40}}
	r, err := NewRetrainer("@daily", trainer, testLogger())
	require.NoError(t, err)

	var got analysis.TrainingReport
	r.OnComplete = func(report analysis.TrainingReport) { got = report }

	report, ran := r.RunOnce(context.Background())
	require.True(t, ran)
	assert.True(t, report.Success)
	assert.Equal(t, "m-1", got.ModelID)
	assert.Equal(t, []bool{true}, trainer.calls)
	assert.Equal(t, int64(1), r.Runs())
}

func TestRunOnce_SkipsWhileRunning(t *testing.T) {
	trainer := &fakeTrainer{
		release: make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	r, err := NewRetrainer("@daily", trainer, testLogger())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		r.RunOnce(context.Background())
		close(done)
	}()
	<-trainer.started

	_, ran := r.RunOnce(context.Background())
	assert.False(t, ran)

	close(trainer.release)
	<-done
	assert.Equal(t, int64(1), r.Runs())
}

func TestStartStop(t *testing.T) {
	r, err := NewRetrainer("@hourly", &fakeTrainer{}, testLogger())
	require.NoError(t, err)

	assert.True(t, r.Next().IsZero())
	r.Start()
	assert.WithinDuration(t, time.Now().Add(time.Hour), r.Next(), time.Hour)

	select {
	case <-r.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
