package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ftahirops/xdiag/logging"
)

func TestSchedulerRunsTasks(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	m := NewMetrics()
	s := NewScheduler(logging.NewZapSink(zap.New(core)), m)

	var once, periodic, panics atomic.Int64
	s.Add(Task{Name: "once", Once: true, Run: func(context.Context) error {
		once.Add(1)
		return nil
	}})
	s.Add(Task{Name: "tick", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
		periodic.Add(1)
		return nil
	}})
	s.Add(Task{Name: "boom", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
		panics.Add(1)
		panic("nil map")
	}})
	s.Add(Task{Name: "late", Delay: time.Hour, Run: func(context.Context) error {
		return errors.New("should never run")
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	assert.Equal(t, int64(1), once.Load())
	assert.Greater(t, periodic.Load(), int64(1))
	assert.Greater(t, panics.Load(), int64(1), "loop survives a panic")

	failed := logs.FilterMessage("task failed").All()
	require.NotEmpty(t, failed)
	for _, e := range failed {
		assert.Equal(t, "boom", e.ContextMap()["component"])
	}
	errs := testutil.ToFloat64(m.taskErrors.WithLabelValues("boom"))
	assert.Greater(t, errs, 0.0)
	assert.LessOrEqual(t, errs, float64(panics.Load()))

	pm, err := s.PipelineMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4.0, pm["max_queue_depth"])
	assert.Equal(t, 0.0, pm["queue_depth"])
	assert.Greater(t, pm["error_rate"], 0.0)
	assert.Less(t, pm["error_rate"], 1.0)
	assert.Greater(t, pm["throughput"], 0.0)
}

func TestSchedulerCancelledErrorNotLogged(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := NewScheduler(logging.NewZapSink(zap.New(core)), nil)
	ctx, cancel := context.WithCancel(context.Background())
	s.Add(Task{Name: "slow", Once: true, Run: func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}})
	require.NoError(t, s.Run(ctx))
	assert.Zero(t, logs.FilterMessage("task failed").Len())
}

func TestPipelineMetricsBeforeRun(t *testing.T) {
	s := NewScheduler(nil, nil)
	pm, err := s.PipelineMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, pm["error_rate"])
	assert.Equal(t, 0.0, pm["throughput"])
}
