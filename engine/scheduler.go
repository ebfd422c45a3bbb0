package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ftahirops/xdiag/logging"
)

// Task is one periodic unit of work.
type Task struct {
	Name     string
	Delay    time.Duration // before the first run
	Interval time.Duration
	Once     bool
	Run      func(ctx context.Context) error
}

// Scheduler runs tasks as independent loops. A failing or panicking run is
// logged at ERROR and the loop carries on after its normal interval.
type Scheduler struct {
	log     logging.Sink
	metrics *Metrics

	mu    sync.Mutex
	tasks []Task

	inFlight atomic.Int64
	runs     atomic.Int64
	failures atomic.Int64
	lastNs   atomic.Int64
	started  atomic.Int64
}

// NewScheduler creates an empty scheduler. metrics may be nil.
func NewScheduler(sink logging.Sink, metrics *Metrics) *Scheduler {
	return &Scheduler{log: logging.Safe(sink), metrics: metrics}
}

// Add registers a task. Tasks added after Run starts are ignored.
func (s *Scheduler) Add(t Task) {
	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()
}

// Run starts every task and blocks until ctx is done and all loops exit.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	tasks := append([]Task(nil), s.tasks...)
	s.mu.Unlock()
	s.started.Store(time.Now().UnixNano())

	var g errgroup.Group
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			s.loop(ctx, t)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	wait := t.Delay
	for {
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return
		}
		s.runOnce(ctx, t)
		if t.Once {
			return
		}
		wait = t.Interval
		if wait <= 0 {
			wait = time.Second
		}
	}
}

// runOnce executes one run of t, turning a panic into an error.
func (s *Scheduler) runOnce(ctx context.Context, t Task) {
	s.inFlight.Add(1)
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return t.Run(ctx)
	}()
	elapsed := time.Since(start)
	s.inFlight.Add(-1)
	s.runs.Add(1)
	s.lastNs.Store(elapsed.Nanoseconds())

	failed := err != nil && ctx.Err() == nil
	if failed {
		s.failures.Add(1)
		s.log.LogEvent(logging.LevelError, "scheduler", t.Name, "task failed", map[string]string{
			"error": err.Error(),
		})
	}
	if s.metrics != nil {
		s.metrics.ObserveTask(t.Name, elapsed.Seconds(), failed)
	}
}

// PipelineMetrics reports the scheduler as the PIPELINE component: runs in
// flight against the task count, failure share, last run time and runs per
// minute.
func (s *Scheduler) PipelineMetrics(context.Context) (map[string]float64, error) {
	s.mu.Lock()
	n := len(s.tasks)
	s.mu.Unlock()

	runs := float64(s.runs.Load())
	var errRate, perMin float64
	if runs > 0 {
		errRate = float64(s.failures.Load()) / runs
	}
	if st := s.started.Load(); st > 0 {
		if mins := time.Since(time.Unix(0, st)).Minutes(); mins > 0 {
			perMin = runs / mins
		}
	}
	return map[string]float64{
		"queue_depth":      float64(s.inFlight.Load()),
		"max_queue_depth":  float64(n),
		"error_rate":       errRate,
		"response_time_ms": float64(s.lastNs.Load()) / 1e6,
		"throughput":       perMin,
	}, nil
}
