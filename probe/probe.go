// Package probe supplies raw resource and per-component samples to the
// diagnostics engine.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ftahirops/xdiag/model"
)

// ErrNoSource is returned for a component nothing reports metrics for.
var ErrNoSource = errors.New("no metrics source for component")

// ResourceProbe reads host resources. Reads may be expensive; callers cache
// the result per tick.
type ResourceProbe interface {
	CPUPercent(ctx context.Context) (float64, error)
	Memory(ctx context.Context) (usedMB, totalMB float64, err error)
	NetworkLatency(ctx context.Context) (float64, error)
	BatteryPercent(ctx context.Context) (float64, error)
	ThreadCount(ctx context.Context) (int, error)
	DiskPercent(ctx context.Context) (float64, error)
}

// ComponentMetricsSource returns raw metrics for one component kind.
type ComponentMetricsSource interface {
	ComponentMetrics(ctx context.Context, c model.ComponentType) (map[string]float64, error)
}

// Ticker is implemented by sources that advance or flush once per sampling
// tick (replay and record).
type Ticker interface {
	Tick()
}

// Read samples every resource from p. Fields whose read failed keep the value
// from prev, so a transient failure leaves the tick with stale data; the
// joined error reports what failed.
func Read(ctx context.Context, p ResourceProbe, prev model.ResourceUsage) (model.ResourceUsage, error) {
	if t, ok := p.(Ticker); ok {
		t.Tick()
	}
	out := prev
	out.Timestamp = time.Now()
	var errs []error

	if v, err := p.CPUPercent(ctx); err != nil {
		errs = append(errs, fmt.Errorf("cpu: %w", err))
	} else {
		out.CPUPercent = v
	}
	if used, total, err := p.Memory(ctx); err != nil {
		errs = append(errs, fmt.Errorf("memory: %w", err))
	} else {
		out.MemoryUsedMB, out.MemoryTotalMB = used, total
	}
	if v, err := p.NetworkLatency(ctx); err != nil {
		errs = append(errs, fmt.Errorf("network latency: %w", err))
	} else {
		out.NetworkLatencyMs = v
	}
	if v, err := p.BatteryPercent(ctx); err != nil {
		errs = append(errs, fmt.Errorf("battery: %w", err))
	} else {
		out.BatteryPercent = v
	}
	if v, err := p.ThreadCount(ctx); err != nil {
		errs = append(errs, fmt.Errorf("threads: %w", err))
	} else {
		out.ThreadCount = v
	}
	if v, err := p.DiskPercent(ctx); err != nil {
		errs = append(errs, fmt.Errorf("disk: %w", err))
	} else {
		out.DiskPercent = v
	}
	return out, errors.Join(errs...)
}
