package probe

import (
	"context"
	"sync"

	"github.com/ftahirops/xdiag/model"
)

// Static is a settable probe and metrics source. Tests and demos drive the
// engine through it.
type Static struct {
	mu         sync.RWMutex
	usage      model.ResourceUsage
	components map[model.ComponentType]map[string]float64
	failing    map[model.ComponentType]error
	resErr     error
}

// NewStatic returns a probe reporting usage and no component metrics.
func NewStatic(usage model.ResourceUsage) *Static {
	return &Static{
		usage:      usage,
		components: make(map[model.ComponentType]map[string]float64),
		failing:    make(map[model.ComponentType]error),
	}
}

// SetUsage replaces all resource readings.
func (s *Static) SetUsage(u model.ResourceUsage) {
	s.mu.Lock()
	s.usage = u
	s.mu.Unlock()
}

// Update mutates the current readings in place.
func (s *Static) Update(fn func(u *model.ResourceUsage)) {
	s.mu.Lock()
	fn(&s.usage)
	s.mu.Unlock()
}

// Usage returns the current readings.
func (s *Static) Usage() model.ResourceUsage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage
}

// SetComponent sets raw metrics for one component.
func (s *Static) SetComponent(c model.ComponentType, metrics map[string]float64) {
	cp := make(map[string]float64, len(metrics))
	for k, v := range metrics {
		cp[k] = v
	}
	s.mu.Lock()
	s.components[c] = cp
	delete(s.failing, c)
	s.mu.Unlock()
}

// FailComponent makes reads for c return err until SetComponent is called.
func (s *Static) FailComponent(c model.ComponentType, err error) {
	s.mu.Lock()
	s.failing[c] = err
	s.mu.Unlock()
}

// FailResources makes every resource read return err; nil clears it.
func (s *Static) FailResources(err error) {
	s.mu.Lock()
	s.resErr = err
	s.mu.Unlock()
}

func (s *Static) read() (model.ResourceUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage, s.resErr
}

func (s *Static) CPUPercent(context.Context) (float64, error) {
	u, err := s.read()
	return u.CPUPercent, err
}

func (s *Static) Memory(context.Context) (float64, float64, error) {
	u, err := s.read()
	return u.MemoryUsedMB, u.MemoryTotalMB, err
}

func (s *Static) NetworkLatency(context.Context) (float64, error) {
	u, err := s.read()
	return u.NetworkLatencyMs, err
}

func (s *Static) BatteryPercent(context.Context) (float64, error) {
	u, err := s.read()
	return u.BatteryPercent, err
}

func (s *Static) ThreadCount(context.Context) (int, error) {
	u, err := s.read()
	return u.ThreadCount, err
}

func (s *Static) DiskPercent(context.Context) (float64, error) {
	u, err := s.read()
	return u.DiskPercent, err
}

func (s *Static) ComponentMetrics(_ context.Context, c model.ComponentType) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err, ok := s.failing[c]; ok {
		return nil, err
	}
	m, ok := s.components[c]
	if !ok {
		return nil, ErrNoSource
	}
	cp := make(map[string]float64, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp, nil
}
