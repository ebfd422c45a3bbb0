package tuner

import (
	"fmt"
	"sort"
	"sync"
)

// Tunable parameter names.
const (
	ParamCacheSizeMB        = "cache_size_mb"
	ParamGCTargetPercent    = "gc_target_percent"
	ParamWorkerThreads      = "worker_threads"
	ParamBatchSize          = "batch_size"
	ParamPoolSize           = "connection_pool_size"
	ParamConnTimeoutMs      = "connection_timeout_ms"
	ParamKeepAliveSec       = "keepalive_seconds"
	ParamCompressionLevel   = "compression_level"
	ParamSamplingIntervalMs = "sampling_interval_ms"
	ParamRequestBatching    = "request_batching"
)

// paramBounds holds the accepted [min, max] range of each parameter.
var paramBounds = map[string][2]float64{
	ParamCacheSizeMB:        {16, 4096},
	ParamGCTargetPercent:    {25, 400},
	ParamWorkerThreads:      {1, 256},
	ParamBatchSize:          {1, 1024},
	ParamPoolSize:           {1, 512},
	ParamConnTimeoutMs:      {100, 60000},
	ParamKeepAliveSec:       {1, 600},
	ParamCompressionLevel:   {1, 9},
	ParamSamplingIntervalMs: {100, 60000},
	ParamRequestBatching:    {0, 1},
}

// DefaultParameters is the starting configuration of a fresh store.
func DefaultParameters() map[string]float64 {
	return map[string]float64{
		ParamCacheSizeMB:        256,
		ParamGCTargetPercent:    100,
		ParamWorkerThreads:      8,
		ParamBatchSize:          32,
		ParamPoolSize:           20,
		ParamConnTimeoutMs:      5000,
		ParamKeepAliveSec:       30,
		ParamCompressionLevel:   6,
		ParamSamplingIntervalMs: 1000,
		ParamRequestBatching:    0,
	}
}

// ParameterStore holds the live tunables. Every apply returns the values it
// replaced so the change can be reverted.
type ParameterStore struct {
	mu     sync.RWMutex
	values map[string]float64
}

// NewParameterStore starts from DefaultParameters overlaid with initial.
func NewParameterStore(initial map[string]float64) *ParameterStore {
	v := DefaultParameters()
	for k, x := range initial {
		v[k] = x
	}
	return &ParameterStore{values: v}
}

// Apply sets every parameter in changes or none of them. It returns the
// previous values of the changed keys.
func (s *ParameterStore) Apply(changes map[string]float64) (map[string]float64, error) {
	keys := sortedKeys(changes)
	for _, k := range keys {
		if err := validateParam(k, changes[k]); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := make(map[string]float64, len(changes))
	for _, k := range keys {
		prev[k] = s.values[k]
		s.values[k] = changes[k]
	}
	return prev, nil
}

// Restore writes prev back without validation; it only ever carries values
// the store previously held.
func (s *ParameterStore) Restore(prev map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range prev {
		s.values[k] = v
	}
}

// Get returns one parameter.
func (s *ParameterStore) Get(name string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Snapshot returns a copy of every parameter.
func (s *ParameterStore) Snapshot() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func validateParam(name string, v float64) error {
	b, ok := paramBounds[name]
	if !ok {
		return fmt.Errorf("unknown parameter %q", name)
	}
	if v < b[0] || v > b[1] {
		return fmt.Errorf("parameter %s=%g outside [%g, %g]", name, v, b[0], b[1])
	}
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
