package engine

import (
	"sync"
	"time"

	"github.com/ftahirops/xdiag/model"
)

// ComponentHistory keeps a capped, time-bounded series per component.
type ComponentHistory struct {
	mu        sync.RWMutex
	series    map[model.ComponentType][]model.ComponentHealth
	capacity  int
	retention time.Duration
}

// NewComponentHistory creates a history holding at most capacity entries per
// component, none older than retention.
func NewComponentHistory(capacity int, retention time.Duration) *ComponentHistory {
	if capacity < 1 {
		capacity = 1
	}
	return &ComponentHistory{
		series:    make(map[model.ComponentType][]model.ComponentHealth),
		capacity:  capacity,
		retention: retention,
	}
}

// Append records h and prunes that component's series.
func (ch *ComponentHistory) Append(h model.ComponentHealth) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	s := append(ch.series[h.Component], h)
	if len(s) > ch.capacity {
		s = s[len(s)-ch.capacity:]
	}
	ch.series[h.Component] = pruneBefore(s, h.Timestamp.Add(-ch.retention))
}

// Prune drops entries older than now-retention across all components.
func (ch *ComponentHistory) Prune(now time.Time) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	cutoff := now.Add(-ch.retention)
	for c, s := range ch.series {
		ch.series[c] = pruneBefore(s, cutoff)
	}
}

// Get returns a copy of the series for c, oldest first.
func (ch *ComponentHistory) Get(c model.ComponentType) []model.ComponentHealth {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	s := ch.series[c]
	out := make([]model.ComponentHealth, len(s))
	copy(out, s)
	return out
}

func pruneBefore(s []model.ComponentHealth, cutoff time.Time) []model.ComponentHealth {
	i := 0
	for i < len(s) && s[i].Timestamp.Before(cutoff) {
		i++
	}
	if i == 0 {
		return s
	}
	out := make([]model.ComponentHealth, len(s)-i)
	copy(out, s[i:])
	return out
}
