package engine

import (
	"sync"
	"time"

	"github.com/ftahirops/xdiag/model"
)

// WatchdogTrigger watches detection results and fires an immediate
// optimization run when a critical bottleneck appears.
type WatchdogTrigger struct {
	mu          sync.Mutex
	lastTrigger time.Time
	cooldown    time.Duration
	now         func() time.Time
}

// NewWatchdogTrigger creates a trigger; a non-positive cooldown means 60s.
func NewWatchdogTrigger(cooldown time.Duration) *WatchdogTrigger {
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &WatchdogTrigger{cooldown: cooldown, now: time.Now}
}

// Check returns the first critical bottleneck if the watchdog should fire.
func (w *WatchdogTrigger) Check(bs []model.Bottleneck) (model.Bottleneck, bool) {
	var hit *model.Bottleneck
	for i := range bs {
		if bs[i].Severity == model.SeverityCritical {
			hit = &bs[i]
			break
		}
	}
	if hit == nil {
		return model.Bottleneck{}, false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	if !w.lastTrigger.IsZero() && now.Sub(w.lastTrigger) < w.cooldown {
		return model.Bottleneck{}, false
	}
	w.lastTrigger = now
	return *hit, true
}
