// Package alerting owns the alert lifecycle: threshold evaluation, rate
// limiting, deduplication, suppression, auto-resolution and history.
package alerting

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ftahirops/xdiag/logging"
	"github.com/ftahirops/xdiag/model"
	"github.com/ftahirops/xdiag/util"
)

var (
	ErrAlertNotFound     = errors.New("alert not found")
	ErrInvalidTransition = errors.New("invalid alert state transition")
	ErrRateLimited       = errors.New("alert rate limit exceeded")
	ErrSuppressed        = errors.New("alert suppressed")
)

// HealthSource supplies the health score and resource sample evaluated each pass.
type HealthSource interface {
	HealthScore() model.HealthScore
	ResourceUsage() model.ResourceUsage
}

// MetricsSource supplies the tuner's performance figures.
type MetricsSource interface {
	PerformanceHealth() float64
	PerformanceTrend() model.Trend
}

// Options configures the engine. Zero fields take defaults.
type Options struct {
	MaxPerHour        int
	HistoryCapacity   int
	SuppressionWindow time.Duration
	SustainTicks      int
	Thresholds        map[model.AlertType]model.AlertThreshold
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DefaultOptions returns the standard limits.
func DefaultOptions() Options {
	return Options{
		MaxPerHour:        50,
		HistoryCapacity:   1000,
		SuppressionWindow: 5 * time.Minute,
		SustainTicks:      1,
		Thresholds:        DefaultThresholds(),
	}
}

// Engine is the alert state machine. Every mutation holds mu for its whole
// critical section; notifications go out after it is released.
type Engine struct {
	health  HealthSource
	metrics MetricsSource
	log     logging.Sink
	now     func() time.Time

	mu                sync.Mutex
	thresholds        map[model.AlertType]model.AlertThreshold
	active            map[string]*model.Alert
	history           *util.Ring[model.AlertEvent]
	limiter           *hourlyLimiter
	suppress          *suppressionTable
	suppressionWindow time.Duration
	sustain           *sustainState
	bottlenecks       []model.Bottleneck
	rateLimited       int
	suppressed        int

	notifier *Notifier
	journal  *Journal
	events   *util.Broadcaster[model.AlertEvent]
}

// New creates an alerting engine. metrics may be nil until a tuner exists.
func New(health HealthSource, metrics MetricsSource, sink logging.Sink, opts Options) *Engine {
	def := DefaultOptions()
	if opts.MaxPerHour == 0 {
		opts.MaxPerHour = def.MaxPerHour
	}
	if opts.HistoryCapacity <= 0 {
		opts.HistoryCapacity = def.HistoryCapacity
	}
	if opts.SuppressionWindow <= 0 {
		opts.SuppressionWindow = def.SuppressionWindow
	}
	if opts.SustainTicks <= 0 {
		opts.SustainTicks = def.SustainTicks
	}
	thresholds := DefaultThresholds()
	for t, th := range opts.Thresholds {
		thresholds[t] = th
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		health:            health,
		metrics:           metrics,
		log:               logging.Safe(sink),
		now:               opts.Now,
		thresholds:        thresholds,
		active:            make(map[string]*model.Alert),
		history:           util.NewRing[model.AlertEvent](opts.HistoryCapacity),
		limiter:           newHourlyLimiter(opts.MaxPerHour),
		suppress:          newSuppressionTable(),
		suppressionWindow: opts.SuppressionWindow,
		sustain:           newSustainState(opts.SustainTicks),
		events:            util.NewBroadcaster[model.AlertEvent](64),
	}
}

// SetNotifier installs the notification fan-out.
func (e *Engine) SetNotifier(n *Notifier) {
	e.mu.Lock()
	e.notifier = n
	e.mu.Unlock()
}

// SetJournal installs a JSONL export of every event.
func (e *Engine) SetJournal(j *Journal) {
	e.mu.Lock()
	e.journal = j
	e.mu.Unlock()
}

// SetMetricsSource installs the performance source after construction.
func (e *Engine) SetMetricsSource(m MetricsSource) {
	e.mu.Lock()
	e.metrics = m
	e.mu.Unlock()
}

// Trigger raises an alert. Once the hourly cap is reached every trigger is
// rejected, merges included. Otherwise a similar ACTIVE or ACKNOWLEDGED alert
// of the same type absorbs the trigger, and a new alert is created unless its
// fingerprint is suppressed.
func (e *Engine) Trigger(t model.AlertType, sev model.AlertSeverity, message string, ctx map[string]string) (model.Alert, error) {
	e.mu.Lock()
	a, evs, err := e.triggerLocked(t, sev, message, ctx)
	e.mu.Unlock()
	e.dispatch(evs)
	return a, err
}

func (e *Engine) triggerLocked(t model.AlertType, sev model.AlertSeverity, message string, ctx map[string]string) (model.Alert, []model.AlertEvent, error) {
	now := e.now()
	ctx = copyContext(ctx)
	candidate := model.Alert{
		Type:      t,
		Severity:  sev,
		Message:   message,
		Context:   ctx,
		Timestamp: now,
	}

	if e.limiter.exhausted(now) {
		e.rateLimited++
		ev := e.recordLocked(model.EventRateLimited, &candidate, now)
		return candidate, []model.AlertEvent{ev}, fmt.Errorf("%s: %w", t, ErrRateLimited)
	}

	if existing := e.findSimilarLocked(t, ctx); existing != nil {
		for k, v := range ctx {
			if existing.Context == nil {
				existing.Context = make(map[string]string, len(ctx))
			}
			existing.Context[k] = v
		}
		existing.OccurrenceCount++
		if sev > existing.Severity {
			existing.Severity = sev
		}
		existing.Message = message
		existing.LastUpdated = now
		ev := e.recordLocked(model.EventUpdated, existing, now)
		return existing.Clone(), []model.AlertEvent{ev}, nil
	}

	if e.suppress.suppressed(fingerprint(t, ctx), now) {
		e.suppressed++
		candidate.Status = model.StatusSuppressed
		ev := e.recordLocked(model.EventSuppressed, &candidate, now)
		return candidate, []model.AlertEvent{ev}, fmt.Errorf("%s: %w", t, ErrSuppressed)
	}
	e.limiter.allow(now)

	candidate.ID = uuid.NewString()
	candidate.Status = model.StatusActive
	candidate.OccurrenceCount = 1
	candidate.LastUpdated = now
	a := &candidate
	e.active[a.ID] = a
	ev := e.recordLocked(model.EventCreated, a, now)
	return a.Clone(), []model.AlertEvent{ev}, nil
}

func (e *Engine) findSimilarLocked(t model.AlertType, ctx map[string]string) *model.Alert {
	var best *model.Alert
	for _, a := range e.active {
		if a.Type != t {
			continue
		}
		if a.Status != model.StatusActive && a.Status != model.StatusAcknowledged {
			continue
		}
		if !similar(a.Context, ctx) {
			continue
		}
		if best == nil || a.Timestamp.Before(best.Timestamp) {
			best = a
		}
	}
	return best
}

// Acknowledge moves an ACTIVE alert to ACKNOWLEDGED.
func (e *Engine) Acknowledge(id, by string) (model.Alert, error) {
	e.mu.Lock()
	a, ok := e.active[id]
	if !ok {
		e.mu.Unlock()
		return model.Alert{}, fmt.Errorf("%s: %w", id, ErrAlertNotFound)
	}
	if a.Status != model.StatusActive {
		status := a.Status
		e.mu.Unlock()
		return model.Alert{}, fmt.Errorf("acknowledge %s from %s: %w", id, status, ErrInvalidTransition)
	}
	now := e.now()
	a.Status = model.StatusAcknowledged
	a.AcknowledgedBy = by
	a.AcknowledgedAt = now
	a.LastUpdated = now
	ev := e.recordLocked(model.EventAcknowledged, a, now)
	out := a.Clone()
	e.mu.Unlock()

	e.dispatch([]model.AlertEvent{ev})
	return out, nil
}

// Resolve closes an ACTIVE or ACKNOWLEDGED alert, removes it from the active
// table and suppresses its fingerprint for the suppression window.
func (e *Engine) Resolve(id, by, resolution string) (model.Alert, error) {
	e.mu.Lock()
	a, ok := e.active[id]
	if !ok {
		e.mu.Unlock()
		return model.Alert{}, fmt.Errorf("%s: %w", id, ErrAlertNotFound)
	}
	if a.Status != model.StatusActive && a.Status != model.StatusAcknowledged {
		status := a.Status
		e.mu.Unlock()
		return model.Alert{}, fmt.Errorf("resolve %s from %s: %w", id, status, ErrInvalidTransition)
	}
	ev := e.closeLocked(a, model.StatusResolved, by, resolution)
	out := a.Clone()
	e.mu.Unlock()

	e.dispatch([]model.AlertEvent{ev})
	return out, nil
}

// closeLocked applies a terminal transition and records it.
func (e *Engine) closeLocked(a *model.Alert, status model.AlertStatus, by, resolution string) model.AlertEvent {
	now := e.now()
	a.Status = status
	a.ResolvedBy = by
	a.ResolvedAt = now
	a.Resolution = resolution
	a.LastUpdated = now
	delete(e.active, a.ID)
	e.suppress.add(fingerprint(a.Type, a.Context), now.Add(e.suppressionWindow))
	e.sustain.reset(a.Type)

	kind := model.EventResolved
	if status == model.StatusAutoResolved {
		kind = model.EventAutoResolved
	}
	return e.recordLocked(kind, a, now)
}

// Suppress blocks creation of alerts matching t and ctx for d.
func (e *Engine) Suppress(t model.AlertType, ctx map[string]string, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.suppress.add(fingerprint(t, ctx), e.now().Add(d))
}

// Get returns one active alert.
func (e *Engine) Get(id string) (model.Alert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.active[id]
	if !ok {
		return model.Alert{}, fmt.Errorf("%s: %w", id, ErrAlertNotFound)
	}
	return a.Clone(), nil
}

// Active returns active and acknowledged alerts, most severe first, then oldest.
func (e *Engine) Active() []model.Alert {
	e.mu.Lock()
	out := make([]model.Alert, 0, len(e.active))
	for _, a := range e.active {
		out = append(out, a.Clone())
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// History returns up to limit lifecycle events, newest first. limit <= 0
// returns all.
func (e *Engine) History(limit int) []model.AlertEvent {
	if limit <= 0 {
		limit = -1
	}
	evs := e.history.Last(limit)
	for i, j := 0, len(evs)-1; i < j; i, j = i+1, j-1 {
		evs[i], evs[j] = evs[j], evs[i]
	}
	return evs
}

// Thresholds returns a copy of the current threshold table.
func (e *Engine) Thresholds() map[model.AlertType]model.AlertThreshold {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[model.AlertType]model.AlertThreshold, len(e.thresholds))
	for t, th := range e.thresholds {
		out[t] = th
	}
	return out
}

// SetThreshold replaces one type's threshold after validating it.
func (e *Engine) SetThreshold(t model.AlertType, th model.AlertThreshold) error {
	if err := ValidateThreshold(t, th); err != nil {
		return err
	}
	e.mu.Lock()
	e.thresholds[t] = th
	e.mu.Unlock()
	return nil
}

// RemainingThisHour returns creations still allowed in the current hour, or
// -1 when unlimited.
func (e *Engine) RemainingThisHour() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.limiter.remaining(e.now())
}

// Subscribe streams every recorded event.
func (e *Engine) Subscribe() (<-chan model.AlertEvent, func()) {
	return e.events.Subscribe()
}

// Close ends subscriptions and waits for pending notifications.
func (e *Engine) Close() {
	e.events.Close()
	e.mu.Lock()
	n := e.notifier
	e.mu.Unlock()
	n.Wait()
}

// recordLocked builds the event for a. Lifecycle events are appended to the
// history ring; updates, suppressions and rate-limit rejections are only
// published.
func (e *Engine) recordLocked(kind model.AlertEventKind, a *model.Alert, now time.Time) model.AlertEvent {
	ev := model.AlertEvent{
		Kind:      kind,
		AlertID:   a.ID,
		Type:      a.Type,
		Severity:  a.Severity,
		Timestamp: now,
		Alert:     a.Clone(),
	}
	if lifecycle(kind) {
		e.history.Push(ev)
	}
	return ev
}

func lifecycle(kind model.AlertEventKind) bool {
	switch kind {
	case model.EventCreated, model.EventAcknowledged, model.EventResolved, model.EventAutoResolved:
		return true
	}
	return false
}

// dispatch publishes events, writes the journal and notifies channels.
// Called without mu held.
func (e *Engine) dispatch(evs []model.AlertEvent) {
	if len(evs) == 0 {
		return
	}
	e.mu.Lock()
	n, j := e.notifier, e.journal
	e.mu.Unlock()

	for _, ev := range evs {
		e.events.Publish(ev)
		if j != nil {
			if err := j.Write(ev); err != nil {
				e.log.LogError("alert journal write failed", err)
			}
		}
		if notifiable(ev) {
			n.Notify(ev)
		}
		e.log.LogEvent(logging.LevelInfo, "alerting", string(ev.Type), "alert "+string(ev.Kind), map[string]string{
			"alert_id": ev.AlertID,
			"severity": ev.Severity.String(),
		})
	}
}

// notifiable reports whether channels hear about ev. Creations and
// resolutions always go out; updates only at ERROR or above.
func notifiable(ev model.AlertEvent) bool {
	switch ev.Kind {
	case model.EventCreated, model.EventResolved, model.EventAutoResolved:
		return true
	case model.EventUpdated:
		return ev.Severity >= model.AlertError
	}
	return false
}

func copyContext(ctx map[string]string) map[string]string {
	if ctx == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(ctx))
	for k, v := range ctx {
		out[k] = v
	}
	return out
}
