package probe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/ftahirops/xdiag/model"
)

// Frame is one recorded sampling tick.
type Frame struct {
	Resources  model.ResourceUsage                        `json:"resources"`
	Components map[model.ComponentType]map[string]float64 `json:"components,omitempty"`
}

// Recorder wraps a probe and metrics source and writes one JSON line per tick.
type Recorder struct {
	probe  ResourceProbe
	source ComponentMetricsSource

	mu    sync.Mutex
	enc   *json.Encoder
	cur   Frame
	dirty bool
}

// NewRecorder records reads from p and src to w.
func NewRecorder(p ResourceProbe, src ComponentMetricsSource, w io.Writer) *Recorder {
	return &Recorder{probe: p, source: src, enc: json.NewEncoder(w)}
}

// Tick flushes the frame accumulated since the previous tick.
func (r *Recorder) Tick() {
	if t, ok := r.probe.(Ticker); ok {
		t.Tick()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked()
}

// Close writes any pending frame.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked()
}

func (r *Recorder) flushLocked() {
	if !r.dirty {
		return
	}
	// Encode errors must not fail the tick.
	_ = r.enc.Encode(r.cur)
	r.cur = Frame{}
	r.dirty = false
}

func (r *Recorder) record(fn func(f *Frame)) {
	r.mu.Lock()
	fn(&r.cur)
	r.dirty = true
	r.mu.Unlock()
}

func (r *Recorder) CPUPercent(ctx context.Context) (float64, error) {
	v, err := r.probe.CPUPercent(ctx)
	if err == nil {
		r.record(func(f *Frame) { f.Resources.CPUPercent = v })
	}
	return v, err
}

func (r *Recorder) Memory(ctx context.Context) (float64, float64, error) {
	used, total, err := r.probe.Memory(ctx)
	if err == nil {
		r.record(func(f *Frame) { f.Resources.MemoryUsedMB, f.Resources.MemoryTotalMB = used, total })
	}
	return used, total, err
}

func (r *Recorder) NetworkLatency(ctx context.Context) (float64, error) {
	v, err := r.probe.NetworkLatency(ctx)
	if err == nil {
		r.record(func(f *Frame) { f.Resources.NetworkLatencyMs = v })
	}
	return v, err
}

func (r *Recorder) BatteryPercent(ctx context.Context) (float64, error) {
	v, err := r.probe.BatteryPercent(ctx)
	if err == nil {
		r.record(func(f *Frame) { f.Resources.BatteryPercent = v })
	}
	return v, err
}

func (r *Recorder) ThreadCount(ctx context.Context) (int, error) {
	v, err := r.probe.ThreadCount(ctx)
	if err == nil {
		r.record(func(f *Frame) { f.Resources.ThreadCount = v })
	}
	return v, err
}

func (r *Recorder) DiskPercent(ctx context.Context) (float64, error) {
	v, err := r.probe.DiskPercent(ctx)
	if err == nil {
		r.record(func(f *Frame) { f.Resources.DiskPercent = v })
	}
	return v, err
}

func (r *Recorder) ComponentMetrics(ctx context.Context, c model.ComponentType) (map[string]float64, error) {
	m, err := r.source.ComponentMetrics(ctx, c)
	if err == nil {
		r.record(func(f *Frame) {
			if f.Components == nil {
				f.Components = make(map[model.ComponentType]map[string]float64)
			}
			f.Components[c] = m
		})
	}
	return m, err
}

// Player replays recorded frames. Each Tick advances one frame; after the
// last frame it keeps serving the final one.
type Player struct {
	mu     sync.Mutex
	frames []Frame
	idx    int
}

// NewPlayer loads JSON-line frames from r, skipping malformed lines.
func NewPlayer(r io.Reader) (*Player, error) {
	dec := json.NewDecoder(r)
	var frames []Frame
	for {
		var f Frame
		if err := dec.Decode(&f); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			var syn *json.SyntaxError
			if errors.As(err, &syn) {
				// The decoder cannot resync after a syntax error.
				break
			}
			continue
		}
		frames = append(frames, f)
	}
	if len(frames) == 0 {
		return nil, errors.New("recording has no frames")
	}
	return &Player{frames: frames, idx: -1}, nil
}

// Len returns the number of frames.
func (p *Player) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}

// Index returns the current frame index (-1 before the first Tick).
func (p *Player) Index() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idx
}

func (p *Player) Tick() {
	p.mu.Lock()
	if p.idx < len(p.frames)-1 {
		p.idx++
	}
	p.mu.Unlock()
}

func (p *Player) frame() Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.idx
	if i < 0 {
		i = 0
	}
	return p.frames[i]
}

func (p *Player) CPUPercent(context.Context) (float64, error) {
	return p.frame().Resources.CPUPercent, nil
}

func (p *Player) Memory(context.Context) (float64, float64, error) {
	r := p.frame().Resources
	return r.MemoryUsedMB, r.MemoryTotalMB, nil
}

func (p *Player) NetworkLatency(context.Context) (float64, error) {
	return p.frame().Resources.NetworkLatencyMs, nil
}

func (p *Player) BatteryPercent(context.Context) (float64, error) {
	return p.frame().Resources.BatteryPercent, nil
}

func (p *Player) ThreadCount(context.Context) (int, error) {
	return p.frame().Resources.ThreadCount, nil
}

func (p *Player) DiskPercent(context.Context) (float64, error) {
	return p.frame().Resources.DiskPercent, nil
}

func (p *Player) ComponentMetrics(_ context.Context, c model.ComponentType) (map[string]float64, error) {
	m, ok := p.frame().Components[c]
	if !ok {
		return nil, ErrNoSource
	}
	return m, nil
}
