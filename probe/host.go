package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/ftahirops/xdiag/model"
)

// HostConfig tunes the host probe.
type HostConfig struct {
	// LatencyTarget is a host:port dialed to measure network latency.
	LatencyTarget string
	DialTimeout   time.Duration
	DiskPath      string
	// PowerSupplyDir is scanned for BAT*/capacity; hosts without a battery
	// report 100%.
	PowerSupplyDir string
}

// Host reads resources from the local machine via gopsutil.
type Host struct {
	cfg  HostConfig
	proc *process.Process

	mu       sync.RWMutex
	registry map[model.ComponentType]MetricsFunc
}

// MetricsFunc reports raw metrics for one component.
type MetricsFunc func(ctx context.Context) (map[string]float64, error)

// NewHost creates a host probe for the current process.
func NewHost(cfg HostConfig) (*Host, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.DiskPath == "" {
		cfg.DiskPath = "/"
	}
	if cfg.PowerSupplyDir == "" {
		cfg.PowerSupplyDir = "/sys/class/power_supply"
	}
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("open self process: %w", err)
	}
	h := &Host{cfg: cfg, proc: p, registry: make(map[model.ComponentType]MetricsFunc)}
	h.Register(model.ComponentMetrics, runtimeMetrics)
	return h, nil
}

// Register installs the metrics reporter for a component; the last one wins.
func (h *Host) Register(c model.ComponentType, fn MetricsFunc) {
	h.mu.Lock()
	h.registry[c] = fn
	h.mu.Unlock()
}

func (h *Host) CPUPercent(ctx context.Context) (float64, error) {
	pcts, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, errors.New("no cpu samples")
	}
	return pcts[0], nil
}

func (h *Host) Memory(ctx context.Context) (float64, float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	const mb = 1024 * 1024
	return float64(vm.Total-vm.Available) / mb, float64(vm.Total) / mb, nil
}

// NetworkLatency is the TCP connect time to LatencyTarget in milliseconds.
func (h *Host) NetworkLatency(ctx context.Context) (float64, error) {
	if h.cfg.LatencyTarget == "" {
		return 0, nil
	}
	d := net.Dialer{Timeout: h.cfg.DialTimeout}
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", h.cfg.LatencyTarget)
	if err != nil {
		return 0, err
	}
	elapsed := time.Since(start)
	_ = conn.Close()
	return float64(elapsed.Microseconds()) / 1000, nil
}

func (h *Host) BatteryPercent(context.Context) (float64, error) {
	matches, _ := filepath.Glob(filepath.Join(h.cfg.PowerSupplyDir, "BAT*", "capacity"))
	if len(matches) == 0 {
		return 100, nil
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse battery capacity: %w", err)
	}
	return v, nil
}

func (h *Host) ThreadCount(ctx context.Context) (int, error) {
	n, err := h.proc.NumThreadsWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (h *Host) DiskPercent(ctx context.Context) (float64, error) {
	u, err := disk.UsageWithContext(ctx, h.cfg.DiskPath)
	if err != nil {
		return 0, err
	}
	return u.UsedPercent, nil
}

func (h *Host) ComponentMetrics(ctx context.Context, c model.ComponentType) (map[string]float64, error) {
	h.mu.RLock()
	fn, ok := h.registry[c]
	h.mu.RUnlock()
	if !ok {
		return nil, ErrNoSource
	}
	return fn(ctx)
}

// runtimeMetrics reports the Go runtime's own bookkeeping as the METRICS
// component: GC pause share stands in for dropped samples.
func runtimeMetrics(context.Context) (map[string]float64, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return map[string]float64{
		"dropped_ratio": ms.GCCPUFraction,
		"goroutines":    float64(runtime.NumGoroutine()),
		"heap_mb":       float64(ms.HeapAlloc) / (1024 * 1024),
	}, nil
}
