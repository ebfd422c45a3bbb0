package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/ftahirops/xdiag/model"
)

// GenerateReport composes the latest health score, bottlenecks and resource
// trends into one snapshot. It reads published state only.
func (d *Diagnostics) GenerateReport() model.DiagnosticReport {
	start := time.Now()
	health := d.HealthScore()
	bs := d.Bottlenecks()

	r := model.DiagnosticReport{
		GeneratedAt:     start,
		Health:          health,
		ComponentHealth: d.ComponentHealth(),
		Bottlenecks:     bs,
		Resources:       d.ResourceUsage(),
		RecentResources: d.RecentResources(d.opts.RecentSamples),
		ResourceTrends:  d.ResourceTrends(),
		Recommendations: Recommendations(health, bs),
	}
	d.track(start)
	r.OverheadMs, r.AvgOverheadMs = d.Overhead()
	return r
}

// Recommendations lists bottleneck advice in ranked order without duplicates,
// followed by advice for health factors no bottleneck already covers.
func Recommendations(h model.HealthScore, bs []model.Bottleneck) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	for _, b := range bs {
		for _, rec := range b.Recommendations {
			add(rec)
		}
	}
	for _, f := range h.Factors {
		add(factorAdvice(f))
	}
	if len(out) == 0 && !h.Timestamp.IsZero() && h.Overall >= warningBand {
		add("System healthy, no action needed")
	}
	return out
}

// factorAdvice turns "CRITICAL: CACHE health 0.25" into a readable action.
func factorAdvice(f string) string {
	level, rest, ok := strings.Cut(f, ": ")
	if !ok {
		return ""
	}
	subject, _, _ := strings.Cut(rest, " health")
	switch level {
	case "CRITICAL":
		return fmt.Sprintf("Investigate %s health immediately", strings.ToLower(subject))
	case "WARNING":
		return fmt.Sprintf("Monitor %s health", strings.ToLower(subject))
	}
	return ""
}
