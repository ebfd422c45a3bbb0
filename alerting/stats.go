package alerting

import (
	"sort"
	"time"

	"github.com/ftahirops/xdiag/model"
)

const topTypesN = 5

// Statistics aggregates the retained lifecycle history and the rejection
// counters. Repeated calls without alert activity agree.
func (e *Engine) Statistics() model.AlertStatistics {
	e.mu.Lock()
	active := len(e.active)
	now := e.now()
	rateLimited, suppressed := e.rateLimited, e.suppressed
	e.mu.Unlock()

	st := computeStatistics(e.history.Values(), active, now)
	st.RateLimited = rateLimited
	st.Suppressed = suppressed
	return st
}

func computeStatistics(history []model.AlertEvent, active int, now time.Time) model.AlertStatistics {
	st := model.AlertStatistics{
		Active:        active,
		ByType:        make(map[model.AlertType]int),
		BySeverity:    make(map[model.AlertSeverity]int),
		ByType24h:     make(map[model.AlertType]int),
		BySeverity24h: make(map[model.AlertSeverity]int),
	}
	dayAgo := now.Add(-24 * time.Hour)
	weekAgo := now.Add(-7 * 24 * time.Hour)

	created := make(map[string]time.Time)
	var totalRes time.Duration
	for _, ev := range history {
		switch ev.Kind {
		case model.EventCreated:
			created[ev.AlertID] = ev.Timestamp
			if ev.Timestamp.After(weekAgo) {
				st.Last7d++
				st.ByType[ev.Type]++
				st.BySeverity[ev.Severity]++
			}
			if ev.Timestamp.After(dayAgo) {
				st.Last24h++
				st.ByType24h[ev.Type]++
				st.BySeverity24h[ev.Severity]++
			}
		case model.EventResolved, model.EventAutoResolved:
			if start, ok := created[ev.AlertID]; ok {
				totalRes += ev.Timestamp.Sub(start)
				st.Resolved++
			}
		}
	}
	if st.Resolved > 0 {
		st.AverageResolution = totalRes / time.Duration(st.Resolved)
	}

	for t, n := range st.ByType {
		st.TopTypes = append(st.TopTypes, model.TypeCount{Type: t, Count: n})
	}
	sort.Slice(st.TopTypes, func(i, j int) bool {
		if st.TopTypes[i].Count != st.TopTypes[j].Count {
			return st.TopTypes[i].Count > st.TopTypes[j].Count
		}
		return st.TopTypes[i].Type < st.TopTypes[j].Type
	})
	if len(st.TopTypes) > topTypesN {
		st.TopTypes = st.TopTypes[:topTypesN]
	}
	return st
}
