package alerting

import "github.com/ftahirops/xdiag/model"

// sustainState tracks consecutive violating evaluations per signal so a
// single spike does not raise an alert. A candidate level must hold for the
// required number of ticks; critical readings escalate immediately once a
// warning is already sustained.
type sustainState struct {
	required int
	signals  map[model.AlertType]*signalState
}

type signalState struct {
	candidate model.AlertSeverity
	violating bool
	ticks     int
}

func newSustainState(required int) *sustainState {
	if required < 1 {
		required = 1
	}
	return &sustainState{required: required, signals: make(map[model.AlertType]*signalState)}
}

// observe records one evaluation and reports whether the violation at sev has
// been sustained long enough to trigger.
func (s *sustainState) observe(t model.AlertType, sev model.AlertSeverity, violating bool) bool {
	st, ok := s.signals[t]
	if !ok {
		st = &signalState{}
		s.signals[t] = st
	}
	if !violating {
		*st = signalState{}
		return false
	}
	if st.violating && (sev == st.candidate || (sev > st.candidate && st.ticks >= s.required)) {
		st.ticks++
	} else {
		st.ticks = 1
	}
	st.candidate = sev
	st.violating = true
	return st.ticks >= s.required
}

// reset clears a signal, used when its alert resolves.
func (s *sustainState) reset(t model.AlertType) {
	delete(s.signals, t)
}
