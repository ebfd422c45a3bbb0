package logging

// Safe wraps a sink so that a panicking implementation never reaches the
// caller. A nil inner sink behaves like Nop.
func Safe(inner Sink) Sink {
	if inner == nil {
		return Nop{}
	}
	if s, ok := inner.(safeSink); ok {
		return s
	}
	return safeSink{inner: inner}
}

type safeSink struct {
	inner Sink
}

func (s safeSink) LogError(message string, cause error) {
	defer func() { _ = recover() }()
	s.inner.LogError(message, cause)
}

func (s safeSink) LogInfo(message string, metadata map[string]string) {
	defer func() { _ = recover() }()
	s.inner.LogInfo(message, metadata)
}

func (s safeSink) LogEvent(level Level, category, component, message string, metadata map[string]string) {
	defer func() { _ = recover() }()
	s.inner.LogEvent(level, category, component, message, metadata)
}
