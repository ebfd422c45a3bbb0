// Package logging defines the sink the diagnostics core reports into and a
// zap-backed implementation of it.
package logging

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the severity of a logged event.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// Sink is the fire-and-forget logging subsystem. Implementations must not
// block and must never propagate failures to the caller.
type Sink interface {
	LogError(message string, cause error)
	LogInfo(message string, metadata map[string]string)
	LogEvent(level Level, category, component, message string, metadata map[string]string)
}

// ZapSink writes sink calls to a zap logger.
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink wraps l. A nil logger yields a no-op sink.
func NewZapSink(l *zap.Logger) *ZapSink {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapSink{log: l}
}

// Logger exposes the underlying zap logger.
func (s *ZapSink) Logger() *zap.Logger { return s.log }

func (s *ZapSink) LogError(message string, cause error) {
	if cause != nil {
		s.log.Error(message, zap.Error(cause))
		return
	}
	s.log.Error(message)
}

func (s *ZapSink) LogInfo(message string, metadata map[string]string) {
	s.log.Info(message, fields(metadata)...)
}

func (s *ZapSink) LogEvent(level Level, category, component, message string, metadata map[string]string) {
	fs := append([]zap.Field{
		zap.String("category", category),
		zap.String("component", component),
	}, fields(metadata)...)
	if ce := s.log.Check(zapLevel(level), message); ce != nil {
		ce.Write(fs...)
	}
}

func zapLevel(l Level) zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

// fields converts metadata to zap fields in key order so output is stable.
func fields(metadata map[string]string) []zap.Field {
	if len(metadata) == 0 {
		return nil
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, zap.String(k, metadata[k]))
	}
	return out
}

// NewLogger builds a zap logger at the named level ("debug", "info", "warn",
// "error"). json selects the production encoder; otherwise console output.
func NewLogger(level string, json bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	var cfg zap.Config
	if json {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// NewFileLogger builds a JSON zap logger that appends to path, for sessions
// that own the terminal.
func NewFileLogger(level, path string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	return cfg.Build()
}

// Nop discards everything.
type Nop struct{}

func (Nop) LogError(string, error)                                    {}
func (Nop) LogInfo(string, map[string]string)                         {}
func (Nop) LogEvent(Level, string, string, string, map[string]string) {}
