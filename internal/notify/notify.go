// Package notify carries short user-facing messages out of the core.
package notify

import (
	"log/slog"
	"sync"
)

type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Warning Severity = "warning"
	Error   Severity = "error"
)

// Sink receives fire-and-forget notifications. Implementations must not
// block the caller.
type Sink interface {
	Notify(message string, severity Severity)
}

// Func adapts a function to a Sink.
type Func func(message string, severity Severity)

func (f Func) Notify(message string, severity Severity) { f(message, severity) }

// LogSink writes notifications to a logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Notify(message string, severity Severity) {
	switch severity {
	case Error:
		s.Logger.Error(message, "severity", severity)
	case Warning:
		s.Logger.Warn(message, "severity", severity)
	default:
		s.Logger.Info(message, "severity", severity)
	}
}

// Multi fans a notification out to several sinks.
type Multi []Sink

func (m Multi) Notify(message string, severity Severity) {
	for _, s := range m {
		s.Notify(message, severity)
	}
}

// Recorder keeps notifications in memory. Tests use it.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

type Entry struct {
	Message  string
	Severity Severity
}

func (r *Recorder) Notify(message string, severity Severity) {
	r.mu.Lock()
	r.entries = append(r.entries, Entry{Message: message, Severity: severity})
	r.mu.Unlock()
}

func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
