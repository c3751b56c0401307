package auth

import (
	"fmt"
	"sync"
)

// recordingLogger captures log messages by level.
type recordingLogger struct {
	mu      sync.Mutex
	entries map[string][]string
}

func (l *recordingLogger) record(level, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.entries == nil {
		l.entries = make(map[string][]string)
	}
	l.entries[level] = append(l.entries[level], msg+" "+fmt.Sprint(args...))
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }

func (l *recordingLogger) warns() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries["warn"]...)
}

func (l *recordingLogger) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, msgs := range l.entries {
		out = append(out, msgs...)
	}
	return out
}
