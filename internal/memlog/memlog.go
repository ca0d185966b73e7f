// Package memlog implements MemoryLogger (spec §2): append-only daily log
// files under ~/.mama/memory/YYYY-MM-DD.md recording conversation turns
// and lifecycle events, grounded on goclaw's own home-directory and
// os.MkdirAll idiom (internal/config/config_load.go's ExpandHome,
// internal/sessions/manager.go's storage-dir bootstrap).
package memlog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// EntryKind distinguishes the two shapes MemoryLogger appends.
type EntryKind string

const (
	KindConversation EntryKind = "conversation"
	KindEvent        EntryKind = "event"
)

// Entry is one line item appended to the day's log file.
type Entry struct {
	Kind       EntryKind
	ChannelKey string
	Source     string
	Summary    string
	At         time.Time
}

// Logger appends Entry values to ~/.mama/memory/YYYY-MM-DD.md, opening
// (and creating) a new file whenever the wall-clock date rolls over. One
// Logger is shared process-wide; writes are serialized by mu so
// concurrent AgentLoop turns on different lanes never interleave lines.
type Logger struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	day     string
	file    *os.File
}

// New builds a Logger rooted at dir (typically ~/.mama/memory,
// ExpandHome-resolved by the caller). dir is created on first write, not
// eagerly, so constructing a Logger never fails on a read-only home.
func New(dir string, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{dir: dir, logger: logger}
}

// Append writes one Markdown bullet to today's log file, rotating the
// underlying *os.File if the date has advanced since the last call.
func (l *Logger) Append(e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	day := e.At.Format("2006-01-02")
	if day != l.day {
		if err := l.rotateLocked(day); err != nil {
			return err
		}
	}

	line := formatLine(e)
	if _, err := l.file.WriteString(line); err != nil {
		return fmt.Errorf("memlog: write: %w", err)
	}
	return nil
}

// LogConversation is a convenience wrapper over Append for a chat turn.
func (l *Logger) LogConversation(channelKey, source, summary string) {
	if err := l.Append(Entry{Kind: KindConversation, ChannelKey: channelKey, Source: source, Summary: summary}); err != nil {
		l.logger.Warn("memlog: append conversation failed", "channel_key", channelKey, "error", err)
	}
}

// LogEvent is a convenience wrapper over Append for a lifecycle event
// (cron fired, heartbeat notified, session reset, ...).
func (l *Logger) LogEvent(source, summary string) {
	if err := l.Append(Entry{Kind: KindEvent, Source: source, Summary: summary}); err != nil {
		l.logger.Warn("memlog: append event failed", "source", source, "error", err)
	}
}

// Close releases the currently open file handle, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *Logger) rotateLocked(day string) error {
	if l.file != nil {
		l.file.Close()
	}
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("memlog: mkdir %s: %w", l.dir, err)
	}
	path := filepath.Join(l.dir, day+".md")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("memlog: open %s: %w", path, err)
	}
	if fresh, _ := f.Seek(0, os.SEEK_CUR); fresh == 0 {
		fmt.Fprintf(f, "# %s\n\n", day)
	}
	l.file = f
	l.day = day
	return nil
}

func formatLine(e Entry) string {
	ts := e.At.Format("15:04:05")
	summary := strings.TrimSpace(e.Summary)
	switch e.Kind {
	case KindConversation:
		return fmt.Sprintf("- `%s` [%s] %s: %s\n", ts, e.ChannelKey, e.Source, summary)
	default:
		return fmt.Sprintf("- `%s` event %s: %s\n", ts, e.Source, summary)
	}
}
