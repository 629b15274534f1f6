// Package logging builds the slog pipeline used by every whatsdemo command:
// JSON records to an optional rotating file, plus an in-memory ring buffer
// whose recent entries the interactive UI shows in its status line.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// Entry is a buffered log record.
type Entry struct {
	Time    time.Time         `json:"time"`
	Level   slog.Level        `json:"level"`
	Message string            `json:"message"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// String renders the entry as "LEVEL message key=value ...", attributes
// sorted by key.
func (e Entry) String() string {
	var b strings.Builder
	b.WriteString(e.Level.String())
	b.WriteByte(' ')
	b.WriteString(e.Message)
	for _, k := range slices.Sorted(maps.Keys(e.Attrs)) {
		fmt.Fprintf(&b, " %s=%s", k, e.Attrs[k])
	}
	return b.String()
}

// Buffer is a slog.Handler that keeps the most recent records in memory.
type Buffer struct {
	state *bufferState
	level slog.Leveler
	attrs []slog.Attr
	group string
}

type bufferState struct {
	mu      sync.RWMutex
	entries []Entry
	maxSize int
}

// NewBuffer returns a Buffer holding at most maxEntries records (1000 if
// maxEntries <= 0) at or above level.
func NewBuffer(maxEntries int, level slog.Leveler) *Buffer {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return &Buffer{
		state: &bufferState{entries: make([]Entry, 0, maxEntries), maxSize: maxEntries},
		level: level,
	}
}

// Enabled implements slog.Handler.
func (h *Buffer) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *Buffer) Handle(_ context.Context, record slog.Record) error {
	attrs := make(map[string]string, len(h.attrs)+record.NumAttrs())
	add := func(a slog.Attr) bool {
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		attrs[key] = a.Value.Resolve().String()
		return true
	}
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Resolve().String()
	}
	record.Attrs(add)
	if len(attrs) == 0 {
		attrs = nil
	}

	entry := Entry{Time: record.Time, Level: record.Level, Message: record.Message, Attrs: attrs}

	s := h.state
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == s.maxSize {
		copy(s.entries, s.entries[1:])
		s.entries = s.entries[:len(s.entries)-1]
	}
	s.entries = append(s.entries, entry)
	return nil
}

// WithAttrs implements slog.Handler.
func (h *Buffer) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := *h
	out.attrs = append(append([]slog.Attr(nil), h.attrs...), h.qualify(attrs)...)
	return &out
}

// WithGroup implements slog.Handler.
func (h *Buffer) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	out := *h
	if out.group != "" {
		out.group += "." + name
	} else {
		out.group = name
	}
	return &out
}

func (h *Buffer) qualify(attrs []slog.Attr) []slog.Attr {
	if h.group == "" {
		return attrs
	}
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = slog.Attr{Key: h.group + "." + a.Key, Value: a.Value}
	}
	return out
}

// Recent returns up to n of the newest entries, oldest first. n <= 0 returns
// everything.
func (h *Buffer) Recent(n int) []Entry {
	s := h.state
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.entries) {
		n = len(s.entries)
	}
	out := make([]Entry, n)
	copy(out, s.entries[len(s.entries)-n:])
	return out
}

// Last returns the newest entry at or above level.
func (h *Buffer) Last(level slog.Level) (Entry, bool) {
	s := h.state
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].Level >= level {
			return s.entries[i], true
		}
	}
	return Entry{}, false
}

// Clear drops every buffered entry.
func (h *Buffer) Clear() {
	s := h.state
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = s.entries[:0]
}

// fanout sends each record to every handler that is enabled for it.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, record.Level) {
			if err := h.Handle(ctx, record.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// Options configures New.
type Options struct {
	Level slog.Level
	// File receives JSON records. Optional.
	File io.WriteCloser
	// BufferSize is the capacity of the in-memory buffer.
	BufferSize int
}

// Logger bundles the configured slog.Logger with its in-memory buffer and
// the file it owns.
type Logger struct {
	*slog.Logger
	Buffer *Buffer
	file   io.WriteCloser
}

// New assembles the logging pipeline.
func New(opts Options) *Logger {
	buf := NewBuffer(opts.BufferSize, opts.Level)
	handlers := fanout{buf}
	if opts.File != nil {
		handlers = append(handlers, slog.NewJSONHandler(opts.File, &slog.HandlerOptions{Level: opts.Level}))
	}
	return &Logger{
		Logger: slog.New(handlers),
		Buffer: buf,
		file:   opts.File,
	}
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel maps debug, info, warn and error (case-insensitive) to slog
// levels. The empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", s)
	}
}
