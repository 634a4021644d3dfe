package log

import (
	"sync"
	"time"
)

// LogEntry is one buffered log line
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Caller    string         `json:"caller,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// LogBuffer keeps the most recent entries in a fixed-size ring
type LogBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    int
	full    bool
}

var logBuffer *LogBuffer
var logBufferOnce sync.Once

// GetLogBuffer returns the application log buffer, creating it if necessary
func GetLogBuffer() *LogBuffer {
	logBufferOnce.Do(func() {
		logBuffer = NewLogBuffer(1000)
	})
	return logBuffer
}

// NewLogBuffer creates a buffer holding at most size entries
func NewLogBuffer(size int) *LogBuffer {
	if size < 1 {
		size = 1
	}
	return &LogBuffer{entries: make([]LogEntry, size)}
}

// AddEntry appends e, overwriting the oldest entry when the buffer is full
func (b *LogBuffer) AddEntry(e LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.next] = e
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
}

// GetEntries returns the buffered entries, oldest first
func (b *LogBuffer) GetEntries() []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.full {
		out := make([]LogEntry, b.next)
		copy(out, b.entries[:b.next])
		return out
	}
	out := make([]LogEntry, 0, len(b.entries))
	out = append(out, b.entries[b.next:]...)
	return append(out, b.entries[:b.next]...)
}

// Len returns the number of buffered entries
func (b *LogBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.full {
		return len(b.entries)
	}
	return b.next
}

// Clear drops every entry
func (b *LogBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.entries)
	b.next = 0
	b.full = false
}
