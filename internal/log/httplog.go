package log

import (
	"fmt"
	"sync"
	"time"
)

// HTTP log buffer is separate from the main log buffer
var httpLogBuffer *LogBuffer
var httpLogBufferOnce sync.Once

// GetHTTPLogBuffer returns the HTTP log buffer instance, creating it if necessary
func GetHTTPLogBuffer() *LogBuffer {
	httpLogBufferOnce.Do(func() {
		httpLogBuffer = NewLogBuffer(1000) // Keep last 1000 HTTP log entries
	})
	return httpLogBuffer
}

// HTTPRequest describes one served request
type HTTPRequest struct {
	Method     string
	Path       string
	Status     int
	Duration   time.Duration
	Size       int
	RemoteAddr string
	UserAgent  string
	Format     string
	Err        error
}

// LogHTTPRequest logs an HTTP request to the separate HTTP log buffer
func LogHTTPRequest(r HTTPRequest) {
	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     "info",
		Message:   fmt.Sprintf("%s %s %d %v %d bytes", r.Method, r.Path, r.Status, r.Duration, r.Size),
		Fields: map[string]any{
			"method":      r.Method,
			"path":        r.Path,
			"status":      r.Status,
			"duration_ms": r.Duration.Milliseconds(),
			"size":        r.Size,
			"remote_addr": r.RemoteAddr,
			"user_agent":  r.UserAgent,
		},
	}

	if r.Format != "" {
		entry.Fields["format"] = r.Format
	}

	if r.Err != nil || r.Status >= 500 {
		entry.Level = "error"
		if r.Err != nil {
			entry.Fields["error"] = r.Err.Error()
		}
	}

	GetHTTPLogBuffer().AddEntry(entry)
}
