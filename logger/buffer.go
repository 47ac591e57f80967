package logger

import (
	"fmt"
	"sync"
	"time"
)

// LogEntry represents a single log entry
type LogEntry struct {
	Timestamp time.Time
	Node      string // node label, or "system"
	Level     string // DEBUG, INFO, WARN, ERROR or empty
	Message   string
}

// LogBuffer is a thread-safe ring of the most recent log entries
type LogBuffer struct {
	entries []LogEntry
	maxSize int
	mu      sync.RWMutex
}

// NewLogBuffer creates a new log buffer
func NewLogBuffer(maxSize int) *LogBuffer {
	return &LogBuffer{
		entries: make([]LogEntry, 0, maxSize),
		maxSize: maxSize,
	}
}

// Add appends an entry, discarding the oldest once the buffer is full
func (lb *LogBuffer) Add(entry LogEntry) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	lb.entries = append(lb.entries, entry)

	if len(lb.entries) > lb.maxSize {
		lb.entries = lb.entries[len(lb.entries)-lb.maxSize:]
	}
}

// GetRecent returns the most recent log entries
func (lb *LogBuffer) GetRecent(count int) []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	if count > len(lb.entries) {
		count = len(lb.entries)
	}
	start := len(lb.entries) - count

	result := make([]LogEntry, count)
	copy(result, lb.entries[start:])
	return result
}

// GetAll returns all log entries
func (lb *LogBuffer) GetAll() []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	result := make([]LogEntry, len(lb.entries))
	copy(result, lb.entries)
	return result
}

// ForNode returns the retained entries attributed to one node
func (lb *LogBuffer) ForNode(node string) []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	var result []LogEntry
	for _, e := range lb.entries {
		if e.Node == node {
			result = append(result, e)
		}
	}
	return result
}

// Clear removes all log entries from the buffer
func (lb *LogBuffer) Clear() {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.entries = make([]LogEntry, 0, lb.maxSize)
}

// FormatLogEntry formats a log entry for display
func FormatLogEntry(entry LogEntry) string {
	level := entry.Level
	if level == "" {
		level = "-"
	}
	return fmt.Sprintf("[%s] %-5s %s: %s",
		entry.Timestamp.Format("15:04:05"),
		level,
		entry.Node,
		entry.Message,
	)
}
