package logger

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"sync"
)

// LogBufferWriter is an io.Writer that writes to the log buffer.
// It splits lines of the form "[node] [LEVEL] message" into their parts.
type LogBufferWriter struct {
	buffer *LogBuffer
	buf    bytes.Buffer
	mu     sync.Mutex
}

var (
	nodeRegex  = regexp.MustCompile(`^\[([^\]]+)\]\s*(.*)$`)
	levelRegex = regexp.MustCompile(`^\[(DEBUG|INFO|WARN|ERROR)\]\s*(.*)$`)
)

// NewLogBufferWriter creates a new writer that writes to the log buffer
func NewLogBufferWriter(buffer *LogBuffer) *LogBufferWriter {
	return &LogBufferWriter{
		buffer: buffer,
	}
}

// Write implements io.Writer
func (lw *LogBufferWriter) Write(p []byte) (n int, err error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	// Buffer until we get a newline
	lw.buf.Write(p)

	for {
		line, err := lw.buf.ReadString('\n')
		if err == io.EOF {
			// Keep the partial line for the next write
			lw.buf.WriteString(line)
			break
		}
		if err != nil {
			return len(p), err
		}

		line = strings.TrimSuffix(line, "\n")
		if len(line) == 0 {
			continue
		}
		lw.buffer.Add(ParseLine(line))
	}

	return len(p), nil
}

// ParseLine splits a log line into node, level and message.
func ParseLine(line string) LogEntry {
	entry := LogEntry{Node: "system", Message: line}

	if m := levelRegex.FindStringSubmatch(entry.Message); len(m) == 3 {
		entry.Level, entry.Message = m[1], m[2]
		return entry
	}
	if m := nodeRegex.FindStringSubmatch(line); len(m) == 3 {
		entry.Node, entry.Message = m[1], m[2]
	}
	if m := levelRegex.FindStringSubmatch(entry.Message); len(m) == 3 {
		entry.Level, entry.Message = m[1], m[2]
	}
	return entry
}
