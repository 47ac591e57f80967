// Package logger provides a configurable logger that can write to multiple outputs.
// Init must be called early in the application lifecycle before using other logger functions.
// Functions like AddOutput and SetDebug will return errors if called before Init.
//
// Lines emitted on behalf of a node are prefixed with "[<address>]" so that
// LogBufferWriter can attribute them when feeding the interactive view.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Logger is a configurable logger that can write to multiple outputs
type Logger struct {
	mu      sync.Mutex
	outputs []io.Writer
	prefix  string
	debug   bool
}

var (
	globalLogger *Logger
	once         sync.Once
	globalBuffer *LogBuffer
	bufferOnce   sync.Once
)

var errNotInitialized = errors.New("logger not initialized: call logger.Init() first")

// GetGlobalLogBuffer returns the global log buffer
func GetGlobalLogBuffer() *LogBuffer {
	bufferOnce.Do(func() {
		globalBuffer = NewLogBuffer(1000) // Keep last 1000 log entries
	})
	return globalBuffer
}

// Init initializes the global logger
func Init(prefix string, writeToStdout bool) {
	once.Do(func() {
		outputs := []io.Writer{}
		if writeToStdout {
			outputs = append(outputs, os.Stdout)
		}
		globalLogger = &Logger{
			outputs: outputs,
			prefix:  prefix,
		}
	})
}

// AddOutput adds an additional output writer (e.g., for TUI log buffer).
// Returns an error if called before Init.
func AddOutput(w io.Writer) error {
	if globalLogger == nil {
		return errNotInitialized
	}
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()
	globalLogger.outputs = append(globalLogger.outputs, w)
	return nil
}

// RemoveOutput removes an output writer.
// Returns an error if called before Init.
func RemoveOutput(w io.Writer) error {
	if globalLogger == nil {
		return errNotInitialized
	}
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()

	newOutputs := []io.Writer{}
	for _, output := range globalLogger.outputs {
		if output != w {
			newOutputs = append(newOutputs, output)
		}
	}
	globalLogger.outputs = newOutputs
	return nil
}

// SetDebug turns debug-level output on or off.
// Returns an error if called before Init.
func SetDebug(debug bool) error {
	if globalLogger == nil {
		return errNotInitialized
	}
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()
	globalLogger.debug = debug
	return nil
}

// DebugEnabled reports whether debug-level lines are written.
func DebugEnabled() bool {
	if globalLogger == nil {
		return false
	}
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()
	return globalLogger.debug
}

// Printf logs a formatted message
func Printf(format string, v ...interface{}) {
	if globalLogger == nil {
		// Fallback to standard log if not initialized
		log.Printf(format, v...)
		return
	}

	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()

	msg := fmt.Sprintf(format, v...)
	// Remove trailing newline if present (we'll add it back)
	msg = strings.TrimSuffix(msg, "\n")

	if globalLogger.prefix != "" {
		msg = fmt.Sprintf("[%s] %s", globalLogger.prefix, msg)
	}

	msgWithNewline := []byte(msg + "\n")
	for _, output := range globalLogger.outputs {
		_, _ = output.Write(msgWithNewline)
	}
}

// Debugf logs a debug-level formatted message; dropped unless SetDebug(true).
func Debugf(format string, v ...interface{}) {
	if globalLogger == nil || !DebugEnabled() {
		return
	}
	Printf("[DEBUG] "+format, v...)
}

// Infof logs an info-level formatted message
func Infof(format string, v ...interface{}) {
	Printf("[INFO] "+format, v...)
}

// Info logs an info-level message
func Info(v ...interface{}) {
	Printf("[INFO] %s", fmt.Sprint(v...))
}

// Warnf logs a warning-level formatted message
func Warnf(format string, v ...interface{}) {
	Printf("[WARN] "+format, v...)
}

// Errorf logs an error-level formatted message
func Errorf(format string, v ...interface{}) {
	Printf("[ERROR] "+format, v...)
}

// Writer returns an io.Writer whose lines are emitted through Printf.
func Writer() io.Writer {
	return lineWriter{}
}

type lineWriter struct{}

func (lineWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line != "" {
			Printf("%s", line)
		}
	}
	return len(p), nil
}

// Named returns an hclog logger that writes into the global sinks. Network
// transports log through it.
func Named(name string) hclog.Logger {
	level := hclog.Info
	if DebugEnabled() {
		level = hclog.Debug
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:        name,
		Level:       level,
		Output:      Writer(),
		DisableTime: true,
	})
}
