package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileLogger writes timestamped log lines to a per-run log file. Unlike the
// console logger it never filters by level: file logs are the full record.
type FileLogger struct {
	file  *os.File
	path  string
	mutex sync.Mutex
}

// NewFileLogger creates (or appends to) a log file named after the
// execution ID inside logDir. The directory is created if needed.
func NewFileLogger(logDir, executionID string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	path := filepath.Join(logDir, executionID+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &FileLogger{file: f, path: path}, nil
}

// Path returns the log file path.
func (fl *FileLogger) Path() string {
	return fl.path
}

func (fl *FileLogger) write(level, format string, args ...interface{}) {
	if fl == nil || fl.file == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fl.mutex.Lock()
	defer fl.mutex.Unlock()
	fmt.Fprintf(fl.file, "[%s] %-5s %s\n", time.Now().Format(time.RFC3339), level, msg)
}

// Tracef logs at trace level.
func (fl *FileLogger) Tracef(format string, args ...interface{}) {
	fl.write("TRACE", format, args...)
}

// Debugf logs at debug level.
func (fl *FileLogger) Debugf(format string, args ...interface{}) {
	fl.write("DEBUG", format, args...)
}

// Infof logs at info level.
func (fl *FileLogger) Infof(format string, args ...interface{}) {
	fl.write("INFO", format, args...)
}

// Warnf logs at warn level.
func (fl *FileLogger) Warnf(format string, args ...interface{}) {
	fl.write("WARN", format, args...)
}

// Errorf logs at error level.
func (fl *FileLogger) Errorf(format string, args ...interface{}) {
	fl.write("ERROR", format, args...)
}

// Close flushes and closes the underlying file.
func (fl *FileLogger) Close() error {
	fl.mutex.Lock()
	defer fl.mutex.Unlock()
	if fl.file == nil {
		return nil
	}
	err := fl.file.Close()
	fl.file = nil
	return err
}
