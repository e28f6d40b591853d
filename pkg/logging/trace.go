package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TraceLogger writes a human-readable execution narrative to daily log
// files, one line per event. It complements the JSONL event log when an
// operator wants to follow a run without a log pipeline.
type TraceLogger struct {
	dir     string
	file    *os.File
	path    string
	mu      sync.Mutex
	lastDay string
}

// NewTraceLogger creates a trace logger that writes to dir.
// Log files are named trace-YYYY-MM-DD.log.
func NewTraceLogger(dir string) (*TraceLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create trace log dir: %w", err)
	}

	l := &TraceLogger{dir: dir}
	if err := l.rotate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Write appends a trace line with timestamp.
func (l *TraceLogger) Write(sessionID, content string) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	today := time.Now().Format("2006-01-02")
	if today != l.lastDay {
		if err := l.rotateLocked(); err != nil {
			return err
		}
	}

	if l.file == nil {
		return nil
	}

	timestamp := time.Now().Format("15:04:05")
	if sessionID == "" {
		_, err := fmt.Fprintf(l.file, "[%s] %s\n", timestamp, content)
		return err
	}
	_, err := fmt.Fprintf(l.file, "[%s] [%s] %s\n", timestamp, sessionID, content)
	return err
}

// WriteBlock writes a multi-line block with a session header, used for
// error summaries and final run reports.
func (l *TraceLogger) WriteBlock(sessionID, content string) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	today := time.Now().Format("2006-01-02")
	if today != l.lastDay {
		if err := l.rotateLocked(); err != nil {
			return err
		}
	}

	if l.file == nil {
		return nil
	}

	timestamp := time.Now().Format("15:04:05")
	header := fmt.Sprintf("\n=== [%s] session=%s ===\n", timestamp, sessionID)
	if _, err := l.file.WriteString(header); err != nil {
		return err
	}
	if _, err := l.file.WriteString(content); err != nil {
		return err
	}
	_, err := l.file.WriteString("\n")
	return err
}

// Path returns the current log file path.
func (l *TraceLogger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// Close closes the log file.
func (l *TraceLogger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

func (l *TraceLogger) rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rotateLocked()
}

func (l *TraceLogger) rotateLocked() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	today := time.Now().Format("2006-01-02")
	l.lastDay = today
	l.path = filepath.Join(l.dir, "trace-"+today+".log")

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open trace log: %w", err)
	}
	l.file = file
	return nil
}
