// internal/logging/logger.go

// Package logging provides file-based logging with size rotation for
// the agent. Output is mirrored to stdout so the deployment
// environment's log capture keeps working.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	defaultMaxSizeMB = 50
	keepRotatedLogs  = 5
)

// Logger owns the agent log file and rotates it by size.
type Logger struct {
	mu          sync.Mutex
	file        *os.File
	filePath    string
	maxSizeMB   int64
	currentSize int64
}

// Config holds logger configuration.
type Config struct {
	LogDir    string // directory to write logs
	Name      string // base name of the log file
	MaxSizeMB int64  // max log file size before rotation
}

// New creates a file logger and redirects the standard logger to write
// to both stdout and the file.
func New(cfg Config) (*Logger, error) {
	if cfg.MaxSizeMB == 0 {
		cfg.MaxSizeMB = defaultMaxSizeMB
	}

	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %v", err)
	}

	l := &Logger{
		filePath:  filepath.Join(cfg.LogDir, cfg.Name+".log"),
		maxSizeMB: cfg.MaxSizeMB,
	}

	if err := l.openLogFile(); err != nil {
		return nil, err
	}

	log.SetOutput(io.MultiWriter(os.Stdout, l))
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	return l, nil
}

// Setup initializes logging with default settings. Call at the start
// of main. dir may be empty, in which case LOG_DIR or the install
// default is used.
func Setup(dir string) (*Logger, error) {
	if dir == "" {
		dir = os.Getenv("LOG_DIR")
	}
	if dir == "" {
		dir = "/app/logs"
	}

	return New(Config{LogDir: dir, Name: "agent", MaxSizeMB: defaultMaxSizeMB})
}

func (l *Logger) openLogFile() error {
	f, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %v", err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat log file: %v", err)
	}

	l.file = f
	l.currentSize = stat.Size()
	return nil
}

// Write implements io.Writer, rotating when the size cap is reached.
func (l *Logger) Write(p []byte) (n int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.currentSize+int64(len(p)) > l.maxSizeMB*1024*1024 {
		if err := l.rotate(); err != nil {
			// Rotation failed; keep writing to the current file.
			fmt.Fprintf(os.Stderr, "Log rotation failed: %v\n", err)
		}
	}

	n, err = l.file.Write(p)
	l.currentSize += int64(n)
	return n, err
}

func (l *Logger) rotate() error {
	if l.file != nil {
		l.file.Close()
	}

	timestamp := time.Now().Format("20060102-150405")
	backupPath := fmt.Sprintf("%s.%s", l.filePath, timestamp)

	if err := os.Rename(l.filePath, backupPath); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to rename log file: %v", err)
		}
	}

	l.cleanupOldLogs()

	return l.openLogFile()
}

// cleanupOldLogs removes rotated files beyond the retention count. The
// timestamp suffix sorts oldest-first.
func (l *Logger) cleanupOldLogs() {
	matches, err := filepath.Glob(l.filePath + ".*")
	if err != nil {
		return
	}

	if len(matches) > keepRotatedLogs {
		for i := 0; i < len(matches)-keepRotatedLogs; i++ {
			os.Remove(matches[i])
		}
	}
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
