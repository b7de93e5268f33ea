package logger

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"
)

const (
	// DefaultBufferSize is the buffer size for file writes
	DefaultBufferSize = 32 * 1024

	// DefaultFlushInterval is the interval for auto-flushing buffered writes
	DefaultFlushInterval = 5 * time.Second

	// LogFilePermissions restricts log files to the owner
	LogFilePermissions = 0o600
)

// BufferedFileWriter wraps a file with buffered I/O and periodic auto-flushing.
// It is safe for concurrent use.
type BufferedFileWriter struct {
	mu        sync.Mutex
	file      *os.File
	writer    *bufio.Writer
	filePath  string
	stopFlush chan struct{}
	flushDone chan struct{}
	interval  time.Duration
	closed    bool
}

// NewBufferedFileWriter opens filePath in append mode and starts the auto-flush loop.
func NewBufferedFileWriter(filePath string, interval time.Duration) (*BufferedFileWriter, error) {
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, LogFilePermissions) //nolint:gosec // file path from user config is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", filePath, err)
	}

	if interval <= 0 {
		interval = DefaultFlushInterval
	}

	w := &BufferedFileWriter{
		file:      file,
		writer:    bufio.NewWriterSize(file, DefaultBufferSize),
		filePath:  filePath,
		stopFlush: make(chan struct{}),
		flushDone: make(chan struct{}),
		interval:  interval,
	}
	go w.autoFlushLoop()

	return w, nil
}

func (w *BufferedFileWriter) autoFlushLoop() {
	defer close(w.flushDone)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = w.Flush()
		case <-w.stopFlush:
			return
		}
	}
}

// Write implements io.Writer
func (w *BufferedFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, os.ErrClosed
	}
	return w.writer.Write(p)
}

// Flush writes buffered data to the OS without fsync
func (w *BufferedFileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	return w.writer.Flush()
}

// Close stops the flush loop, flushes, syncs and closes the file
func (w *BufferedFileWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.stopFlush)
	<-w.flushDone

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("failed to flush log file %s: %w", w.filePath, err)
	}
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("failed to sync log file %s: %w", w.filePath, err)
	}
	return w.file.Close()
}

// FilePath returns the path of the underlying file
func (w *BufferedFileWriter) FilePath() string {
	return w.filePath
}
