package logger

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"
)

const logFileBufferSize = 32 * 1024

// BufferedFileWriter appends to a log file through a buffer. Runs are short,
// so data reaches the file on Flush and Close rather than on a timer.
type BufferedFileWriter struct {
	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	closed bool
}

// NewBufferedFileWriter opens path for appending, creating it when missing
func NewBufferedFileWriter(path string) (*BufferedFileWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640) //nolint:gosec // path comes from config
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return &BufferedFileWriter{file: f, buf: bufio.NewWriterSize(f, logFileBufferSize)}, nil
}

func (w *BufferedFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, os.ErrClosed
	}
	return w.buf.Write(p)
}

// Flush hands buffered records to the OS without syncing
func (w *BufferedFileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	return w.buf.Flush()
}

// Close flushes, syncs and closes the file. Later calls do nothing.
func (w *BufferedFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return errors.Join(w.buf.Flush(), w.file.Sync(), w.file.Close())
}
