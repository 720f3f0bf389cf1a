// Package logging tees the daemon's log output into a size-capped
// file so ingestion runs can be inspected after the fact.
package logging

import (
	"io"
	"log"
	"os"
	"sync"
)

// DefaultMaxBytes caps the log file when no size is configured.
const DefaultMaxBytes = 2 * 1024 * 1024

// RotatingWriter appends to a log file and rolls it over to a ".old"
// sibling when it outgrows maxBytes. One generation of history is
// kept.
type RotatingWriter struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	size     int64
	maxBytes int64
}

// Setup routes the standard logger to stdout and a rotating file.
func Setup(path string, maxBytes int64) (*RotatingWriter, error) {
	w, err := NewRotatingWriter(path, maxBytes)
	if err != nil {
		return nil, err
	}
	log.SetOutput(io.MultiWriter(os.Stdout, w))
	return w, nil
}

func NewRotatingWriter(path string, maxBytes int64) (*RotatingWriter, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	w := &RotatingWriter{path: path, maxBytes: maxBytes}

	// An oversized file left by a previous run rolls over instead of
	// growing further.
	if info, err := os.Stat(path); err == nil && info.Size() > maxBytes {
		os.Rename(path, path+".old")
	}

	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	w.file = f
	w.size = info.Size()
	return nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.file.Write(p)
	w.size += int64(n)
	if w.size > w.maxBytes {
		w.rotate()
	}
	return n, err
}

// rotate rolls the active file over. The standard logger may be
// writing through this writer, so rotate never logs; a failed reopen
// leaves file writes erroring while stdout still gets every line.
func (w *RotatingWriter) rotate() {
	w.file.Close()
	os.Rename(w.path, w.path+".old")
	_ = w.open()
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
