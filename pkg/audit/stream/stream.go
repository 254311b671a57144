// Package stream persists job results as they complete, without holding the
// full result set in memory. Results are buffered and flushed to an
// append-only JSONL file when any of the count, elapsed-time, or estimated
// memory thresholds is exceeded.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jamesainslie/fleetaudit/pkg/audit/logging"
	"github.com/jamesainslie/fleetaudit/pkg/audit/types"
)

// ErrClosed is returned by AddResult after Finalize. Writing to a finalized
// stream is a caller bug, not a condition to ignore silently.
var ErrClosed = errors.New("stream writer is finalized")

// Default flush thresholds.
const (
	DefaultBufferSize      = 50
	DefaultFlushInterval   = 5 * time.Second
	DefaultMemoryThreshold = 8 * types.MiB
)

// Options configures a Writer.
type Options struct {
	// BufferSize is the record count that triggers a flush.
	BufferSize int

	// FlushInterval is the elapsed time that triggers a flush of
	// whatever is buffered.
	FlushInterval time.Duration

	// MemoryThreshold is the estimated buffered byte count that
	// triggers a flush.
	MemoryThreshold int64
}

// withDefaults fills unset options.
func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = DefaultFlushInterval
	}
	if o.MemoryThreshold <= 0 {
		o.MemoryThreshold = DefaultMemoryThreshold
	}
	return o
}

// Stats describes what a writer has durably written.
type Stats struct {
	Records int64 `json:"records"`
	Flushes int64 `json:"flushes"`
	Bytes   int64 `json:"bytes"`
}

// Writer buffers serialized job results and flushes them to a JSONL file.
// AddResult is safe for concurrent use; the buffer is the only state shared
// between task completions and the flush path, and a single mutex
// serializes every access to it.
type Writer struct {
	opts Options
	path string
	log  *logging.Logger

	mu        sync.Mutex
	file      *os.File
	buf       [][]byte
	bufBytes  int64
	lastFlush time.Time
	closed    bool
	stats     Stats

	stopTicker chan struct{}
	tickerDone chan struct{}
}

// NewWriter creates a stream writer for the given file path. The file is
// created (parent directories included) and opened for append.
func NewWriter(path string, opts Options) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating stream directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening stream file: %w", err)
	}

	w := &Writer{
		opts:       opts.withDefaults(),
		path:       path,
		log:        logging.Get("stream"),
		file:       file,
		lastFlush:  time.Now(),
		stopTicker: make(chan struct{}),
		tickerDone: make(chan struct{}),
	}
	go w.flushLoop()
	return w, nil
}

// AddResult buffers one result, flushing if a threshold is crossed.
// Returns ErrClosed after Finalize.
func (w *Writer) AddResult(result *types.JobResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	w.buf = append(w.buf, data)
	w.bufBytes += int64(len(data)) + 1 // newline

	if len(w.buf) >= w.opts.BufferSize || w.bufBytes >= w.opts.MemoryThreshold {
		return w.flushLocked()
	}
	return nil
}

// Finalize drains the buffer, closes the file, and returns the stream file
// path. Further AddResult calls fail with ErrClosed. Finalize is safe to
// call once; repeated calls return the path without error.
func (w *Writer) Finalize() (string, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return w.path, nil
	}

	flushErr := w.flushLocked()
	closeErr := w.file.Close()
	w.closed = true
	w.mu.Unlock()

	close(w.stopTicker)
	<-w.tickerDone

	if flushErr != nil {
		return w.path, flushErr
	}
	if closeErr != nil {
		return w.path, fmt.Errorf("closing stream file: %w", closeErr)
	}

	w.log.Info("stream finalized", "path", w.path,
		"records", w.stats.Records, "flushes", w.stats.Flushes,
		"bytes", w.stats.Bytes)
	return w.path, nil
}

// Stats returns a snapshot of the write statistics.
func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// flushLoop flushes on the elapsed-time threshold until Finalize stops it.
func (w *Writer) flushLoop() {
	defer close(w.tickerDone)

	ticker := time.NewTicker(w.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopTicker:
			return
		case <-ticker.C:
			w.mu.Lock()
			if !w.closed && len(w.buf) > 0 && time.Since(w.lastFlush) >= w.opts.FlushInterval {
				if err := w.flushLocked(); err != nil {
					w.log.Error("periodic flush failed", "error", err)
				}
			}
			w.mu.Unlock()
		}
	}
}

// flushLocked writes the buffered records. Caller holds w.mu.
func (w *Writer) flushLocked() error {
	if len(w.buf) == 0 {
		w.lastFlush = time.Now()
		return nil
	}

	for i, rec := range w.buf {
		n, err := w.file.Write(append(rec, '\n'))
		w.stats.Bytes += int64(n)
		if err != nil {
			// Keep the unwritten tail so a later flush cannot
			// duplicate the records already on disk.
			w.buf = w.buf[i+1:]
			w.bufBytes = 0
			for _, r := range w.buf {
				w.bufBytes += int64(len(r)) + 1
			}
			return fmt.Errorf("writing stream record: %w", err)
		}
		w.stats.Records++
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("syncing stream file: %w", err)
	}

	w.stats.Flushes++
	w.buf = w.buf[:0]
	w.bufBytes = 0
	w.lastFlush = time.Now()
	return nil
}
