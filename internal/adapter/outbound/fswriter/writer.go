// Package fswriter implements the auditlog.Writer and auditlog.Importer
// ports against a directory of daily JSONL files, guarded by advisory
// file locks so a restarted process never interleaves writes with a
// still-running sibling.
package fswriter

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sentinelops/gatekeep/internal/config"
	"github.com/sentinelops/gatekeep/internal/domain/auditlog"
)

// Writer is the hot-path front half of the log pipeline: Enqueue never
// blocks on I/O, buffering records on a bounded channel that a
// background goroutine drains to one JSONL file per UTC day.
type Writer struct {
	dir           string
	flushInterval time.Duration
	ch            chan auditlog.DetectionResult
	dropped       atomic.Int64

	mu      sync.Mutex
	curDate string
	curFile *os.File
	curBuf  *bufio.Writer
}

var _ auditlog.Writer = (*Writer)(nil)

// New builds a Writer from the audit log config. The directory is
// created if it does not exist.
func New(cfg config.AuditLogConfig) (*Writer, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("fswriter: create audit dir: %w", err)
	}
	capacity := cfg.ChannelCapacity
	if capacity <= 0 {
		capacity = 1024
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = time.Second
	}
	return &Writer{
		dir:           cfg.Dir,
		flushInterval: flush,
		ch:            make(chan auditlog.DetectionResult, capacity),
	}, nil
}

// Enqueue implements auditlog.Writer. Under overflow it drops the oldest
// queued record and increments Dropped rather than blocking the caller.
func (w *Writer) Enqueue(record auditlog.DetectionResult) error {
	select {
	case w.ch <- record:
		return nil
	default:
	}
	select {
	case <-w.ch:
	default:
	}
	select {
	case w.ch <- record:
	default:
		w.dropped.Add(1)
	}
	return nil
}

// Dropped returns the number of records dropped so far due to channel
// overflow, for metrics.
func (w *Writer) Dropped() int64 {
	return w.dropped.Load()
}

// ChannelDepth returns the number of records currently buffered, for
// the /health backpressure check.
func (w *Writer) ChannelDepth() int {
	return len(w.ch)
}

// ChannelCapacity returns the buffer's configured capacity.
func (w *Writer) ChannelCapacity() int {
	return cap(w.ch)
}

// Run drains the channel until stop is closed, flushing the current
// file's buffer every flushInterval. Callers run this in a background
// goroutine for the lifetime of the process.
func (w *Writer) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case r := <-w.ch:
			if err := w.appendLine(r); err != nil {
				continue
			}
		case <-ticker.C:
			w.flush()
		case <-stop:
			w.drainRemaining()
			w.flush()
			w.closeCurrent()
			return
		}
	}
}

func (w *Writer) drainRemaining() {
	for {
		select {
		case r := <-w.ch:
			w.appendLine(r)
		default:
			return
		}
	}
}

func (w *Writer) appendLine(r auditlog.DetectionResult) error {
	line, err := r.MarshalJSONL()
	if err != nil {
		return fmt.Errorf("fswriter: marshal record: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureFileLocked(r.CreatedAt); err != nil {
		return err
	}
	if _, err := w.curBuf.Write(line); err != nil {
		return err
	}
	return w.curBuf.WriteByte('\n')
}

// ensureFileLocked opens (creating if needed) the JSONL file for t's UTC
// date, taking an exclusive advisory lock so a concurrently restarted
// process cannot interleave appends.
func (w *Writer) ensureFileLocked(t time.Time) error {
	date := t.UTC().Format("2006-01-02")
	if date == w.curDate && w.curFile != nil {
		return nil
	}
	w.closeCurrentLocked()

	path := filepath.Join(w.dir, date+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("fswriter: open %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return fmt.Errorf("fswriter: lock %s: %w", path, err)
	}
	w.curDate = date
	w.curFile = f
	w.curBuf = bufio.NewWriter(f)
	return nil
}

func (w *Writer) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.curBuf != nil {
		w.curBuf.Flush()
	}
}

func (w *Writer) closeCurrent() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeCurrentLocked()
}

func (w *Writer) closeCurrentLocked() {
	if w.curFile == nil {
		return
	}
	w.curBuf.Flush()
	unix.Flock(int(w.curFile.Fd()), unix.LOCK_UN)
	w.curFile.Close()
	w.curFile = nil
	w.curBuf = nil
	w.curDate = ""
}
