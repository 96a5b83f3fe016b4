package fswriter

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sentinelops/gatekeep/internal/domain/auditlog"
)

// Importer implements auditlog.Importer: it periodically tails the same
// directory Writer appends to, parsing and upserting new lines into the
// relational store (the cold path of the two-stage pipeline).
type Importer struct {
	dir         string
	store       auditlog.Store
	offsetsPath string

	mu      sync.Mutex
	offsets map[string]int64 // file name -> bytes already imported
}

var _ auditlog.Importer = (*Importer)(nil)

// NewImporter builds an Importer over dir, persisting per-file offsets
// in dir/.offsets.json so a process restart resumes rather than
// reimporting everything.
func NewImporter(dir string, store auditlog.Store) *Importer {
	imp := &Importer{
		dir:         dir,
		store:       store,
		offsetsPath: filepath.Join(dir, ".offsets.json"),
		offsets:     make(map[string]int64),
	}
	imp.loadOffsets()
	return imp
}

func (imp *Importer) loadOffsets() {
	b, err := os.ReadFile(imp.offsetsPath)
	if err != nil {
		return
	}
	json.Unmarshal(b, &imp.offsets)
}

func (imp *Importer) saveOffsetsLocked() error {
	b, err := json.Marshal(imp.offsets)
	if err != nil {
		return fmt.Errorf("fswriter: marshal offsets: %w", err)
	}
	return os.WriteFile(imp.offsetsPath, b, 0o644)
}

// ImportNewLines implements auditlog.Importer.
func (imp *Importer) ImportNewLines(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(imp.dir)
	if err != nil {
		return 0, fmt.Errorf("fswriter: list audit dir: %w", err)
	}

	imp.mu.Lock()
	defer imp.mu.Unlock()

	total := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		n, err := imp.importFileLocked(ctx, e.Name())
		if err != nil {
			return total, err
		}
		total += n
	}
	if err := imp.saveOffsetsLocked(); err != nil {
		return total, err
	}
	return total, nil
}

func (imp *Importer) importFileLocked(ctx context.Context, name string) (int, error) {
	path := filepath.Join(imp.dir, name)
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("fswriter: open %s: %w", path, err)
	}
	defer f.Close()

	offset := imp.offsets[name]
	if _, err := f.Seek(offset, 0); err != nil {
		return 0, fmt.Errorf("fswriter: seek %s: %w", path, err)
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	imported := 0
	read := offset
	for scanner.Scan() {
		line := scanner.Bytes()
		read += int64(len(line)) + 1
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var r auditlog.DetectionResult
		if err := json.Unmarshal(line, &r); err != nil {
			continue // skip malformed lines rather than aborting the whole tail
		}
		inserted, err := imp.store.UpsertDetectionResult(ctx, r)
		if err != nil {
			return imported, fmt.Errorf("fswriter: upsert %s: %w", r.RequestID, err)
		}
		if inserted {
			imported++
		}
	}
	if err := scanner.Err(); err != nil {
		return imported, fmt.Errorf("fswriter: scan %s: %w", path, err)
	}
	imp.offsets[name] = read
	return imported, nil
}

// ForceSync implements auditlog.Importer: it clears the persisted offset
// for every daily file whose date falls within [start,end] so the next
// ImportNewLines reprocesses them from the beginning.
func (imp *Importer) ForceSync(ctx context.Context, start, end time.Time) error {
	imp.mu.Lock()
	defer imp.mu.Unlock()

	entries, err := os.ReadDir(imp.dir)
	if err != nil {
		return fmt.Errorf("fswriter: list audit dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		date := strings.TrimSuffix(name, ".jsonl")
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			continue
		}
		if t.Before(start.UTC().Truncate(24*time.Hour)) || t.After(end.UTC()) {
			continue
		}
		delete(imp.offsets, name)
	}
	return imp.saveOffsetsLocked()
}
