package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sentinelops/gatekeep/internal/domain/auditlog"
)

// tickInterval is how often the background tailer sweeps the log
// directory for new lines (§4.7: "every 5s").
const tickInterval = 5 * time.Second

// LogImporter runs auditlog.Importer on a ticker, guarded by a
// cross-process advisory file lock so that only one admin-process
// instance tails a given log directory at a time, matching the
// teacher's state.json single-writer flock in
// internal/adapter/outbound/state/store.go generalized from
// "one state file" to "one log directory".
type LogImporter struct {
	importer auditlog.Importer
	lockPath string
	logger   *slog.Logger
}

// NewLogImporter builds a LogImporter. lockPath is the advisory lock
// file (e.g. "<dir>/.importer.lock"); logger may be nil to fall back to
// slog.Default().
func NewLogImporter(importer auditlog.Importer, lockPath string, logger *slog.Logger) *LogImporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogImporter{importer: importer, lockPath: lockPath, logger: logger}
}

// Run ticks every 5s until ctx is cancelled, calling ImportNewLines and
// logging (but not propagating) per-tick errors so a single bad file
// never kills the background loop.
func (li *LogImporter) Run(ctx context.Context) error {
	lockFile, err := os.OpenFile(li.lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("service: open importer lock: %w", err)
	}
	defer func() { _ = lockFile.Close() }()

	if err := flockLock(lockFile.Fd()); err != nil {
		return fmt.Errorf("service: acquire importer lock: %w", err)
	}
	defer flockUnlock(lockFile.Fd()) //nolint:errcheck

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := li.importer.ImportNewLines(ctx)
			if err != nil {
				li.logger.Error("log importer tick failed", "error", err)
				continue
			}
			if n > 0 {
				li.logger.Debug("log importer tick", "imported", n)
			}
		}
	}
}

// ForceSync clears the persisted offsets for [start,end] and
// immediately reimports, for the admin force_sync endpoint.
func (li *LogImporter) ForceSync(ctx context.Context, start, end time.Time) (int, error) {
	if err := li.importer.ForceSync(ctx, start, end); err != nil {
		return 0, fmt.Errorf("service: force sync: %w", err)
	}
	return li.importer.ImportNewLines(ctx)
}
