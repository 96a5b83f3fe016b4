package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

type fakeImporter struct {
	importCalls   int
	importErr     error
	importN       int
	forceSyncErr  error
	forceSyncArgs []time.Time
}

func (f *fakeImporter) ImportNewLines(ctx context.Context) (int, error) {
	f.importCalls++
	return f.importN, f.importErr
}

func (f *fakeImporter) ForceSync(ctx context.Context, start, end time.Time) error {
	f.forceSyncArgs = []time.Time{start, end}
	return f.forceSyncErr
}

func TestLogImporter_Run_ReturnsNilOnContextCancel(t *testing.T) {
	importer := &fakeImporter{}
	lockPath := filepath.Join(t.TempDir(), "importer.lock")
	li := NewLogImporter(importer, lockPath, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := li.Run(ctx); err != nil {
		t.Errorf("expected Run to return nil on an already-cancelled context, got %v", err)
	}
}

func TestLogImporter_ForceSync_ClearsThenImports(t *testing.T) {
	importer := &fakeImporter{importN: 3}
	lockPath := filepath.Join(t.TempDir(), "importer.lock")
	li := NewLogImporter(importer, lockPath, nil)

	start := time.Now().Add(-time.Hour)
	end := time.Now()
	n, err := li.ForceSync(context.Background(), start, end)
	if err != nil {
		t.Fatalf("ForceSync: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 reimported rows, got %d", n)
	}
	if importer.importCalls != 1 {
		t.Errorf("expected ImportNewLines to run once after ForceSync, ran %d times", importer.importCalls)
	}
	if len(importer.forceSyncArgs) != 2 || !importer.forceSyncArgs[0].Equal(start) || !importer.forceSyncArgs[1].Equal(end) {
		t.Errorf("expected ForceSync called with (start, end), got %v", importer.forceSyncArgs)
	}
}

func TestLogImporter_ForceSync_PropagatesClearError(t *testing.T) {
	importer := &fakeImporter{forceSyncErr: errors.New("clear failed")}
	lockPath := filepath.Join(t.TempDir(), "importer.lock")
	li := NewLogImporter(importer, lockPath, nil)

	_, err := li.ForceSync(context.Background(), time.Now(), time.Now())
	if err == nil {
		t.Fatal("expected an error when the underlying ForceSync fails")
	}
	if importer.importCalls != 0 {
		t.Error("expected ImportNewLines not to run when ForceSync itself fails")
	}
}
