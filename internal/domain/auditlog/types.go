// Package auditlog holds the DetectionResult entity and the two-stage
// log pipeline ports (SPEC §4.7): a hot-path Writer that appends to a
// bounded channel and flushes to JSONL, and a cold-path Importer that
// tails JSONL files into the relational store.
package auditlog

import (
	"context"
	"encoding/json"
	"time"
)

// DetectionResult is the immutable request log entity. RequestID is
// unique; the background importer is idempotent on it.
type DetectionResult struct {
	RequestID     string
	ApplicationID string
	TenantID      string
	Content       string // possibly truncated

	SecurityRiskLevel    string
	SecurityCategories   []string
	ComplianceRiskLevel  string
	ComplianceCategories []string
	DataRiskLevel        string
	DataCategories       []string

	SuggestAction string
	SuggestAnswer string
	ModelResponse string // raw scanner output string
	Score         *float64
	ImagePaths    []string
	CreatedAt     time.Time
}

// MarshalJSONL serializes the record as one JSON line, matching the
// on-disk shape consumed by the importer.
func (r DetectionResult) MarshalJSONL() ([]byte, error) {
	return json.Marshal(r)
}

// Writer is the hot-path front half: log_detection(record) enqueues
// without blocking the caller.
type Writer interface {
	// Enqueue appends record to the bounded channel. It never blocks the
	// caller on I/O; under overflow it drops the oldest queued record and
	// increments a drop counter rather than blocking or erroring.
	Enqueue(record DetectionResult) error
}

// Importer is the cold-path back half: periodically tails JSONL files
// into the relational store.
type Importer interface {
	// ImportNewLines scans the log directory for new lines beyond each
	// file's persisted offset, parses and upserts them keyed by
	// RequestID (skipping duplicates), and advances the offset. Returns
	// the number of rows imported.
	ImportNewLines(ctx context.Context) (int, error)
	// ForceSync clears the persisted offset for files covering
	// [start,end] and reprocesses them from line 0, for the admin
	// force_sync endpoint.
	ForceSync(ctx context.Context, start, end time.Time) error
}

// Store persists DetectionResult rows (the importer's write side).
type Store interface {
	UpsertDetectionResult(ctx context.Context, r DetectionResult) (inserted bool, err error)
}
