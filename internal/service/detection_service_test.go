package service

import (
	"context"
	"testing"
	"time"

	"github.com/sentinelops/gatekeep/internal/domain/auditlog"
	"github.com/sentinelops/gatekeep/internal/domain/detect"
	"github.com/sentinelops/gatekeep/internal/domain/disposition"
	"github.com/sentinelops/gatekeep/internal/domain/policyconf"
	"github.com/sentinelops/gatekeep/internal/domain/scanner"
	"github.com/sentinelops/gatekeep/internal/domain/tenant"
	"github.com/sentinelops/gatekeep/internal/service/cache"
)

type fakeRiskConfigSource struct{}

func (fakeRiskConfigSource) GetRiskTypeConfig(ctx context.Context, applicationID string) (policyconf.RiskTypeConfig, error) {
	return policyconf.RiskTypeConfig{ApplicationID: applicationID}, nil
}

type recordingWriter struct {
	records []auditlog.DetectionResult
}

func (w *recordingWriter) Enqueue(record auditlog.DetectionResult) error {
	w.records = append(w.records, record)
	return nil
}

func newTestDetectionService(writer auditlog.Writer) *DetectionService {
	scannerStore := &fakeScannerStore{configs: map[string]scanner.ApplicationConfig{}, purchased: map[string]bool{}}
	runner := NewScannerRunner(scannerStore, nil, 4000)
	resolver := newTestResolver(tenant.Application{ID: "app1", TenantID: "t1"})
	riskConfig := cache.NewRiskConfigCache(fakeRiskConfigSource{}, time.Minute)
	return NewDetectionService(runner, resolver, riskConfig, writer)
}

func TestDetectionService_Evaluate_NoRiskPassesAndLogs(t *testing.T) {
	writer := &recordingWriter{}
	svc := newTestDetectionService(writer)

	result, err := svc.Evaluate(context.Background(), EvaluateRequest{
		TenantID:      "t1",
		ApplicationID: "app1",
		Messages:      []detect.Message{{Role: detect.RoleUser, Content: "hello there"}},
		Side:          disposition.SideInput,
		Language:      "en",
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Disposition.Action != disposition.ActionPass {
		t.Errorf("expected pass, got %q", result.Disposition.Action)
	}
	if result.RequestID == "" {
		t.Error("expected a generated request id")
	}
	if len(writer.records) != 1 {
		t.Fatalf("expected one logged detection result, got %d", len(writer.records))
	}
	if writer.records[0].ApplicationID != "app1" {
		t.Errorf("expected logged record scoped to app1, got %q", writer.records[0].ApplicationID)
	}
}

func TestDetectionService_Evaluate_NilWriterSkipsLogging(t *testing.T) {
	svc := newTestDetectionService(nil)

	_, err := svc.Evaluate(context.Background(), EvaluateRequest{
		TenantID:      "t1",
		ApplicationID: "app1",
		Messages:      []detect.Message{{Role: detect.RoleUser, Content: "hi"}},
		Side:          disposition.SideInput,
		Language:      "en",
	})
	if err != nil {
		t.Fatalf("Evaluate with nil writer should not error: %v", err)
	}
}
