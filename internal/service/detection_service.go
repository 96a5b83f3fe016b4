package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelops/gatekeep/internal/domain/anonymize"
	"github.com/sentinelops/gatekeep/internal/domain/auditlog"
	"github.com/sentinelops/gatekeep/internal/domain/detect"
	"github.com/sentinelops/gatekeep/internal/domain/disposition"
	"github.com/sentinelops/gatekeep/internal/service/cache"
)

// EvaluateRequest is everything DetectionService.Evaluate needs about one
// call, gathered by the caller (detectapi/proxyapi) from auth context and
// the request body.
type EvaluateRequest struct {
	TenantID      string
	ApplicationID string
	IsSuperAdmin  bool
	Messages      []detect.Message
	Side          disposition.Side
	Language      string
	WantRestore   bool
}

// EvaluateResult is DetectionService.Evaluate's outcome: the disposition
// and the verdicts it was computed from, for logging.
type EvaluateResult struct {
	Disposition disposition.Result
	Verdicts    Verdicts
	RequestID   string
}

// DetectionService is the single entrypoint the HTTP surfaces call to
// run the scanner engine and disposition resolver over one request, and
// to enqueue the resulting DetectionResult onto the async log pipeline.
type DetectionService struct {
	runner     *ScannerRunner
	resolver   *DispositionResolver
	riskConfig *cache.RiskConfigCache
	writer     auditlog.Writer
}

// NewDetectionService builds a DetectionService. writer may be nil to
// skip logging (e.g. in tests).
func NewDetectionService(runner *ScannerRunner, resolver *DispositionResolver, riskConfig *cache.RiskConfigCache, writer auditlog.Writer) *DetectionService {
	return &DetectionService{runner: runner, resolver: resolver, riskConfig: riskConfig, writer: writer}
}

// Evaluate runs the scanner engine, the disposition resolver, and logs
// the resulting DetectionResult (best-effort: a logging failure never
// fails the request).
func (s *DetectionService) Evaluate(ctx context.Context, req EvaluateRequest) (EvaluateResult, error) {
	requestID := uuid.New().String()
	now := time.Now().UTC()

	riskConfig, err := s.riskConfig.Get(ctx, req.ApplicationID)
	if err != nil {
		return EvaluateResult{}, fmt.Errorf("service: load risk config: %w", err)
	}

	verdicts, err := s.runner.Run(ctx, req.TenantID, req.ApplicationID, req.IsSuperAdmin, req.Messages, riskConfig)
	if err != nil {
		return EvaluateResult{}, fmt.Errorf("service: run scanners: %w", err)
	}

	result, err := s.resolver.Resolve(ctx, req.ApplicationID, req.Side, req.Messages, verdicts, req.Language, req.WantRestore, DefaultAnonymizeMethodFor)
	if err != nil {
		return EvaluateResult{}, fmt.Errorf("service: resolve disposition: %w", err)
	}

	s.logResult(requestID, req, verdicts, result, now)

	return EvaluateResult{Disposition: result, Verdicts: verdicts, RequestID: requestID}, nil
}

func (s *DetectionService) logResult(requestID string, req EvaluateRequest, v Verdicts, result disposition.Result, now time.Time) {
	if s.writer == nil {
		return
	}
	var score *float64
	if result.Score > 0 {
		sc := result.Score
		score = &sc
	}
	content := ""
	if len(req.Messages) > 0 {
		content = req.Messages[len(req.Messages)-1].Content
	}
	var imagePaths []string
	for _, m := range req.Messages {
		imagePaths = append(imagePaths, m.ImagePaths...)
	}
	rec := auditlog.DetectionResult{
		RequestID:     requestID,
		ApplicationID: req.ApplicationID,
		TenantID:      req.TenantID,
		Content:       content,
		SecurityRiskLevel:    string(v.Security.Level),
		SecurityCategories:   result.Categories.Security,
		ComplianceRiskLevel:  string(v.Compliance.Level),
		ComplianceCategories: result.Categories.Compliance,
		DataRiskLevel:        string(v.Data.Level),
		DataCategories:       result.Categories.Data,
		SuggestAction: string(result.Action),
		SuggestAnswer: result.Answer,
		Score:         score,
		ImagePaths:    imagePaths,
		CreatedAt:     now,
	}
	_ = s.writer.Enqueue(rec) // overflow drops oldest; never fails the request
}

// AnonymizeMethodForConfig adapts a per-entity-type method map (as
// configured by an admin) into the anonymize.Method selector disposition.Deps
// wants, falling back to anonymize.MethodMask for unconfigured types.
func AnonymizeMethodForConfig(methods map[string]anonymize.Method) func(string) anonymize.Method {
	return func(entityType string) anonymize.Method {
		if m, ok := methods[entityType]; ok {
			return m
		}
		return anonymize.MethodMask
	}
}
