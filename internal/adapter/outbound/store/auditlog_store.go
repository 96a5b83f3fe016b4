package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/sentinelops/gatekeep/internal/domain/auditlog"
)

// UpsertDetectionResult implements auditlog.Store. Invariant 5: request_id
// is unique, so a second import of the same line is a no-op, making the
// background importer idempotent across crash-and-resume.
func (s *Store) UpsertDetectionResult(ctx context.Context, r auditlog.DetectionResult) (bool, error) {
	exists, err := s.detectionResultExists(ctx, r.RequestID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	secCats, err := json.Marshal(r.SecurityCategories)
	if err != nil {
		return false, fmt.Errorf("store: marshal security categories: %w", err)
	}
	compCats, err := json.Marshal(r.ComplianceCategories)
	if err != nil {
		return false, fmt.Errorf("store: marshal compliance categories: %w", err)
	}
	dataCats, err := json.Marshal(r.DataCategories)
	if err != nil {
		return false, fmt.Errorf("store: marshal data categories: %w", err)
	}
	imagePaths, err := json.Marshal(r.ImagePaths)
	if err != nil {
		return false, fmt.Errorf("store: marshal image paths: %w", err)
	}

	var scoreVal interface{}
	if r.Score != nil {
		scoreVal = *r.Score
	}

	insert, _, err := s.goqu.Insert("detection_results").Rows(goqu.Record{
		"request_id":            r.RequestID,
		"application_id":        r.ApplicationID,
		"tenant_id":             r.TenantID,
		"content":               r.Content,
		"security_risk_level":   r.SecurityRiskLevel,
		"security_categories":   string(secCats),
		"compliance_risk_level": r.ComplianceRiskLevel,
		"compliance_categories": string(compCats),
		"data_risk_level":       r.DataRiskLevel,
		"data_categories":       string(dataCats),
		"suggest_action":        r.SuggestAction,
		"suggest_answer":        r.SuggestAnswer,
		"model_response":        r.ModelResponse,
		"score":                 scoreVal,
		"image_paths":           string(imagePaths),
		"created_at":            r.CreatedAt.UTC().Format(time.RFC3339),
	}).ToSQL()
	if err != nil {
		return false, fmt.Errorf("store: build detection result insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, insert); err != nil {
		return false, fmt.Errorf("store: insert detection result: %w", err)
	}
	return true, nil
}

// GetDetectionResult returns the logged result for requestID, or
// ErrNotFound if no such request was ever imported. Used by the appeal
// flow to re-review the original content.
func (s *Store) GetDetectionResult(ctx context.Context, requestID string) (auditlog.DetectionResult, error) {
	query, _, err := s.goqu.From("detection_results").
		Select("request_id", "application_id", "tenant_id", "content",
			"security_risk_level", "security_categories",
			"compliance_risk_level", "compliance_categories",
			"data_risk_level", "data_categories",
			"suggest_action", "suggest_answer", "model_response",
			"score", "image_paths", "created_at").
		Where(goqu.C("request_id").Eq(requestID)).
		ToSQL()
	if err != nil {
		return auditlog.DetectionResult{}, fmt.Errorf("store: build detection result lookup: %w", err)
	}

	var r auditlog.DetectionResult
	var secCats, compCats, dataCats, imagePaths string
	var modelResponse sql.NullString
	var score sql.NullFloat64
	var createdAt string
	row := s.db.QueryRowContext(ctx, query)
	err = row.Scan(&r.RequestID, &r.ApplicationID, &r.TenantID, &r.Content,
		&r.SecurityRiskLevel, &secCats,
		&r.ComplianceRiskLevel, &compCats,
		&r.DataRiskLevel, &dataCats,
		&r.SuggestAction, &r.SuggestAnswer, &modelResponse,
		&score, &imagePaths, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auditlog.DetectionResult{}, ErrNotFound
	}
	if err != nil {
		return auditlog.DetectionResult{}, fmt.Errorf("store: detection result lookup: %w", err)
	}

	if err := json.Unmarshal([]byte(secCats), &r.SecurityCategories); err != nil {
		return auditlog.DetectionResult{}, fmt.Errorf("store: unmarshal security categories: %w", err)
	}
	if err := json.Unmarshal([]byte(compCats), &r.ComplianceCategories); err != nil {
		return auditlog.DetectionResult{}, fmt.Errorf("store: unmarshal compliance categories: %w", err)
	}
	if err := json.Unmarshal([]byte(dataCats), &r.DataCategories); err != nil {
		return auditlog.DetectionResult{}, fmt.Errorf("store: unmarshal data categories: %w", err)
	}
	if err := json.Unmarshal([]byte(imagePaths), &r.ImagePaths); err != nil {
		return auditlog.DetectionResult{}, fmt.Errorf("store: unmarshal image paths: %w", err)
	}
	r.ModelResponse = modelResponse.String
	if score.Valid {
		r.Score = &score.Float64
	}
	parsed, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return auditlog.DetectionResult{}, fmt.Errorf("store: parse detection result created_at: %w", err)
	}
	r.CreatedAt = parsed
	return r, nil
}

func (s *Store) detectionResultExists(ctx context.Context, requestID string) (bool, error) {
	query, _, err := s.goqu.From("detection_results").
		Select("request_id").
		Where(goqu.C("request_id").Eq(requestID)).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("store: build detection result existence check: %w", err)
	}
	var id string
	err = s.db.QueryRowContext(ctx, query).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: detection result existence check: %w", err)
	}
	return true, nil
}

var _ auditlog.Store = (*Store)(nil)
