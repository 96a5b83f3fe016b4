package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/oklog/ulid/v2"

	"github.com/sentinelops/gatekeep/internal/domain/appeal"
)

// Create implements appeal.Store.
func (s *Store) Create(ctx context.Context, r appeal.Record) (appeal.Record, error) {
	r.ID = ulid.Make().String()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	insert, _, err := s.goqu.Insert("appeal_records").Rows(goqu.Record{
		"id":             r.ID,
		"request_id":     r.RequestID,
		"application_id": r.ApplicationID,
		"status":         string(r.Status),
		"ai_review_note": r.AIReviewNote,
		"created_at":     r.CreatedAt.UTC().Format(time.RFC3339),
	}).ToSQL()
	if err != nil {
		return appeal.Record{}, fmt.Errorf("store: build appeal insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, insert); err != nil {
		return appeal.Record{}, fmt.Errorf("store: create appeal: %w", err)
	}
	return r, nil
}

// Get implements appeal.Store.
func (s *Store) Get(ctx context.Context, id string) (appeal.Record, error) {
	return s.appealByColumn(ctx, "id", id)
}

// GetByRequestID implements appeal.Store.
func (s *Store) GetByRequestID(ctx context.Context, requestID string) (appeal.Record, error) {
	return s.appealByColumn(ctx, "request_id", requestID)
}

func (s *Store) appealByColumn(ctx context.Context, column, value string) (appeal.Record, error) {
	query, _, err := s.goqu.From("appeal_records").
		Select("id", "request_id", "application_id", "status", "ai_review_note",
			"human_reviewer_id", "human_review_note", "outcome", "created_at", "resolved_at").
		Where(goqu.C(column).Eq(value)).
		ToSQL()
	if err != nil {
		return appeal.Record{}, fmt.Errorf("store: build appeal lookup: %w", err)
	}

	var r appeal.Record
	var status, createdAt string
	var aiNote, humanReviewerID, humanNote, outcome, resolvedAt sql.NullString
	err = s.db.QueryRowContext(ctx, query).Scan(&r.ID, &r.RequestID, &r.ApplicationID, &status,
		&aiNote, &humanReviewerID, &humanNote, &outcome, &createdAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return appeal.Record{}, fmt.Errorf("store: appeal %s: %w", value, sql.ErrNoRows)
	}
	if err != nil {
		return appeal.Record{}, fmt.Errorf("store: appeal lookup: %w", err)
	}

	r.Status = appeal.Status(status)
	r.AIReviewNote = aiNote.String
	r.HumanReviewNote = humanNote.String
	if humanReviewerID.Valid {
		v := humanReviewerID.String
		r.HumanReviewerID = &v
	}
	if outcome.Valid {
		v := appeal.Outcome(outcome.String)
		r.Outcome = &v
	}
	r.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return appeal.Record{}, fmt.Errorf("store: parse appeal created_at: %w", err)
	}
	if resolvedAt.Valid {
		t, err := time.Parse(time.RFC3339, resolvedAt.String)
		if err != nil {
			return appeal.Record{}, fmt.Errorf("store: parse appeal resolved_at: %w", err)
		}
		r.ResolvedAt = &t
	}
	return r, nil
}

// Update implements appeal.Store.
func (s *Store) Update(ctx context.Context, r appeal.Record) error {
	record := goqu.Record{
		"status":            string(r.Status),
		"ai_review_note":    r.AIReviewNote,
		"human_review_note": r.HumanReviewNote,
	}
	if r.HumanReviewerID != nil {
		record["human_reviewer_id"] = *r.HumanReviewerID
	}
	if r.Outcome != nil {
		record["outcome"] = string(*r.Outcome)
	}
	if r.ResolvedAt != nil {
		record["resolved_at"] = r.ResolvedAt.UTC().Format(time.RFC3339)
	}

	query, _, err := s.goqu.Update("appeal_records").
		Set(record).
		Where(goqu.C("id").Eq(r.ID)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("store: build appeal update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("store: update appeal: %w", err)
	}
	return nil
}

// GetConfig implements appeal.Store.
func (s *Store) GetConfig(ctx context.Context, applicationID string) (appeal.Config, error) {
	query, _, err := s.goqu.From("appeal_configs").
		Select("application_id", "human_review_enabled", "reviewer_emails").
		Where(goqu.C("application_id").Eq(applicationID)).
		ToSQL()
	if err != nil {
		return appeal.Config{}, fmt.Errorf("store: build appeal config lookup: %w", err)
	}

	var cfg appeal.Config
	var enabled int
	var emailsJSON string
	err = s.db.QueryRowContext(ctx, query).Scan(&cfg.ApplicationID, &enabled, &emailsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		// No row yet means human review has never been configured for this
		// application; default to AI-only resolution.
		return appeal.Config{ApplicationID: applicationID}, nil
	}
	if err != nil {
		return appeal.Config{}, fmt.Errorf("store: appeal config lookup: %w", err)
	}
	cfg.HumanReviewEnabled = enabled != 0
	if err := json.Unmarshal([]byte(emailsJSON), &cfg.ReviewerEmails); err != nil {
		return appeal.Config{}, fmt.Errorf("store: unmarshal reviewer emails: %w", err)
	}
	return cfg, nil
}

var _ appeal.Store = (*Store)(nil)
