package service

import (
	"context"
	"time"

	"github.com/sentinelops/gatekeep/internal/domain/appeal"
	"github.com/sentinelops/gatekeep/internal/domain/auditlog"
)

// DetectionResultSource loads the logged content an appeal is re-reviewing.
type DetectionResultSource interface {
	GetDetectionResult(ctx context.Context, requestID string) (auditlog.DetectionResult, error)
}

// AppealService wires appeal.Submit/ResolveHuman to the relational store
// and the genai-backed reviewer, for the supplemented appeal flow
// (spec.md §6 "Appeal", expanded from original_source's two appeal
// routers).
type AppealService struct {
	store    appeal.Store
	results  DetectionResultSource
	reviewer appeal.AIReviewer
}

// NewAppealService builds an AppealService.
func NewAppealService(store appeal.Store, results DetectionResultSource, reviewer appeal.AIReviewer) *AppealService {
	return &AppealService{store: store, results: results, reviewer: reviewer}
}

// Submit creates a new appeal against requestID and runs the immediate
// AI re-review step.
func (s *AppealService) Submit(ctx context.Context, applicationID, requestID string) (appeal.Record, error) {
	result, err := s.results.GetDetectionResult(ctx, requestID)
	if err != nil {
		return appeal.Record{}, err
	}
	return appeal.Submit(ctx, s.store, s.reviewer, applicationID, requestID, result.Content, time.Now().UTC())
}

// ResolveHuman records a human reviewer's final decision on a pending appeal.
func (s *AppealService) ResolveHuman(ctx context.Context, id, reviewerID, note string, outcome appeal.Outcome) (appeal.Record, error) {
	return appeal.ResolveHuman(ctx, s.store, id, reviewerID, note, outcome, time.Now().UTC())
}

// Get returns one appeal by id.
func (s *AppealService) Get(ctx context.Context, id string) (appeal.Record, error) {
	return s.store.Get(ctx, id)
}
