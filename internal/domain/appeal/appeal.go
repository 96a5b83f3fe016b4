// Package appeal holds the public appeal flow: one AI re-review,
// followed by optional human review, for a blocked DetectionResult.
package appeal

import (
	"context"
	"time"
)

// Status is the appeal's current stage.
type Status string

const (
	StatusPendingAIReview    Status = "pending_ai_review"
	StatusAIReviewed         Status = "ai_reviewed"
	StatusPendingHumanReview Status = "pending_human_review"
	StatusResolved           Status = "resolved"
)

// Outcome is the final decision on an appeal.
type Outcome string

const (
	OutcomeUpheld   Outcome = "upheld"   // original block stands
	OutcomeOverturned Outcome = "overturned" // content is released
)

// Record is one appeal against a blocked request.
type Record struct {
	ID          string
	RequestID   string
	ApplicationID string
	Status      Status
	AIReviewNote string
	HumanReviewerID *string
	HumanReviewNote string
	Outcome     *Outcome
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}

// Config is the per-application appeal policy: whether human review is
// offered at all, and to whom it routes.
type Config struct {
	ApplicationID     string
	HumanReviewEnabled bool
	ReviewerEmails     []string
}

// AIReviewer re-examines a blocked request's content and recommends an
// outcome; implementations call the same GenAI classifier client used
// by the scanner engine, with a re-review-specific prompt.
type AIReviewer interface {
	Review(ctx context.Context, r Record, content string) (outcome Outcome, note string, err error)
}

// Store persists appeal records.
type Store interface {
	Create(ctx context.Context, r Record) (Record, error)
	Get(ctx context.Context, id string) (Record, error)
	GetByRequestID(ctx context.Context, requestID string) (Record, error)
	Update(ctx context.Context, r Record) error
	GetConfig(ctx context.Context, applicationID string) (Config, error)
}

// Submit creates a new appeal for requestID and immediately runs the AI
// re-review step.
func Submit(ctx context.Context, store Store, reviewer AIReviewer, applicationID, requestID, content string, now time.Time) (Record, error) {
	r := Record{
		RequestID:     requestID,
		ApplicationID: applicationID,
		Status:        StatusPendingAIReview,
		CreatedAt:     now,
	}
	r, err := store.Create(ctx, r)
	if err != nil {
		return Record{}, err
	}

	outcome, note, err := reviewer.Review(ctx, r, content)
	if err != nil {
		// AI review failure does not resolve the appeal; it falls through
		// to human review if configured, otherwise stays pending.
		r.Status = StatusPendingAIReview
		if cfg, cfgErr := store.GetConfig(ctx, applicationID); cfgErr == nil && cfg.HumanReviewEnabled {
			r.Status = StatusPendingHumanReview
			if err := store.Update(ctx, r); err != nil {
				return Record{}, err
			}
		}
		return r, nil
	}
	r.AIReviewNote = note
	r.Status = StatusAIReviewed

	cfg, cfgErr := store.GetConfig(ctx, applicationID)
	if cfgErr == nil && cfg.HumanReviewEnabled && outcome == OutcomeUpheld {
		r.Status = StatusPendingHumanReview
	} else {
		r.Status = StatusResolved
		r.Outcome = &outcome
		r.ResolvedAt = &now
	}

	if err := store.Update(ctx, r); err != nil {
		return Record{}, err
	}
	return r, nil
}

// ResolveHuman records a human reviewer's final decision.
func ResolveHuman(ctx context.Context, store Store, id, reviewerID, note string, outcome Outcome, now time.Time) (Record, error) {
	r, err := store.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	r.HumanReviewerID = &reviewerID
	r.HumanReviewNote = note
	r.Outcome = &outcome
	r.Status = StatusResolved
	r.ResolvedAt = &now
	if err := store.Update(ctx, r); err != nil {
		return Record{}, err
	}
	return r, nil
}
