package service

import (
	"context"
	"strconv"
	"testing"

	"github.com/sentinelops/gatekeep/internal/domain/appeal"
	"github.com/sentinelops/gatekeep/internal/domain/auditlog"
)

type fakeAppealStore struct {
	records map[string]appeal.Record
	config  appeal.Config
	nextID  int
}

func newFakeAppealStore() *fakeAppealStore {
	return &fakeAppealStore{records: map[string]appeal.Record{}}
}

func (f *fakeAppealStore) Create(ctx context.Context, r appeal.Record) (appeal.Record, error) {
	f.nextID++
	r.ID = "appeal-" + strconv.Itoa(f.nextID)
	f.records[r.ID] = r
	return r, nil
}

func (f *fakeAppealStore) Get(ctx context.Context, id string) (appeal.Record, error) {
	r, ok := f.records[id]
	if !ok {
		return appeal.Record{}, context.DeadlineExceeded
	}
	return r, nil
}

func (f *fakeAppealStore) GetByRequestID(ctx context.Context, requestID string) (appeal.Record, error) {
	for _, r := range f.records {
		if r.RequestID == requestID {
			return r, nil
		}
	}
	return appeal.Record{}, context.DeadlineExceeded
}

func (f *fakeAppealStore) Update(ctx context.Context, r appeal.Record) error {
	f.records[r.ID] = r
	return nil
}

func (f *fakeAppealStore) GetConfig(ctx context.Context, applicationID string) (appeal.Config, error) {
	return f.config, nil
}

type fakeDetectionResultSource struct {
	result auditlog.DetectionResult
	err    error
}

func (f *fakeDetectionResultSource) GetDetectionResult(ctx context.Context, requestID string) (auditlog.DetectionResult, error) {
	return f.result, f.err
}

type fakeAIReviewer struct {
	outcome appeal.Outcome
	note    string
	err     error
}

func (f *fakeAIReviewer) Review(ctx context.Context, r appeal.Record, content string) (appeal.Outcome, string, error) {
	return f.outcome, f.note, f.err
}

func TestAppealService_Submit_ResolvesWhenHumanReviewDisabled(t *testing.T) {
	store := newFakeAppealStore()
	results := &fakeDetectionResultSource{result: auditlog.DetectionResult{RequestID: "r1", Content: "flagged text"}}
	reviewer := &fakeAIReviewer{outcome: appeal.OutcomeOverturned, note: "looks fine on re-review"}
	s := NewAppealService(store, results, reviewer)

	rec, err := s.Submit(context.Background(), "app1", "r1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rec.Status != appeal.StatusResolved {
		t.Errorf("expected resolved status, got %q", rec.Status)
	}
	if rec.Outcome == nil || *rec.Outcome != appeal.OutcomeOverturned {
		t.Errorf("expected overturned outcome, got %v", rec.Outcome)
	}
}

func TestAppealService_Submit_RoutesToHumanReviewWhenUpheldAndEnabled(t *testing.T) {
	store := newFakeAppealStore()
	store.config = appeal.Config{ApplicationID: "app1", HumanReviewEnabled: true}
	results := &fakeDetectionResultSource{result: auditlog.DetectionResult{RequestID: "r1", Content: "flagged text"}}
	reviewer := &fakeAIReviewer{outcome: appeal.OutcomeUpheld, note: "still looks bad"}
	s := NewAppealService(store, results, reviewer)

	rec, err := s.Submit(context.Background(), "app1", "r1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rec.Status != appeal.StatusPendingHumanReview {
		t.Errorf("expected pending human review, got %q", rec.Status)
	}
	if rec.Outcome != nil {
		t.Errorf("expected no outcome set while pending human review, got %v", rec.Outcome)
	}
}

func TestAppealService_Submit_DetectionResultLookupFailurePropagates(t *testing.T) {
	store := newFakeAppealStore()
	results := &fakeDetectionResultSource{err: context.DeadlineExceeded}
	reviewer := &fakeAIReviewer{}
	s := NewAppealService(store, results, reviewer)

	_, err := s.Submit(context.Background(), "app1", "r1")
	if err == nil {
		t.Fatal("expected an error when the detection result lookup fails")
	}
}

func TestAppealService_ResolveHuman_SetsOutcomeAndResolvedAt(t *testing.T) {
	store := newFakeAppealStore()
	store.records["a1"] = appeal.Record{ID: "a1", Status: appeal.StatusPendingHumanReview}
	s := NewAppealService(store, &fakeDetectionResultSource{}, &fakeAIReviewer{})

	rec, err := s.ResolveHuman(context.Background(), "a1", "reviewer1", "confirmed safe", appeal.OutcomeOverturned)
	if err != nil {
		t.Fatalf("ResolveHuman: %v", err)
	}
	if rec.Status != appeal.StatusResolved {
		t.Errorf("expected resolved status, got %q", rec.Status)
	}
	if rec.HumanReviewerID == nil || *rec.HumanReviewerID != "reviewer1" {
		t.Errorf("expected reviewer recorded, got %v", rec.HumanReviewerID)
	}
	if rec.ResolvedAt == nil {
		t.Error("expected ResolvedAt to be set")
	}
}

func TestAppealService_Get_DelegatesToStore(t *testing.T) {
	store := newFakeAppealStore()
	store.records["a1"] = appeal.Record{ID: "a1", Status: appeal.StatusResolved}
	s := NewAppealService(store, &fakeDetectionResultSource{}, &fakeAIReviewer{})

	rec, err := s.Get(context.Background(), "a1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.ID != "a1" {
		t.Errorf("expected a1, got %q", rec.ID)
	}
}
