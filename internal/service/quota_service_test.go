package service

import (
	"context"
	"testing"
	"time"

	"github.com/sentinelops/gatekeep/internal/domain/usage"
)

type fakeUsageStore struct {
	sub       usage.Subscription
	exceeded  bool
	resetDue  int
	resetErr  error
}

func (f *fakeUsageStore) CheckAndIncrement(ctx context.Context, tenantID string) (usage.Subscription, error) {
	if f.exceeded {
		return f.sub, usage.ErrQuotaExceeded
	}
	f.sub.CurrentMonthUsage++
	return f.sub, nil
}

func (f *fakeUsageStore) ResetIfDue(ctx context.Context, now time.Time) (int, error) {
	return f.resetDue, f.resetErr
}

func TestQuotaService_Check_UnderQuotaSucceeds(t *testing.T) {
	store := &fakeUsageStore{sub: usage.Subscription{TenantID: "t1", MonthlyQuota: 100}}
	s := NewQuotaService(store, false)

	retryAfter, err := s.Check(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if retryAfter != 0 {
		t.Errorf("expected retryAfter=0 on success, got %d", retryAfter)
	}
	if store.sub.CurrentMonthUsage != 1 {
		t.Errorf("expected usage incremented, got %d", store.sub.CurrentMonthUsage)
	}
}

func TestQuotaService_Check_ExceededReturnsRetryAfter(t *testing.T) {
	resetAt := time.Now().UTC().Add(2 * time.Hour)
	store := &fakeUsageStore{exceeded: true, sub: usage.Subscription{TenantID: "t1", UsageResetAt: resetAt}}
	s := NewQuotaService(store, false)

	retryAfter, err := s.Check(context.Background(), "t1")
	if err != usage.ErrQuotaExceeded {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if retryAfter <= 0 || retryAfter > 2*3600 {
		t.Errorf("expected a retryAfter near 7200s, got %d", retryAfter)
	}
}

func TestQuotaService_Check_EnterpriseModeIsNoOp(t *testing.T) {
	store := &fakeUsageStore{exceeded: true}
	s := NewQuotaService(store, true)

	retryAfter, err := s.Check(context.Background(), "t1")
	if err != nil || retryAfter != 0 {
		t.Errorf("expected enterprise mode to bypass quota entirely, got retryAfter=%d err=%v", retryAfter, err)
	}
}

func TestQuotaService_ResetDue_DelegatesToStore(t *testing.T) {
	store := &fakeUsageStore{resetDue: 3}
	s := NewQuotaService(store, false)

	n, err := s.ResetDue(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ResetDue: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 reset subscriptions, got %d", n)
	}
}
