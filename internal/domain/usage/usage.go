// Package usage holds the monthly-quota meter and the daily model-usage
// aggregate used for direct-model billing.
package usage

import (
	"context"
	"fmt"
	"time"
)

// ErrQuotaExceeded is returned by QuotaMeter.CheckAndIncrement when the
// tenant has exhausted its monthly quota.
var ErrQuotaExceeded = fmt.Errorf("monthly quota exceeded")

// Subscription is the quota-relevant subset of a tenant's subscription
// record.
type Subscription struct {
	TenantID          string
	MonthlyQuota      int
	CurrentMonthUsage int
	UsageResetAt      time.Time
}

// Store persists subscription usage counters. CheckAndIncrement must be
// serializable (a DB row lock or a sharded in-process counter
// periodically flushed) so concurrent requests never both observe
// capacity for the same unit of quota.
type Store interface {
	// CheckAndIncrement atomically reads current usage, and if it is
	// below quota, increments it by 1 and returns the updated
	// Subscription. If usage has already reached quota, it returns
	// ErrQuotaExceeded and the current Subscription unchanged.
	CheckAndIncrement(ctx context.Context, tenantID string) (Subscription, error)
	// ResetIfDue resets CurrentMonthUsage to 0 and advances UsageResetAt
	// by 30 days for every subscription whose UsageResetAt has passed.
	// Running it twice on the same day is a no-op (guarded by
	// usage_reset_at <= now); usage must never decrement outside this
	// path.
	ResetIfDue(ctx context.Context, now time.Time) (int, error)
}

// Meter wraps a Store with the deployment-mode check: in enterprise mode
// the quota middleware is a no-op (SPEC §4.6).
type Meter struct {
	store          Store
	enterpriseMode bool
}

// NewMeter builds a Meter. When enterpriseMode is true, CheckAndIncrement
// always succeeds without consulting the store.
func NewMeter(store Store, enterpriseMode bool) *Meter {
	return &Meter{store: store, enterpriseMode: enterpriseMode}
}

// CheckAndIncrement enforces the monthly quota for tenantID. RetryAfter
// returns the seconds until usage resets, for the Retry-After header on
// a 429.
func (m *Meter) CheckAndIncrement(ctx context.Context, tenantID string, now time.Time) (retryAfterSeconds int, err error) {
	if m.enterpriseMode {
		return 0, nil
	}
	sub, err := m.store.CheckAndIncrement(ctx, tenantID)
	if err == ErrQuotaExceeded {
		retryAfter := int(sub.UsageResetAt.Sub(now).Seconds())
		if retryAfter < 0 {
			retryAfter = 0
		}
		return retryAfter, ErrQuotaExceeded
	}
	return 0, err
}

// DailyAggregate is one (tenant, model, date) usage rollup for
// direct-model billing. It never stores request content.
type DailyAggregate struct {
	TenantID        string
	Model           string
	Date            time.Time // truncated to day
	Requests        int
	InputTokens     int64
	OutputTokens    int64
	TotalTokens     int64
}

// AggregateStore persists DailyAggregate rows.
type AggregateStore interface {
	RecordUsage(ctx context.Context, tenantID, model string, promptTokens, completionTokens int, at time.Time) error
}
