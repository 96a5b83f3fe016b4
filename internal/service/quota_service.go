package service

import (
	"context"
	"time"

	"github.com/sentinelops/gatekeep/internal/domain/usage"
)

// QuotaService wraps usage.Meter for the quota middleware: in SaaS mode,
// on every route of the detection and proxy surfaces, atomically
// check-and-increment monthly usage; in enterprise mode, a no-op (§4.6).
type QuotaService struct {
	store usage.Store
	meter *usage.Meter
}

// NewQuotaService builds a QuotaService. enterpriseMode disables quota
// enforcement entirely.
func NewQuotaService(store usage.Store, enterpriseMode bool) *QuotaService {
	return &QuotaService{store: store, meter: usage.NewMeter(store, enterpriseMode)}
}

// Check enforces tenantID's monthly quota, returning the seconds until
// reset (for a 429's Retry-After header) on usage.ErrQuotaExceeded.
func (s *QuotaService) Check(ctx context.Context, tenantID string) (retryAfterSeconds int, err error) {
	return s.meter.CheckAndIncrement(ctx, tenantID, time.Now().UTC())
}

// ResetDue resets every subscription whose monthly window has elapsed,
// intended to run on a periodic admin-process timer.
func (s *QuotaService) ResetDue(ctx context.Context, now time.Time) (int, error) {
	return s.store.ResetIfDue(ctx, now)
}
