package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/sentinelops/gatekeep/internal/domain/usage"
)

// CheckAndIncrement implements usage.Store. SQLite's single-writer
// connection (db.SetMaxOpenConns(1) in Open) gives this read-then-write
// the serializability invariant 6 requires without an explicit row lock.
func (s *Store) CheckAndIncrement(ctx context.Context, tenantID string) (usage.Subscription, error) {
	sub, err := s.getSubscription(ctx, tenantID)
	if err != nil {
		return usage.Subscription{}, err
	}
	if sub.CurrentMonthUsage >= sub.MonthlyQuota {
		return sub, usage.ErrQuotaExceeded
	}

	upd, _, err := s.goqu.Update("subscriptions").
		Set(goqu.Record{"current_month_usage": sub.CurrentMonthUsage + 1}).
		Where(goqu.C("tenant_id").Eq(tenantID)).
		ToSQL()
	if err != nil {
		return usage.Subscription{}, fmt.Errorf("store: build usage increment: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, upd); err != nil {
		return usage.Subscription{}, fmt.Errorf("store: increment usage: %w", err)
	}
	sub.CurrentMonthUsage++
	return sub, nil
}

func (s *Store) getSubscription(ctx context.Context, tenantID string) (usage.Subscription, error) {
	query, _, err := s.goqu.From("subscriptions").
		Select("tenant_id", "monthly_quota", "current_month_usage", "usage_reset_at").
		Where(goqu.C("tenant_id").Eq(tenantID)).
		ToSQL()
	if err != nil {
		return usage.Subscription{}, fmt.Errorf("store: build subscription lookup: %w", err)
	}

	var sub usage.Subscription
	var resetAt string
	err = s.db.QueryRowContext(ctx, query).Scan(&sub.TenantID, &sub.MonthlyQuota, &sub.CurrentMonthUsage, &resetAt)
	if errors.Is(err, sql.ErrNoRows) {
		return usage.Subscription{}, fmt.Errorf("store: subscription for tenant %s: %w", tenantID, sql.ErrNoRows)
	}
	if err != nil {
		return usage.Subscription{}, fmt.Errorf("store: subscription lookup: %w", err)
	}
	sub.UsageResetAt, err = time.Parse(time.RFC3339, resetAt)
	if err != nil {
		return usage.Subscription{}, fmt.Errorf("store: parse usage_reset_at: %w", err)
	}
	return sub, nil
}

// ResetIfDue implements usage.Store: invariant 6's only decrement path.
func (s *Store) ResetIfDue(ctx context.Context, now time.Time) (int, error) {
	nowStr := now.UTC().Format(time.RFC3339)
	nextReset := now.UTC().AddDate(0, 0, 30).Format(time.RFC3339)

	query, _, err := s.goqu.Update("subscriptions").
		Set(goqu.Record{"current_month_usage": 0, "usage_reset_at": nextReset}).
		Where(goqu.C("usage_reset_at").Lte(nowStr)).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("store: build reset query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("store: reset usage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: reset rows affected: %w", err)
	}
	return int(affected), nil
}

// RecordUsage implements usage.AggregateStore: per-(tenant,model,day) token
// rollup for direct-model-key billing.
func (s *Store) RecordUsage(ctx context.Context, tenantID, model string, promptTokens, completionTokens int, at time.Time) error {
	day := at.UTC().Format("2006-01-02")
	total := promptTokens + completionTokens

	query, _, err := s.goqu.From("model_usage_daily").
		Select("requests", "input_tokens", "output_tokens", "total_tokens").
		Where(goqu.C("tenant_id").Eq(tenantID), goqu.C("model").Eq(model), goqu.C("date").Eq(day)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("store: build usage aggregate lookup: %w", err)
	}

	var requests, inTok, outTok, totTok int
	err = s.db.QueryRowContext(ctx, query).Scan(&requests, &inTok, &outTok, &totTok)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		insert, _, err := s.goqu.Insert("model_usage_daily").Rows(goqu.Record{
			"tenant_id": tenantID, "model": model, "date": day,
			"requests": 1, "input_tokens": promptTokens, "output_tokens": completionTokens, "total_tokens": total,
		}).ToSQL()
		if err != nil {
			return fmt.Errorf("store: build usage aggregate insert: %w", err)
		}
		_, err = s.db.ExecContext(ctx, insert)
		return err
	case err != nil:
		return fmt.Errorf("store: usage aggregate lookup: %w", err)
	default:
		upd, _, err := s.goqu.Update("model_usage_daily").
			Set(goqu.Record{
				"requests": requests + 1, "input_tokens": inTok + promptTokens,
				"output_tokens": outTok + completionTokens, "total_tokens": totTok + total,
			}).
			Where(goqu.C("tenant_id").Eq(tenantID), goqu.C("model").Eq(model), goqu.C("date").Eq(day)).
			ToSQL()
		if err != nil {
			return fmt.Errorf("store: build usage aggregate update: %w", err)
		}
		_, err = s.db.ExecContext(ctx, upd)
		return err
	}
}

var _ usage.Store = (*Store)(nil)
var _ usage.AggregateStore = (*Store)(nil)
