package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/oklog/ulid/v2"

	"github.com/sentinelops/gatekeep/internal/domain/auth"
)

// GetTenantByAPIKeyHash implements auth.CredentialStore.
func (s *Store) GetTenantByAPIKeyHash(ctx context.Context, hash string) (auth.TenantRecord, error) {
	return s.tenantByColumn(ctx, "tenant_api_key_hash", hash)
}

// GetTenantByDirectModelKeyHash implements auth.CredentialStore.
func (s *Store) GetTenantByDirectModelKeyHash(ctx context.Context, hash string) (auth.TenantRecord, error) {
	return s.tenantByColumn(ctx, "direct_model_api_key_hash", hash)
}

func (s *Store) tenantByColumn(ctx context.Context, column, hash string) (auth.TenantRecord, error) {
	query, _, err := s.goqu.From("tenants").
		Select("id", "email", "active", "is_super_admin").
		Where(goqu.C(column).Eq(hash)).
		ToSQL()
	if err != nil {
		return auth.TenantRecord{}, fmt.Errorf("store: build tenant lookup: %w", err)
	}

	var rec auth.TenantRecord
	var active, superAdmin int
	err = s.db.QueryRowContext(ctx, query).Scan(&rec.TenantID, &rec.Email, &active, &superAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.TenantRecord{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.TenantRecord{}, fmt.Errorf("store: tenant lookup: %w", err)
	}
	rec.Active = active != 0
	rec.IsSuperAdmin = superAdmin != 0
	return rec, nil
}

// GetApplicationByAPIKeyHash implements auth.CredentialStore.
func (s *Store) GetApplicationByAPIKeyHash(ctx context.Context, hash string) (auth.ApplicationRecord, error) {
	query, _, err := s.goqu.From("applications").
		Select("id", "tenant_id", "active").
		Where(goqu.C("api_key_hash").Eq(hash)).
		ToSQL()
	if err != nil {
		return auth.ApplicationRecord{}, fmt.Errorf("store: build application lookup: %w", err)
	}

	var rec auth.ApplicationRecord
	var active int
	err = s.db.QueryRowContext(ctx, query).Scan(&rec.ApplicationID, &rec.TenantID, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ApplicationRecord{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.ApplicationRecord{}, fmt.Errorf("store: application lookup: %w", err)
	}
	rec.Active = active != 0
	return rec, nil
}

// ResolveOrCreateApplicationByExternalID implements auth.CredentialStore:
// a tenant-scoped key plus X-OG-Application-ID auto-registers the external
// application id on first sight.
func (s *Store) ResolveOrCreateApplicationByExternalID(ctx context.Context, tenantID, externalAppID string) (auth.ApplicationRecord, error) {
	query, _, err := s.goqu.From("applications").
		Select("id", "tenant_id", "active").
		Where(goqu.C("tenant_id").Eq(tenantID), goqu.C("external_app_id").Eq(externalAppID)).
		ToSQL()
	if err != nil {
		return auth.ApplicationRecord{}, fmt.Errorf("store: build application lookup: %w", err)
	}

	var rec auth.ApplicationRecord
	var active int
	err = s.db.QueryRowContext(ctx, query).Scan(&rec.ApplicationID, &rec.TenantID, &active)
	if err == nil {
		rec.Active = active != 0
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return auth.ApplicationRecord{}, fmt.Errorf("store: application lookup: %w", err)
	}

	id := ulid.Make().String()
	now := time.Now().UTC().Format(time.RFC3339)
	insert, _, err := s.goqu.Insert("applications").Rows(goqu.Record{
		"id":              id,
		"tenant_id":       tenantID,
		"name":            externalAppID,
		"active":          1,
		"external_app_id": externalAppID,
		"created_at":      now,
		"updated_at":      now,
	}).ToSQL()
	if err != nil {
		return auth.ApplicationRecord{}, fmt.Errorf("store: build application insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, insert); err != nil {
		return auth.ApplicationRecord{}, fmt.Errorf("store: create application: %w", err)
	}
	return auth.ApplicationRecord{ApplicationID: id, TenantID: tenantID, Active: true}, nil
}

var _ auth.CredentialStore = (*Store)(nil)
