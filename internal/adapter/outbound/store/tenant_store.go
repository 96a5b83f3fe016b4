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

	"github.com/sentinelops/gatekeep/internal/domain/tenant"
)

// ErrNotFound is returned by direct query methods that find no row.
var ErrNotFound = errors.New("store: not found")

// CreateTenant inserts a new Tenant with a fresh ulid and a default free
// subscription (tenant.DefaultSubscription).
func (s *Store) CreateTenant(ctx context.Context, t tenant.Tenant, now time.Time) (tenant.Tenant, error) {
	t.ID = ulid.Make().String()
	t.CreatedAt, t.UpdatedAt = now, now

	insert, _, err := s.goqu.Insert("tenants").Rows(goqu.Record{
		"id": t.ID, "email": t.Email, "password_hash": t.PasswordHash,
		"active": boolInt(t.Active), "verified": boolInt(t.Verified), "is_super_admin": boolInt(t.IsSuperAdmin),
		"tenant_api_key_hash": nullableStr(t.TenantAPIKeyHash), "direct_model_api_key_hash": nullableStr(t.DirectModelAPIKeyHash),
		"created_at": now.UTC().Format(time.RFC3339), "updated_at": now.UTC().Format(time.RFC3339),
	}).ToSQL()
	if err != nil {
		return tenant.Tenant{}, fmt.Errorf("store: build tenant insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, insert); err != nil {
		return tenant.Tenant{}, fmt.Errorf("store: create tenant: %w", err)
	}

	sub := tenant.DefaultSubscription(t.ID, now)
	subInsert, _, err := s.goqu.Insert("subscriptions").Rows(goqu.Record{
		"tenant_id": sub.TenantID, "type": string(sub.Type), "monthly_quota": sub.MonthlyQuota,
		"current_month_usage": sub.CurrentMonthUsage, "usage_reset_at": sub.UsageResetAt.UTC().Format(time.RFC3339),
	}).ToSQL()
	if err != nil {
		return tenant.Tenant{}, fmt.Errorf("store: build subscription insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, subInsert); err != nil {
		return tenant.Tenant{}, fmt.Errorf("store: create default subscription: %w", err)
	}
	return t, nil
}

// GetTenant looks up a Tenant by id.
func (s *Store) GetTenant(ctx context.Context, id string) (tenant.Tenant, error) {
	query, _, err := s.goqu.From("tenants").
		Select("id", "email", "password_hash", "active", "verified", "is_super_admin",
			"tenant_api_key_hash", "direct_model_api_key_hash", "created_at", "updated_at").
		Where(goqu.C("id").Eq(id)).
		ToSQL()
	if err != nil {
		return tenant.Tenant{}, fmt.Errorf("store: build tenant lookup: %w", err)
	}

	var t tenant.Tenant
	var active, verified, superAdmin int
	var apiKeyHash, directKeyHash sql.NullString
	var createdAt, updatedAt string
	err = s.db.QueryRowContext(ctx, query).Scan(&t.ID, &t.Email, &t.PasswordHash, &active, &verified, &superAdmin,
		&apiKeyHash, &directKeyHash, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tenant.Tenant{}, ErrNotFound
	}
	if err != nil {
		return tenant.Tenant{}, fmt.Errorf("store: tenant lookup: %w", err)
	}
	t.Active, t.Verified, t.IsSuperAdmin = active != 0, verified != 0, superAdmin != 0
	t.TenantAPIKeyHash, t.DirectModelAPIKeyHash = apiKeyHash.String, directKeyHash.String
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return t, nil
}

// GetTenantByEmail looks up a Tenant by email, for /auth/login.
func (s *Store) GetTenantByEmail(ctx context.Context, email string) (tenant.Tenant, error) {
	query, _, err := s.goqu.From("tenants").
		Select("id", "email", "password_hash", "active", "verified", "is_super_admin",
			"tenant_api_key_hash", "direct_model_api_key_hash", "created_at", "updated_at").
		Where(goqu.C("email").Eq(email)).
		ToSQL()
	if err != nil {
		return tenant.Tenant{}, fmt.Errorf("store: build tenant-by-email lookup: %w", err)
	}

	var t tenant.Tenant
	var active, verified, superAdmin int
	var apiKeyHash, directKeyHash sql.NullString
	var createdAt, updatedAt string
	err = s.db.QueryRowContext(ctx, query).Scan(&t.ID, &t.Email, &t.PasswordHash, &active, &verified, &superAdmin,
		&apiKeyHash, &directKeyHash, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tenant.Tenant{}, ErrNotFound
	}
	if err != nil {
		return tenant.Tenant{}, fmt.Errorf("store: tenant-by-email lookup: %w", err)
	}
	t.Active, t.Verified, t.IsSuperAdmin = active != 0, verified != 0, superAdmin != 0
	t.TenantAPIKeyHash, t.DirectModelAPIKeyHash = apiKeyHash.String, directKeyHash.String
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return t, nil
}

// SetTenantAPIKeyHash writes the hashed tenant-scoped sk-xxai-… key.
func (s *Store) SetTenantAPIKeyHash(ctx context.Context, tenantID, hash string) error {
	return s.updateTenantColumn(ctx, tenantID, "tenant_api_key_hash", hash)
}

// SetTenantDirectModelKeyHash writes the hashed sk-xxai-model-… key.
func (s *Store) SetTenantDirectModelKeyHash(ctx context.Context, tenantID, hash string) error {
	return s.updateTenantColumn(ctx, tenantID, "direct_model_api_key_hash", hash)
}

func (s *Store) updateTenantColumn(ctx context.Context, tenantID, column, value string) error {
	query, _, err := s.goqu.Update("tenants").
		Set(goqu.Record{column: value, "updated_at": time.Now().UTC().Format(time.RFC3339)}).
		Where(goqu.C("id").Eq(tenantID)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("store: build tenant column update: %w", err)
	}
	_, err = s.db.ExecContext(ctx, query)
	return err
}

// CreateApplication inserts a new Application owned by tenantID.
func (s *Store) CreateApplication(ctx context.Context, a tenant.Application, now time.Time) (tenant.Application, error) {
	a.ID = ulid.Make().String()
	a.CreatedAt, a.UpdatedAt = now, now
	insert, _, err := s.goqu.Insert("applications").Rows(goqu.Record{
		"id": a.ID, "tenant_id": a.TenantID, "name": a.Name, "api_key_hash": nullableStr(a.APIKeyHash),
		"active": boolInt(a.Active), "external_app_id": nullableStr(a.ExternalAppID),
		"created_at": now.UTC().Format(time.RFC3339), "updated_at": now.UTC().Format(time.RFC3339),
	}).ToSQL()
	if err != nil {
		return tenant.Application{}, fmt.Errorf("store: build application insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, insert); err != nil {
		return tenant.Application{}, fmt.Errorf("store: create application: %w", err)
	}
	return a, nil
}

// ListApplications returns every Application owned by tenantID.
func (s *Store) ListApplications(ctx context.Context, tenantID string) ([]tenant.Application, error) {
	query, _, err := s.goqu.From("applications").
		Select("id", "tenant_id", "name", "active", "external_app_id", "created_at", "updated_at").
		Where(goqu.C("tenant_id").Eq(tenantID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("store: build application list: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list applications: %w", err)
	}
	defer rows.Close()

	var out []tenant.Application
	for rows.Next() {
		var a tenant.Application
		var active int
		var externalAppID sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Name, &active, &externalAppID, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("store: scan application: %w", err)
		}
		a.Active = active != 0
		a.ExternalAppID = externalAppID.String
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetApplication looks up an Application by id.
func (s *Store) GetApplication(ctx context.Context, id string) (tenant.Application, error) {
	query, _, err := s.goqu.From("applications").
		Select("id", "tenant_id", "name", "active", "external_app_id", "created_at", "updated_at").
		Where(goqu.C("id").Eq(id)).
		ToSQL()
	if err != nil {
		return tenant.Application{}, fmt.Errorf("store: build application lookup: %w", err)
	}
	var a tenant.Application
	var active int
	var externalAppID sql.NullString
	var createdAt, updatedAt string
	err = s.db.QueryRowContext(ctx, query).Scan(&a.ID, &a.TenantID, &a.Name, &active, &externalAppID, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tenant.Application{}, ErrNotFound
	}
	if err != nil {
		return tenant.Application{}, fmt.Errorf("store: application lookup: %w", err)
	}
	a.Active = active != 0
	a.ExternalAppID = externalAppID.String
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return a, nil
}

// CreateUpstreamAPIConfig inserts a new outbound model endpoint.
// APIKeyEncrypted must already be encrypted (internal/adapter/outbound/crypt).
func (s *Store) CreateUpstreamAPIConfig(ctx context.Context, c tenant.UpstreamAPIConfig) (tenant.UpstreamAPIConfig, error) {
	c.ID = ulid.Make().String()
	names, err := json.Marshal(c.PrivateModelNames)
	if err != nil {
		return tenant.UpstreamAPIConfig{}, fmt.Errorf("store: marshal private model names: %w", err)
	}
	insert, _, err := s.goqu.Insert("upstream_api_configs").Rows(goqu.Record{
		"id": c.ID, "tenant_id": c.TenantID, "config_name": c.ConfigName, "provider": c.Provider,
		"base_url": c.BaseURL, "api_key_encrypted": string(c.APIKeyEncrypted),
		"is_data_safe": boolInt(c.IsDataSafe), "is_default_private_model": boolInt(c.IsDefaultPrivateModel),
		"private_model_names": string(names),
		"block_on_input_risk": boolStr(c.BlockOnInputRisk), "block_on_output_risk": boolStr(c.BlockOnOutputRisk),
	}).ToSQL()
	if err != nil {
		return tenant.UpstreamAPIConfig{}, fmt.Errorf("store: build upstream config insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, insert); err != nil {
		return tenant.UpstreamAPIConfig{}, fmt.Errorf("store: create upstream config: %w", err)
	}
	return c, nil
}

// GetUpstreamAPIConfig looks up an UpstreamAPIConfig by id.
func (s *Store) GetUpstreamAPIConfig(ctx context.Context, id string) (tenant.UpstreamAPIConfig, error) {
	query, _, err := s.goqu.From("upstream_api_configs").
		Select("id", "tenant_id", "config_name", "provider", "base_url", "api_key_encrypted",
			"is_data_safe", "is_default_private_model", "private_model_names",
			"block_on_input_risk", "block_on_output_risk").
		Where(goqu.C("id").Eq(id)).
		ToSQL()
	if err != nil {
		return tenant.UpstreamAPIConfig{}, fmt.Errorf("store: build upstream config lookup: %w", err)
	}
	var c tenant.UpstreamAPIConfig
	var apiKeyEncrypted, namesJSON string
	var isDataSafe, isDefaultPrivate int
	var blockInput, blockOutput string
	err = s.db.QueryRowContext(ctx, query).Scan(&c.ID, &c.TenantID, &c.ConfigName, &c.Provider, &c.BaseURL,
		&apiKeyEncrypted, &isDataSafe, &isDefaultPrivate, &namesJSON, &blockInput, &blockOutput)
	if errors.Is(err, sql.ErrNoRows) {
		return tenant.UpstreamAPIConfig{}, ErrNotFound
	}
	if err != nil {
		return tenant.UpstreamAPIConfig{}, fmt.Errorf("store: upstream config lookup: %w", err)
	}
	c.APIKeyEncrypted = []byte(apiKeyEncrypted)
	c.IsDataSafe, c.IsDefaultPrivateModel = isDataSafe != 0, isDefaultPrivate != 0
	c.BlockOnInputRisk, c.BlockOnOutputRisk = blockInput == "high" || blockInput == "medium", blockOutput == "high" || blockOutput == "medium"
	if err := json.Unmarshal([]byte(namesJSON), &c.PrivateModelNames); err != nil {
		return tenant.UpstreamAPIConfig{}, fmt.Errorf("store: unmarshal private model names: %w", err)
	}
	return c, nil
}

// ListUpstreamAPIConfigs returns every UpstreamAPIConfig belonging to
// tenantID, ordered by id (ULIDs sort lexicographically by creation
// time), so the first row is the tenant's oldest-configured upstream —
// used by ProxyService as the "tenant default" when no ModelRoute
// matches the requested model.
func (s *Store) ListUpstreamAPIConfigs(ctx context.Context, tenantID string) ([]tenant.UpstreamAPIConfig, error) {
	query, _, err := s.goqu.From("upstream_api_configs").
		Select("id", "tenant_id", "config_name", "provider", "base_url", "api_key_encrypted",
			"is_data_safe", "is_default_private_model", "private_model_names",
			"block_on_input_risk", "block_on_output_risk").
		Where(goqu.C("tenant_id").Eq(tenantID)).
		Order(goqu.C("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("store: build upstream config list: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list upstream configs: %w", err)
	}
	defer rows.Close()

	var out []tenant.UpstreamAPIConfig
	for rows.Next() {
		var c tenant.UpstreamAPIConfig
		var apiKeyEncrypted, namesJSON string
		var isDataSafe, isDefaultPrivate int
		var blockInput, blockOutput string
		if err := rows.Scan(&c.ID, &c.TenantID, &c.ConfigName, &c.Provider, &c.BaseURL,
			&apiKeyEncrypted, &isDataSafe, &isDefaultPrivate, &namesJSON, &blockInput, &blockOutput); err != nil {
			return nil, fmt.Errorf("store: scan upstream config: %w", err)
		}
		c.APIKeyEncrypted = []byte(apiKeyEncrypted)
		c.IsDataSafe, c.IsDefaultPrivateModel = isDataSafe != 0, isDefaultPrivate != 0
		c.BlockOnInputRisk, c.BlockOnOutputRisk = blockInput == "high" || blockInput == "medium", blockOutput == "high" || blockOutput == "medium"
		if err := json.Unmarshal([]byte(namesJSON), &c.PrivateModelNames); err != nil {
			return nil, fmt.Errorf("store: unmarshal private model names: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list upstream configs: %w", err)
	}
	return out, nil
}

// ListModelRoutes returns every ModelRoute belonging to tenantID, for
// tenant.ResolveRoute.
func (s *Store) ListModelRoutes(ctx context.Context, tenantID string) ([]tenant.ModelRoute, error) {
	query, _, err := s.goqu.From("model_routes").
		Select("id", "tenant_id", "model_pattern", "match_type", "priority", "upstream_api_config_id", "application_ids").
		Where(goqu.C("tenant_id").Eq(tenantID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("store: build model route list: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list model routes: %w", err)
	}
	defer rows.Close()

	var out []tenant.ModelRoute
	for rows.Next() {
		var r tenant.ModelRoute
		var matchType, appIDsJSON string
		if err := rows.Scan(&r.ID, &r.TenantID, &r.ModelPattern, &matchType, &r.Priority, &r.UpstreamAPIConfigID, &appIDsJSON); err != nil {
			return nil, fmt.Errorf("store: scan model route: %w", err)
		}
		r.MatchType = tenant.MatchType(matchType)
		if err := json.Unmarshal([]byte(appIDsJSON), &r.ApplicationIDs); err != nil {
			return nil, fmt.Errorf("store: unmarshal route application ids: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateModelRoute inserts a new ModelRoute.
func (s *Store) CreateModelRoute(ctx context.Context, r tenant.ModelRoute) (tenant.ModelRoute, error) {
	r.ID = ulid.Make().String()
	appIDs, err := json.Marshal(r.ApplicationIDs)
	if err != nil {
		return tenant.ModelRoute{}, fmt.Errorf("store: marshal route application ids: %w", err)
	}
	insert, _, err := s.goqu.Insert("model_routes").Rows(goqu.Record{
		"id": r.ID, "tenant_id": r.TenantID, "model_pattern": r.ModelPattern, "match_type": string(r.MatchType),
		"priority": r.Priority, "upstream_api_config_id": r.UpstreamAPIConfigID, "application_ids": string(appIDs),
	}).ToSQL()
	if err != nil {
		return tenant.ModelRoute{}, fmt.Errorf("store: build model route insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, insert); err != nil {
		return tenant.ModelRoute{}, fmt.Errorf("store: create model route: %w", err)
	}
	return r, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func boolStr(b bool) string {
	if b {
		return "high"
	}
	return "pass"
}

func nullableStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
