package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/sentinelops/gatekeep/internal/domain/policyconf"
	"github.com/sentinelops/gatekeep/internal/domain/risk"
)

// GetRiskTypeConfig returns applicationID's sensitivity configuration,
// falling back to policyconf.DefaultRiskTypeConfig if no row exists yet
// (policy-table-missing -> initialize defaults on read, §4.2).
func (s *Store) GetRiskTypeConfig(ctx context.Context, applicationID string) (policyconf.RiskTypeConfig, error) {
	query, _, err := s.goqu.From("risk_type_configs").
		Select("application_id", "legacy_flags", "high_threshold", "medium_threshold", "low_threshold", "trigger_level").
		Where(goqu.C("application_id").Eq(applicationID)).
		ToSQL()
	if err != nil {
		return policyconf.RiskTypeConfig{}, fmt.Errorf("store: build risk config lookup: %w", err)
	}
	var c policyconf.RiskTypeConfig
	var legacyJSON, triggerLevel string
	err = s.db.QueryRowContext(ctx, query).Scan(&c.ApplicationID, &legacyJSON, &c.HighThreshold, &c.MediumThreshold, &c.LowThreshold, &triggerLevel)
	if errors.Is(err, sql.ErrNoRows) {
		return policyconf.DefaultRiskTypeConfig(applicationID), nil
	}
	if err != nil {
		return policyconf.RiskTypeConfig{}, fmt.Errorf("store: risk config lookup: %w", err)
	}
	c.TriggerLevel = risk.Level(triggerLevel)
	if err := json.Unmarshal([]byte(legacyJSON), &c.LegacyEnabled); err != nil {
		return policyconf.RiskTypeConfig{}, fmt.Errorf("store: unmarshal legacy flags: %w", err)
	}
	return c, nil
}

// UpsertRiskTypeConfig writes applicationID's sensitivity configuration.
func (s *Store) UpsertRiskTypeConfig(ctx context.Context, c policyconf.RiskTypeConfig) error {
	legacy, err := json.Marshal(c.LegacyEnabled)
	if err != nil {
		return fmt.Errorf("store: marshal legacy flags: %w", err)
	}
	del, _, err := s.goqu.Delete("risk_type_configs").Where(goqu.C("application_id").Eq(c.ApplicationID)).ToSQL()
	if err != nil {
		return fmt.Errorf("store: build risk config delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, del); err != nil {
		return fmt.Errorf("store: clear risk config: %w", err)
	}
	insert, _, err := s.goqu.Insert("risk_type_configs").Rows(goqu.Record{
		"application_id": c.ApplicationID, "legacy_flags": string(legacy),
		"high_threshold": c.HighThreshold, "medium_threshold": c.MediumThreshold, "low_threshold": c.LowThreshold,
		"trigger_level": string(c.TriggerLevel),
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("store: build risk config insert: %w", err)
	}
	_, err = s.db.ExecContext(ctx, insert)
	return err
}

// GetResponseTemplate returns the per-application canned response for
// (identifierType, identifier), or nil if none is configured (invariant 2:
// at most one row per triple, enforced by the primary key).
func (s *Store) GetResponseTemplate(ctx context.Context, applicationID string, identifierType policyconf.ScannerIdentifierType, identifier string) (*policyconf.Template, error) {
	query, _, err := s.goqu.From("response_templates").
		Select("application_id", "identifier_type", "identifier", "language", "content").
		Where(
			goqu.C("application_id").Eq(applicationID),
			goqu.C("identifier_type").Eq(string(identifierType)),
			goqu.C("identifier").Eq(identifier),
		).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("store: build template lookup: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: template lookup: %w", err)
	}
	defer rows.Close()

	tpl := &policyconf.Template{ApplicationID: applicationID, IdentifierType: identifierType, Identifier: identifier, Content: map[string]string{}}
	found := false
	for rows.Next() {
		var appID, idType, ident, lang, content string
		if err := rows.Scan(&appID, &idType, &ident, &lang, &content); err != nil {
			return nil, fmt.Errorf("store: scan template: %w", err)
		}
		tpl.Content[lang] = content
		found = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return tpl, nil
}

// UpsertResponseTemplate writes one language variant of a template.
func (s *Store) UpsertResponseTemplate(ctx context.Context, applicationID string, identifierType policyconf.ScannerIdentifierType, identifier, lang, content string) error {
	del, _, err := s.goqu.Delete("response_templates").
		Where(
			goqu.C("application_id").Eq(applicationID),
			goqu.C("identifier_type").Eq(string(identifierType)),
			goqu.C("identifier").Eq(identifier),
			goqu.C("language").Eq(lang),
		).ToSQL()
	if err != nil {
		return fmt.Errorf("store: build template delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, del); err != nil {
		return fmt.Errorf("store: clear template: %w", err)
	}
	insert, _, err := s.goqu.Insert("response_templates").Rows(goqu.Record{
		"application_id": applicationID, "identifier_type": string(identifierType),
		"identifier": identifier, "language": lang, "content": content,
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("store: build template insert: %w", err)
	}
	_, err = s.db.ExecContext(ctx, insert)
	return err
}

// GetDataLeakagePolicy returns the data-leakage disposal matrix for
// scopeID (a tenant or application id), or nil if none is configured.
func (s *Store) GetDataLeakagePolicy(ctx context.Context, scopeID string) (*policyconf.DataLeakagePolicy, error) {
	query, _, err := s.goqu.From("data_leakage_policies").
		Select("scope_id", "input_high_action", "input_medium_action", "input_low_action",
			"output_high_action", "output_medium_action", "output_low_action", "private_model_id").
		Where(goqu.C("scope_id").Eq(scopeID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("store: build data leakage policy lookup: %w", err)
	}
	var p policyconf.DataLeakagePolicy
	var inHigh, inMed, inLow, outHigh, outMed, outLow, privateModel sql.NullString
	err = s.db.QueryRowContext(ctx, query).Scan(&p.ScopeID, &inHigh, &inMed, &inLow, &outHigh, &outMed, &outLow, &privateModel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: data leakage policy lookup: %w", err)
	}
	p.InputHighAction = dataAction(inHigh)
	p.InputMediumAction = dataAction(inMed)
	p.InputLowAction = dataAction(inLow)
	p.OutputHighAction = dataAction(outHigh)
	p.OutputMediumAction = dataAction(outMed)
	p.OutputLowAction = dataAction(outLow)
	p.PrivateModelID = privateModel.String
	return &p, nil
}

func dataAction(s sql.NullString) *policyconf.DataLeakageAction {
	if !s.Valid {
		return nil
	}
	a := policyconf.DataLeakageAction(s.String)
	return &a
}

// UpsertDataLeakagePolicy writes scopeID's data-leakage disposal matrix.
func (s *Store) UpsertDataLeakagePolicy(ctx context.Context, p policyconf.DataLeakagePolicy) error {
	del, _, err := s.goqu.Delete("data_leakage_policies").Where(goqu.C("scope_id").Eq(p.ScopeID)).ToSQL()
	if err != nil {
		return fmt.Errorf("store: build data leakage policy delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, del); err != nil {
		return fmt.Errorf("store: clear data leakage policy: %w", err)
	}
	record := goqu.Record{"scope_id": p.ScopeID, "private_model_id": nullableStr(p.PrivateModelID)}
	setDataActionField(record, "input_high_action", p.InputHighAction)
	setDataActionField(record, "input_medium_action", p.InputMediumAction)
	setDataActionField(record, "input_low_action", p.InputLowAction)
	setDataActionField(record, "output_high_action", p.OutputHighAction)
	setDataActionField(record, "output_medium_action", p.OutputMediumAction)
	setDataActionField(record, "output_low_action", p.OutputLowAction)
	insert, _, err := s.goqu.Insert("data_leakage_policies").Rows(record).ToSQL()
	if err != nil {
		return fmt.Errorf("store: build data leakage policy insert: %w", err)
	}
	_, err = s.db.ExecContext(ctx, insert)
	return err
}

func setDataActionField(record goqu.Record, key string, a *policyconf.DataLeakageAction) {
	if a != nil {
		record[key] = string(*a)
	}
}

// GetGatewayPolicy returns the security/compliance disposal matrix for
// scopeID, or nil if none is configured.
func (s *Store) GetGatewayPolicy(ctx context.Context, scopeID string) (*policyconf.GatewayPolicy, error) {
	query, _, err := s.goqu.From("gateway_policies").
		Select("scope_id", "high_action", "medium_action", "low_action").
		Where(goqu.C("scope_id").Eq(scopeID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("store: build gateway policy lookup: %w", err)
	}
	var p policyconf.GatewayPolicy
	var high, medium, low sql.NullString
	err = s.db.QueryRowContext(ctx, query).Scan(&p.ScopeID, &high, &medium, &low)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: gateway policy lookup: %w", err)
	}
	p.HighAction = gatewayAction(high)
	p.MediumAction = gatewayAction(medium)
	p.LowAction = gatewayAction(low)
	return &p, nil
}

func gatewayAction(s sql.NullString) *policyconf.GatewayAction {
	if !s.Valid {
		return nil
	}
	a := policyconf.GatewayAction(s.String)
	return &a
}

// UpsertGatewayPolicy writes scopeID's security/compliance disposal matrix.
func (s *Store) UpsertGatewayPolicy(ctx context.Context, p policyconf.GatewayPolicy) error {
	del, _, err := s.goqu.Delete("gateway_policies").Where(goqu.C("scope_id").Eq(p.ScopeID)).ToSQL()
	if err != nil {
		return fmt.Errorf("store: build gateway policy delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, del); err != nil {
		return fmt.Errorf("store: clear gateway policy: %w", err)
	}
	record := goqu.Record{"scope_id": p.ScopeID}
	if p.HighAction != nil {
		record["high_action"] = string(*p.HighAction)
	}
	if p.MediumAction != nil {
		record["medium_action"] = string(*p.MediumAction)
	}
	if p.LowAction != nil {
		record["low_action"] = string(*p.LowAction)
	}
	insert, _, err := s.goqu.Insert("gateway_policies").Rows(record).ToSQL()
	if err != nil {
		return fmt.Errorf("store: build gateway policy insert: %w", err)
	}
	_, err = s.db.ExecContext(ctx, insert)
	return err
}
