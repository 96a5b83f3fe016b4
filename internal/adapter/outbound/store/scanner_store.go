package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/oklog/ulid/v2"

	"github.com/sentinelops/gatekeep/internal/domain/risk"
	"github.com/sentinelops/gatekeep/internal/domain/scanner"
)

// ListBuiltinScanners returns every active scanner belonging to builtin
// packages, for scanner.NewEffectiveSet's builtin argument.
func (s *Store) ListBuiltinScanners(ctx context.Context) ([]scanner.Scanner, error) {
	return s.scanScanners(ctx, s.goqu.From("scanners").
		Select("scanners.id", "scanners.package_id", "scanners.tag", "scanners.name", "scanners.description",
			"scanners.type", "scanners.definition", "scanners.default_risk_level",
			"scanners.default_scan_prompt", "scanners.default_scan_response", "scanners.active", "scanners.created_at").
		Join(goqu.T("scanner_packages"), goqu.On(goqu.I("scanners.package_id").Eq(goqu.I("scanner_packages.id")))).
		Where(goqu.I("scanner_packages.type").Eq(string(scanner.PackageBuiltin)), goqu.I("scanners.active").Eq(1)))
}

// ListScannersByPackage returns every active scanner in packageID, for
// scanner.NewEffectiveSet's premiumByPackage argument.
func (s *Store) ListScannersByPackage(ctx context.Context, packageID string) ([]scanner.Scanner, error) {
	return s.scanScanners(ctx, s.goqu.From("scanners").
		Select("id", "package_id", "tag", "name", "description", "type", "definition",
			"default_risk_level", "default_scan_prompt", "default_scan_response", "active", "created_at").
		Where(goqu.C("package_id").Eq(packageID), goqu.C("active").Eq(1)))
}

// ListCustomScanners returns the scanners privately owned by applicationID
// via the custom_scanners join (application_scanner_configs rows whose
// scanner has no package, i.e. tenant-authored scanners).
func (s *Store) ListCustomScanners(ctx context.Context, applicationID string) ([]scanner.Scanner, error) {
	query, _, err := s.goqu.From("scanners").
		Select("scanners.id", "scanners.package_id", "scanners.tag", "scanners.name", "scanners.description",
			"scanners.type", "scanners.definition", "scanners.default_risk_level",
			"scanners.default_scan_prompt", "scanners.default_scan_response", "scanners.active", "scanners.created_at").
		Join(goqu.T("application_scanner_configs"), goqu.On(goqu.I("scanners.id").Eq(goqu.I("application_scanner_configs.scanner_id")))).
		Where(
			goqu.I("application_scanner_configs.application_id").Eq(applicationID),
			goqu.I("scanners.package_id").IsNull(),
			goqu.I("scanners.active").Eq(1),
		).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("store: build custom scanner list: %w", err)
	}
	return s.queryScanners(ctx, query)
}

func (s *Store) scanScanners(ctx context.Context, ds *goqu.SelectDataset) ([]scanner.Scanner, error) {
	query, _, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("store: build scanner query: %w", err)
	}
	return s.queryScanners(ctx, query)
}

func (s *Store) queryScanners(ctx context.Context, query string) ([]scanner.Scanner, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: query scanners: %w", err)
	}
	defer rows.Close()

	var out []scanner.Scanner
	for rows.Next() {
		var sc scanner.Scanner
		var packageID sql.NullString
		var typ, defaultRisk, createdAt string
		var scanPrompt, scanResponse, active int
		if err := rows.Scan(&sc.ID, &packageID, &sc.Tag, &sc.Name, &sc.Description, &typ, &sc.Definition,
			&defaultRisk, &scanPrompt, &scanResponse, &active, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan scanner: %w", err)
		}
		sc.PackageID = packageID.String
		sc.Type = scanner.Kind(typ)
		sc.DefaultRiskLevel = risk.Level(defaultRisk)
		sc.DefaultScanPrompt, sc.DefaultScanResponse, sc.Active = scanPrompt != 0, scanResponse != 0, active != 0
		sc.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, sc)
	}
	return out, rows.Err()
}

// ListScannerPackages returns every package of typ (purchasable packages
// for the purchase catalog, builtin for display purposes).
func (s *Store) ListScannerPackages(ctx context.Context, typ scanner.PackageType) ([]scanner.Package, error) {
	query, _, err := s.goqu.From("scanner_packages").
		Select("id", "code", "name", "author", "version", "license", "description", "type", "created_at").
		Where(goqu.C("type").Eq(string(typ))).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("store: build package list: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list packages: %w", err)
	}
	defer rows.Close()

	var out []scanner.Package
	for rows.Next() {
		var p scanner.Package
		var typStr, createdAt string
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Author, &p.Version, &p.License, &p.Description, &typStr, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan package: %w", err)
		}
		p.Type = scanner.PackageType(typStr)
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateScanner inserts a new Scanner.
func (s *Store) CreateScanner(ctx context.Context, sc scanner.Scanner, now time.Time) (scanner.Scanner, error) {
	sc.ID = ulid.Make().String()
	sc.CreatedAt = now
	insert, _, err := s.goqu.Insert("scanners").Rows(goqu.Record{
		"id": sc.ID, "package_id": nullableStr(sc.PackageID), "tag": sc.Tag, "name": sc.Name,
		"description": sc.Description, "type": string(sc.Type), "definition": sc.Definition,
		"default_risk_level": string(sc.DefaultRiskLevel), "default_scan_prompt": boolInt(sc.DefaultScanPrompt),
		"default_scan_response": boolInt(sc.DefaultScanResponse), "active": boolInt(sc.Active),
		"created_at": now.UTC().Format(time.RFC3339),
	}).ToSQL()
	if err != nil {
		return scanner.Scanner{}, fmt.Errorf("store: build scanner insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, insert); err != nil {
		return scanner.Scanner{}, fmt.Errorf("store: create scanner: %w", err)
	}
	return sc, nil
}

// SoftDeleteScanner renames tag per scanner.SoftDeleteTag and deactivates
// the row, freeing the original tag for reuse (invariant 1).
func (s *Store) SoftDeleteScanner(ctx context.Context, id string, deletedAt time.Time) error {
	row, err := s.scannerByID(ctx, id)
	if err != nil {
		return err
	}
	newTag := scanner.SoftDeleteTag(row.Tag, deletedAt)
	query, _, err := s.goqu.Update("scanners").
		Set(goqu.Record{"tag": newTag, "active": 0}).
		Where(goqu.C("id").Eq(id)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("store: build scanner soft-delete: %w", err)
	}
	_, err = s.db.ExecContext(ctx, query)
	return err
}

func (s *Store) scannerByID(ctx context.Context, id string) (scanner.Scanner, error) {
	query, _, err := s.goqu.From("scanners").
		Select("id", "package_id", "tag", "name", "description", "type", "definition",
			"default_risk_level", "default_scan_prompt", "default_scan_response", "active", "created_at").
		Where(goqu.C("id").Eq(id)).
		ToSQL()
	if err != nil {
		return scanner.Scanner{}, fmt.Errorf("store: build scanner lookup: %w", err)
	}
	scanners, err := s.queryScanners(ctx, query)
	if err != nil {
		return scanner.Scanner{}, err
	}
	if len(scanners) == 0 {
		return scanner.Scanner{}, ErrNotFound
	}
	return scanners[0], nil
}

// GetApplicationScannerConfig returns the override row for (applicationID,
// scannerID), or ErrNotFound if no row exists (caller falls back to
// scanner defaults).
func (s *Store) GetApplicationScannerConfig(ctx context.Context, applicationID, scannerID string) (scanner.ApplicationConfig, error) {
	query, _, err := s.goqu.From("application_scanner_configs").
		Select("application_id", "scanner_id", "is_enabled", "risk_level", "scan_prompt", "scan_response").
		Where(goqu.C("application_id").Eq(applicationID), goqu.C("scanner_id").Eq(scannerID)).
		ToSQL()
	if err != nil {
		return scanner.ApplicationConfig{}, fmt.Errorf("store: build scanner config lookup: %w", err)
	}
	var c scanner.ApplicationConfig
	var enabled int
	var riskLevel, scanPrompt, scanResponse sql.NullString
	err = s.db.QueryRowContext(ctx, query).Scan(&c.ApplicationID, &c.ScannerID, &enabled, &riskLevel, &scanPrompt, &scanResponse)
	if errors.Is(err, sql.ErrNoRows) {
		return scanner.ApplicationConfig{}, ErrNotFound
	}
	if err != nil {
		return scanner.ApplicationConfig{}, fmt.Errorf("store: scanner config lookup: %w", err)
	}
	c.IsEnabled = enabled != 0
	if riskLevel.Valid {
		lvl := risk.Level(riskLevel.String)
		c.RiskLevel = &lvl
	}
	if scanPrompt.Valid {
		v := scanPrompt.String == "1"
		c.ScanPrompt = &v
	}
	if scanResponse.Valid {
		v := scanResponse.String == "1"
		c.ScanResponse = &v
	}
	return c, nil
}

// ListApplicationScannerConfigs returns every override row for
// applicationID, keyed by scanner id, for scanner engine runs.
func (s *Store) ListApplicationScannerConfigs(ctx context.Context, applicationID string) (map[string]scanner.ApplicationConfig, error) {
	query, _, err := s.goqu.From("application_scanner_configs").
		Select("application_id", "scanner_id", "is_enabled", "risk_level", "scan_prompt", "scan_response").
		Where(goqu.C("application_id").Eq(applicationID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("store: build scanner config list: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list scanner configs: %w", err)
	}
	defer rows.Close()

	out := make(map[string]scanner.ApplicationConfig)
	for rows.Next() {
		var c scanner.ApplicationConfig
		var enabled int
		var riskLevel, scanPrompt, scanResponse sql.NullString
		if err := rows.Scan(&c.ApplicationID, &c.ScannerID, &enabled, &riskLevel, &scanPrompt, &scanResponse); err != nil {
			return nil, fmt.Errorf("store: scan scanner config: %w", err)
		}
		c.IsEnabled = enabled != 0
		if riskLevel.Valid {
			lvl := risk.Level(riskLevel.String)
			c.RiskLevel = &lvl
		}
		if scanPrompt.Valid {
			v := scanPrompt.String == "1"
			c.ScanPrompt = &v
		}
		if scanResponse.Valid {
			v := scanResponse.String == "1"
			c.ScanResponse = &v
		}
		out[c.ScannerID] = c
	}
	return out, rows.Err()
}

// UpsertApplicationScannerConfig writes an override row.
func (s *Store) UpsertApplicationScannerConfig(ctx context.Context, c scanner.ApplicationConfig) error {
	del, _, err := s.goqu.Delete("application_scanner_configs").
		Where(goqu.C("application_id").Eq(c.ApplicationID), goqu.C("scanner_id").Eq(c.ScannerID)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("store: build scanner config delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, del); err != nil {
		return fmt.Errorf("store: clear scanner config: %w", err)
	}

	record := goqu.Record{
		"application_id": c.ApplicationID, "scanner_id": c.ScannerID, "is_enabled": boolInt(c.IsEnabled),
	}
	if c.RiskLevel != nil {
		record["risk_level"] = string(*c.RiskLevel)
	}
	if c.ScanPrompt != nil {
		record["scan_prompt"] = boolInt(*c.ScanPrompt)
	}
	if c.ScanResponse != nil {
		record["scan_response"] = boolInt(*c.ScanResponse)
	}
	insert, _, err := s.goqu.Insert("application_scanner_configs").Rows(record).ToSQL()
	if err != nil {
		return fmt.Errorf("store: build scanner config insert: %w", err)
	}
	_, err = s.db.ExecContext(ctx, insert)
	return err
}

// ListPurchasedPackageIDs returns the set of package ids tenantID holds
// an approved Purchase for.
func (s *Store) ListPurchasedPackageIDs(ctx context.Context, tenantID string) (map[string]bool, error) {
	query, _, err := s.goqu.From("package_purchases").
		Select("package_id").
		Where(goqu.C("tenant_id").Eq(tenantID), goqu.C("status").Eq(string(scanner.PurchaseApproved))).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("store: build purchase list: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list purchases: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var pkgID string
		if err := rows.Scan(&pkgID); err != nil {
			return nil, fmt.Errorf("store: scan purchase: %w", err)
		}
		out[pkgID] = true
	}
	return out, rows.Err()
}

// CreatePurchase records a (tenant, package) purchase request.
func (s *Store) CreatePurchase(ctx context.Context, p scanner.Purchase) (scanner.Purchase, error) {
	p.ID = ulid.Make().String()
	insert, _, err := s.goqu.Insert("package_purchases").Rows(goqu.Record{
		"id": p.ID, "tenant_id": p.TenantID, "package_id": p.PackageID, "status": string(p.Status),
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}).ToSQL()
	if err != nil {
		return scanner.Purchase{}, fmt.Errorf("store: build purchase insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, insert); err != nil {
		return scanner.Purchase{}, fmt.Errorf("store: create purchase: %w", err)
	}
	return p, nil
}

// ListLists returns every active List of kind owned by applicationID
// (blacklists or whitelists).
func (s *Store) ListLists(ctx context.Context, applicationID string, kind scanner.ListKind) ([]scanner.List, error) {
	query, _, err := s.goqu.From("lists").
		Select("id", "application_id", "kind", "name", "keywords", "active").
		Where(goqu.C("application_id").Eq(applicationID), goqu.C("kind").Eq(string(kind)), goqu.C("active").Eq(1)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("store: build list query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list lists: %w", err)
	}
	defer rows.Close()

	var out []scanner.List
	for rows.Next() {
		var l scanner.List
		var kindStr, keywordsJSON string
		var active int
		if err := rows.Scan(&l.ID, &l.ApplicationID, &kindStr, &l.Name, &keywordsJSON, &active); err != nil {
			return nil, fmt.Errorf("store: scan list: %w", err)
		}
		l.Kind = scanner.ListKind(kindStr)
		l.Active = active != 0
		if err := jsonUnmarshalStrings(keywordsJSON, &l.Keywords); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CreateList inserts a new blacklist/whitelist.
func (s *Store) CreateList(ctx context.Context, l scanner.List) (scanner.List, error) {
	l.ID = ulid.Make().String()
	keywords, err := jsonMarshalStrings(l.Keywords)
	if err != nil {
		return scanner.List{}, err
	}
	insert, _, err := s.goqu.Insert("lists").Rows(goqu.Record{
		"id": l.ID, "application_id": l.ApplicationID, "kind": string(l.Kind), "name": l.Name,
		"keywords": keywords, "active": boolInt(l.Active),
	}).ToSQL()
	if err != nil {
		return scanner.List{}, fmt.Errorf("store: build list insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, insert); err != nil {
		return scanner.List{}, fmt.Errorf("store: create list: %w", err)
	}
	return l, nil
}
