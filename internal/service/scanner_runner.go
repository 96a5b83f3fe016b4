// Package service contains the orchestration layer: it wires the pure
// domain packages (detect, disposition, anonymize, usage, appeal) to the
// outbound adapters (store, genaiclient, vectorindex, fswriter,
// jwtauth) and exposes the operations the three HTTP surfaces call.
package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/sentinelops/gatekeep/internal/domain/detect"
	"github.com/sentinelops/gatekeep/internal/domain/policyconf"
	"github.com/sentinelops/gatekeep/internal/domain/risk"
	"github.com/sentinelops/gatekeep/internal/domain/scanner"
)

// ScannerStore is the subset of the relational store ScannerRunner needs
// to assemble an application's effective scanner set and per-application
// overrides.
type ScannerStore interface {
	ListBuiltinScanners(ctx context.Context) ([]scanner.Scanner, error)
	ListScannerPackages(ctx context.Context, typ scanner.PackageType) ([]scanner.Package, error)
	ListScannersByPackage(ctx context.Context, packageID string) ([]scanner.Scanner, error)
	ListPurchasedPackageIDs(ctx context.Context, tenantID string) (map[string]bool, error)
	ListCustomScanners(ctx context.Context, applicationID string) ([]scanner.Scanner, error)
	ListApplicationScannerConfigs(ctx context.Context, applicationID string) (map[string]scanner.ApplicationConfig, error)
}

// ScannerRunner builds an application's effective scanner set and fans
// conversations out across the three risk dimensions (§4.1), wrapping
// detect.RunDimension with the config plumbing it needs but does not
// itself know how to fetch.
type ScannerRunner struct {
	store      ScannerStore
	classifier detect.GenAIClassifier
	maxContextChars int
}

// NewScannerRunner builds a ScannerRunner. classifier may be nil if no
// GenAI scanner is ever configured (detect.RunDimension tolerates it).
func NewScannerRunner(store ScannerStore, classifier detect.GenAIClassifier, maxContextChars int) *ScannerRunner {
	return &ScannerRunner{store: store, classifier: classifier, maxContextChars: maxContextChars}
}

// Verdicts is the per-dimension outcome of one scanner-engine pass.
type Verdicts struct {
	Compliance detect.DimensionVerdict
	Security   detect.DimensionVerdict
	Data       detect.DimensionVerdict
	// DataScanners is the effective set's data-dimension scanners, for
	// entity extraction (detect.ExtractEntities needs the regex/keyword
	// scanner definitions, not just the aggregated verdict).
	DataScanners []scanner.Scanner
}

// Run evaluates messages against applicationID's effective scanner set
// across all three dimensions, isSuperAdmin granting unconditional
// premium-package access (§4.1/scanner.NewEffectiveSet).
func (r *ScannerRunner) Run(ctx context.Context, tenantID, applicationID string, isSuperAdmin bool, messages []detect.Message, riskConfig policyconf.RiskTypeConfig) (Verdicts, error) {
	effective, err := r.effectiveSet(ctx, tenantID, applicationID, isSuperAdmin)
	if err != nil {
		return Verdicts{}, fmt.Errorf("service: build effective scanner set: %w", err)
	}
	configs, err := r.store.ListApplicationScannerConfigs(ctx, applicationID)
	if err != nil {
		return Verdicts{}, fmt.Errorf("service: list scanner configs: %w", err)
	}

	byDimension := func(dim risk.Dimension) []scanner.Scanner {
		return effective.ForDimension(func(s scanner.Scanner) bool { return s.Dimension() == dim })
	}

	compliance, err := detect.RunDimension(ctx, messages, r.maxContextChars, byDimension(risk.DimensionCompliance), configs, riskConfig, r.classifier)
	if err != nil {
		return Verdicts{}, fmt.Errorf("service: run compliance dimension: %w", err)
	}
	security, err := detect.RunDimension(ctx, messages, r.maxContextChars, byDimension(risk.DimensionSecurity), configs, riskConfig, r.classifier)
	if err != nil {
		return Verdicts{}, fmt.Errorf("service: run security dimension: %w", err)
	}
	dataScanners := byDimension(risk.DimensionData)
	data, err := detect.RunDimension(ctx, messages, r.maxContextChars, dataScanners, configs, riskConfig, r.classifier)
	if err != nil {
		return Verdicts{}, fmt.Errorf("service: run data dimension: %w", err)
	}

	return Verdicts{Compliance: compliance, Security: security, Data: data, DataScanners: dataScanners}, nil
}

// effectiveSet assembles scanner.NewEffectiveSet's four inputs: builtin
// scanners, every purchasable package's scanners keyed by package id,
// the tenant's approved purchases, and the application's custom
// scanners.
func (r *ScannerRunner) effectiveSet(ctx context.Context, tenantID, applicationID string, isSuperAdmin bool) (scanner.EffectiveSet, error) {
	builtin, err := r.store.ListBuiltinScanners(ctx)
	if err != nil {
		return scanner.EffectiveSet{}, fmt.Errorf("list builtin scanners: %w", err)
	}

	packages, err := r.store.ListScannerPackages(ctx, scanner.PackagePurchasable)
	if err != nil {
		return scanner.EffectiveSet{}, fmt.Errorf("list purchasable packages: %w", err)
	}
	premiumByPackage := make(map[string][]scanner.Scanner, len(packages))
	for _, p := range packages {
		scanners, err := r.store.ListScannersByPackage(ctx, p.ID)
		if err != nil {
			return scanner.EffectiveSet{}, fmt.Errorf("list scanners for package %s: %w", p.ID, err)
		}
		premiumByPackage[p.ID] = scanners
	}

	purchased, err := r.store.ListPurchasedPackageIDs(ctx, tenantID)
	if err != nil {
		return scanner.EffectiveSet{}, fmt.Errorf("list purchased packages: %w", err)
	}

	custom, err := r.store.ListCustomScanners(ctx, applicationID)
	if err != nil {
		return scanner.EffectiveSet{}, fmt.Errorf("list custom scanners: %w", err)
	}

	return scanner.NewEffectiveSet(builtin, premiumByPackage, purchased, isSuperAdmin, custom), nil
}

// sortedTags is a small helper used by callers that need a deterministic
// iteration order over a verdict's matched tags (e.g. for logging).
func sortedTags(tags []string) []string {
	out := append([]string{}, tags...)
	sort.Strings(out)
	return out
}
