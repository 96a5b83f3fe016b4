package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sentinelops/gatekeep/internal/domain/detect"
	"github.com/sentinelops/gatekeep/internal/domain/policyconf"
	"github.com/sentinelops/gatekeep/internal/domain/scanner"
)

type fakeScannerStore struct {
	builtin    []scanner.Scanner
	packages   []scanner.Package
	byPackage  map[string][]scanner.Scanner
	purchased  map[string]bool
	custom     []scanner.Scanner
	configs    map[string]scanner.ApplicationConfig
	builtinErr error
}

func (f *fakeScannerStore) ListBuiltinScanners(ctx context.Context) ([]scanner.Scanner, error) {
	if f.builtinErr != nil {
		return nil, f.builtinErr
	}
	return f.builtin, nil
}
func (f *fakeScannerStore) ListScannerPackages(ctx context.Context, typ scanner.PackageType) ([]scanner.Package, error) {
	return f.packages, nil
}
func (f *fakeScannerStore) ListScannersByPackage(ctx context.Context, packageID string) ([]scanner.Scanner, error) {
	return f.byPackage[packageID], nil
}
func (f *fakeScannerStore) ListPurchasedPackageIDs(ctx context.Context, tenantID string) (map[string]bool, error) {
	return f.purchased, nil
}
func (f *fakeScannerStore) ListCustomScanners(ctx context.Context, applicationID string) ([]scanner.Scanner, error) {
	return f.custom, nil
}
func (f *fakeScannerStore) ListApplicationScannerConfigs(ctx context.Context, applicationID string) (map[string]scanner.ApplicationConfig, error) {
	return f.configs, nil
}

func TestScannerRunner_Run_NoScannersConfiguredReturnsEmptyVerdicts(t *testing.T) {
	store := &fakeScannerStore{
		configs:   map[string]scanner.ApplicationConfig{},
		purchased: map[string]bool{},
	}
	r := NewScannerRunner(store, nil, 4000)

	v, err := r.Run(context.Background(), "t1", "app1", false, []detect.Message{{Role: detect.RoleUser, Content: "hi"}}, policyconf.RiskTypeConfig{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(v.DataScanners) != 0 {
		t.Errorf("expected no data scanners in the effective set, got %v", v.DataScanners)
	}
}

func TestScannerRunner_Run_PropagatesStoreError(t *testing.T) {
	store := &fakeScannerStore{builtinErr: errors.New("db down")}
	r := NewScannerRunner(store, nil, 4000)

	_, err := r.Run(context.Background(), "t1", "app1", false, nil, policyconf.RiskTypeConfig{})
	if err == nil {
		t.Fatal("expected an error when the store fails to list builtin scanners")
	}
}

func TestScannerRunner_EffectiveSet_SuperAdminGetsPremiumWithoutPurchase(t *testing.T) {
	premium := scanner.Scanner{ID: "s1", PackageID: "pkg1", Tag: "S15", Active: true, Type: scanner.KindKeyword, Definition: "secret"}
	store := &fakeScannerStore{
		packages:  []scanner.Package{{ID: "pkg1", Type: scanner.PackagePurchasable}},
		byPackage: map[string][]scanner.Scanner{"pkg1": {premium}},
		purchased: map[string]bool{},
		configs:   map[string]scanner.ApplicationConfig{},
	}
	r := NewScannerRunner(store, nil, 4000)

	v, err := r.Run(context.Background(), "t1", "app1", true, nil, policyconf.RiskTypeConfig{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	found := false
	for _, s := range v.DataScanners {
		if s.ID == "s1" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a super admin to see the premium scanner without a purchase, got %v", v.DataScanners)
	}
}
