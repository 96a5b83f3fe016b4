package service

import (
	"context"
	"testing"
	"time"

	"github.com/sentinelops/gatekeep/internal/domain/detect"
	"github.com/sentinelops/gatekeep/internal/domain/disposition"
	"github.com/sentinelops/gatekeep/internal/domain/kb"
	"github.com/sentinelops/gatekeep/internal/domain/policyconf"
	"github.com/sentinelops/gatekeep/internal/domain/risk"
	"github.com/sentinelops/gatekeep/internal/domain/scanner"
	"github.com/sentinelops/gatekeep/internal/domain/tenant"
	"github.com/sentinelops/gatekeep/internal/service/cache"
)

type fakePolicyStore struct {
	app tenant.Application
}

func (f *fakePolicyStore) GetDataLeakagePolicy(ctx context.Context, scopeID string) (*policyconf.DataLeakagePolicy, error) {
	return nil, nil
}
func (f *fakePolicyStore) GetGatewayPolicy(ctx context.Context, scopeID string) (*policyconf.GatewayPolicy, error) {
	return nil, nil
}
func (f *fakePolicyStore) GetKnowledgeBaseByTag(ctx context.Context, applicationID, boundTag string) (kb.KnowledgeBase, error) {
	return kb.KnowledgeBase{}, context.DeadlineExceeded
}
func (f *fakePolicyStore) GetApplication(ctx context.Context, id string) (tenant.Application, error) {
	return f.app, nil
}

type emptyListSource struct{}

func (emptyListSource) ListLists(ctx context.Context, applicationID string, kind scanner.ListKind) ([]scanner.List, error) {
	return nil, nil
}

type emptyTemplateSource struct{}

func (emptyTemplateSource) GetResponseTemplate(ctx context.Context, applicationID string, identifierType policyconf.ScannerIdentifierType, identifier string) (*policyconf.Template, error) {
	return nil, nil
}

func newTestResolver(app tenant.Application) *DispositionResolver {
	store := &fakePolicyStore{app: app}
	keywords := cache.NewKeywordCache(emptyListSource{}, time.Minute)
	templates := cache.NewTemplateCache(emptyTemplateSource{}, time.Minute)
	return NewDispositionResolver(store, keywords, templates, nil, nil, nil, false, "en")
}

func TestDispositionResolver_Resolve_NoRiskPasses(t *testing.T) {
	r := newTestResolver(tenant.Application{ID: "app1", TenantID: "t1"})

	result, err := r.Resolve(context.Background(), "app1", disposition.SideInput,
		[]detect.Message{{Role: detect.RoleUser, Content: "hello"}},
		Verdicts{
			Compliance: detect.DimensionVerdict{Level: risk.NoRisk},
			Security:   detect.DimensionVerdict{Level: risk.NoRisk},
			Data:       detect.DimensionVerdict{Level: risk.NoRisk},
		},
		"en", false, DefaultAnonymizeMethodFor)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if result.Action != disposition.ActionPass {
		t.Errorf("expected pass, got %q", result.Action)
	}
	if result.OverallLevel != risk.NoRisk {
		t.Errorf("expected no risk, got %v", result.OverallLevel)
	}
}

func TestDispositionResolver_Resolve_ApplicationLookupFailurePropagates(t *testing.T) {
	store := &failingAppStore{}
	keywords := cache.NewKeywordCache(emptyListSource{}, time.Minute)
	templates := cache.NewTemplateCache(emptyTemplateSource{}, time.Minute)
	r := NewDispositionResolver(store, keywords, templates, nil, nil, nil, false, "en")

	_, err := r.Resolve(context.Background(), "app1", disposition.SideInput, nil, Verdicts{}, "en", false, DefaultAnonymizeMethodFor)
	if err == nil {
		t.Fatal("expected an error when the application lookup fails")
	}
}

type failingAppStore struct{}

func (failingAppStore) GetDataLeakagePolicy(ctx context.Context, scopeID string) (*policyconf.DataLeakagePolicy, error) {
	return nil, nil
}
func (failingAppStore) GetGatewayPolicy(ctx context.Context, scopeID string) (*policyconf.GatewayPolicy, error) {
	return nil, nil
}
func (failingAppStore) GetKnowledgeBaseByTag(ctx context.Context, applicationID, boundTag string) (kb.KnowledgeBase, error) {
	return kb.KnowledgeBase{}, context.DeadlineExceeded
}
func (failingAppStore) GetApplication(ctx context.Context, id string) (tenant.Application, error) {
	return tenant.Application{}, context.DeadlineExceeded
}
