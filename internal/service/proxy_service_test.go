package service

import (
	"context"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sentinelops/gatekeep/internal/adapter/outbound/crypt"
	"github.com/sentinelops/gatekeep/internal/domain/auditlog"
	"github.com/sentinelops/gatekeep/internal/domain/scanner"
	"github.com/sentinelops/gatekeep/internal/domain/tenant"
	"github.com/sentinelops/gatekeep/internal/service/cache"
)

type fakeRouteStore struct {
	routes    []tenant.ModelRoute
	upstreams []tenant.UpstreamAPIConfig
	byID      map[string]tenant.UpstreamAPIConfig
}

func (f *fakeRouteStore) ListModelRoutes(ctx context.Context, tenantID string) ([]tenant.ModelRoute, error) {
	return f.routes, nil
}
func (f *fakeRouteStore) ListUpstreamAPIConfigs(ctx context.Context, tenantID string) ([]tenant.UpstreamAPIConfig, error) {
	return f.upstreams, nil
}
func (f *fakeRouteStore) GetUpstreamAPIConfig(ctx context.Context, id string) (tenant.UpstreamAPIConfig, error) {
	u, ok := f.byID[id]
	if !ok {
		return tenant.UpstreamAPIConfig{}, context.DeadlineExceeded
	}
	return u, nil
}

// blacklistListSource serves a single always-active blacklist matching
// "forbidden", so disposition.Resolve's default (no GatewayPolicy
// configured) gateway action for the resulting high compliance risk is
// block (policyconf.defaultGatewayAction).
type blacklistListSource struct{}

func (blacklistListSource) ListLists(ctx context.Context, applicationID string, kind scanner.ListKind) ([]scanner.List, error) {
	if kind == scanner.ListBlacklist {
		return []scanner.List{{ApplicationID: applicationID, Kind: scanner.ListBlacklist, Name: "banned-topic", Keywords: []string{"forbidden"}, Active: true}}, nil
	}
	return nil, nil
}

func newTestBox(t *testing.T) *crypt.Box {
	t.Helper()
	box, err := crypt.NewBox(make([]byte, 32))
	if err != nil {
		t.Fatalf("NewBox: %v", err)
	}
	return box
}

func newTestProxyService(t *testing.T, routes *fakeRouteStore) *ProxyService {
	t.Helper()
	scannerStore := &fakeScannerStore{configs: map[string]scanner.ApplicationConfig{}, purchased: map[string]bool{}}
	runner := NewScannerRunner(scannerStore, nil, 4000)

	policyStore := &fakePolicyStore{app: tenant.Application{ID: "app1", TenantID: "t1"}}
	keywords := cache.NewKeywordCache(blacklistListSource{}, time.Minute)
	templates := cache.NewTemplateCache(emptyTemplateSource{}, time.Minute)
	resolver := NewDispositionResolver(policyStore, keywords, templates, nil, nil, nil, false, "en")

	riskConfig := cache.NewRiskConfigCache(fakeRiskConfigSource{}, time.Minute)
	detect := NewDetectionService(runner, resolver, riskConfig, &recordingWriter{})
	anon := NewAnonymizationService(nil)

	return NewProxyService(routes, detect, anon, newTestBox(t), nil)
}

func TestProxyService_Chat_BlacklistMatchRejectsWithoutContactingUpstream(t *testing.T) {
	routes := &fakeRouteStore{
		upstreams: []tenant.UpstreamAPIConfig{{ID: "u1", TenantID: "t1"}},
	}
	svc := newTestProxyService(t, routes)

	result, err := svc.Chat(context.Background(), ChatRequest{
		TenantID:      "t1",
		ApplicationID: "app1",
		Body: openai.ChatCompletionRequest{
			Model:    "gpt-4",
			Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "this is forbidden content"}},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !result.Blocked {
		t.Fatal("expected the blacklist match to block the request")
	}
	if len(result.Response.Choices) != 1 || result.Response.Choices[0].FinishReason != openai.FinishReasonContentFilter {
		t.Errorf("expected a content_filter completion, got %+v", result.Response)
	}
}

func TestProxyService_Chat_NoUpstreamConfiguredErrorsBeforeDetection(t *testing.T) {
	routes := &fakeRouteStore{}
	svc := newTestProxyService(t, routes)

	_, err := svc.Chat(context.Background(), ChatRequest{
		TenantID:      "t1",
		ApplicationID: "app1",
		Body: openai.ChatCompletionRequest{
			Model:    "gpt-4",
			Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "hello"}},
		},
	})
	if err == nil {
		t.Fatal("expected an error when no upstream is configured")
	}
}

var _ auditlog.Writer = (*recordingWriter)(nil)
