package service

import (
	"context"
	"fmt"

	"github.com/sentinelops/gatekeep/internal/domain/anonymize"
	"github.com/sentinelops/gatekeep/internal/domain/detect"
	"github.com/sentinelops/gatekeep/internal/domain/disposition"
	"github.com/sentinelops/gatekeep/internal/domain/kb"
	"github.com/sentinelops/gatekeep/internal/domain/policyconf"
	"github.com/sentinelops/gatekeep/internal/domain/tenant"
	"github.com/sentinelops/gatekeep/internal/service/cache"
)

// PolicyStore is the subset of the relational store DispositionResolver
// needs beyond the caches: the disposal matrices, which are read
// uncached since they are consulted at most twice per request (once per
// scope) and change far less often than templates.
type PolicyStore interface {
	GetDataLeakagePolicy(ctx context.Context, scopeID string) (*policyconf.DataLeakagePolicy, error)
	GetGatewayPolicy(ctx context.Context, scopeID string) (*policyconf.GatewayPolicy, error)
	GetKnowledgeBaseByTag(ctx context.Context, applicationID, boundTag string) (kb.KnowledgeBase, error)
	GetApplication(ctx context.Context, id string) (tenant.Application, error)
}

// DispositionResolver wires disposition.Resolve's Deps from live store
// state and caches, so HTTP surfaces only need to supply Input.
type DispositionResolver struct {
	store     PolicyStore
	keywords  *cache.KeywordCache
	templates *cache.TemplateCache
	kbIndex   kb.VectorIndex
	rewriter  disposition.AnswerRewriter
	generator anonymize.Generator

	rewriteKBAnswer bool
	defaultLanguage string
}

// NewDispositionResolver builds a DispositionResolver. rewriter and
// generator may be nil (genai-backed KB rewrite and genai_natural/
// genai_code anonymization are then simply unavailable; every other
// method still works).
func NewDispositionResolver(
	store PolicyStore,
	keywords *cache.KeywordCache,
	templates *cache.TemplateCache,
	kbIndex kb.VectorIndex,
	rewriter disposition.AnswerRewriter,
	generator anonymize.Generator,
	rewriteKBAnswer bool,
	defaultLanguage string,
) *DispositionResolver {
	return &DispositionResolver{
		store: store, keywords: keywords, templates: templates, kbIndex: kbIndex,
		rewriter: rewriter, generator: generator,
		rewriteKBAnswer: rewriteKBAnswer, defaultLanguage: defaultLanguage,
	}
}

// Resolve runs the full disposition pipeline for one request: loads the
// application's lists, builds Deps from cached policy/template/KB
// lookups, extracts data entities for the anonymize path, and calls
// disposition.Resolve.
func (r *DispositionResolver) Resolve(
	ctx context.Context,
	applicationID string,
	side disposition.Side,
	messages []detect.Message,
	verdicts Verdicts,
	language string,
	wantRestore bool,
	anonymizeMethodFor func(entityType string) anonymize.Method,
) (disposition.Result, error) {
	app, err := r.store.GetApplication(ctx, applicationID)
	if err != nil {
		return disposition.Result{}, fmt.Errorf("service: load application: %w", err)
	}

	lists, err := r.keywords.Get(ctx, applicationID)
	if err != nil {
		return disposition.Result{}, fmt.Errorf("service: load lists: %w", err)
	}

	dataPolicy, err := r.store.GetDataLeakagePolicy(ctx, applicationID)
	if err != nil {
		return disposition.Result{}, fmt.Errorf("service: load data policy: %w", err)
	}
	tenantDataPolicy, err := r.store.GetDataLeakagePolicy(ctx, app.TenantID)
	if err != nil {
		return disposition.Result{}, fmt.Errorf("service: load tenant data policy: %w", err)
	}
	gatewayPolicy, err := r.store.GetGatewayPolicy(ctx, applicationID)
	if err != nil {
		return disposition.Result{}, fmt.Errorf("service: load gateway policy: %w", err)
	}
	tenantGatewayPolicy, err := r.store.GetGatewayPolicy(ctx, app.TenantID)
	if err != nil {
		return disposition.Result{}, fmt.Errorf("service: load tenant gateway policy: %w", err)
	}

	entities := detect.ExtractEntities(messages, verdicts.DataScanners)

	deps := disposition.Deps{
		DataPolicy: dataPolicy, DataPolicyTenantDefault: tenantDataPolicy,
		GatewayPolicy: gatewayPolicy, GatewayPolicyTenantDefault: tenantGatewayPolicy,
		HasSafeModel: dataPolicy != nil && dataPolicy.PrivateModelID != "",
		KB:           r.kbIndex,
		KBByTag:      r.kbByTag(ctx, applicationID, messages, verdicts),
		TemplateFor: func(identifierType policyconf.ScannerIdentifierType, identifier string) *policyconf.Template {
			tpl, err := r.templates.Get(ctx, applicationID, identifierType, identifier)
			if err != nil {
				return nil
			}
			return tpl
		},
		Language: language, DefaultLanguage: r.defaultLanguage,
		RewriteKBAnswer: r.rewriteKBAnswer, Rewriter: r.rewriter,
		AnonymizeMethodFor: anonymizeMethodFor, AnonymizeGenerator: r.generator,
		WantRestore: wantRestore,
	}
	if dataPolicy != nil {
		deps.SafeModelID = dataPolicy.PrivateModelID
	} else if tenantDataPolicy != nil {
		deps.HasSafeModel = tenantDataPolicy.PrivateModelID != ""
		deps.SafeModelID = tenantDataPolicy.PrivateModelID
	}

	in := disposition.Input{
		Messages: messages, Side: side,
		Whitelists: lists.Whitelists, Blacklists: lists.Blacklists,
		Compliance: verdicts.Compliance, Security: verdicts.Security, Data: verdicts.Data,
		DataEntities: entities,
	}
	return disposition.Resolve(ctx, in, deps)
}

// kbByTag resolves a KnowledgeBase for every matched tag across the
// three verdicts, best-effort: a tag with no bound KB is simply omitted
// (the resolver falls back to a template).
func (r *DispositionResolver) kbByTag(ctx context.Context, applicationID string, _ []detect.Message, v Verdicts) map[string]kb.KnowledgeBase {
	out := make(map[string]kb.KnowledgeBase)
	for _, tag := range append(append(append([]string{}, v.Compliance.MatchedTags...), v.Security.MatchedTags...), v.Data.MatchedTags...) {
		if _, ok := out[tag]; ok {
			continue
		}
		k, err := r.store.GetKnowledgeBaseByTag(ctx, applicationID, tag)
		if err != nil {
			continue
		}
		out[tag] = k
	}
	return out
}

// DefaultAnonymizeMethodFor is the fallback entity-type -> method
// selector used when no per-type override is configured: mask
// everything, matching the teacher/original's conservative default.
func DefaultAnonymizeMethodFor(string) anonymize.Method {
	return anonymize.MethodMask
}
