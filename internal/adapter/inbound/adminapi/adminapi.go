// Package adminapi implements the admin CRUD surface under /api/v1/...
// (SPEC §6): tenants, applications, upstream configs, model routes,
// scanners, lists, policy configuration, knowledge bases, and appeals.
// Handlers are thin: decode JSON into the domain struct, call the
// store/service method with the matching name, encode the result.
package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sentinelops/gatekeep/internal/adapter/inbound/httpmw"
	"github.com/sentinelops/gatekeep/internal/apperr"
	"github.com/sentinelops/gatekeep/internal/domain/appeal"
	"github.com/sentinelops/gatekeep/internal/domain/kb"
	"github.com/sentinelops/gatekeep/internal/domain/policyconf"
	"github.com/sentinelops/gatekeep/internal/domain/scanner"
	"github.com/sentinelops/gatekeep/internal/domain/tenant"
	"github.com/sentinelops/gatekeep/internal/service"
)

// Store is the subset of store.Store the admin surface needs, narrowed
// to a local interface so this package doesn't import the concrete
// sqlite adapter.
type Store interface {
	CreateTenant(ctx context.Context, t tenant.Tenant, now time.Time) (tenant.Tenant, error)
	GetTenant(ctx context.Context, id string) (tenant.Tenant, error)
	CreateApplication(ctx context.Context, a tenant.Application, now time.Time) (tenant.Application, error)
	ListApplications(ctx context.Context, tenantID string) ([]tenant.Application, error)
	GetApplication(ctx context.Context, id string) (tenant.Application, error)
	CreateUpstreamAPIConfig(ctx context.Context, c tenant.UpstreamAPIConfig) (tenant.UpstreamAPIConfig, error)
	GetUpstreamAPIConfig(ctx context.Context, id string) (tenant.UpstreamAPIConfig, error)
	ListUpstreamAPIConfigs(ctx context.Context, tenantID string) ([]tenant.UpstreamAPIConfig, error)
	CreateModelRoute(ctx context.Context, r tenant.ModelRoute) (tenant.ModelRoute, error)
	ListModelRoutes(ctx context.Context, tenantID string) ([]tenant.ModelRoute, error)

	ListBuiltinScanners(ctx context.Context) ([]scanner.Scanner, error)
	ListCustomScanners(ctx context.Context, applicationID string) ([]scanner.Scanner, error)
	ListScannerPackages(ctx context.Context, typ scanner.PackageType) ([]scanner.Package, error)
	CreateScanner(ctx context.Context, sc scanner.Scanner, now time.Time) (scanner.Scanner, error)
	SoftDeleteScanner(ctx context.Context, id string, deletedAt time.Time) error
	UpsertApplicationScannerConfig(ctx context.Context, c scanner.ApplicationConfig) error
	ListApplicationScannerConfigs(ctx context.Context, applicationID string) (map[string]scanner.ApplicationConfig, error)
	ListPurchasedPackageIDs(ctx context.Context, tenantID string) (map[string]bool, error)
	CreatePurchase(ctx context.Context, p scanner.Purchase) (scanner.Purchase, error)
	ListLists(ctx context.Context, applicationID string, kindParam scanner.ListKind) ([]scanner.List, error)
	CreateList(ctx context.Context, l scanner.List) (scanner.List, error)

	GetRiskTypeConfig(ctx context.Context, applicationID string) (policyconf.RiskTypeConfig, error)
	UpsertRiskTypeConfig(ctx context.Context, c policyconf.RiskTypeConfig) error
	UpsertResponseTemplate(ctx context.Context, applicationID string, identifierType policyconf.ScannerIdentifierType, identifier, lang, content string) error
	GetDataLeakagePolicy(ctx context.Context, scopeID string) (*policyconf.DataLeakagePolicy, error)
	UpsertDataLeakagePolicy(ctx context.Context, p policyconf.DataLeakagePolicy) error
	GetGatewayPolicy(ctx context.Context, scopeID string) (*policyconf.GatewayPolicy, error)
	UpsertGatewayPolicy(ctx context.Context, p policyconf.GatewayPolicy) error

	CreateKnowledgeBase(ctx context.Context, k kb.KnowledgeBase) (kb.KnowledgeBase, error)
	AddQAPair(ctx context.Context, kbID string, pair kb.QAPair) (kb.QAPair, error)
	ListQAPairs(ctx context.Context, kbID string) ([]kb.QAPair, error)
}

// Handler serves the admin CRUD routes.
type Handler struct {
	store   Store
	appeals *service.AppealService
	logs    *service.LogImporter
}

// NewHandler builds an adminapi Handler.
func NewHandler(store Store, appeals *service.AppealService, logs *service.LogImporter) *Handler {
	return &Handler{store: store, appeals: appeals, logs: logs}
}

// Mount registers the handler's routes onto r. superAdminOnly wraps
// routes that require auth.Context.IsSuperAdmin (tenant creation,
// builtin scanner package listing, force_sync).
func (h *Handler) Mount(r chi.Router, superAdminOnly func(http.Handler) http.Handler) {
	r.Route("/tenants", func(r chi.Router) {
		r.With(superAdminOnly).Post("/", h.createTenant)
		r.Get("/{id}", h.getTenant)
	})
	r.Route("/applications", func(r chi.Router) {
		r.Post("/", h.createApplication)
		r.Get("/", h.listApplications)
		r.Get("/{id}", h.getApplication)
	})
	r.Route("/upstreams", func(r chi.Router) {
		r.Post("/", h.createUpstream)
		r.Get("/", h.listUpstreams)
		r.Get("/{id}", h.getUpstream)
	})
	r.Route("/model-routes", func(r chi.Router) {
		r.Post("/", h.createModelRoute)
		r.Get("/", h.listModelRoutes)
	})
	r.Route("/scanners", func(r chi.Router) {
		r.With(superAdminOnly).Get("/builtin", h.listBuiltinScanners)
		r.Get("/custom", h.listCustomScanners)
		r.Post("/", h.createScanner)
		r.Delete("/{id}", h.deleteScanner)
		r.Put("/config", h.upsertScannerConfig)
		r.Get("/config", h.listScannerConfigs)
	})
	r.Route("/packages", func(r chi.Router) {
		r.Get("/", h.listScannerPackages)
		r.Get("/purchased", h.listPurchasedPackages)
		r.Post("/purchase", h.createPurchase)
	})
	r.Route("/lists", func(r chi.Router) {
		r.Get("/", h.listLists)
		r.Post("/", h.createList)
	})
	r.Route("/policy", func(r chi.Router) {
		r.Get("/risk-config", h.getRiskConfig)
		r.Put("/risk-config", h.putRiskConfig)
		r.Put("/template", h.putTemplate)
		r.Get("/data-leakage", h.getDataLeakagePolicy)
		r.Put("/data-leakage", h.putDataLeakagePolicy)
		r.Get("/gateway", h.getGatewayPolicy)
		r.Put("/gateway", h.putGatewayPolicy)
	})
	r.Route("/knowledge-bases", func(r chi.Router) {
		r.Post("/", h.createKnowledgeBase)
		r.Post("/{id}/qa", h.addQAPair)
		r.Get("/{id}/qa", h.listQAPairs)
	})
	r.Route("/appeals", func(r chi.Router) {
		r.Post("/", h.submitAppeal)
		r.Get("/{id}", h.getAppeal)
		r.Post("/{id}/resolve", h.resolveAppeal)
	})
	r.With(superAdminOnly).Post("/force-sync", h.forceSync)
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) createTenant(w http.ResponseWriter, r *http.Request) {
	var t tenant.Tenant
	if err := decode(r, &t); err != nil {
		httpmw.WriteError(w, err)
		return
	}
	created, err := h.store.CreateTenant(r.Context(), t, time.Now().UTC())
	if err != nil {
		httpmw.WriteError(w, apperr.Internal("create tenant: %s", err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) getTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.store.GetTenant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpmw.WriteError(w, apperr.NotFound("tenant not found"))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) createApplication(w http.ResponseWriter, r *http.Request) {
	var a tenant.Application
	if err := decode(r, &a); err != nil {
		httpmw.WriteError(w, err)
		return
	}
	authCtx, _ := httpmw.FromContext(r.Context())
	a.TenantID = authCtx.TenantID
	created, err := h.store.CreateApplication(r.Context(), a, time.Now().UTC())
	if err != nil {
		httpmw.WriteError(w, apperr.Internal("create application: %s", err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listApplications(w http.ResponseWriter, r *http.Request) {
	authCtx, _ := httpmw.FromContext(r.Context())
	apps, err := h.store.ListApplications(r.Context(), authCtx.TenantID)
	if err != nil {
		httpmw.WriteError(w, apperr.Internal("list applications: %s", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

func (h *Handler) getApplication(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.GetApplication(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpmw.WriteError(w, apperr.NotFound("application not found"))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) createUpstream(w http.ResponseWriter, r *http.Request) {
	var c tenant.UpstreamAPIConfig
	if err := decode(r, &c); err != nil {
		httpmw.WriteError(w, err)
		return
	}
	authCtx, _ := httpmw.FromContext(r.Context())
	c.TenantID = authCtx.TenantID
	created, err := h.store.CreateUpstreamAPIConfig(r.Context(), c)
	if err != nil {
		httpmw.WriteError(w, apperr.Internal("create upstream config: %s", err.Error()))
		return
	}
	created.APIKeyEncrypted = nil
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listUpstreams(w http.ResponseWriter, r *http.Request) {
	authCtx, _ := httpmw.FromContext(r.Context())
	configs, err := h.store.ListUpstreamAPIConfigs(r.Context(), authCtx.TenantID)
	if err != nil {
		httpmw.WriteError(w, apperr.Internal("list upstream configs: %s", err.Error()))
		return
	}
	for i := range configs {
		configs[i].APIKeyEncrypted = nil
	}
	writeJSON(w, http.StatusOK, configs)
}

func (h *Handler) getUpstream(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.GetUpstreamAPIConfig(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpmw.WriteError(w, apperr.NotFound("upstream config not found"))
		return
	}
	c.APIKeyEncrypted = nil
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) createModelRoute(w http.ResponseWriter, r *http.Request) {
	var route tenant.ModelRoute
	if err := decode(r, &route); err != nil {
		httpmw.WriteError(w, err)
		return
	}
	authCtx, _ := httpmw.FromContext(r.Context())
	route.TenantID = authCtx.TenantID
	created, err := h.store.CreateModelRoute(r.Context(), route)
	if err != nil {
		httpmw.WriteError(w, apperr.Internal("create model route: %s", err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listModelRoutes(w http.ResponseWriter, r *http.Request) {
	authCtx, _ := httpmw.FromContext(r.Context())
	routes, err := h.store.ListModelRoutes(r.Context(), authCtx.TenantID)
	if err != nil {
		httpmw.WriteError(w, apperr.Internal("list model routes: %s", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, routes)
}

func (h *Handler) listBuiltinScanners(w http.ResponseWriter, r *http.Request) {
	scanners, err := h.store.ListBuiltinScanners(r.Context())
	if err != nil {
		httpmw.WriteError(w, apperr.Internal("list builtin scanners: %s", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, scanners)
}

func (h *Handler) listCustomScanners(w http.ResponseWriter, r *http.Request) {
	authCtx, _ := httpmw.FromContext(r.Context())
	scanners, err := h.store.ListCustomScanners(r.Context(), authCtx.ApplicationID)
	if err != nil {
		httpmw.WriteError(w, apperr.Internal("list custom scanners: %s", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, scanners)
}

func (h *Handler) createScanner(w http.ResponseWriter, r *http.Request) {
	var sc scanner.Scanner
	if err := decode(r, &sc); err != nil {
		httpmw.WriteError(w, err)
		return
	}
	created, err := h.store.CreateScanner(r.Context(), sc, time.Now().UTC())
	if err != nil {
		httpmw.WriteError(w, apperr.Internal("create scanner: %s", err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) deleteScanner(w http.ResponseWriter, r *http.Request) {
	if err := h.store.SoftDeleteScanner(r.Context(), chi.URLParam(r, "id"), time.Now().UTC()); err != nil {
		httpmw.WriteError(w, apperr.Internal("delete scanner: %s", err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) upsertScannerConfig(w http.ResponseWriter, r *http.Request) {
	var c scanner.ApplicationConfig
	if err := decode(r, &c); err != nil {
		httpmw.WriteError(w, err)
		return
	}
	if err := h.store.UpsertApplicationScannerConfig(r.Context(), c); err != nil {
		httpmw.WriteError(w, apperr.Internal("upsert scanner config: %s", err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listScannerConfigs(w http.ResponseWriter, r *http.Request) {
	authCtx, _ := httpmw.FromContext(r.Context())
	configs, err := h.store.ListApplicationScannerConfigs(r.Context(), authCtx.ApplicationID)
	if err != nil {
		httpmw.WriteError(w, apperr.Internal("list scanner configs: %s", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, configs)
}

func (h *Handler) listScannerPackages(w http.ResponseWriter, r *http.Request) {
	typ := scanner.PackageType(r.URL.Query().Get("type"))
	if typ == "" {
		typ = scanner.PackagePurchasable
	}
	packages, err := h.store.ListScannerPackages(r.Context(), typ)
	if err != nil {
		httpmw.WriteError(w, apperr.Internal("list scanner packages: %s", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, packages)
}

func (h *Handler) listPurchasedPackages(w http.ResponseWriter, r *http.Request) {
	authCtx, _ := httpmw.FromContext(r.Context())
	ids, err := h.store.ListPurchasedPackageIDs(r.Context(), authCtx.TenantID)
	if err != nil {
		httpmw.WriteError(w, apperr.Internal("list purchased packages: %s", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

func (h *Handler) createPurchase(w http.ResponseWriter, r *http.Request) {
	var p scanner.Purchase
	if err := decode(r, &p); err != nil {
		httpmw.WriteError(w, err)
		return
	}
	authCtx, _ := httpmw.FromContext(r.Context())
	p.TenantID = authCtx.TenantID
	created, err := h.store.CreatePurchase(r.Context(), p)
	if err != nil {
		httpmw.WriteError(w, apperr.Internal("create purchase: %s", err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listLists(w http.ResponseWriter, r *http.Request) {
	authCtx, _ := httpmw.FromContext(r.Context())
	kind := scanner.ListKind(r.URL.Query().Get("kind"))
	items, err := h.store.ListLists(r.Context(), authCtx.ApplicationID, kind)
	if err != nil {
		httpmw.WriteError(w, apperr.Internal("list entries: %s", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) createList(w http.ResponseWriter, r *http.Request) {
	var l scanner.List
	if err := decode(r, &l); err != nil {
		httpmw.WriteError(w, err)
		return
	}
	authCtx, _ := httpmw.FromContext(r.Context())
	l.ApplicationID = authCtx.ApplicationID
	created, err := h.store.CreateList(r.Context(), l)
	if err != nil {
		httpmw.WriteError(w, apperr.Internal("create list entry: %s", err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) getRiskConfig(w http.ResponseWriter, r *http.Request) {
	authCtx, _ := httpmw.FromContext(r.Context())
	cfg, err := h.store.GetRiskTypeConfig(r.Context(), authCtx.ApplicationID)
	if err != nil {
		httpmw.WriteError(w, apperr.NotFound("risk config not found"))
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) putRiskConfig(w http.ResponseWriter, r *http.Request) {
	var cfg policyconf.RiskTypeConfig
	if err := decode(r, &cfg); err != nil {
		httpmw.WriteError(w, err)
		return
	}
	authCtx, _ := httpmw.FromContext(r.Context())
	cfg.ApplicationID = authCtx.ApplicationID
	if err := h.store.UpsertRiskTypeConfig(r.Context(), cfg); err != nil {
		httpmw.WriteError(w, apperr.Internal("upsert risk config: %s", err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type templateRequest struct {
	IdentifierType policyconf.ScannerIdentifierType `json:"identifier_type"`
	Identifier     string                           `json:"identifier"`
	Lang           string                           `json:"lang"`
	Content        string                           `json:"content"`
}

func (h *Handler) putTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decode(r, &req); err != nil {
		httpmw.WriteError(w, err)
		return
	}
	authCtx, _ := httpmw.FromContext(r.Context())
	if err := h.store.UpsertResponseTemplate(r.Context(), authCtx.ApplicationID, req.IdentifierType, req.Identifier, req.Lang, req.Content); err != nil {
		httpmw.WriteError(w, apperr.Internal("upsert template: %s", err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getDataLeakagePolicy(w http.ResponseWriter, r *http.Request) {
	authCtx, _ := httpmw.FromContext(r.Context())
	p, err := h.store.GetDataLeakagePolicy(r.Context(), authCtx.ApplicationID)
	if err != nil {
		httpmw.WriteError(w, apperr.NotFound("data leakage policy not found"))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) putDataLeakagePolicy(w http.ResponseWriter, r *http.Request) {
	var p policyconf.DataLeakagePolicy
	if err := decode(r, &p); err != nil {
		httpmw.WriteError(w, err)
		return
	}
	if err := h.store.UpsertDataLeakagePolicy(r.Context(), p); err != nil {
		httpmw.WriteError(w, apperr.Internal("upsert data leakage policy: %s", err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getGatewayPolicy(w http.ResponseWriter, r *http.Request) {
	authCtx, _ := httpmw.FromContext(r.Context())
	p, err := h.store.GetGatewayPolicy(r.Context(), authCtx.ApplicationID)
	if err != nil {
		httpmw.WriteError(w, apperr.NotFound("gateway policy not found"))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) putGatewayPolicy(w http.ResponseWriter, r *http.Request) {
	var p policyconf.GatewayPolicy
	if err := decode(r, &p); err != nil {
		httpmw.WriteError(w, err)
		return
	}
	if err := h.store.UpsertGatewayPolicy(r.Context(), p); err != nil {
		httpmw.WriteError(w, apperr.Internal("upsert gateway policy: %s", err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	var k kb.KnowledgeBase
	if err := decode(r, &k); err != nil {
		httpmw.WriteError(w, err)
		return
	}
	created, err := h.store.CreateKnowledgeBase(r.Context(), k)
	if err != nil {
		httpmw.WriteError(w, apperr.Internal("create knowledge base: %s", err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) addQAPair(w http.ResponseWriter, r *http.Request) {
	var pair kb.QAPair
	if err := decode(r, &pair); err != nil {
		httpmw.WriteError(w, err)
		return
	}
	created, err := h.store.AddQAPair(r.Context(), chi.URLParam(r, "id"), pair)
	if err != nil {
		httpmw.WriteError(w, apperr.Internal("add qa pair: %s", err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listQAPairs(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.store.ListQAPairs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpmw.WriteError(w, apperr.Internal("list qa pairs: %s", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, pairs)
}

type submitAppealRequest struct {
	RequestID string `json:"request_id"`
}

func (h *Handler) submitAppeal(w http.ResponseWriter, r *http.Request) {
	var req submitAppealRequest
	if err := decode(r, &req); err != nil {
		httpmw.WriteError(w, err)
		return
	}
	authCtx, _ := httpmw.FromContext(r.Context())
	record, err := h.appeals.Submit(r.Context(), authCtx.ApplicationID, req.RequestID)
	if err != nil {
		httpmw.WriteError(w, apperr.Internal("submit appeal: %s", err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (h *Handler) getAppeal(w http.ResponseWriter, r *http.Request) {
	record, err := h.appeals.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpmw.WriteError(w, apperr.NotFound("appeal not found"))
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type resolveAppealRequest struct {
	ReviewerID string         `json:"reviewer_id"`
	Note       string         `json:"note"`
	Outcome    appeal.Outcome `json:"outcome"`
}

func (h *Handler) resolveAppeal(w http.ResponseWriter, r *http.Request) {
	var req resolveAppealRequest
	if err := decode(r, &req); err != nil {
		httpmw.WriteError(w, err)
		return
	}
	record, err := h.appeals.ResolveHuman(r.Context(), chi.URLParam(r, "id"), req.ReviewerID, req.Note, req.Outcome)
	if err != nil {
		httpmw.WriteError(w, apperr.Internal("resolve appeal: %s", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type forceSyncRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (h *Handler) forceSync(w http.ResponseWriter, r *http.Request) {
	var req forceSyncRequest
	if err := decode(r, &req); err != nil {
		httpmw.WriteError(w, err)
		return
	}
	n, err := h.logs.ForceSync(r.Context(), req.Start, req.End)
	if err != nil {
		httpmw.WriteError(w, apperr.Internal("force sync: %s", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": n})
}
