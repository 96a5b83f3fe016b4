// Package authapi implements the two unauthenticated admin-surface
// routes (SPEC §4.5/§4.9): /auth/register and /auth/login, the only
// endpoints the admin CRUD surface exposes without a Bearer token.
package authapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/sentinelops/gatekeep/internal/adapter/inbound/httpmw"
	"github.com/sentinelops/gatekeep/internal/adapter/outbound/store"
	"github.com/sentinelops/gatekeep/internal/apperr"
	"github.com/sentinelops/gatekeep/internal/domain/auth"
	"github.com/sentinelops/gatekeep/internal/domain/tenant"
	"github.com/sentinelops/gatekeep/internal/service"
)

// TenantStore is the subset of store.Store authapi needs.
type TenantStore interface {
	GetTenantByEmail(ctx context.Context, email string) (tenant.Tenant, error)
	CreateTenant(ctx context.Context, t tenant.Tenant, now time.Time) (tenant.Tenant, error)
}

// Handler serves /auth/register and /auth/login.
type Handler struct {
	store TenantStore
	auth  *service.AuthService
}

// NewHandler builds an authapi Handler.
func NewHandler(store TenantStore, auth *service.AuthService) *Handler {
	return &Handler{store: store, auth: auth}
}

// Mount registers the handler's routes onto r. Callers must NOT wrap
// this group with httpmw.Auth: these two routes are how a client
// obtains credentials in the first place.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/auth/register", h.register)
	r.Post("/auth/login", h.login)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerResponse struct {
	TenantID string `json:"tenant_id"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		httpmw.WriteError(w, apperr.Validation("email and password are required"))
		return
	}

	if _, err := h.store.GetTenantByEmail(r.Context(), req.Email); err == nil {
		httpmw.WriteError(w, apperr.Conflict("an account with this email already exists"))
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		httpmw.WriteError(w, apperr.Internal("lookup tenant: %s", err.Error()))
		return
	}

	hash, err := auth.HashKeyArgon2id(req.Password)
	if err != nil {
		httpmw.WriteError(w, apperr.Internal("hash password: %s", err.Error()))
		return
	}

	t, err := h.store.CreateTenant(r.Context(), tenant.Tenant{
		ID:           ulid.Make().String(),
		Email:        req.Email,
		PasswordHash: hash,
		Active:       true,
	}, time.Now().UTC())
	if err != nil {
		httpmw.WriteError(w, apperr.Internal("create tenant: %s", err.Error()))
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{TenantID: t.ID})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		httpmw.WriteError(w, apperr.Validation("email and password are required"))
		return
	}

	t, err := h.store.GetTenantByEmail(r.Context(), req.Email)
	if err != nil {
		httpmw.WriteError(w, apperr.Auth("invalid email or password"))
		return
	}
	if !t.Active {
		httpmw.WriteError(w, apperr.Auth("account disabled"))
		return
	}

	match, err := auth.VerifyKey(req.Password, t.PasswordHash)
	if err != nil || !match {
		httpmw.WriteError(w, apperr.Auth("invalid email or password"))
		return
	}

	role := "tenant"
	if t.IsSuperAdmin {
		role = "super_admin"
	}
	token, err := h.auth.Login(t.ID, t.Email, role, time.Now().UTC())
	if err != nil {
		httpmw.WriteError(w, apperr.Internal("issue token: %s", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
