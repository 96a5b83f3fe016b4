// Package proxyapi implements the OpenAI-compatible reverse proxy
// surface (SPEC §4.3): /v1/chat/completions, /v1/completions and
// /v1/models, wiring service.ProxyService's detect -> forward -> detect
// state machine to HTTP, including SSE streaming.
package proxyapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	openai "github.com/sashabaranov/go-openai"

	"github.com/sentinelops/gatekeep/internal/adapter/inbound/httpmw"
	"github.com/sentinelops/gatekeep/internal/apperr"
	"github.com/sentinelops/gatekeep/internal/service"
)

// Handler serves the reverse-proxy routes.
type Handler struct {
	proxy  *service.ProxyService
	logger *slog.Logger
}

// NewHandler builds a proxyapi Handler.
func NewHandler(proxy *service.ProxyService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{proxy: proxy, logger: logger}
}

// Mount registers the handler's routes onto r.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/v1/chat/completions", h.chatCompletions)
	r.Post("/v1/completions", h.chatCompletions)
	r.Get("/v1/models", h.listModels)
}

func (h *Handler) chatCompletions(w http.ResponseWriter, r *http.Request) {
	var body openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpmw.WriteError(w, apperr.Validation("invalid request body"))
		return
	}

	authCtx, ok := httpmw.FromContext(r.Context())
	if !ok {
		httpmw.WriteError(w, apperr.Auth("missing auth context"))
		return
	}

	req := service.ChatRequest{
		TenantID:      authCtx.TenantID,
		ApplicationID: authCtx.ApplicationID,
		IsSuperAdmin:  authCtx.IsSuperAdmin,
		Body:          body,
	}

	if body.Stream {
		h.stream(w, r, req)
		return
	}

	result, err := h.proxy.Chat(r.Context(), req)
	if err != nil {
		httpmw.WriteError(w, apperr.Upstream(err, "upstream request failed"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if result.Blocked {
		w.Header().Set("X-Content-Filtered", "true")
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(result.Response)
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request, req service.ChatRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpmw.WriteError(w, apperr.Internal("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	_, err := h.proxy.StreamChat(r.Context(), req, func(chunk openai.ChatCompletionStreamResponse) bool {
		payload, err := json.Marshal(chunk)
		if err != nil {
			h.logger.Error("marshal stream chunk failed", "error", err)
			return false
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return false
		}
		if _, err := w.Write(payload); err != nil {
			return false
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return false
		}
		flusher.Flush()
		return true
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Error("stream chat failed", "error", err)
	}
	_, _ = w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

func (h *Handler) listModels(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"object": "list",
		"data":   []interface{}{},
	})
}
