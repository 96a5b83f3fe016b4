// Package detectapi implements the gateway integration API (SPEC §4.4):
// process-input and process-output, for third-party callers that want
// the detection/anonymization pipeline without routing full chat
// traffic through the reverse proxy.
package detectapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sentinelops/gatekeep/internal/adapter/inbound/httpmw"
	"github.com/sentinelops/gatekeep/internal/adapter/outbound/sessioncache"
	"github.com/sentinelops/gatekeep/internal/apperr"
	"github.com/sentinelops/gatekeep/internal/domain/anonymize"
	"github.com/sentinelops/gatekeep/internal/domain/detect"
	"github.com/sentinelops/gatekeep/internal/domain/disposition"
	"github.com/sentinelops/gatekeep/internal/service"
)

// Handler serves the gateway integration API routes.
type Handler struct {
	detect   *service.DetectionService
	sessions *sessioncache.Memory
	logger   *slog.Logger
}

// NewHandler builds a detectapi Handler.
func NewHandler(detect *service.DetectionService, sessions *sessioncache.Memory, logger *slog.Logger) *Handler {
	return &Handler{detect: detect, sessions: sessions, logger: logger}
}

// Mount registers the handler's routes onto r.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/v1/gateway/process-input", h.processInput)
	r.Post("/v1/gateway/process-output", h.processOutput)
}

type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type processInputRequest struct {
	Messages []inputMessage `json:"messages"`
	Stream   bool           `json:"stream"`
	ClientIP string         `json:"client_ip,omitempty"`
	UserID   string         `json:"user_id,omitempty"`
}

type processInputResponse struct {
	Action           string         `json:"action"`
	Messages         []inputMessage `json:"messages,omitempty"`
	SessionID        string         `json:"session_id,omitempty"`
	Replacement      string         `json:"replacement,omitempty"`
	Error            string         `json:"error,omitempty"`
	DetectionResult  detectionView  `json:"detection_result"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
}

type detectionView struct {
	RequestID    string   `json:"request_id"`
	OverallLevel string   `json:"overall_level"`
	Score        float64  `json:"score"`
	Categories   []string `json:"categories,omitempty"`
}

func (h *Handler) processInput(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req processInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpmw.WriteError(w, apperr.Validation("invalid request body"))
		return
	}

	authCtx, ok := httpmw.FromContext(r.Context())
	if !ok {
		httpmw.WriteError(w, apperr.Auth("missing auth context"))
		return
	}

	messages := make([]detect.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, detect.Message{Role: detect.Role(m.Role), Content: m.Content})
	}

	result, err := h.detect.Evaluate(r.Context(), service.EvaluateRequest{
		TenantID:      authCtx.TenantID,
		ApplicationID: authCtx.ApplicationID,
		IsSuperAdmin:  authCtx.IsSuperAdmin,
		Messages:      messages,
		Side:          disposition.SideInput,
		WantRestore:   true,
	})
	if err != nil {
		httpmw.WriteError(w, err)
		return
	}

	resp := processInputResponse{
		DetectionResult: detectionView{
			RequestID:    result.RequestID,
			OverallLevel: string(result.Disposition.OverallLevel),
			Score:        result.Disposition.Score,
			Categories:   allCategories(result.Disposition.Categories),
		},
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}

	switch result.Disposition.Action {
	case disposition.ActionReject:
		resp.Action = "block"
		resp.Error = result.Disposition.Answer
	case disposition.ActionReplace:
		resp.Action = "replace"
		resp.Replacement = result.Disposition.Answer
	case disposition.ActionReplaceWithAnonymized:
		resp.Action = "anonymize"
		sessionID := uuid.New().String()
		if err := h.sessions.Put(r.Context(), sessionID, result.Disposition.RestoreMapping); err != nil {
			h.logger.Warn("session cache put failed", "error", err)
		}
		resp.SessionID = sessionID
		resp.Messages = replaceLastMessage(req.Messages, result.Disposition.AnonymizedMessage)
	case disposition.ActionSwitchPrivateModel:
		resp.Action = "switch_private_model"
	default:
		resp.Action = "pass"
		resp.Messages = req.Messages
	}

	writeJSON(w, http.StatusOK, resp)
}

type processOutputRequest struct {
	Content     string `json:"content"`
	SessionID   string `json:"session_id,omitempty"`
	IsStreaming bool   `json:"is_streaming"`
	ChunkIndex  int    `json:"chunk_index"`
}

type processOutputResponse struct {
	Action  string `json:"action"`
	Content string `json:"content,omitempty"`
}

func (h *Handler) processOutput(w http.ResponseWriter, r *http.Request) {
	var req processOutputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpmw.WriteError(w, apperr.Validation("invalid request body"))
		return
	}

	authCtx, ok := httpmw.FromContext(r.Context())
	if !ok {
		httpmw.WriteError(w, apperr.Auth("missing auth context"))
		return
	}

	if req.SessionID != "" {
		mapping, err := h.sessions.Get(r.Context(), req.SessionID)
		if err == nil && len(mapping) > 0 {
			restored := anonymize.Restore(req.Content, mapping)
			writeJSON(w, http.StatusOK, processOutputResponse{Action: "restore", Content: restored})
			return
		}
	}

	result, err := h.detect.Evaluate(r.Context(), service.EvaluateRequest{
		TenantID:      authCtx.TenantID,
		ApplicationID: authCtx.ApplicationID,
		IsSuperAdmin:  authCtx.IsSuperAdmin,
		Messages:      []detect.Message{{Role: detect.RoleAssistant, Content: req.Content}},
		Side:          disposition.SideOutput,
	})
	if err != nil {
		httpmw.WriteError(w, err)
		return
	}

	resp := processOutputResponse{Content: req.Content}
	switch result.Disposition.Action {
	case disposition.ActionReject:
		resp.Action = "block"
		resp.Content = result.Disposition.Answer
	case disposition.ActionReplace:
		resp.Action = "replace"
		resp.Content = result.Disposition.Answer
	default:
		resp.Action = "pass"
	}
	writeJSON(w, http.StatusOK, resp)
}

func allCategories(c disposition.Categories) []string {
	var out []string
	out = append(out, c.Security...)
	out = append(out, c.Compliance...)
	out = append(out, c.Data...)
	return out
}

func replaceLastMessage(msgs []inputMessage, content string) []inputMessage {
	if len(msgs) == 0 {
		return msgs
	}
	out := make([]inputMessage, len(msgs))
	copy(out, msgs)
	out[len(out)-1].Content = content
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
