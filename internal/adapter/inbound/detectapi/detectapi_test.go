package detectapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sentinelops/gatekeep/internal/domain/disposition"
)

func TestProcessInput_InvalidBody(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/gateway/process-input", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	h.processInput(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid JSON, got %d", rec.Code)
	}
}

func TestProcessInput_MissingAuthContext(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/gateway/process-input", strings.NewReader(`{"messages":[]}`))
	rec := httptest.NewRecorder()
	h.processInput(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without an auth context, got %d", rec.Code)
	}
}

func TestProcessOutput_InvalidBody(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/gateway/process-output", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	h.processOutput(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid JSON, got %d", rec.Code)
	}
}

func TestProcessOutput_MissingAuthContext(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/gateway/process-output", strings.NewReader(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	h.processOutput(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without an auth context, got %d", rec.Code)
	}
}

func TestAllCategories_FlattensAllThreeDimensions(t *testing.T) {
	got := allCategories(disposition.Categories{
		Security:   []string{"prompt_injection"},
		Compliance: []string{"toxicity"},
		Data:       []string{"pii_email"},
	})
	if len(got) != 3 {
		t.Fatalf("expected 3 categories, got %v", got)
	}
}

func TestReplaceLastMessage_ReplacesOnlyLastEntry(t *testing.T) {
	msgs := []inputMessage{{Role: "user", Content: "first"}, {Role: "user", Content: "second"}}
	out := replaceLastMessage(msgs, "redacted")

	if out[0].Content != "first" {
		t.Errorf("expected first message untouched, got %q", out[0].Content)
	}
	if out[1].Content != "redacted" {
		t.Errorf("expected last message replaced, got %q", out[1].Content)
	}
	if msgs[1].Content != "second" {
		t.Error("replaceLastMessage should not mutate its input slice")
	}
}

func TestReplaceLastMessage_EmptyInput(t *testing.T) {
	if out := replaceLastMessage(nil, "x"); len(out) != 0 {
		t.Errorf("expected empty result for empty input, got %v", out)
	}
}
