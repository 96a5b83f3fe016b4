package proxyapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestChatCompletions_InvalidBody(t *testing.T) {
	h := NewHandler(nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	h.chatCompletions(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid JSON, got %d", rec.Code)
	}
}

func TestChatCompletions_MissingAuthContext(t *testing.T) {
	h := NewHandler(nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"gpt-4"}`))
	rec := httptest.NewRecorder()
	h.chatCompletions(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without an auth context, got %d", rec.Code)
	}
}

func TestListModels_ReturnsEmptyList(t *testing.T) {
	h := NewHandler(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	h.listModels(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Object string        `json:"object"`
		Data   []interface{} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Object != "list" {
		t.Errorf("expected object=list, got %q", body.Object)
	}
	if len(body.Data) != 0 {
		t.Errorf("expected empty data, got %v", body.Data)
	}
}

func TestNewHandler_DefaultsNilLogger(t *testing.T) {
	h := NewHandler(nil, nil)
	if h.logger == nil {
		t.Fatal("NewHandler should default a nil logger to slog.Default()")
	}
}
