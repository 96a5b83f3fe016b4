package service

import (
	"testing"

	"github.com/sentinelops/gatekeep/internal/domain/anonymize"
)

func TestAnonymizationService_RestoreResponse_NoMapping(t *testing.T) {
	s := NewAnonymizationService(nil)
	got := s.RestoreResponse("req1", "hello world", nil)
	if got != "hello world" {
		t.Errorf("expected content unchanged for an empty mapping, got %q", got)
	}
}

func TestAnonymizationService_RestoreResponse_InvertsPlaceholders(t *testing.T) {
	s := NewAnonymizationService(nil)
	mapping := anonymize.RestoreMapping{"__email_1__": "alice@example.com"}

	got := s.RestoreResponse("req1", "contact __email_1__ for details", mapping)
	if got != "contact alice@example.com for details" {
		t.Errorf("expected placeholder restored, got %q", got)
	}
}

func TestAnonymizationService_RestoreResponse_SurvivingPlaceholderStillReturnsBestEffort(t *testing.T) {
	s := NewAnonymizationService(nil)
	mapping := anonymize.RestoreMapping{"__email_1__": "alice@example.com"}

	got := s.RestoreResponse("req1", "unknown placeholder __phone_1__ remains", mapping)
	if got != "unknown placeholder __phone_1__ remains" {
		t.Errorf("expected best-effort text returned even with an unmapped placeholder, got %q", got)
	}
}
