package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sentinelops/gatekeep/internal/domain/tenant"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "gatekeep_test.db")
	s, err := Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetTenantByEmail_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetTenantByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetTenantByEmail_MatchesCreatedTenant(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	created, err := s.CreateTenant(context.Background(), tenant.Tenant{
		ID:           ulid.Make().String(),
		Email:        "a@b.com",
		PasswordHash: "hash",
		Active:       true,
	}, now)
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	got, err := s.GetTenantByEmail(context.Background(), created.Email)
	if err != nil {
		t.Fatalf("get tenant by email: %v", err)
	}
	if got.ID != created.ID || got.Email != created.Email {
		t.Errorf("expected %+v, got %+v", created, got)
	}
}
