package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sentinelops/gatekeep/internal/domain/policyconf"
)

type countingTemplateSource struct {
	calls int32
}

func (s *countingTemplateSource) GetResponseTemplate(ctx context.Context, applicationID string, identifierType policyconf.ScannerIdentifierType, identifier string) (*policyconf.Template, error) {
	atomic.AddInt32(&s.calls, 1)
	return &policyconf.Template{
		ApplicationID:  applicationID,
		IdentifierType: identifierType,
		Identifier:     identifier,
		Content:        map[string]string{"en": "blocked"},
	}, nil
}

func TestTemplateCache_GetKeyedByFullTriple(t *testing.T) {
	src := &countingTemplateSource{}
	c := NewTemplateCache(src, time.Minute)

	tpl, err := c.Get(context.Background(), "app1", policyconf.IdentifierScanner, "toxicity")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tpl.Content["en"] != "blocked" {
		t.Errorf("unexpected template content: %+v", tpl)
	}

	c.Get(context.Background(), "app1", policyconf.IdentifierScanner, "toxicity")
	if src.calls != 1 {
		t.Errorf("expected the second identical Get to hit the cache, calls=%d", src.calls)
	}

	c.Get(context.Background(), "app1", policyconf.IdentifierList, "toxicity")
	if src.calls != 2 {
		t.Errorf("expected a different identifierType to be a distinct cache key, calls=%d", src.calls)
	}
}

func TestTemplateCache_InvalidateEvictsAllEntriesForApplication(t *testing.T) {
	src := &countingTemplateSource{}
	c := NewTemplateCache(src, time.Minute)

	c.Get(context.Background(), "app1", policyconf.IdentifierScanner, "toxicity")
	c.Get(context.Background(), "app1", policyconf.IdentifierList, "blocklist1")
	c.Get(context.Background(), "app2", policyconf.IdentifierScanner, "toxicity")

	c.Invalidate("app1")

	c.Get(context.Background(), "app1", policyconf.IdentifierScanner, "toxicity")
	c.Get(context.Background(), "app1", policyconf.IdentifierList, "blocklist1")
	c.Get(context.Background(), "app2", policyconf.IdentifierScanner, "toxicity")

	if src.calls != 5 {
		t.Errorf("expected app1's invalidate to reload both of its entries but not app2's, calls=%d", src.calls)
	}
}
