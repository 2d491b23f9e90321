package search_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bindlekit/bindle/internal/testkit"
	"github.com/bindlekit/bindle/pkg/catalog"
	"github.com/bindlekit/bindle/pkg/core"
	"github.com/bindlekit/bindle/pkg/search"
)

func seedIndex(t *testing.T) *search.Index {
	t.Helper()

	cat, err := catalog.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	seed := []struct {
		name, version, description string
		yanked                     bool
	}{
		{"enterprise.com/warpcore", "1.0.0", "warp core controller", false},
		{"enterprise.com/warpcore", "1.1.0", "warp core controller", false},
		{"enterprise.com/warpcore", "2.0.0", "warp core controller", false},
		{"enterprise.com/shields", "1.0.0", "deflector shield array", false},
		{"voyager.com/coffee", "0.1.0", "replicator recipes", true},
	}
	for _, s := range seed {
		inv := testkit.NewInvoice(s.name, s.version)
		inv.Bindle.Description = s.description
		inv.Yanked = s.yanked
		if err := cat.PutInvoice(nil, inv); err != nil {
			t.Fatalf("PutInvoice failed: %v", err)
		}
	}

	return search.New(cat, core.SearchConfig{DefaultLimit: 50, MaxLimit: 100})
}

func TestQueryMatching(t *testing.T) {
	ix := seedIndex(t)
	ctx := context.Background()

	t.Run("MatchAll", func(t *testing.T) {
		m, err := ix.Query(ctx, search.Options{})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		// Yanked excluded by default
		if m.Total != 4 {
			t.Errorf("expected 4 matches, got %d", m.Total)
		}
	})

	t.Run("FreeText", func(t *testing.T) {
		m, err := ix.Query(ctx, search.Options{Query: "warpcore"})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if m.Total != 3 {
			t.Errorf("expected 3 matches, got %d", m.Total)
		}
	})

	t.Run("FreeTextDescription", func(t *testing.T) {
		m, err := ix.Query(ctx, search.Options{Query: "deflector"})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if m.Total != 1 || m.Invoices[0].Name() != "enterprise.com/shields" {
			t.Errorf("expected shields, got %+v", m.Invoices)
		}
	})

	t.Run("Strict", func(t *testing.T) {
		m, err := ix.Query(ctx, search.Options{Query: "warpcore", Strict: true})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if m.Total != 0 {
			t.Errorf("strict partial name should not match, got %d", m.Total)
		}

		m, err = ix.Query(ctx, search.Options{Query: "enterprise.com/warpcore", Strict: true})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if m.Total != 3 {
			t.Errorf("expected 3 matches, got %d", m.Total)
		}
	})

	t.Run("VersionConstraint", func(t *testing.T) {
		m, err := ix.Query(ctx, search.Options{Query: "warpcore", Version: "^1.0.0"})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if m.Total != 2 {
			t.Errorf("expected 2 matches for ^1.0.0, got %d", m.Total)
		}

		m, err = ix.Query(ctx, search.Options{Query: "warpcore", Version: "2.0.0"})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if m.Total != 1 {
			t.Errorf("expected 1 match for 2.0.0, got %d", m.Total)
		}
	})

	t.Run("InvalidVersionConstraint", func(t *testing.T) {
		_, err := ix.Query(ctx, search.Options{Version: "not-a-constraint"})
		if !errors.Is(err, core.ErrInvalid) {
			t.Fatalf("expected ErrInvalid, got %v", err)
		}
	})

	t.Run("YankedOptIn", func(t *testing.T) {
		m, err := ix.Query(ctx, search.Options{Query: "coffee"})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if m.Total != 0 {
			t.Errorf("yanked invoice leaked into default results")
		}

		m, err = ix.Query(ctx, search.Options{Query: "coffee", Yanked: true})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if m.Total != 1 {
			t.Errorf("expected yanked invoice with opt-in, got %d", m.Total)
		}
	})
}

func TestQueryOrderingAndPagination(t *testing.T) {
	ix := seedIndex(t)
	ctx := context.Background()

	full, err := ix.Query(ctx, search.Options{Limit: 4})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	// Name ascending, semver descending within a name
	wantOrder := []string{
		"enterprise.com/shields/1.0.0",
		"enterprise.com/warpcore/2.0.0",
		"enterprise.com/warpcore/1.1.0",
		"enterprise.com/warpcore/1.0.0",
	}
	for i, want := range wantOrder {
		if full.Invoices[i].Key() != want {
			t.Errorf("position %d: expected %s, got %s", i, want, full.Invoices[i].Key())
		}
	}

	page1, err := ix.Query(ctx, search.Options{Limit: 2})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	page2, err := ix.Query(ctx, search.Options{Offset: 2, Limit: 2})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if !page1.More {
		t.Error("page 1 should report more matches")
	}
	if page2.More {
		t.Error("page 2 should be the last page")
	}

	var concat []string
	for _, inv := range append(page1.Invoices, page2.Invoices...) {
		concat = append(concat, inv.Key())
	}
	if len(concat) != 4 {
		t.Fatalf("expected 4 invoices across pages, got %d", len(concat))
	}
	for i, want := range wantOrder {
		if concat[i] != want {
			t.Errorf("pages not order-consistent at %d: expected %s, got %s", i, want, concat[i])
		}
	}

	t.Run("OffsetPastEnd", func(t *testing.T) {
		m, err := ix.Query(ctx, search.Options{Offset: 100})
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(m.Invoices) != 0 || m.More {
			t.Errorf("expected empty final page, got %+v", m)
		}
	})
}

func TestQueryLimitCap(t *testing.T) {
	cat, err := catalog.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	defer cat.Close()

	ix := search.New(cat, core.SearchConfig{DefaultLimit: 10, MaxLimit: 25})
	m, err := ix.Query(context.Background(), search.Options{Limit: 200})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if m.Limit != 25 {
		t.Errorf("expected limit capped at 25, got %d", m.Limit)
	}
}
