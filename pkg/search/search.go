// Package search implements the query layer over stored invoices.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/bindlekit/bindle/pkg/catalog"
	"github.com/bindlekit/bindle/pkg/core"
	"github.com/bindlekit/bindle/pkg/invoice"
)

// Options control a query. The zero value means: match everything,
// non-strict, yanked excluded, default pagination.
type Options struct {
	// Query is a free-text filter against bindle name and description. When
	// Strict is set it must equal the bindle name exactly.
	Query string

	// Version filters matching names by a semantic version constraint, e.g.
	// "1.0.0", "^1.2" or ">=1.0.0 <2.0.0".
	Version string

	Offset uint64
	Limit  uint8
	Strict bool

	// Yanked includes yanked invoices in the results.
	Yanked bool
}

// Matches is one page of query results. Invoices are ordered by name
// ascending, then version descending (newest release first), so repeated
// identical queries page consistently.
type Matches struct {
	Query  string `toml:"query"`
	Strict bool   `toml:"strict"`
	Offset uint64 `toml:"offset"`
	Limit  uint8  `toml:"limit"`
	Total  uint64 `toml:"total"`
	More   bool   `toml:"more"`
	Yanked bool   `toml:"yanked"`

	Invoices []invoice.Invoice `toml:"invoices"`
}

// Index answers queries by scanning the catalog's committed invoice records.
type Index struct {
	catalog catalog.Catalog
	cfg     core.SearchConfig
}

func New(cat catalog.Catalog, cfg core.SearchConfig) *Index {
	if cfg.DefaultLimit == 0 {
		cfg.DefaultLimit = 50
	}
	if cfg.MaxLimit == 0 {
		cfg.MaxLimit = 100
	}
	return &Index{catalog: cat, cfg: cfg}
}

func (ix *Index) Query(ctx context.Context, opts Options) (Matches, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = ix.cfg.DefaultLimit
	}
	if limit > ix.cfg.MaxLimit {
		limit = ix.cfg.MaxLimit
	}

	var constraint *semver.Constraints
	if opts.Version != "" {
		c, err := semver.NewConstraint(opts.Version)
		if err != nil {
			return Matches{}, fmt.Errorf("%w: version constraint %q: %v", core.ErrInvalid, opts.Version, err)
		}
		constraint = c
	}

	var all []invoice.Invoice
	err := ix.catalog.IterateInvoices(ctx, func(inv *invoice.Invoice) error {
		if ix.matches(inv, opts, constraint) {
			all = append(all, *inv)
		}
		return nil
	})
	if err != nil {
		return Matches{}, err
	}

	sortInvoices(all)

	total := uint64(len(all))
	page := paginate(all, opts.Offset, uint64(limit))

	return Matches{
		Query:    opts.Query,
		Strict:   opts.Strict,
		Offset:   opts.Offset,
		Limit:    limit,
		Total:    total,
		More:     opts.Offset+uint64(len(page)) < total,
		Yanked:   opts.Yanked,
		Invoices: page,
	}, nil
}

func (ix *Index) matches(inv *invoice.Invoice, opts Options, constraint *semver.Constraints) bool {
	if inv.Yanked && !opts.Yanked {
		return false
	}

	if opts.Query != "" {
		if opts.Strict {
			if inv.Name() != opts.Query {
				return false
			}
		} else {
			q := strings.ToLower(opts.Query)
			if !strings.Contains(strings.ToLower(inv.Name()), q) &&
				!strings.Contains(strings.ToLower(inv.Bindle.Description), q) {
				return false
			}
		}
	}

	if constraint != nil {
		v, err := inv.SemVer()
		if err != nil {
			return false
		}
		if !constraint.Check(v) {
			return false
		}
	}

	return true
}

func sortInvoices(invs []invoice.Invoice) {
	sort.SliceStable(invs, func(i, j int) bool {
		if invs[i].Name() != invs[j].Name() {
			return invs[i].Name() < invs[j].Name()
		}
		vi, ierr := invs[i].SemVer()
		vj, jerr := invs[j].SemVer()
		if ierr != nil || jerr != nil {
			return invs[i].Version() > invs[j].Version()
		}
		return vi.GreaterThan(vj)
	})
}

func paginate(invs []invoice.Invoice, offset, limit uint64) []invoice.Invoice {
	if offset >= uint64(len(invs)) {
		return nil
	}
	end := offset + limit
	if end > uint64(len(invs)) {
		end = uint64(len(invs))
	}
	return invs[offset:end]
}
