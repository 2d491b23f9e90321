// Package bindle composes the invoice store, parcel store and search index
// into a registry, and implements the two-phase publish workflow: the
// invoice is recorded first, parcel content is uploaded afterwards.
package bindle

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync/atomic"

	"github.com/bindlekit/bindle/pkg/catalog"
	"github.com/bindlekit/bindle/pkg/core"
	"github.com/bindlekit/bindle/pkg/parcelstore"
	"github.com/bindlekit/bindle/pkg/search"
	"github.com/bindlekit/bindle/pkg/transform"
)

type registry struct {
	cfg Config

	catalog catalog.Catalog
	parcels parcelstore.Store
	index   *search.Index

	// invoiceLocks serializes create/yank per (name, version) key. Unrelated
	// invoices are created fully in parallel.
	invoiceLocks *core.KeyedMutex

	closed atomic.Bool
}

// Open initializes and opens a bindle registry.
func Open(ctx context.Context, cfg Config) (Registry, error) {
	// Defaults for directory layout
	if cfg.Parcel.Dir == "" {
		cfg.Parcel.Dir = filepath.Join(cfg.Dir, "parcels")
	}
	if cfg.Catalog.Dir == "" {
		cfg.Catalog.Dir = filepath.Join(cfg.Dir, "catalog")
	}

	cat, err := catalog.Open(cfg.Catalog.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	var tr transform.Transform
	switch cfg.Transform.Name {
	case "zstd":
		tr = transform.NewZstd(cfg.Transform.ZstdLevel)
	case "none", "":
		tr = transform.NewNone()
	default:
		cat.Close()
		return nil, fmt.Errorf("%w: unsupported transform: %s", core.ErrInvalid, cfg.Transform.Name)
	}

	ps, err := parcelstore.New(cfg.Parcel, cat, tr)
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("failed to open parcel store: %w", err)
	}

	return &registry{
		cfg:          cfg,
		catalog:      cat,
		parcels:      ps,
		index:        search.New(cat, cfg.Search),
		invoiceLocks: core.NewKeyedMutex(),
	}, nil
}

func (r *registry) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.catalog.Close()
}

func (r *registry) CreateInvoice(ctx context.Context, inv *Invoice) (CreateResponse, error) {
	if r.closed.Load() {
		return CreateResponse{}, ErrClosed
	}
	if err := inv.Validate(); err != nil {
		return CreateResponse{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if inv.Yanked {
		return CreateResponse{}, fmt.Errorf("%w: an invoice cannot be created in yanked state", ErrInvalid)
	}

	if err := r.create(ctx, inv); err != nil {
		return CreateResponse{}, err
	}

	// The invoice exists from here on. A failure computing the missing set
	// does not roll it back; the caller can re-fetch and probe ParcelExists.
	missing, err := r.missingParcels(ctx, inv)
	if err != nil {
		return CreateResponse{}, err
	}

	return CreateResponse{Invoice: *inv, Missing: missing}, nil
}

// create performs the atomic check-and-create under the invoice's key lock.
// Of two concurrent creates for the same key, exactly one wins.
func (r *registry) create(ctx context.Context, inv *Invoice) error {
	key := inv.Key()
	r.invoiceLocks.Lock(key)
	defer r.invoiceLocks.Unlock(key)

	_, exists, err := r.catalog.GetInvoice(ctx, inv.Name(), inv.Version())
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: invoice %s", ErrConflict, key)
	}

	return r.catalog.PutInvoice(nil, inv)
}

// missingParcels returns the labels referenced by the invoice whose content
// has not been uploaded, nil when the bindle is complete. Duplicate digest
// references are reported once.
func (r *registry) missingParcels(ctx context.Context, inv *Invoice) ([]Label, error) {
	var missing []Label
	seen := make(map[string]struct{}, len(inv.Parcels))

	for i := range inv.Parcels {
		label := inv.Parcels[i].Label
		if _, ok := seen[label.SHA256]; ok {
			continue
		}
		seen[label.SHA256] = struct{}{}

		exists, err := r.parcels.Exists(ctx, label.SHA256)
		if err != nil {
			return nil, err
		}
		if !exists {
			missing = append(missing, label)
		}
	}
	return missing, nil
}

func (r *registry) GetInvoice(ctx context.Context, name, version string) (*Invoice, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}

	inv, ok, err := r.catalog.GetInvoice(ctx, name, version)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: invoice %s/%s", ErrNotFound, name, version)
	}
	return inv, nil
}

func (r *registry) YankInvoice(ctx context.Context, name, version string) error {
	if r.closed.Load() {
		return ErrClosed
	}

	key := name + "/" + version
	r.invoiceLocks.Lock(key)
	defer r.invoiceLocks.Unlock(key)

	inv, ok, err := r.catalog.GetInvoice(ctx, name, version)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: invoice %s", ErrNotFound, key)
	}
	if inv.Yanked {
		return nil
	}

	inv.Yanked = true
	return r.catalog.PutInvoice(nil, inv)
}

func (r *registry) PutParcel(ctx context.Context, label Label, rd io.Reader) error {
	if r.closed.Load() {
		return ErrClosed
	}
	return r.parcels.Put(ctx, label, rd)
}

func (r *registry) GetParcel(ctx context.Context, sha string) (io.ReadCloser, Label, error) {
	if r.closed.Load() {
		return nil, Label{}, ErrClosed
	}
	return r.parcels.Get(ctx, sha)
}

func (r *registry) ParcelExists(ctx context.Context, sha string) (bool, error) {
	if r.closed.Load() {
		return false, ErrClosed
	}
	return r.parcels.Exists(ctx, sha)
}

func (r *registry) Query(ctx context.Context, opts search.Options) (search.Matches, error) {
	if r.closed.Load() {
		return search.Matches{}, ErrClosed
	}
	return r.index.Query(ctx, opts)
}
