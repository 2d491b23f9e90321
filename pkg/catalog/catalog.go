// Package catalog is the embedded index over invoices and stored parcel
// labels, backed by Pebble. Invoice and label records are canonical CBOR.
package catalog

import (
	"context"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/fxamacker/cbor/v2"

	"github.com/bindlekit/bindle/pkg/core"
	"github.com/bindlekit/bindle/pkg/invoice"
)

var (
	PrefixInvoice = []byte("inv:")
	PrefixParcel  = []byte("pl:")
)

// keySep separates name from version inside an invoice key. Bindle names may
// contain '/', so a NUL byte keeps the encoding unambiguous and preserves
// name-then-version iteration order.
const keySep = "\x00"

// Catalog defines the interface for the embedded KV store.
type Catalog interface {
	GetInvoice(ctx context.Context, name, version string) (*invoice.Invoice, bool, error)
	PutInvoice(batch *pebble.Batch, inv *invoice.Invoice) error

	GetParcelLabel(ctx context.Context, sha string) (invoice.Label, bool, error)
	PutParcelLabel(batch *pebble.Batch, label invoice.Label) error

	// IterateInvoices visits every stored invoice in key order (name, then
	// version, byte-wise). The callback owns the decoded invoice.
	IterateInvoices(ctx context.Context, fn func(inv *invoice.Invoice) error) error

	NewBatch() *pebble.Batch
	Close() error
}

type pebbleCatalog struct {
	db  *pebble.DB
	enc cbor.EncMode
}

// Open opens a Pebble-based catalog in the specified directory.
func Open(dir string) (Catalog, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open pebble db: %v", core.ErrStorage, err)
	}
	// Canonical CBOR (Core Deterministic Encoding Requirements)
	em, _ := cbor.CanonicalEncOptions().EncMode()
	return &pebbleCatalog{db: db, enc: em}, nil
}

func (c *pebbleCatalog) Close() error {
	return c.db.Close()
}

func (c *pebbleCatalog) NewBatch() *pebble.Batch {
	return c.db.NewBatch()
}

func (c *pebbleCatalog) GetInvoice(ctx context.Context, name, version string) (*invoice.Invoice, bool, error) {
	val, closer, err := c.db.Get(invoiceKey(name, version))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", core.ErrStorage, err)
	}
	defer closer.Close()

	var inv invoice.Invoice
	if err := cbor.Unmarshal(val, &inv); err != nil {
		return nil, false, fmt.Errorf("%w: corrupt invoice record for %s/%s: %v", core.ErrStorage, name, version, err)
	}
	return &inv, true, nil
}

func (c *pebbleCatalog) PutInvoice(batch *pebble.Batch, inv *invoice.Invoice) error {
	val, err := c.enc.Marshal(inv)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalid, err)
	}
	key := invoiceKey(inv.Name(), inv.Version())

	if batch != nil {
		return batch.Set(key, val, nil)
	}
	return c.db.Set(key, val, pebble.Sync)
}

func (c *pebbleCatalog) GetParcelLabel(ctx context.Context, sha string) (invoice.Label, bool, error) {
	val, closer, err := c.db.Get(parcelKey(sha))
	if err != nil {
		if err == pebble.ErrNotFound {
			return invoice.Label{}, false, nil
		}
		return invoice.Label{}, false, fmt.Errorf("%w: %v", core.ErrStorage, err)
	}
	defer closer.Close()

	var label invoice.Label
	if err := cbor.Unmarshal(val, &label); err != nil {
		return invoice.Label{}, false, fmt.Errorf("%w: corrupt label record for %s: %v", core.ErrStorage, sha, err)
	}
	return label, true, nil
}

func (c *pebbleCatalog) PutParcelLabel(batch *pebble.Batch, label invoice.Label) error {
	val, err := c.enc.Marshal(&label)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalid, err)
	}
	key := parcelKey(label.SHA256)

	if batch != nil {
		return batch.Set(key, val, nil)
	}
	return c.db.Set(key, val, pebble.Sync)
}

func (c *pebbleCatalog) IterateInvoices(ctx context.Context, fn func(inv *invoice.Invoice) error) error {
	iter, err := c.db.NewIter(&pebble.IterOptions{
		LowerBound: PrefixInvoice,
		UpperBound: incrementByte(PrefixInvoice),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStorage, err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var inv invoice.Invoice
		if err := cbor.Unmarshal(iter.Value(), &inv); err != nil {
			return fmt.Errorf("%w: corrupt invoice record at %q: %v", core.ErrStorage, iter.Key(), err)
		}
		if err := fn(&inv); err != nil {
			return err
		}
	}
	return iter.Error()
}

func invoiceKey(name, version string) []byte {
	k := make([]byte, 0, len(PrefixInvoice)+len(name)+len(keySep)+len(version))
	k = append(k, PrefixInvoice...)
	k = append(k, name...)
	k = append(k, keySep...)
	k = append(k, version...)
	return k
}

func parcelKey(sha string) []byte {
	return append(append([]byte{}, PrefixParcel...), sha...)
}

func incrementByte(b []byte) []byte {
	res := make([]byte, len(b))
	copy(res, b)
	for i := len(res) - 1; i >= 0; i-- {
		res[i]++
		if res[i] != 0 {
			return res
		}
	}
	return nil
}
