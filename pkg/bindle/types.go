package bindle

import (
	"context"
	"io"

	"github.com/bindlekit/bindle/pkg/invoice"
	"github.com/bindlekit/bindle/pkg/search"
)

// Alias model types so callers can work against this package alone.
type Invoice = invoice.Invoice
type Label = invoice.Label
type Parcel = invoice.Parcel
type CreateResponse = invoice.CreateResponse

// Registry is the primary interface for a bindle registry.
type Registry interface {
	// CreateInvoice records a new invoice and reports which referenced
	// parcels still need their content uploaded. A nil Missing in the
	// response means the bindle is complete.
	CreateInvoice(ctx context.Context, inv *Invoice) (CreateResponse, error)

	// GetInvoice returns the invoice regardless of yank state; yank
	// filtering is caller policy.
	GetInvoice(ctx context.Context, name, version string) (*Invoice, error)

	// YankInvoice irreversibly marks the invoice as yanked. Idempotent.
	YankInvoice(ctx context.Context, name, version string) error

	PutParcel(ctx context.Context, label Label, r io.Reader) error
	GetParcel(ctx context.Context, sha string) (io.ReadCloser, Label, error)
	ParcelExists(ctx context.Context, sha string) (bool, error)

	Query(ctx context.Context, opts search.Options) (search.Matches, error)

	Close() error
}
