package invoice

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/bindlekit/bindle/pkg/core"
)

// Codec encodes and decodes invoices on the TOML wire format, validating in
// both directions so a malformed invoice never crosses the boundary.
type Codec interface {
	Encode(inv *Invoice) ([]byte, error)
	Decode(b []byte) (*Invoice, error)
}

type codec struct {
	limits core.LimitsConfig
}

// NewCodec returns a Codec enforcing the given limits.
func NewCodec(limits core.LimitsConfig) Codec {
	return &codec{limits: limits}
}

func (c *codec) Encode(inv *Invoice) ([]byte, error) {
	if err := c.validate(inv); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalid, err)
	}
	b, err := toml.Marshal(inv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalid, err)
	}
	return b, nil
}

func (c *codec) Decode(b []byte) (*Invoice, error) {
	var inv Invoice
	md, err := toml.Decode(string(b), &inv)
	if err != nil {
		return nil, fmt.Errorf("%w: invoice is not valid TOML: %v", core.ErrInvalid, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown invoice fields: %s", core.ErrInvalid, strings.Join(keys, ", "))
	}
	if err := c.validate(&inv); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalid, err)
	}
	return &inv, nil
}

func (c *codec) validate(inv *Invoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}

	if n := len(inv.Parcels); c.limits.MaxParcelsPerInvoice > 0 && n > c.limits.MaxParcelsPerInvoice {
		return fmt.Errorf("too many parcels: %d > %d", n, c.limits.MaxParcelsPerInvoice)
	}
	if n := len(inv.Annotations); c.limits.MaxAnnotations > 0 && n > c.limits.MaxAnnotations {
		return fmt.Errorf("too many annotations: %d > %d", n, c.limits.MaxAnnotations)
	}
	for i := range inv.Parcels {
		l := &inv.Parcels[i].Label
		if c.limits.MaxMediaTypeLen > 0 && len(l.MediaType) > c.limits.MaxMediaTypeLen {
			return fmt.Errorf("parcel %d: media type too long: %d > %d", i, len(l.MediaType), c.limits.MaxMediaTypeLen)
		}
		if c.limits.MaxFeatureSets > 0 && len(l.Feature) > c.limits.MaxFeatureSets {
			return fmt.Errorf("parcel %d: too many feature sets: %d > %d", i, len(l.Feature), c.limits.MaxFeatureSets)
		}
	}
	return nil
}
