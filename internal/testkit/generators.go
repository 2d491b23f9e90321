package testkit

import (
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"time"

	"github.com/bindlekit/bindle/pkg/invoice"
)

// RNG provides a deterministic random number generator.
// If seed is 0, it uses the current time.
func RNG(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// RandomBytes generates a slice of random bytes of the given length.
func RandomBytes(r *rand.Rand, length int) []byte {
	b := make([]byte, length)
	for i := range b {
		b[i] = byte(r.Intn(256))
	}
	return b
}

// CompressibleBytes generates a slice of highly compressible bytes of the given length.
func CompressibleBytes(r *rand.Rand, length int) []byte {
	b := make([]byte, length)
	pattern := []byte("highly compressible repeating pattern ")
	pLen := len(pattern)
	for i := 0; i < length; i++ {
		b[i] = pattern[i%pLen]
	}

	// Sprinkle a tiny bit of randomness to avoid being 100% uniform if desired
	for i := 0; i < length/1024; i++ {
		b[r.Intn(length)] = byte(r.Intn(256))
	}

	return b
}

// ParcelFixture is a parcel body together with the label that describes it.
type ParcelFixture struct {
	Label   invoice.Label
	Content []byte
}

// NewParcel builds a fixture whose label digest and size match its content.
func NewParcel(name, mediaType string, content []byte) ParcelFixture {
	sum := sha256.Sum256(content)
	return ParcelFixture{
		Label: invoice.Label{
			SHA256:    hex.EncodeToString(sum[:]),
			MediaType: mediaType,
			Name:      name,
			Size:      uint64(len(content)),
		},
		Content: content,
	}
}

// RandomParcel builds a fixture with random content of the given length.
func RandomParcel(r *rand.Rand, name string, length int) ParcelFixture {
	return NewParcel(name, "application/octet-stream", RandomBytes(r, length))
}

// NewInvoice builds a minimal valid invoice referencing the given labels.
func NewInvoice(name, version string, labels ...invoice.Label) *invoice.Invoice {
	inv := &invoice.Invoice{
		BindleVersion: invoice.BindleVersion1,
		Bindle: invoice.Metadata{
			Name:    name,
			Version: version,
		},
	}
	for _, l := range labels {
		inv.Parcels = append(inv.Parcels, invoice.Parcel{Label: l})
	}
	return inv
}
