package transform

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/bindlekit/bindle/pkg/core"
)

const (
	Magic   = "BNDL"
	Version = 1
)

const (
	FlagCompressed = 1 << 0
)

const (
	AlgZstd = 1
)

// Transform encodes and decodes parcel payloads for at-rest storage. Every
// stored payload starts with a fixed envelope header so the reader can tell
// how the bytes were transformed.
type Transform interface {
	Name() string

	// Encode returns a writer that transforms plain bytes into dst. The
	// returned writer must be closed to flush; closing it does not close dst.
	Encode(dst io.Writer) (io.WriteCloser, error)

	// Decode returns a reader yielding plain bytes from a stored payload.
	Decode(src io.Reader) (io.ReadCloser, error)
}

func writeEnvelope(dst io.Writer, flags, alg byte) error {
	hdr := make([]byte, 0, 7)
	hdr = append(hdr, Magic...)
	hdr = append(hdr, Version, flags, alg)
	_, err := dst.Write(hdr)
	return err
}

func readEnvelope(src io.Reader) (flags, alg byte, err error) {
	hdr := make([]byte, 7)
	if _, err := io.ReadFull(src, hdr); err != nil {
		return 0, 0, fmt.Errorf("%w: payload too small for envelope", core.ErrStorage)
	}
	if string(hdr[:4]) != Magic {
		return 0, 0, fmt.Errorf("%w: invalid envelope magic", core.ErrStorage)
	}
	if hdr[4] != Version {
		return 0, 0, fmt.Errorf("%w: unsupported envelope version %d", core.ErrStorage, hdr[4])
	}
	return hdr[5], hdr[6], nil
}

// None stores payloads verbatim after the envelope.
type noneTransform struct{}

func NewNone() Transform {
	return &noneTransform{}
}

func (t *noneTransform) Name() string { return "none" }

func (t *noneTransform) Encode(dst io.Writer) (io.WriteCloser, error) {
	if err := writeEnvelope(dst, 0, 0); err != nil {
		return nil, err
	}
	return &nopWriteCloser{dst}, nil
}

func (t *noneTransform) Decode(src io.Reader) (io.ReadCloser, error) {
	return decode(src)
}

type nopWriteCloser struct {
	io.Writer
}

func (w *nopWriteCloser) Close() error { return nil }

// Zstd compresses payloads with zstd.
type zstdTransform struct {
	level zstd.EncoderLevel
}

func NewZstd(level int) Transform {
	return &zstdTransform{level: zstd.EncoderLevel(level)}
}

func (t *zstdTransform) Name() string { return "zstd" }

func (t *zstdTransform) Encode(dst io.Writer) (io.WriteCloser, error) {
	if err := writeEnvelope(dst, FlagCompressed, AlgZstd); err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(t.level))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStorage, err)
	}
	return enc, nil
}

func (t *zstdTransform) Decode(src io.Reader) (io.ReadCloser, error) {
	return decode(src)
}

// decode is shared: any transform can read any valid envelope, so a store
// reopened with a different transform setting still serves old payloads.
func decode(src io.Reader) (io.ReadCloser, error) {
	flags, alg, err := readEnvelope(src)
	if err != nil {
		return nil, err
	}

	if flags&FlagCompressed != 0 {
		if alg != AlgZstd {
			return nil, fmt.Errorf("%w: unsupported compression algorithm %d", core.ErrStorage, alg)
		}
		dec, err := zstd.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrStorage, err)
		}
		return &zstdReadCloser{dec}, nil
	}

	return io.NopCloser(src), nil
}

type zstdReadCloser struct {
	dec *zstd.Decoder
}

func (r *zstdReadCloser) Read(p []byte) (int, error) { return r.dec.Read(p) }

func (r *zstdReadCloser) Close() error {
	r.dec.Close()
	return nil
}
