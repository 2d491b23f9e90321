// Package parcelstore stores parcel content addressed by sha256. Writes are
// verified against the declared label while streaming and published
// atomically, so readers never observe partial or mismatched content.
package parcelstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bindlekit/bindle/pkg/catalog"
	"github.com/bindlekit/bindle/pkg/core"
	"github.com/bindlekit/bindle/pkg/invoice"
	"github.com/bindlekit/bindle/pkg/transform"
)

// Store is the content-addressable parcel storage interface.
type Store interface {
	// Put verifies the stream against label.SHA256 and label.Size and commits
	// it. A digest or size mismatch fails with core.ErrIntegrity and leaves
	// nothing visible. Re-uploading an existing digest is a no-op success.
	Put(ctx context.Context, label invoice.Label, r io.Reader) error

	// Get returns the parcel content and its stored label.
	Get(ctx context.Context, sha string) (io.ReadCloser, invoice.Label, error)

	// Exists reports whether content for the digest has been committed.
	Exists(ctx context.Context, sha string) (bool, error)
}

type store struct {
	cfg       core.ParcelConfig
	catalog   catalog.Catalog
	transform transform.Transform

	locks *core.KeyedMutex
}

// New opens a parcel store rooted at cfg.Dir. The catalog records which
// digests have been committed; a digest is visible to Exists only after its
// content file is fully published.
func New(cfg core.ParcelConfig, cat catalog.Catalog, tr transform.Transform) (Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("%w: parcel directory not specified", core.ErrInvalid)
	}
	if err := os.MkdirAll(stagingDir(cfg.Dir), 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create parcel directory: %v", core.ErrStorage, err)
	}

	return &store{
		cfg:       cfg,
		catalog:   cat,
		transform: tr,
		locks:     core.NewKeyedMutex(),
	}, nil
}

func stagingDir(dir string) string {
	return filepath.Join(dir, "staging")
}

func (s *store) Put(ctx context.Context, label invoice.Label, r io.Reader) error {
	if err := label.Validate(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalid, err)
	}
	if s.cfg.MaxParcelBytes > 0 && label.Size > s.cfg.MaxParcelBytes {
		return fmt.Errorf("%w: declared size %d exceeds maximum parcel size %d", core.ErrInvalid, label.Size, s.cfg.MaxParcelBytes)
	}

	s.locks.Lock(label.SHA256)
	defer s.locks.Unlock(label.SHA256)

	// Dedup: an already committed digest is the same content-addressed
	// object, so the upload succeeds without touching storage.
	if _, ok, err := s.catalog.GetParcelLabel(ctx, label.SHA256); err != nil {
		return err
	} else if ok {
		return nil
	}

	if err := s.writeVerified(ctx, label, r); err != nil {
		return err
	}

	// Commit point: Exists consults the catalog, so the record goes in only
	// after the content file is fully published.
	return s.catalog.PutParcelLabel(nil, label)
}

// writeVerified streams content into a staging file while hashing, then
// renames it into place. The rename happens only after digest and size have
// been confirmed against the label.
func (s *store) writeVerified(ctx context.Context, label invoice.Label, r io.Reader) (err error) {
	tmp, err := os.CreateTemp(stagingDir(s.cfg.Dir), "put-*")
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStorage, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	enc, err := s.transform.Encode(tmp)
	if err != nil {
		return err
	}

	h := sha256.New()
	// Reading one byte past the declared size turns an oversized stream into
	// a size mismatch instead of silently truncating it.
	n, err := io.Copy(enc, io.TeeReader(io.LimitReader(r, int64(label.Size)+1), h))
	if err != nil {
		return fmt.Errorf("%w: reading parcel content: %v", core.ErrStorage, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStorage, err)
	}

	if uint64(n) != label.Size {
		return fmt.Errorf("%w: label %s declares %d bytes, received %d", core.ErrIntegrity, label.SHA256, label.Size, n)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != label.SHA256 {
		return fmt.Errorf("%w: content digest %s does not match declared sha256 %s", core.ErrIntegrity, got, label.SHA256)
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStorage, err)
	}
	if err := os.Rename(tmpName, s.parcelPath(label.SHA256)); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStorage, err)
	}
	committed = true
	return nil
}

func (s *store) Get(ctx context.Context, sha string) (io.ReadCloser, invoice.Label, error) {
	label, ok, err := s.catalog.GetParcelLabel(ctx, sha)
	if err != nil {
		return nil, invoice.Label{}, err
	}
	if !ok {
		return nil, invoice.Label{}, fmt.Errorf("%w: parcel %s", core.ErrNotFound, sha)
	}

	f, err := os.Open(s.parcelPath(sha))
	if err != nil {
		return nil, invoice.Label{}, fmt.Errorf("%w: parcel %s content unavailable: %v", core.ErrStorage, sha, err)
	}

	plain, err := s.transform.Decode(f)
	if err != nil {
		f.Close()
		return nil, invoice.Label{}, err
	}

	return &parcelReader{plain: plain, file: f}, label, nil
}

func (s *store) Exists(ctx context.Context, sha string) (bool, error) {
	_, ok, err := s.catalog.GetParcelLabel(ctx, sha)
	return ok, err
}

func (s *store) parcelPath(sha string) string {
	return filepath.Join(s.cfg.Dir, sha+".dat")
}

type parcelReader struct {
	plain io.ReadCloser
	file  *os.File
}

func (r *parcelReader) Read(p []byte) (int, error) {
	return r.plain.Read(p)
}

func (r *parcelReader) Close() error {
	err := r.plain.Close()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}
