// Package invoice defines the bindle data model: invoices, parcels, and
// labels, together with their validation rules and the TOML wire codec.
package invoice

import (
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
)

// BindleVersion1 is the only supported bindle format version.
const BindleVersion1 = "1.0.0"

var sha256Pattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Label describes one parcel's content. The sha256 digest is the parcel's
// content address; sha256 and size must match the bytes stored for it.
type Label struct {
	SHA256    string                       `toml:"sha256" cbor:"sha256"`
	MediaType string                       `toml:"mediaType" cbor:"media_type"`
	Name      string                       `toml:"name" cbor:"name"`
	Size      uint64                       `toml:"size" cbor:"size"`
	Feature   map[string]map[string]string `toml:"feature,omitempty" cbor:"feature,omitempty"`
}

// Validate reports whether the label is well formed on its own. It says
// nothing about whether content for the label has been uploaded.
func (l *Label) Validate() error {
	if !sha256Pattern.MatchString(l.SHA256) {
		return fmt.Errorf("label %q: sha256 %q is not a lowercase hex sha-256 digest", l.Name, l.SHA256)
	}
	if l.Name == "" {
		return fmt.Errorf("label %s: name must not be empty", l.SHA256)
	}
	return nil
}

// Condition carries group membership and requirement metadata for a parcel.
type Condition struct {
	MemberOf []string `toml:"memberOf,omitempty" cbor:"member_of,omitempty"`
	Requires []string `toml:"requires,omitempty" cbor:"requires,omitempty"`
}

// Parcel is an invoice's reference to one content-addressed blob.
type Parcel struct {
	Label      Label      `toml:"label" cbor:"label"`
	Conditions *Condition `toml:"conditions,omitempty" cbor:"conditions,omitempty"`
}

// Group names a set of parcels that clients may resolve together. Groups are
// stored and served verbatim; the registry does not evaluate them.
type Group struct {
	Name        string `toml:"name" cbor:"name"`
	Required    bool   `toml:"required,omitempty" cbor:"required,omitempty"`
	SatisfiedBy string `toml:"satisfiedBy,omitempty" cbor:"satisfied_by,omitempty"`
}

// Metadata is the identity block of an invoice.
type Metadata struct {
	Name        string   `toml:"name" cbor:"name"`
	Version     string   `toml:"version" cbor:"version"`
	Description string   `toml:"description,omitempty" cbor:"description,omitempty"`
	Authors     []string `toml:"authors,omitempty" cbor:"authors,omitempty"`
}

// Invoice is a versioned bindle manifest. Its identity is (name, version),
// unique and immutable once created; the yanked flag is the only field that
// may change after creation, and only from false to true.
type Invoice struct {
	BindleVersion string            `toml:"bindleVersion" cbor:"bindle_version"`
	Yanked        bool              `toml:"yanked,omitempty" cbor:"yanked,omitempty"`
	Bindle        Metadata          `toml:"bindle" cbor:"bindle"`
	Annotations   map[string]string `toml:"annotations,omitempty" cbor:"annotations,omitempty"`
	Parcels       []Parcel          `toml:"parcel,omitempty" cbor:"parcel,omitempty"`
	Groups        []Group           `toml:"group,omitempty" cbor:"group,omitempty"`
}

func (inv *Invoice) Name() string    { return inv.Bindle.Name }
func (inv *Invoice) Version() string { return inv.Bindle.Version }

// Key returns the invoice's canonical identity key.
func (inv *Invoice) Key() string {
	return inv.Bindle.Name + "/" + inv.Bindle.Version
}

// SemVer returns the parsed version. Valid only after Validate has passed.
func (inv *Invoice) SemVer() (*semver.Version, error) {
	return semver.StrictNewVersion(inv.Bindle.Version)
}

// Validate checks invoice shape: format version, identity, and every
// referenced label. It does not consult storage.
func (inv *Invoice) Validate() error {
	if inv.BindleVersion != BindleVersion1 {
		return fmt.Errorf("unsupported bindle version %q", inv.BindleVersion)
	}
	if inv.Bindle.Name == "" {
		return fmt.Errorf("bindle name must not be empty")
	}
	if inv.Bindle.Version == "" {
		return fmt.Errorf("bindle version must not be empty")
	}
	if _, err := semver.StrictNewVersion(inv.Bindle.Version); err != nil {
		return fmt.Errorf("bindle version %q is not a semantic version: %v", inv.Bindle.Version, err)
	}
	for i := range inv.Parcels {
		if err := inv.Parcels[i].Label.Validate(); err != nil {
			return fmt.Errorf("parcel %d: %v", i, err)
		}
	}
	for i, g := range inv.Groups {
		if g.Name == "" {
			return fmt.Errorf("group %d: name must not be empty", i)
		}
	}
	return nil
}

// CreateResponse is the result of publishing an invoice. Missing is nil when
// every referenced parcel already has content; a non-nil Missing lists
// exactly the labels whose content has not yet been uploaded. The nil/non-nil
// distinction is the complete vs accepted-but-incomplete outcome.
type CreateResponse struct {
	Invoice Invoice `toml:"invoice"`
	Missing []Label `toml:"missing,omitempty"`
}
