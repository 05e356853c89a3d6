// Package pack implements the signed, versioned pack document: the metadata
// record for one score, stored as a single DAG-CBOR block.
package pack

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"

	"packsync-go/internal/dag"
	"packsync-go/internal/keys"
	"packsync-go/internal/packsync"
)

// Format tag pair. Documents with any other pair are rejected.
const (
	FormatName    = "scorepack"
	FormatVersion = 1
)

// isoLayout is the normalized timestamp form: UTC with millisecond precision.
const isoLayout = "2006-01-02T15:04:05.000Z"

var (
	ErrInvalidFormat = errors.New("invalid pack format")
	ErrNoSignature   = errors.New("pack is not signed")
	ErrCIDMismatch   = errors.New("block does not match requested cid")
)

// Signature is the uploader's signature over the canonical bytes.
type Signature struct {
	PublicKey []byte `cbor:"publicKey"`
	Signature []byte `cbor:"signature"`
}

// Source describes where the score was obtained.
type Source struct {
	Name        string   `cbor:"name,omitempty"`
	Description string   `cbor:"description,omitempty"`
	URL         string   `cbor:"url,omitempty"`
	ID          int64    `cbor:"id,omitempty"`
	User        *UserRef `cbor:"user,omitempty"`
}

// Pack is a pack document. Build one with New or read one with Unmarshal;
// only Sign modifies it afterwards.
type Pack struct {
	Format    string     `cbor:"_fmt"`
	Version   int        `cbor:"_ver"`
	Signature *Signature `cbor:"_sig,omitempty"`

	// Previous is the base58btc CID of the preceding revision.
	Previous string `cbor:"_prev,omitempty"`

	Content     dag.Link  `cbor:"score"`
	Title       string    `cbor:"title"`
	Description string    `cbor:"description,omitempty"`
	Summary     string    `cbor:"summary,omitempty"`
	Copyright   string    `cbor:"copyright,omitempty"`
	Tags        []string  `cbor:"tags,omitempty"`
	Sources     []Source  `cbor:"source,omitempty"`
	Thumbnail   *dag.Link `cbor:"thumbnail,omitempty"`

	Created string `cbor:"created,omitempty"`
	Updated string `cbor:"updated"`
}

// Info holds the caller-supplied fields of a pack.
type Info struct {
	Previous    string // CID string of the preceding revision, if any
	Content     cid.Cid
	Title       string
	Description string
	Summary     string
	Copyright   string
	Tags        []string
	Sources     []Source
	Thumbnail   cid.Cid
	Created     string // ISO-8601, optional
	Updated     string // ISO-8601
}

// New builds a pack from info, validating and normalizing every field.
func New(info Info) (*Pack, error) {
	p := &Pack{
		Format:      FormatName,
		Version:     FormatVersion,
		Previous:    info.Previous,
		Content:     dag.NewLink(info.Content),
		Title:       info.Title,
		Description: info.Description,
		Summary:     info.Summary,
		Copyright:   info.Copyright,
		Tags:        info.Tags,
		Sources:     info.Sources,
		Created:     info.Created,
		Updated:     info.Updated,
	}
	if info.Thumbnail.Defined() {
		thumb := dag.NewLink(info.Thumbnail)
		p.Thumbnail = &thumb
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Info returns the caller-supplied fields of p.
func (p *Pack) Info() Info {
	info := Info{
		Previous:    p.Previous,
		Content:     p.Content.Cid,
		Title:       p.Title,
		Description: p.Description,
		Summary:     p.Summary,
		Copyright:   p.Copyright,
		Tags:        p.Tags,
		Sources:     p.Sources,
		Created:     p.Created,
		Updated:     p.Updated,
	}
	if p.Thumbnail != nil {
		info.Thumbnail = p.Thumbnail.Cid
	}
	return info
}

// validate checks the construction invariants and normalizes dates and the
// previous-revision reference in place.
func (p *Pack) validate() error {
	if p.Title == "" {
		return &ConstructionError{Field: "title", Err: ErrMissingTitle}
	}
	if !p.Content.Defined() {
		return &ConstructionError{Field: "score", Err: ErrMissingContent}
	}

	updated, err := normalizeDate(p.Updated)
	if err != nil {
		return &ConstructionError{Field: "updated", Err: err}
	}
	p.Updated = updated

	if p.Created != "" {
		created, err := normalizeDate(p.Created)
		if err != nil {
			return &ConstructionError{Field: "created", Err: err}
		}
		p.Created = created
	}

	if p.Previous != "" {
		prev, err := normalizePrevious(p.Previous)
		if err != nil {
			return &ConstructionError{Field: "_prev", Err: err}
		}
		p.Previous = prev
	}
	return nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func normalizeDate(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(isoLayout), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func normalizePrevious(s string) (string, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPrevious, err)
	}
	if c.Prefix().Codec != cid.DagCBOR {
		return "", fmt.Errorf("%w: %s is not dag-cbor", ErrInvalidPrevious, s)
	}
	prev, err := c.StringOfBase(multibase.Base58BTC)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPrevious, err)
	}
	return prev, nil
}

// UpdatedTime returns the parsed update time.
func (p *Pack) UpdatedTime() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, p.Updated)
}

// PreviousCID returns the CID of the preceding revision, or cid.Undef.
func (p *Pack) PreviousCID() (cid.Cid, error) {
	if p.Previous == "" {
		return cid.Undef, nil
	}
	return cid.Decode(p.Previous)
}

// Marshal returns the DAG-CBOR encoding of p. Unset optional fields are omitted.
func (p *Pack) Marshal() ([]byte, error) {
	data, err := dag.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding pack: %w", err)
	}
	return data, nil
}

// CanonicalBytes returns the encoding of p with the signature cleared: the
// exact bytes that are signed and verified.
func (p *Pack) CanonicalBytes() ([]byte, error) {
	unsigned := *p
	unsigned.Signature = nil
	return unsigned.Marshal()
}

// CID returns the content identifier of the marshaled pack.
func (p *Pack) CID() (cid.Cid, error) {
	data, err := p.Marshal()
	if err != nil {
		return cid.Undef, err
	}
	return dag.Sum(cid.DagCBOR, data)
}

// Sign signs the canonical bytes with id and stores the signature on p,
// replacing any previous signature.
func (p *Pack) Sign(ctx context.Context, id packsync.Identity) (*Signature, error) {
	p.Signature = nil

	data, err := p.Marshal()
	if err != nil {
		return nil, err
	}
	sig, err := id.Sign(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("signing pack: %w", err)
	}
	pub, err := id.PublicKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting signer public key: %w", err)
	}
	pubBytes, err := keys.MarshalPublicKey(pub)
	if err != nil {
		return nil, err
	}

	p.Signature = &Signature{PublicKey: pubBytes, Signature: sig}
	return p.Signature, nil
}

// Verify checks the stored signature against the canonical bytes. A signature
// that does not match returns false; a missing signature or undecodable key
// returns an error.
func (p *Pack) Verify() (bool, error) {
	if p.Signature == nil {
		return false, ErrNoSignature
	}
	pub, err := keys.UnmarshalPublicKey(p.Signature.PublicKey)
	if err != nil {
		return false, fmt.Errorf("verifying pack: %w", err)
	}
	data, err := p.CanonicalBytes()
	if err != nil {
		return false, err
	}
	return pub.Verify(data, p.Signature.Signature)
}

// Signer returns the public key of the signature.
func (p *Pack) Signer() (keys.PublicKey, error) {
	if p.Signature == nil {
		return nil, ErrNoSignature
	}
	return keys.UnmarshalPublicKey(p.Signature.PublicKey)
}

// Flush signs p with id and returns the bytes ready for storage.
func (p *Pack) Flush(ctx context.Context, id packsync.Identity) ([]byte, error) {
	if _, err := p.Sign(ctx, id); err != nil {
		return nil, err
	}
	return p.Marshal()
}

// Revise builds the next revision of p from info, linking back to p.
func (p *Pack) Revise(info Info) (*Pack, error) {
	c, err := p.CID()
	if err != nil {
		return nil, err
	}
	info.Previous = c.String()
	return New(info)
}

// Unmarshal decodes a pack and re-checks the construction invariants.
func Unmarshal(data []byte) (*Pack, error) {
	var p Pack
	if err := dag.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if p.Format != FormatName {
		return nil, fmt.Errorf("%w: format %q", ErrInvalidFormat, p.Format)
	}
	if p.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidFormat, p.Version)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
