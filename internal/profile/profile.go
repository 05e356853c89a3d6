// Package profile resolves the display profile of a key holder.
package profile

import (
	"context"
	"fmt"
	"iter"

	"github.com/ipfs/go-cid"

	"packsync-go/internal/dag"
	"packsync-go/internal/keys"
	"packsync-go/internal/pack"
	"packsync-go/internal/packsync"
)

// MuseScoreLogoURL is the avatar of packs uploaded by the MuseScore synchronizer.
const MuseScoreLogoURL = "https://ipfs.io/ipfs/QmUk8LqPMvsTJi9WBic8tk6n8Ywfr76QfFicuXozXtCXHP"

// Profile is a user profile. ShortID is always set; the rest comes from the
// node the user publishes under their key's pointer.
type Profile struct {
	ShortID string `json:"shortId,omitempty"`
	Name    string `json:"name,omitempty"`
	URL     string `json:"url,omitempty"`
	Avatar  string `json:"avatar,omitempty"`
}

// custom is the published profile node.
type custom struct {
	Name   string    `cbor:"name,omitempty" json:"name,omitempty"`
	URL    string    `cbor:"url,omitempty" json:"url,omitempty"`
	Avatar *dag.Link `cbor:"avatar,omitempty" json:"avatar,omitempty"`
}

// Publisher is a store that profiles can be published to.
type Publisher interface {
	Put(ctx context.Context, codec uint64, data []byte) (cid.Cid, error)
	SetPointer(ctx context.Context, name string, c cid.Cid) error
}

// Resolve yields the generic profile of pub first and then, if it can be
// resolved, the published profile. A failed resolution is yielded as an
// error after the generic profile.
func Resolve(ctx context.Context, store packsync.ContentStore, pub keys.PublicKey) iter.Seq2[Profile, error] {
	return func(yield func(Profile, error) bool) {
		shortID, err := keys.ShortID(pub)
		if err != nil {
			yield(Profile{}, err)
			return
		}
		generic := Profile{ShortID: shortID}
		if !yield(generic, nil) {
			return
		}

		name, err := keys.PointerName(pub)
		if err != nil {
			yield(generic, err)
			return
		}
		c, err := store.ResolvePointer(ctx, name)
		if err != nil {
			yield(generic, fmt.Errorf("resolving profile pointer %s: %w", name, err))
			return
		}
		var node custom
		if err := store.ResolveNode(ctx, c, &node); err != nil {
			yield(generic, &packsync.RemoteFetchError{Cid: c, Err: err})
			return
		}

		p := generic
		p.Name = node.Name
		p.URL = node.URL
		if node.Avatar != nil && node.Avatar.Defined() {
			p.Avatar = node.Avatar.String()
		}
		yield(p, nil)
	}
}

// Latest returns the most complete profile Resolve produces. The generic
// profile is returned together with the resolution error, if any.
func Latest(ctx context.Context, store packsync.ContentStore, pub keys.PublicKey) (Profile, error) {
	var last Profile
	for p, err := range Resolve(ctx, store, pub) {
		if err != nil {
			return last, err
		}
		last = p
	}
	return last, nil
}

// ForPack returns the display profile of a pack's uploader, or false if the
// pack carries neither a MuseScore source nor a signature.
func ForPack(p *pack.Pack) (Profile, bool, error) {
	for _, s := range p.Sources {
		if s.Name == "musescore" {
			return Profile{Name: "MuseScore Sync", URL: s.URL, Avatar: MuseScoreLogoURL}, true, nil
		}
	}
	if p.Signature == nil {
		return Profile{}, false, nil
	}

	pub, err := p.Signer()
	if err != nil {
		return Profile{}, false, err
	}
	shortID, err := keys.ShortID(pub)
	if err != nil {
		return Profile{}, false, err
	}
	return Profile{Name: shortID, ShortID: shortID}, true, nil
}

// Publish stores prof as the published profile of id and points the key's
// pointer at it.
func Publish(ctx context.Context, store Publisher, id packsync.Identity, prof Profile) (string, error) {
	pub, err := id.PublicKey(ctx)
	if err != nil {
		return "", err
	}
	node := custom{Name: prof.Name, URL: prof.URL}
	if prof.Avatar != "" {
		c, err := cid.Decode(prof.Avatar)
		if err != nil {
			return "", fmt.Errorf("invalid avatar: %w", err)
		}
		avatar := dag.NewLink(c)
		node.Avatar = &avatar
	}

	data, err := dag.Marshal(node)
	if err != nil {
		return "", err
	}
	c, err := store.Put(ctx, cid.DagCBOR, data)
	if err != nil {
		return "", fmt.Errorf("storing profile: %w", err)
	}

	name, err := keys.PointerName(pub)
	if err != nil {
		return "", err
	}
	if err := store.SetPointer(ctx, name, c); err != nil {
		return "", fmt.Errorf("publishing profile: %w", err)
	}
	return name, nil
}
