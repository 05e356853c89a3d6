// Package identity provides the signing identities packs are signed with and
// the providers that produce them.
package identity

import (
	"context"
	"crypto/sha256"
	"fmt"

	"packsync-go/internal/keys"
	"packsync-go/internal/packsync"
)

// Identity is the signing capability consumed by the pack package.
type Identity = packsync.Identity

// keyIdentity signs with a private key held in memory.
type keyIdentity struct {
	priv keys.PrivateKey
}

var _ Identity = (*keyIdentity)(nil)

// WrapPrivateKey returns an Identity backed by priv.
func WrapPrivateKey(priv keys.PrivateKey) Identity {
	return &keyIdentity{priv: priv}
}

func (k *keyIdentity) PublicKey(ctx context.Context) (keys.PublicKey, error) {
	return k.priv.GetPublic(), nil
}

func (k *keyIdentity) Sign(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return k.priv.Sign(data)
}

// FromSeed derives a deterministic Ed25519 identity from an arbitrary seed
// message. The same message always yields the same key.
func FromSeed(seed []byte) (Identity, error) {
	sum := sha256.Sum256(seed)
	priv, err := keys.Ed25519FromSeed(sum[:])
	if err != nil {
		return nil, fmt.Errorf("deriving key from seed: %w", err)
	}
	return WrapPrivateKey(priv), nil
}
