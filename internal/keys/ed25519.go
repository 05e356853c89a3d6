package keys

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"io"
)

// Ed25519PublicKey is an Ed25519 public key.
type Ed25519PublicKey struct {
	k ed25519.PublicKey
}

// Ed25519PrivateKey is an Ed25519 private key.
type Ed25519PrivateKey struct {
	k ed25519.PrivateKey
}

var (
	_ PublicKey  = (*Ed25519PublicKey)(nil)
	_ PrivateKey = (*Ed25519PrivateKey)(nil)
)

// NewEd25519PrivateKey wraps a standard library key.
func NewEd25519PrivateKey(k ed25519.PrivateKey) *Ed25519PrivateKey {
	return &Ed25519PrivateKey{k: k}
}

// Ed25519FromSeed derives a private key from a 32-byte seed.
func Ed25519FromSeed(seed []byte) (*Ed25519PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: ed25519 seed must be %d bytes, got %d", ErrKeyFormat, ed25519.SeedSize, len(seed))
	}
	return &Ed25519PrivateKey{k: ed25519.NewKeyFromSeed(seed)}, nil
}

func generateEd25519(r io.Reader) (PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, err
	}
	return &Ed25519PrivateKey{k: priv}, nil
}

func (k *Ed25519PublicKey) Type() KeyType { return Ed25519 }

func (k *Ed25519PublicKey) Raw() ([]byte, error) {
	return bytes.Clone(k.k), nil
}

func (k *Ed25519PublicKey) Verify(data, sig []byte) (bool, error) {
	return ed25519.Verify(k.k, data, sig), nil
}

func (k *Ed25519PublicKey) Equals(o PublicKey) bool { return keyEquals(k, o) }

func (k *Ed25519PrivateKey) Type() KeyType { return Ed25519 }

// Raw returns the 64-byte private key (seed followed by public key).
func (k *Ed25519PrivateKey) Raw() ([]byte, error) {
	return bytes.Clone(k.k), nil
}

func (k *Ed25519PrivateKey) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(k.k, data), nil
}

func (k *Ed25519PrivateKey) GetPublic() PublicKey {
	return &Ed25519PublicKey{k: k.k.Public().(ed25519.PublicKey)}
}

func unmarshalEd25519PublicKey(data []byte) (PublicKey, error) {
	if len(data) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: ed25519 public key must be %d bytes, got %d", ErrKeyFormat, ed25519.PublicKeySize, len(data))
	}
	return &Ed25519PublicKey{k: ed25519.PublicKey(bytes.Clone(data))}, nil
}

func unmarshalEd25519PrivateKey(data []byte) (PrivateKey, error) {
	// Older encoders append a redundant copy of the public key.
	if len(data) == ed25519.PrivateKeySize+ed25519.PublicKeySize {
		redundant := data[ed25519.PrivateKeySize:]
		if !bytes.Equal(redundant, data[ed25519.SeedSize:ed25519.PrivateKeySize]) {
			return nil, fmt.Errorf("%w: ed25519 private key has mismatched public key", ErrKeyFormat)
		}
		data = data[:ed25519.PrivateKeySize]
	}
	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: ed25519 private key must be %d bytes, got %d", ErrKeyFormat, ed25519.PrivateKeySize, len(data))
	}
	return &Ed25519PrivateKey{k: ed25519.PrivateKey(bytes.Clone(data))}, nil
}
