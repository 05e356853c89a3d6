package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"io"
)

// ECDSAPublicKey is a NIST P-256 public key. Raw bytes are PKIX DER and
// signatures are ASN.1 over SHA-256.
type ECDSAPublicKey struct {
	k *ecdsa.PublicKey
}

// ECDSAPrivateKey is a NIST P-256 private key. Raw bytes are SEC 1 DER.
type ECDSAPrivateKey struct {
	k *ecdsa.PrivateKey
}

var (
	_ PublicKey  = (*ECDSAPublicKey)(nil)
	_ PrivateKey = (*ECDSAPrivateKey)(nil)
)

func generateECDSA(r io.Reader) (PrivateKey, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), r)
	if err != nil {
		return nil, err
	}
	return &ECDSAPrivateKey{k: priv}, nil
}

func (k *ECDSAPublicKey) Type() KeyType { return ECDSA }

func (k *ECDSAPublicKey) Raw() ([]byte, error) {
	return x509.MarshalPKIXPublicKey(k.k)
}

func (k *ECDSAPublicKey) Verify(data, sig []byte) (bool, error) {
	digest := sha256.Sum256(data)
	return ecdsa.VerifyASN1(k.k, digest[:], sig), nil
}

func (k *ECDSAPublicKey) Equals(o PublicKey) bool { return keyEquals(k, o) }

func (k *ECDSAPrivateKey) Type() KeyType { return ECDSA }

func (k *ECDSAPrivateKey) Raw() ([]byte, error) {
	return x509.MarshalECPrivateKey(k.k)
}

func (k *ECDSAPrivateKey) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	return ecdsa.SignASN1(rand.Reader, k.k, digest[:])
}

func (k *ECDSAPrivateKey) GetPublic() PublicKey {
	return &ECDSAPublicKey{k: &k.k.PublicKey}
}

func unmarshalECDSAPublicKey(data []byte) (PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: ecdsa public key: %v", ErrKeyFormat, err)
	}
	k, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an ecdsa public key", ErrKeyFormat)
	}
	return &ECDSAPublicKey{k: k}, nil
}

func unmarshalECDSAPrivateKey(data []byte) (PrivateKey, error) {
	k, err := x509.ParseECPrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: ecdsa private key: %v", ErrKeyFormat, err)
	}
	return &ECDSAPrivateKey{k: k}, nil
}
