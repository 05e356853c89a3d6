package keys

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"io"
)

const minRSABits = 2048

// RSAPublicKey is an RSA public key. Raw bytes are PKIX DER and signatures
// are PKCS #1 v1.5 over SHA-256.
type RSAPublicKey struct {
	k *rsa.PublicKey
}

// RSAPrivateKey is an RSA private key. Raw bytes are PKCS #1 DER.
type RSAPrivateKey struct {
	k *rsa.PrivateKey
}

var (
	_ PublicKey  = (*RSAPublicKey)(nil)
	_ PrivateKey = (*RSAPrivateKey)(nil)
)

func generateRSA(r io.Reader, bits int) (PrivateKey, error) {
	if bits < minRSABits {
		return nil, fmt.Errorf("rsa keys must be at least %d bits", minRSABits)
	}
	priv, err := rsa.GenerateKey(r, bits)
	if err != nil {
		return nil, err
	}
	return &RSAPrivateKey{k: priv}, nil
}

func (k *RSAPublicKey) Type() KeyType { return RSA }

func (k *RSAPublicKey) Raw() ([]byte, error) {
	return x509.MarshalPKIXPublicKey(k.k)
}

func (k *RSAPublicKey) Verify(data, sig []byte) (bool, error) {
	digest := sha256.Sum256(data)
	if err := rsa.VerifyPKCS1v15(k.k, crypto.SHA256, digest[:], sig); err != nil {
		return false, nil
	}
	return true, nil
}

func (k *RSAPublicKey) Equals(o PublicKey) bool { return keyEquals(k, o) }

func (k *RSAPrivateKey) Type() KeyType { return RSA }

func (k *RSAPrivateKey) Raw() ([]byte, error) {
	return x509.MarshalPKCS1PrivateKey(k.k), nil
}

func (k *RSAPrivateKey) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	return rsa.SignPKCS1v15(nil, k.k, crypto.SHA256, digest[:])
}

func (k *RSAPrivateKey) GetPublic() PublicKey {
	return &RSAPublicKey{k: &k.k.PublicKey}
}

func unmarshalRSAPublicKey(data []byte) (PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: rsa public key: %v", ErrKeyFormat, err)
	}
	k, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an rsa public key", ErrKeyFormat)
	}
	if k.N.BitLen() < minRSABits {
		return nil, fmt.Errorf("%w: rsa key is %d bits", ErrKeyFormat, k.N.BitLen())
	}
	return &RSAPublicKey{k: k}, nil
}

func unmarshalRSAPrivateKey(data []byte) (PrivateKey, error) {
	k, err := x509.ParsePKCS1PrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: rsa private key: %v", ErrKeyFormat, err)
	}
	if k.N.BitLen() < minRSABits {
		return nil, fmt.Errorf("%w: rsa key is %d bits", ErrKeyFormat, k.N.BitLen())
	}
	return &RSAPrivateKey{k: k}, nil
}
