package keys

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrKeyFormat is returned for any key material that cannot be decoded.
var ErrKeyFormat = errors.New("invalid key format")

// KeyType identifies the key algorithm. Values match the libp2p key protobuf.
type KeyType int32

const (
	RSA       KeyType = 0
	Ed25519   KeyType = 1
	Secp256k1 KeyType = 2
	ECDSA     KeyType = 3
)

func (t KeyType) String() string {
	switch t {
	case RSA:
		return "rsa"
	case Ed25519:
		return "ed25519"
	case Secp256k1:
		return "secp256k1"
	case ECDSA:
		return "ecdsa"
	default:
		return fmt.Sprintf("unknown(%d)", int32(t))
	}
}

// PublicKey verifies signatures.
type PublicKey interface {
	Type() KeyType
	// Raw returns the algorithm-specific key bytes carried in the Data field.
	Raw() ([]byte, error)
	// Verify reports whether sig is a valid signature of data.
	// An invalid signature is (false, nil), not an error.
	Verify(data, sig []byte) (bool, error)
	Equals(PublicKey) bool
}

// PrivateKey produces signatures.
type PrivateKey interface {
	Type() KeyType
	Raw() ([]byte, error)
	Sign(data []byte) ([]byte, error)
	GetPublic() PublicKey
}

// MarshalPublicKey encodes k as the protobuf message {Type = 1, Data = 2}.
func MarshalPublicKey(k PublicKey) ([]byte, error) {
	data, err := k.Raw()
	if err != nil {
		return nil, fmt.Errorf("marshaling %s public key: %w", k.Type(), err)
	}
	return encodeKey(k.Type(), data), nil
}

// UnmarshalPublicKey decodes a key produced by MarshalPublicKey.
func UnmarshalPublicKey(b []byte) (PublicKey, error) {
	typ, data, err := decodeKey(b)
	if err != nil {
		return nil, err
	}
	switch typ {
	case Ed25519:
		return unmarshalEd25519PublicKey(data)
	case ECDSA:
		return unmarshalECDSAPublicKey(data)
	case RSA:
		return unmarshalRSAPublicKey(data)
	default:
		return nil, fmt.Errorf("%w: unsupported key type %s", ErrKeyFormat, typ)
	}
}

// MarshalPrivateKey encodes k with the same framing as MarshalPublicKey.
func MarshalPrivateKey(k PrivateKey) ([]byte, error) {
	data, err := k.Raw()
	if err != nil {
		return nil, fmt.Errorf("marshaling %s private key: %w", k.Type(), err)
	}
	return encodeKey(k.Type(), data), nil
}

// UnmarshalPrivateKey decodes a key produced by MarshalPrivateKey.
func UnmarshalPrivateKey(b []byte) (PrivateKey, error) {
	typ, data, err := decodeKey(b)
	if err != nil {
		return nil, err
	}
	switch typ {
	case Ed25519:
		return unmarshalEd25519PrivateKey(data)
	case ECDSA:
		return unmarshalECDSAPrivateKey(data)
	case RSA:
		return unmarshalRSAPrivateKey(data)
	default:
		return nil, fmt.Errorf("%w: unsupported key type %s", ErrKeyFormat, typ)
	}
}

// GenerateKeyPair creates a new key pair. bits is only used for RSA.
func GenerateKeyPair(typ KeyType, bits int) (PrivateKey, PublicKey, error) {
	var (
		priv PrivateKey
		err  error
	)
	switch typ {
	case Ed25519:
		priv, err = generateEd25519(rand.Reader)
	case ECDSA:
		priv, err = generateECDSA(rand.Reader)
	case RSA:
		priv, err = generateRSA(rand.Reader, bits)
	default:
		return nil, nil, fmt.Errorf("%w: cannot generate %s keys", ErrKeyFormat, typ)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("generating %s key: %w", typ, err)
	}
	return priv, priv.GetPublic(), nil
}

func keyEquals(a, b PublicKey) bool {
	if a == nil || b == nil || a.Type() != b.Type() {
		return false
	}
	ra, err := a.Raw()
	if err != nil {
		return false
	}
	rb, err := b.Raw()
	if err != nil {
		return false
	}
	return bytes.Equal(ra, rb)
}

func encodeKey(typ KeyType, data []byte) []byte {
	b := make([]byte, 0, len(data)+8)
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(typ))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, data)
	return b
}

func decodeKey(b []byte) (KeyType, []byte, error) {
	var (
		typ               KeyType
		data              []byte
		hasType, hasBytes bool
	)
	for len(b) > 0 {
		num, wtyp, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, nil, fmt.Errorf("%w: %v", ErrKeyFormat, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == 1 && wtyp == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, nil, fmt.Errorf("%w: key type: %v", ErrKeyFormat, protowire.ParseError(n))
			}
			typ, hasType = KeyType(v), true
			b = b[n:]
		case num == 2 && wtyp == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, nil, fmt.Errorf("%w: key data: %v", ErrKeyFormat, protowire.ParseError(n))
			}
			data, hasBytes = v, true
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, wtyp, b)
			if n < 0 {
				return 0, nil, fmt.Errorf("%w: field %d: %v", ErrKeyFormat, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if !hasType || !hasBytes {
		return 0, nil, fmt.Errorf("%w: missing type or data", ErrKeyFormat)
	}
	return typ, data, nil
}
