package keys

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"strings"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func generate(t *testing.T, typ KeyType, bits int) (PrivateKey, PublicKey) {
	t.Helper()
	priv, pub, err := GenerateKeyPair(typ, bits)
	if err != nil {
		t.Fatalf("GenerateKeyPair(%s) error = %v", typ, err)
	}
	return priv, pub
}

func TestMarshalPublicKey_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		typ  KeyType
		bits int
	}{
		{name: "ed25519", typ: Ed25519},
		{name: "ecdsa", typ: ECDSA},
		{name: "rsa", typ: RSA, bits: 2048},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				_, pub := generate(t, tt.typ, tt.bits)

				b, err := MarshalPublicKey(pub)
				if err != nil {
					t.Fatalf("MarshalPublicKey() error = %v", err)
				}
				got, err := UnmarshalPublicKey(b)
				if err != nil {
					t.Fatalf("UnmarshalPublicKey() error = %v", err)
				}
				if !pub.Equals(got) {
					t.Error("round-tripped key is not equal to the original")
				}
				if got.Type() != tt.typ {
					t.Errorf("Type() = %s, want %s", got.Type(), tt.typ)
				}

				again, err := MarshalPublicKey(got)
				if err != nil {
					t.Fatalf("MarshalPublicKey() error = %v", err)
				}
				if !bytes.Equal(b, again) {
					t.Errorf("re-marshaled key = %x, want %x", again, b)
				}
			}
		})
	}
}

func TestMarshalPrivateKey_RoundTrip(t *testing.T) {
	for _, typ := range []KeyType{Ed25519, ECDSA} {
		t.Run(typ.String(), func(t *testing.T) {
			priv, pub := generate(t, typ, 0)

			b, err := MarshalPrivateKey(priv)
			if err != nil {
				t.Fatalf("MarshalPrivateKey() error = %v", err)
			}
			got, err := UnmarshalPrivateKey(b)
			if err != nil {
				t.Fatalf("UnmarshalPrivateKey() error = %v", err)
			}
			if !pub.Equals(got.GetPublic()) {
				t.Error("GetPublic() of the decoded key differs")
			}

			sig, err := got.Sign([]byte("hello"))
			if err != nil {
				t.Fatalf("Sign() error = %v", err)
			}
			ok, err := pub.Verify([]byte("hello"), sig)
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if !ok {
				t.Error("Verify() = false for a signature of the decoded key")
			}
		})
	}
}

func TestUnmarshalEd25519PrivateKey_LegacyLength(t *testing.T) {
	priv, _ := generate(t, Ed25519, 0)
	raw, err := priv.Raw()
	if err != nil {
		t.Fatalf("Raw() error = %v", err)
	}

	legacy := append(append([]byte{}, raw...), raw[32:]...)
	got, err := UnmarshalPrivateKey(encodeKey(Ed25519, legacy))
	if err != nil {
		t.Fatalf("UnmarshalPrivateKey() error = %v", err)
	}
	if !priv.GetPublic().Equals(got.GetPublic()) {
		t.Error("legacy 96-byte key decoded to a different key")
	}
}

func TestUnmarshalPublicKey_Malformed(t *testing.T) {
	_, pub := generate(t, Ed25519, 0)
	valid, err := MarshalPublicKey(pub)
	if err != nil {
		t.Fatalf("MarshalPublicKey() error = %v", err)
	}

	onlyType := protowire.AppendVarint(protowire.AppendTag(nil, 1, protowire.VarintType), uint64(Ed25519))

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "empty", input: nil},
		{name: "truncated", input: valid[:len(valid)-5]},
		{name: "garbage", input: []byte{0xff, 0xff, 0xff}},
		{name: "missing data", input: onlyType},
		{name: "wrong ed25519 length", input: encodeKey(Ed25519, make([]byte, 31))},
		{name: "secp256k1 unsupported", input: encodeKey(Secp256k1, make([]byte, 33))},
		{name: "unknown type", input: encodeKey(KeyType(9), make([]byte, 32))},
		{name: "bad ecdsa der", input: encodeKey(ECDSA, []byte("not der"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalPublicKey(tt.input)
			if !errors.Is(err, ErrKeyFormat) {
				t.Errorf("UnmarshalPublicKey() error = %v, want ErrKeyFormat", err)
			}
		})
	}
}

func TestUnmarshalPublicKey_SkipsUnknownFields(t *testing.T) {
	_, pub := generate(t, Ed25519, 0)
	b, err := MarshalPublicKey(pub)
	if err != nil {
		t.Fatalf("MarshalPublicKey() error = %v", err)
	}

	b = protowire.AppendTag(b, 7, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("extra"))

	got, err := UnmarshalPublicKey(b)
	if err != nil {
		t.Fatalf("UnmarshalPublicKey() error = %v", err)
	}
	if !pub.Equals(got) {
		t.Error("key with an extra field decoded to a different key")
	}
}

func TestID(t *testing.T) {
	_, pub := generate(t, Ed25519, 0)

	t.Run("inline ed25519 key embeds the key", func(t *testing.T) {
		id, err := ID(pub, true)
		if err != nil {
			t.Fatalf("ID() error = %v", err)
		}
		if !strings.HasPrefix(id, "12D3KooW") {
			t.Errorf("ID() = %s, want 12D3KooW prefix", id)
		}
	})

	t.Run("hashed id is a sha2-256 multihash", func(t *testing.T) {
		id, err := ID(pub, false)
		if err != nil {
			t.Fatalf("ID() error = %v", err)
		}
		if !strings.HasPrefix(id, "Qm") || len(id) != 46 {
			t.Errorf("ID() = %s, want 46 characters starting with Qm", id)
		}
	})

	t.Run("large keys are hashed even when inline is requested", func(t *testing.T) {
		_, rsaPub := generate(t, RSA, 2048)

		inline, err := ID(rsaPub, true)
		if err != nil {
			t.Fatalf("ID() error = %v", err)
		}
		hashed, err := ID(rsaPub, false)
		if err != nil {
			t.Fatalf("ID() error = %v", err)
		}
		if inline != hashed {
			t.Errorf("ID(inline) = %s, want %s", inline, hashed)
		}
	})

	t.Run("stable for equal keys", func(t *testing.T) {
		b, err := MarshalPublicKey(pub)
		if err != nil {
			t.Fatalf("MarshalPublicKey() error = %v", err)
		}
		clone, err := UnmarshalPublicKey(b)
		if err != nil {
			t.Fatalf("UnmarshalPublicKey() error = %v", err)
		}

		a, err := ID(pub, false)
		if err != nil {
			t.Fatalf("ID() error = %v", err)
		}
		c, err := ID(clone, false)
		if err != nil {
			t.Fatalf("ID() error = %v", err)
		}
		if a != c {
			t.Errorf("ID() = %s and %s for equal keys", a, c)
		}
	})
}

func TestShortID(t *testing.T) {
	for i := 0; i < 10; i++ {
		_, pub := generate(t, Ed25519, 0)

		short, err := ShortID(pub)
		if err != nil {
			t.Fatalf("ShortID() error = %v", err)
		}
		id, err := ID(pub, false)
		if err != nil {
			t.Fatalf("ID() error = %v", err)
		}

		if len(short) != 12 {
			t.Fatalf("ShortID() = %q, want 12 characters", short)
		}
		if short[2:5] != "..." || short[:2] != id[:2] || short[5:] != id[len(id)-7:] {
			t.Errorf("ShortID() = %q for id %s", short, id)
		}
	}
}

func TestPointerName(t *testing.T) {
	seed := sha256.Sum256([]byte("pointer"))
	priv, err := Ed25519FromSeed(seed[:])
	if err != nil {
		t.Fatalf("Ed25519FromSeed() error = %v", err)
	}

	name, err := PointerName(priv.GetPublic())
	if err != nil {
		t.Fatalf("PointerName() error = %v", err)
	}
	id, err := ID(priv.GetPublic(), true)
	if err != nil {
		t.Fatalf("ID() error = %v", err)
	}
	if name != "/ipns/"+id {
		t.Errorf("PointerName() = %s, want /ipns/%s", name, id)
	}
}

func TestVerify_RejectsWrongSignature(t *testing.T) {
	for _, typ := range []KeyType{Ed25519, ECDSA} {
		t.Run(typ.String(), func(t *testing.T) {
			priv, pub := generate(t, typ, 0)

			sig, err := priv.Sign([]byte("original"))
			if err != nil {
				t.Fatalf("Sign() error = %v", err)
			}
			ok, err := pub.Verify([]byte("tampered"), sig)
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if ok {
				t.Error("Verify() = true for tampered data")
			}
		})
	}
}
