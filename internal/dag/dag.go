// Package dag encodes and decodes content-addressed DAG nodes.
package dag

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

var ErrUnsupportedCodec = errors.New("unsupported codec")

var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	// Canonical CBOR orders map keys length-first, which is the DAG-CBOR order.
	opts := cbor.CanonicalEncOptions()
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("dag: building cbor encoder: %v", err))
	}
	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("dag: building cbor decoder: %v", err))
	}
	return dm
}

// Marshal encodes v as deterministic DAG-CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes DAG-CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Decode decodes a node according to the codec of c.
func Decode(c cid.Cid, data []byte, v any) error {
	switch codec := c.Prefix().Codec; codec {
	case cid.DagCBOR:
		if err := decMode.Unmarshal(data, v); err != nil {
			return fmt.Errorf("decoding dag-cbor node %s: %w", c, err)
		}
	case cid.DagJSON:
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("decoding dag-json node %s: %w", c, err)
		}
	default:
		return fmt.Errorf("%w: 0x%x", ErrUnsupportedCodec, codec)
	}
	return nil
}

// Sum returns the CIDv1 of data under codec, hashed with sha2-256.
func Sum(codec uint64, data []byte) (cid.Cid, error) {
	prefix := cid.Prefix{
		Version:  1,
		Codec:    codec,
		MhType:   multihash.SHA2_256,
		MhLength: -1,
	}
	c, err := prefix.Sum(data)
	if err != nil {
		return cid.Undef, fmt.Errorf("hashing block: %w", err)
	}
	return c, nil
}

// Verify checks that data hashes to c.
func Verify(c cid.Cid, data []byte) error {
	got, err := c.Prefix().Sum(data)
	if err != nil {
		return fmt.Errorf("hashing block: %w", err)
	}
	if !got.Equals(c) {
		return fmt.Errorf("block hashes to %s, want %s", got, c)
	}
	return nil
}
