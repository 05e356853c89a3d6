package keys

import (
	"fmt"

	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
)

// MaxInlineKeyLength is the largest marshaled key that ID will embed
// verbatim (identity multihash) instead of hashing.
const MaxInlineKeyLength = 42

// ID returns the textual identifier of k: the multihash of the marshaled key
// in base58btc without the multibase prefix. With inline set, keys up to
// MaxInlineKeyLength bytes are embedded rather than hashed.
func ID(k PublicKey, inline bool) (string, error) {
	b, err := MarshalPublicKey(k)
	if err != nil {
		return "", err
	}

	var mh multihash.Multihash
	if inline && len(b) <= MaxInlineKeyLength {
		mh, err = multihash.Encode(b, multihash.IDENTITY)
	} else {
		mh, err = multihash.Sum(b, multihash.SHA2_256, -1)
	}
	if err != nil {
		return "", fmt.Errorf("hashing key: %w", err)
	}

	s, err := multibase.Encode(multibase.Base58BTC, mh)
	if err != nil {
		return "", fmt.Errorf("encoding key id: %w", err)
	}
	return s[1:], nil
}

// ShortID abbreviates the hashed ID as "Qm...abcdefg".
func ShortID(k PublicKey) (string, error) {
	id, err := ID(k, false)
	if err != nil {
		return "", err
	}
	return id[:2] + "..." + id[len(id)-7:], nil
}

// PointerName is the mutable pointer name under which k publishes records.
func PointerName(k PublicKey) (string, error) {
	id, err := ID(k, true)
	if err != nil {
		return "", err
	}
	return "/ipns/" + id, nil
}
