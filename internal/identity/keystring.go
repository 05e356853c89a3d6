package identity

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/multiformats/go-multibase"

	"packsync-go/internal/keys"
)

var ErrUnknownEncoding = errors.New("unknown key encoding")

// Key string encodings.
const (
	EncodingMultibase = "multibase"
	EncodingHex       = "hex"
)

// KeyStringProvider imports a marshaled private key pasted as text.
type KeyStringProvider struct{}

var _ Provider = KeyStringProvider{}

func (KeyStringProvider) Type() string        { return "key-string" }
func (KeyStringProvider) DisplayName() string { return "Private key" }
func (KeyStringProvider) Available() bool     { return true }

func (KeyStringProvider) Inputs() []Input {
	return []Input{
		{Name: "key", Label: "Private key", Secret: true},
		{Name: "encoding", Label: "Encoding", Choices: []string{EncodingMultibase, EncodingHex}},
	}
}

func (KeyStringProvider) RequestIdentities(ctx context.Context, inputs map[string]string) ([]Identity, error) {
	text, err := requireInput(inputs, "key")
	if err != nil {
		return nil, err
	}
	encoding := inputs["encoding"]
	if encoding == "" {
		encoding = EncodingMultibase
	}

	priv, err := ParsePrivateKey(text, encoding)
	if err != nil {
		return nil, err
	}
	return []Identity{WrapPrivateKey(priv)}, nil
}

// ParsePrivateKey decodes a marshaled private key from its text form.
func ParsePrivateKey(text, encoding string) (keys.PrivateKey, error) {
	text = strings.TrimSpace(text)

	var data []byte
	var err error
	switch encoding {
	case EncodingMultibase:
		_, data, err = multibase.Decode(text)
	case EncodingHex:
		data, err = hex.DecodeString(text)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, encoding)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", keys.ErrKeyFormat, encoding, err)
	}
	return keys.UnmarshalPrivateKey(data)
}

// FormatPrivateKey returns the base58btc multibase text form of priv.
func FormatPrivateKey(priv keys.PrivateKey) (string, error) {
	data, err := keys.MarshalPrivateKey(priv)
	if err != nil {
		return "", err
	}
	return multibase.Encode(multibase.Base58BTC, data)
}

// FormatPublicKey returns the base58btc multibase text form of pub.
func FormatPublicKey(pub keys.PublicKey) (string, error) {
	data, err := keys.MarshalPublicKey(pub)
	if err != nil {
		return "", err
	}
	return multibase.Encode(multibase.Base58BTC, data)
}

// ParsePublicKey decodes the multibase text form of a public key.
func ParsePublicKey(text string) (keys.PublicKey, error) {
	_, data, err := multibase.Decode(strings.TrimSpace(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keys.ErrKeyFormat, err)
	}
	return keys.UnmarshalPublicKey(data)
}
