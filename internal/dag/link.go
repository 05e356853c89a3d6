package dag

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
)

// linkTag is the CBOR tag for a CID link in DAG-CBOR.
const linkTag = 42

var ErrInvalidLink = errors.New("invalid link")

// Link is a reference to another node. It is written as CBOR tag 42 and
// as {"/": "<cid>"} in JSON. On read a bare CID string is also accepted.
type Link struct {
	Cid cid.Cid
}

// NewLink returns a link to c.
func NewLink(c cid.Cid) Link { return Link{Cid: c} }

func (l Link) Defined() bool { return l.Cid.Defined() }

func (l Link) String() string {
	if !l.Cid.Defined() {
		return ""
	}
	return l.Cid.String()
}

func (l Link) MarshalCBOR() ([]byte, error) {
	if !l.Cid.Defined() {
		return encMode.Marshal(nil)
	}
	// The tagged byte string carries a leading multibase identity prefix.
	content := append([]byte{0x00}, l.Cid.Bytes()...)
	return encMode.Marshal(cbor.Tag{Number: linkTag, Content: content})
}

func (l *Link) UnmarshalCBOR(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidLink)
	}

	switch major := data[0] >> 5; {
	case data[0] == 0xf6: // null
		l.Cid = cid.Undef
		return nil
	case major == 6:
		var tag cbor.RawTag
		if err := decMode.Unmarshal(data, &tag); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidLink, err)
		}
		if tag.Number != linkTag {
			return fmt.Errorf("%w: unexpected tag %d", ErrInvalidLink, tag.Number)
		}
		var raw []byte
		if err := decMode.Unmarshal(tag.Content, &raw); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidLink, err)
		}
		if len(raw) < 2 || raw[0] != 0x00 {
			return fmt.Errorf("%w: missing identity prefix", ErrInvalidLink)
		}
		c, err := cid.Cast(raw[1:])
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidLink, err)
		}
		l.Cid = c
		return nil
	case major == 3:
		var s string
		if err := decMode.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidLink, err)
		}
		return l.parse(s)
	default:
		return fmt.Errorf("%w: unexpected cbor major type %d", ErrInvalidLink, major)
	}
}

func (l Link) MarshalJSON() ([]byte, error) {
	if !l.Cid.Defined() {
		return []byte("null"), nil
	}
	return json.Marshal(map[string]string{"/": l.Cid.String()})
}

func (l *Link) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		l.Cid = cid.Undef
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidLink, err)
		}
		return l.parse(s)
	}
	var obj struct {
		Link string `json:"/"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	return l.parse(obj.Link)
}

func (l *Link) parse(s string) error {
	c, err := cid.Decode(s)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidLink, s, err)
	}
	l.Cid = c
	return nil
}
