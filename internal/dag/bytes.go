package dag

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidBytes = errors.New("invalid bytes")

// Bytes is a byte string. In CBOR it is a plain byte string; in JSON it is
// written as {"/": {"bytes": "<base64>"}} with unpadded standard base64.
// A bare base64 string is also accepted on read.
type Bytes []byte

func (b Bytes) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	return json.Marshal(map[string]map[string]string{
		"/": {"bytes": base64.RawStdEncoding.EncodeToString(b)},
	})
}

func (b *Bytes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = nil
		return nil
	}

	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidBytes, err)
		}
	} else {
		var obj struct {
			Slash *struct {
				Bytes *string `json:"bytes"`
			} `json:"/"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidBytes, err)
		}
		if obj.Slash == nil || obj.Slash.Bytes == nil {
			return fmt.Errorf("%w: missing /.bytes", ErrInvalidBytes)
		}
		s = *obj.Slash.Bytes
	}

	decoded, err := decodeBase64(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBytes, err)
	}
	*b = decoded
	return nil
}

// decodeBase64 accepts standard base64 with or without padding.
func decodeBase64(s string) ([]byte, error) {
	if len(s)%4 == 0 {
		if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
			return decoded, nil
		}
	}
	return base64.RawStdEncoding.DecodeString(s)
}
