package pack

import (
	"errors"
	"fmt"
)

var (
	ErrMissingTitle    = errors.New("title is required")
	ErrMissingContent  = errors.New("score content is required")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidPrevious = errors.New("previous revision must be a dag-cbor cid")
)

// ConstructionError reports an invalid field when building or decoding a pack.
type ConstructionError struct {
	Field string
	Err   error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("invalid pack field %s: %v", e.Field, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }
