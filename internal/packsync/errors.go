package packsync

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
)

var (
	// ErrExhausted is returned by BatchIterator.Next when the remote source has no more batches.
	ErrExhausted = errors.New("repo exhausted")

	ErrUnknownRepoKind = errors.New("unknown repo kind")
	ErrMalformedRecord = errors.New("malformed record")
	ErrUnsupportedSort = errors.New("unsupported sort mode")

	// ErrSyncInProgress is returned when a second run is started for an address
	// that already has an active run in this process.
	ErrSyncInProgress = errors.New("sync already in progress")

	ErrBlockNotFound   = errors.New("block not found")
	ErrPointerNotFound = errors.New("pointer not found")
)

// RecordError reports a remote map entry that is missing a required field.
type RecordError struct {
	Repo  string
	ID    string
	Field string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("malformed record %q in %s: missing or invalid %s", e.ID, e.Repo, e.Field)
}

func (e *RecordError) Unwrap() error { return ErrMalformedRecord }

// RemoteFetchError wraps a content store failure for a specific node.
type RemoteFetchError struct {
	Cid cid.Cid
	Err error
}

func (e *RemoteFetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Cid, e.Err)
}

func (e *RemoteFetchError) Unwrap() error { return e.Err }
