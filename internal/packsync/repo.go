package packsync

import (
	"context"

	"github.com/ipfs/go-cid"
)

// Batch is one unit of ingestion: the records rebuilt from a remote node and
// the cursor that is valid once those records are stored.
type Batch struct {
	Records []IndexRecord
	Cursor  Cursor
}

// BatchIterator pulls batches from a remote repository.
type BatchIterator interface {
	// Next returns the next batch, or ErrExhausted when there are none left.
	Next(ctx context.Context) (Batch, error)
	Close() error
}

// Repo is a remote repository of records.
type Repo interface {
	Kind() string
	Root() cid.Cid
	// Address identifies the repo in the local index, e.g. /flat-map/ipfs/<cid>.
	Address() string
	// Iterator returns an iterator that resumes after the given cursor.
	Iterator(cursor Cursor) BatchIterator
}

// Address derives the repo address for a kind and root CID.
func Address(kind string, root cid.Cid) string {
	return "/" + kind + "/ipfs/" + root.String()
}
