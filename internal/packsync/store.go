package packsync

import (
	"context"
	"iter"
	"time"

	"github.com/ipfs/go-cid"

	"packsync-go/internal/keys"
)

// ContentStore is the content-addressed object store that remote repos and
// packs are read from.
type ContentStore interface {
	// FetchBlock returns the raw bytes of the block identified by c.
	FetchBlock(ctx context.Context, c cid.Cid) ([]byte, error)

	// ResolveNode fetches the block identified by c and decodes it into v
	// according to the codec of c.
	ResolveNode(ctx context.Context, c cid.Cid, v any) error

	// ResolvePointer returns the CID a mutable pointer currently names.
	ResolvePointer(ctx context.Context, name string) (cid.Cid, error)
}

// Identity is a signing capability. Providers differ in where the key lives;
// callers only ever see these two methods.
type Identity interface {
	PublicKey(ctx context.Context) (keys.PublicKey, error)
	Sign(ctx context.Context, data []byte) ([]byte, error)
}

// SortMode selects the ordering of an index query.
type SortMode string

// SortLatest orders records by update time, newest first, and hides records
// dated in the future.
const SortLatest SortMode = "latest"

// Index is the local secondary index that sync runs write into.
// Every method is atomic from the caller's point of view.
type Index interface {
	// Upsert inserts or replaces records by primary key in one transaction
	// and returns their keys.
	Upsert(ctx context.Context, records []IndexRecord) ([]string, error)

	// GetCursor returns the persisted cursor for a repo address,
	// or the zero cursor if the address was never synced.
	GetCursor(ctx context.Context, address string) (Cursor, error)
	PutCursor(ctx context.Context, address string, cursor Cursor) error

	// Query returns a lazy sequence of pages. The final page is empty.
	Query(ctx context.Context, sort SortMode, pageSize int) (iter.Seq2[[]IndexRecord, error], error)

	CreateSyncRun(ctx context.Context, run *SyncRun) error
	FinishSyncRun(ctx context.Context, run *SyncRun) error
	ListSyncRuns(ctx context.Context, limit int) ([]*SyncRun, error)

	Close() error
}

// Sync run statuses.
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunError   = "error"
	RunStopped = "stopped"
)

// SyncRun is the history entry of one Iterate call.
type SyncRun struct {
	ID         string
	Address    string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Ingested   int
	Error      string
}
