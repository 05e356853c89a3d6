package repo

import (
	"context"

	"github.com/ipfs/go-cid"

	"packsync-go/internal/packsync"
)

// KindFlatMap is a repo stored as a single map node: entry id -> entry.
const KindFlatMap = "flat-map"

// FlatMap crawls a single remote map node.
type FlatMap struct {
	root  cid.Cid
	store packsync.ContentStore
}

var _ packsync.Repo = (*FlatMap)(nil)

// NewFlatMap creates a flat-map repo rooted at root.
func NewFlatMap(root cid.Cid, store packsync.ContentStore) *FlatMap {
	return &FlatMap{root: root, store: store}
}

func (r *FlatMap) Kind() string    { return KindFlatMap }
func (r *FlatMap) Root() cid.Cid   { return r.root }
func (r *FlatMap) Address() string { return packsync.Address(KindFlatMap, r.root) }

// Iterator yields the whole map as one batch whose cursor is the root CID.
// A cursor already at the root means the map was ingested and nothing is fetched.
func (r *FlatMap) Iterator(cursor packsync.Cursor) packsync.BatchIterator {
	return &flatIterator{repo: r, done: cursor.Key() == r.root.String()}
}

type flatIterator struct {
	repo *FlatMap
	done bool
}

func (it *flatIterator) Next(ctx context.Context) (packsync.Batch, error) {
	if it.done {
		return packsync.Batch{}, packsync.ErrExhausted
	}
	records, err := loadMap(ctx, it.repo.store, it.repo.Address(), it.repo.root)
	if err != nil {
		return packsync.Batch{}, err
	}
	it.done = true
	return packsync.Batch{
		Records: records,
		Cursor:  packsync.KeyCursor(it.repo.root.String()),
	}, nil
}

func (it *flatIterator) Close() error { return nil }
