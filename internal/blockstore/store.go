// Package blockstore provides content-addressed block stores: in memory, on
// the local filesystem and in S3.
package blockstore

import (
	"bytes"
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ipfs/go-cid"

	"packsync-go/internal/dag"
	"packsync-go/internal/packsync"
)

// Store is a writable content store.
type Store interface {
	packsync.ContentStore

	// Put stores data as a block of the given codec and returns its CID.
	// Storing the same block twice is a no-op.
	Put(ctx context.Context, codec uint64, data []byte) (cid.Cid, error)

	// SetPointer points the mutable name at c.
	SetPointer(ctx context.Context, name string, c cid.Cid) error

	Close() error
}

// resolveNode fetches c through fetch and decodes it by codec.
func resolveNode(ctx context.Context, fetch func(context.Context, cid.Cid) ([]byte, error), c cid.Cid, v any) error {
	data, err := fetch(ctx, c)
	if err != nil {
		return err
	}
	return dag.Decode(c, data, v)
}

// blockCache is a read-through cache of verified blocks keyed by CID.
// It copies on add and on get, so callers own the slices they hand in and
// get back.
type blockCache struct {
	lru *lru.Cache[string, []byte]
}

func newBlockCache(size int) (*blockCache, error) {
	if size <= 0 {
		return &blockCache{}, nil
	}
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("creating block cache: %w", err)
	}
	return &blockCache{lru: c}, nil
}

func (c *blockCache) get(id cid.Cid) ([]byte, bool) {
	if c.lru == nil {
		return nil, false
	}
	data, ok := c.lru.Get(id.KeyString())
	if !ok {
		return nil, false
	}
	return bytes.Clone(data), true
}

func (c *blockCache) add(id cid.Cid, data []byte) {
	if c.lru != nil {
		c.lru.Add(id.KeyString(), bytes.Clone(data))
	}
}
