package blockstore

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/ipfs/go-cid"

	"packsync-go/internal/dag"
	"packsync-go/internal/packsync"
)

// MemoryStore keeps blocks and pointers in memory. It is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	blocks   map[string][]byte // cid key -> block
	pointers map[string]cid.Cid
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blocks:   make(map[string][]byte),
		pointers: make(map[string]cid.Cid),
	}
}

func (m *MemoryStore) Put(_ context.Context, codec uint64, data []byte) (cid.Cid, error) {
	c, err := dag.Sum(codec, data)
	if err != nil {
		return cid.Undef, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[c.KeyString()] = bytes.Clone(data)
	return c, nil
}

func (m *MemoryStore) FetchBlock(_ context.Context, c cid.Cid) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blocks[c.KeyString()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", packsync.ErrBlockNotFound, c)
	}
	return bytes.Clone(data), nil
}

func (m *MemoryStore) ResolveNode(ctx context.Context, c cid.Cid, v any) error {
	return resolveNode(ctx, m.FetchBlock, c, v)
}

func (m *MemoryStore) ResolvePointer(_ context.Context, name string) (cid.Cid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.pointers[name]
	if !ok {
		return cid.Undef, fmt.Errorf("%w: %s", packsync.ErrPointerNotFound, name)
	}
	return c, nil
}

func (m *MemoryStore) SetPointer(_ context.Context, name string, c cid.Cid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pointers[name] = c
	return nil
}

func (m *MemoryStore) Close() error { return nil }
