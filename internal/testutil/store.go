package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ipfs/go-cid"

	"packsync-go/internal/blockstore"
	"packsync-go/internal/dag"
	"packsync-go/internal/packsync"
)

// ErrInjected is returned by a CountingStore for CIDs marked with Fail.
var ErrInjected = errors.New("injected fetch failure")

// CountingStore wraps a blockstore and counts fetches. Individual CIDs can be
// made to fail.
type CountingStore struct {
	blockstore.Store

	mu      sync.Mutex
	fetches map[string]int
	fail    map[string]bool
}

var _ packsync.ContentStore = (*CountingStore)(nil)

// NewCountingStore wraps a fresh in-memory store.
func NewCountingStore() *CountingStore {
	return &CountingStore{
		Store:   blockstore.NewMemoryStore(),
		fetches: make(map[string]int),
		fail:    make(map[string]bool),
	}
}

func (s *CountingStore) FetchBlock(ctx context.Context, c cid.Cid) ([]byte, error) {
	if err := s.record(c); err != nil {
		return nil, err
	}
	return s.Store.FetchBlock(ctx, c)
}

func (s *CountingStore) ResolveNode(ctx context.Context, c cid.Cid, v any) error {
	if err := s.record(c); err != nil {
		return err
	}
	return s.Store.ResolveNode(ctx, c, v)
}

func (s *CountingStore) record(c cid.Cid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches[c.String()]++
	if s.fail[c.String()] {
		return fmt.Errorf("%w: %s", ErrInjected, c)
	}
	return nil
}

// Fail makes every subsequent fetch of c fail, or succeed again when fail is false.
func (s *CountingStore) Fail(c cid.Cid, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[c.String()] = fail
}

// Fetches returns the total number of fetches made.
func (s *CountingStore) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.fetches {
		n += v
	}
	return n
}

// FetchesOf returns the number of fetches of c.
func (s *CountingStore) FetchesOf(c cid.Cid) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[c.String()]
}

// Entry is the wire form of one remote map entry.
type Entry struct {
	Pack        *dag.Link `cbor:"scorepack,omitempty"`
	Thumbnail   *dag.Link `cbor:"thumbnail,omitempty"`
	Title       string    `cbor:"title,omitempty"`
	Duration    float64   `cbor:"duration,omitempty"`
	Pages       int       `cbor:"npages,omitempty"`
	Parts       int       `cbor:"nparts,omitempty"`
	Instruments []string  `cbor:"instruments,omitempty"`
	Updated     *float64  `cbor:"updated,omitempty"`
	Created     *float64  `cbor:"created,omitempty"`
	Uploader    []byte    `cbor:"_uploader,omitempty"`
}

// NewEntry returns a valid entry with the given title and update time.
func NewEntry(t *testing.T, title string, updated time.Time) Entry {
	t.Helper()
	packCid, err := dag.Sum(cid.DagCBOR, []byte("pack:"+title))
	if err != nil {
		t.Fatalf("failed to compute pack cid: %v", err)
	}
	link := dag.NewLink(packCid)
	secs := float64(updated.UnixMilli()) / 1000
	return Entry{
		Pack:        &link,
		Title:       title,
		Duration:    93.5,
		Pages:       3,
		Parts:       1,
		Instruments: []string{"piano"},
		Updated:     &secs,
	}
}

// PutMap stores a map node of entries and returns its CID.
func PutMap(t *testing.T, store blockstore.Store, entries map[string]Entry) cid.Cid {
	t.Helper()
	return putNode(t, store, entries)
}

// PutShardIndex stores a shard index node (shard name -> map) and returns its CID.
func PutShardIndex(t *testing.T, store blockstore.Store, shards map[string]cid.Cid) cid.Cid {
	t.Helper()
	links := make(map[string]dag.Link, len(shards))
	for name, c := range shards {
		links[name] = dag.NewLink(c)
	}
	return putNode(t, store, links)
}

func putNode(t *testing.T, store blockstore.Store, v any) cid.Cid {
	t.Helper()
	data, err := dag.Marshal(v)
	if err != nil {
		t.Fatalf("failed to encode node: %v", err)
	}
	c, err := store.Put(context.Background(), cid.DagCBOR, data)
	if err != nil {
		t.Fatalf("failed to store node: %v", err)
	}
	return c
}
