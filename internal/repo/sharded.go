package repo

import (
	"context"
	"errors"
	"slices"

	"github.com/ipfs/go-cid"
	"github.com/sourcegraph/conc/pool"

	"packsync-go/internal/dag"
	"packsync-go/internal/packsync"
)

// KindShardedMap is a repo stored as a shard index node (shard name -> map
// link) whose children are flat map nodes. Several shards may share a map.
const KindShardedMap = "sharded-map"

// DefaultConcurrency bounds the number of map nodes fetched at once.
const DefaultConcurrency = 4

// ShardedMap crawls a shard index and the map nodes it links to.
type ShardedMap struct {
	root        cid.Cid
	store       packsync.ContentStore
	concurrency int
}

var _ packsync.Repo = (*ShardedMap)(nil)

// NewShardedMap creates a sharded-map repo rooted at the shard index root.
func NewShardedMap(root cid.Cid, store packsync.ContentStore, concurrency int) *ShardedMap {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &ShardedMap{root: root, store: store, concurrency: concurrency}
}

func (r *ShardedMap) Kind() string    { return KindShardedMap }
func (r *ShardedMap) Root() cid.Cid   { return r.root }
func (r *ShardedMap) Address() string { return packsync.Address(KindShardedMap, r.root) }

// Iterator fetches every map not in the cursor's visited set concurrently and
// yields one batch per map as fetches complete. Each batch cursor is the
// previous cursor plus that map.
func (r *ShardedMap) Iterator(cursor packsync.Cursor) packsync.BatchIterator {
	return &shardedIterator{repo: r, cursor: cursor}
}

type shardResult struct {
	mapID   cid.Cid
	records []packsync.IndexRecord
	err     error
}

type shardedIterator struct {
	repo    *ShardedMap
	cursor  packsync.Cursor
	results chan shardResult
	cancel  context.CancelFunc
	errs    []error
}

func (it *shardedIterator) Next(ctx context.Context) (packsync.Batch, error) {
	if it.results == nil {
		if err := it.start(ctx); err != nil {
			return packsync.Batch{}, err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return packsync.Batch{}, ctx.Err()
		case res, ok := <-it.results:
			if !ok {
				if len(it.errs) > 0 {
					return packsync.Batch{}, errors.Join(it.errs...)
				}
				return packsync.Batch{}, packsync.ErrExhausted
			}
			key := res.mapID.String()
			if it.cursor.Has(key) {
				continue
			}
			if res.err != nil {
				// Keep draining: other maps may still be ingested.
				it.errs = append(it.errs, res.err)
				continue
			}
			it.cursor = it.cursor.WithVisited(key)
			return packsync.Batch{Records: res.records, Cursor: it.cursor}, nil
		}
	}
}

// start reads the shard index and launches one fetch per distinct unvisited map.
func (it *shardedIterator) start(ctx context.Context) error {
	var shards map[string]dag.Link
	if err := it.repo.store.ResolveNode(ctx, it.repo.root, &shards); err != nil {
		return &packsync.RemoteFetchError{Cid: it.repo.root, Err: err}
	}

	names := make([]string, 0, len(shards))
	for name := range shards {
		names = append(names, name)
	}
	slices.Sort(names)

	var maps []cid.Cid
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		link := shards[name]
		if !link.Defined() {
			continue
		}
		key := link.Cid.String()
		if seen[key] || it.cursor.Has(key) {
			continue
		}
		seen[key] = true
		maps = append(maps, link.Cid)
	}

	runCtx, cancel := context.WithCancel(ctx)
	it.cancel = cancel
	// Unbuffered: a worker holds its map until Next takes it, so at most
	// concurrency maps are held in memory ahead of the consumer.
	it.results = make(chan shardResult)

	// Submission runs in the background since Go blocks while all workers are busy.
	go func() {
		defer close(it.results)
		p := pool.New().WithMaxGoroutines(it.repo.concurrency).WithContext(runCtx)
		addr := it.repo.Address()
		for _, m := range maps {
			if runCtx.Err() != nil {
				break
			}
			p.Go(func(ctx context.Context) error {
				records, err := loadMap(ctx, it.repo.store, addr, m)
				select {
				case it.results <- shardResult{mapID: m, records: records, err: err}:
				case <-ctx.Done():
				}
				return nil
			})
		}
		_ = p.Wait()
	}()
	return nil
}

func (it *shardedIterator) Close() error {
	if it.results == nil {
		return nil
	}
	it.cancel()
	for range it.results {
	}
	return nil
}
