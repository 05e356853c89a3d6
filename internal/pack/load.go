package pack

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"

	"packsync-go/internal/dag"
	"packsync-go/internal/packsync"
)

// BlockFetcher reads raw blocks by CID.
type BlockFetcher interface {
	FetchBlock(ctx context.Context, c cid.Cid) ([]byte, error)
}

// BlockPutter stores raw blocks.
type BlockPutter interface {
	Put(ctx context.Context, codec uint64, data []byte) (cid.Cid, error)
}

// Load fetches the block c and decodes it as a pack. The block must hash to c.
func Load(ctx context.Context, store BlockFetcher, c cid.Cid) (*Pack, error) {
	data, err := store.FetchBlock(ctx, c)
	if err != nil {
		return nil, &packsync.RemoteFetchError{Cid: c, Err: err}
	}
	if err := dag.Verify(c, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCIDMismatch, err)
	}
	p, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("loading pack %s: %w", c, err)
	}
	return p, nil
}

// Store signs p with id, writes it to store and returns its CID.
func Store(ctx context.Context, store BlockPutter, p *Pack, id packsync.Identity) (cid.Cid, error) {
	data, err := p.Flush(ctx, id)
	if err != nil {
		return cid.Undef, err
	}
	c, err := store.Put(ctx, cid.DagCBOR, data)
	if err != nil {
		return cid.Undef, fmt.Errorf("storing pack: %w", err)
	}
	return c, nil
}
