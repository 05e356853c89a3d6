// Package repo implements the remote repository kinds that a sync run can crawl.
package repo

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ipfs/go-cid"

	"packsync-go/internal/packsync"
)

// Options configure repos created through a Registry.
type Options struct {
	// Concurrency bounds parallel node fetches for kinds that fan out.
	Concurrency int
}

// Constructor builds a repo of one kind.
type Constructor func(root cid.Cid, store packsync.ContentStore, opts Options) packsync.Repo

// Registry maps repo kinds to constructors. Build one at start-up and pass it
// to whatever needs to open repos.
type Registry struct {
	opts  Options
	kinds map[string]Constructor
}

// NewRegistry returns a registry with the built-in kinds registered.
func NewRegistry(opts Options) *Registry {
	r := &Registry{opts: opts, kinds: make(map[string]Constructor)}
	r.Register(KindFlatMap, func(root cid.Cid, store packsync.ContentStore, _ Options) packsync.Repo {
		return NewFlatMap(root, store)
	})
	r.Register(KindShardedMap, func(root cid.Cid, store packsync.ContentStore, opts Options) packsync.Repo {
		return NewShardedMap(root, store, opts.Concurrency)
	})
	return r
}

// Register adds or replaces the constructor for kind.
func (r *Registry) Register(kind string, ctor Constructor) {
	r.kinds[kind] = ctor
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// New opens a repo of the given kind.
func (r *Registry) New(kind string, root cid.Cid, store packsync.ContentStore) (packsync.Repo, error) {
	ctor, ok := r.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", packsync.ErrUnknownRepoKind, kind)
	}
	if !root.Defined() {
		return nil, fmt.Errorf("opening %s repo: undefined root", kind)
	}
	return ctor(root, store, r.opts), nil
}

// Open parses a repo address of the form /<kind>/ipfs/<cid> and opens the repo.
func (r *Registry) Open(address string, store packsync.ContentStore) (packsync.Repo, error) {
	kind, root, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	return r.New(kind, root, store)
}

// ParseAddress splits a repo address into its kind and root CID.
func ParseAddress(address string) (string, cid.Cid, error) {
	parts := strings.Split(strings.TrimPrefix(address, "/"), "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] != "ipfs" {
		return "", cid.Undef, fmt.Errorf("invalid repo address %q", address)
	}
	root, err := cid.Decode(parts[2])
	if err != nil {
		return "", cid.Undef, fmt.Errorf("invalid repo address %q: %w", address, err)
	}
	return parts[0], root, nil
}
