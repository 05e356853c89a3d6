package blockstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/ipfs/go-cid"

	"packsync-go/internal/dag"
	"packsync-go/internal/packsync"
)

// FileSystemStore keeps blocks and pointers as files under a root directory:
//
//	<root>/
//	  blocks/
//	    <xy>/<cid>      (xy = next-to-last two characters of the CID)
//	  pointers/
//	    <escaped name>  (plain text CID)
//
// Block files are optionally zstd-compressed; reads are cached in an LRU.
type FileSystemStore struct {
	root        string
	blocksDir   string
	pointersDir string
	compressor  *compressor
	cache       *blockCache
}

var _ Store = (*FileSystemStore)(nil)

// FileSystemOptions configure a FileSystemStore.
type FileSystemOptions struct {
	CacheSize        int // blocks; 0 disables the cache
	Compression      bool
	CompressionLevel int
}

// NewFileSystemStore creates a store rooted at root, creating directories as needed.
func NewFileSystemStore(root string, opts FileSystemOptions) (*FileSystemStore, error) {
	blocksDir := filepath.Join(root, "blocks")
	pointersDir := filepath.Join(root, "pointers")

	for _, dir := range []string{blocksDir, pointersDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	comp, err := newCompressor(opts.CompressionLevel, opts.Compression)
	if err != nil {
		return nil, err
	}
	cache, err := newBlockCache(opts.CacheSize)
	if err != nil {
		comp.Close()
		return nil, err
	}

	return &FileSystemStore{
		root:        root,
		blocksDir:   blocksDir,
		pointersDir: pointersDir,
		compressor:  comp,
		cache:       cache,
	}, nil
}

// Put stores a block. The operation is idempotent.
func (s *FileSystemStore) Put(_ context.Context, codec uint64, data []byte) (cid.Cid, error) {
	c, err := dag.Sum(codec, data)
	if err != nil {
		return cid.Undef, err
	}

	path := s.blockPath(c)
	if _, err := os.Stat(path); err == nil {
		return c, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return cid.Undef, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := writeFileAtomic(path, s.compressor.encode(data)); err != nil {
		return cid.Undef, fmt.Errorf("writing block %s: %w", c, err)
	}

	s.cache.add(c, data)
	return c, nil
}

// FetchBlock reads a block and checks it against its CID.
func (s *FileSystemStore) FetchBlock(_ context.Context, c cid.Cid) ([]byte, error) {
	if data, ok := s.cache.get(c); ok {
		return data, nil
	}

	stored, err := os.ReadFile(s.blockPath(c))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", packsync.ErrBlockNotFound, c)
		}
		return nil, fmt.Errorf("failed to read block: %w", err)
	}

	data, err := s.compressor.decode(stored)
	if err != nil {
		return nil, fmt.Errorf("reading block %s: %w", c, err)
	}
	if err := dag.Verify(c, data); err != nil {
		return nil, fmt.Errorf("corrupt block %s: %w", c, err)
	}

	s.cache.add(c, data)
	return data, nil
}

func (s *FileSystemStore) ResolveNode(ctx context.Context, c cid.Cid, v any) error {
	return resolveNode(ctx, s.FetchBlock, c, v)
}

func (s *FileSystemStore) ResolvePointer(_ context.Context, name string) (cid.Cid, error) {
	data, err := os.ReadFile(s.pointerPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cid.Undef, fmt.Errorf("%w: %s", packsync.ErrPointerNotFound, name)
		}
		return cid.Undef, fmt.Errorf("failed to read pointer: %w", err)
	}

	c, err := cid.Decode(strings.TrimSpace(string(data)))
	if err != nil {
		return cid.Undef, fmt.Errorf("parsing pointer %s: %w", name, err)
	}
	return c, nil
}

func (s *FileSystemStore) SetPointer(_ context.Context, name string, c cid.Cid) error {
	if err := writeFileAtomic(s.pointerPath(name), []byte(c.String()+"\n")); err != nil {
		return fmt.Errorf("writing pointer %s: %w", name, err)
	}
	return nil
}

func (s *FileSystemStore) Close() error {
	s.compressor.Close()
	return nil
}

func (s *FileSystemStore) blockPath(c cid.Cid) string {
	key := c.String()
	return filepath.Join(s.blocksDir, key[len(key)-3:len(key)-1], key)
}

func (s *FileSystemStore) pointerPath(name string) string {
	return filepath.Join(s.pointersDir, url.PathEscape(name))
}

// writeFileAtomic writes data to path using a temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
