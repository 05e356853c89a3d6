package blockstore

import (
	"context"
	"fmt"

	"packsync-go/internal/config"
)

// NewStoreFromConfig creates a Store implementation based on the store config type.
func NewStoreFromConfig(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem store requires fs_root to be set")
		}
		return NewFileSystemStore(cfg.FSRoot, FileSystemOptions{
			CacheSize:        cfg.CacheSize,
			Compression:      cfg.Compression,
			CompressionLevel: cfg.CompressionLevel,
		})
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 store requires s3_bucket to be set")
		}
		return NewS3StoreFromOptions(ctx, S3Options{
			Bucket:           cfg.S3Bucket,
			Prefix:           cfg.S3Prefix,
			Region:           cfg.S3Region,
			Endpoint:         cfg.S3Endpoint,
			CacheSize:        cfg.CacheSize,
			Compression:      cfg.Compression,
			CompressionLevel: cfg.CompressionLevel,
		})
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
