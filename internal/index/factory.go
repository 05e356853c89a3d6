package index

import (
	"fmt"
	"os"
	"path/filepath"

	"packsync-go/internal/config"
	"packsync-go/internal/packsync"
)

// IndexFileName is the file name of the index inside the configured data dir.
const IndexFileName = "index.db"

// NewIndexFromConfig opens the index described by cfg and brings its schema
// up to date.
func NewIndexFromConfig(cfg config.IndexConfig, clock packsync.Clock) (*SQLiteIndex, error) {
	var path string
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite index")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
		path = filepath.Join(cfg.DataDir, IndexFileName)
	case "memory":
		path = ":memory:"
	default:
		return nil, fmt.Errorf("unknown index type: %s", cfg.Type)
	}

	idx, err := NewSQLiteIndex(path, clock)
	if err != nil {
		return nil, err
	}
	if err := idx.MigrateUp(); err != nil {
		idx.Close()
		return nil, fmt.Errorf("migrating index: %w", err)
	}
	return idx, nil
}
