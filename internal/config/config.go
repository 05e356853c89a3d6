package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for packsync.
type Config struct {
	BaseDir  string         `toml:"base_dir"`
	LogDir   string         `toml:"log_dir"`
	Index    IndexConfig    `toml:"index"`
	Store    StoreConfig    `toml:"store"`
	Identity IdentityConfig `toml:"identity"`
	Sync     SyncConfig     `toml:"sync"`
	Repos    []RepoConfig   `toml:"repos"`
}

// IndexConfig represents configuration for the local index.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type IndexConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// StoreConfig represents configuration for the content store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type string `toml:"type"` // "memory", "filesystem" or "s3"

	CacheSize        int  `toml:"cache_size"` // blocks kept in memory; 0 disables the cache
	Compression      bool `toml:"compression"`
	CompressionLevel int  `toml:"compression_level,omitempty"` // 1 (fastest) to 4 (best)

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"`
}

// IdentityConfig holds paths to the signing key pair.
type IdentityConfig struct {
	Type           string `toml:"type"` // "keyfile" (default)
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// SyncConfig tunes sync runs and index queries.
type SyncConfig struct {
	Concurrency int `toml:"concurrency"` // parallel map fetches for sharded repos
	PageSize    int `toml:"page_size"`
}

// RepoConfig names a remote repository to sync.
type RepoConfig struct {
	Name string `toml:"name"`
	Kind string `toml:"kind"` // "flat-map" or "sharded-map"
	Root string `toml:"root"` // CID of the root map or shard index
}

// NewConfig creates a new Config rooted at baseDir with default settings.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Index: IndexConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Store: StoreConfig{
			Type:        "filesystem",
			FSRoot:      filepath.Join(baseDir, "blocks"),
			CacheSize:   256,
			Compression: true,
		},
		Identity: IdentityConfig{
			Type:           "keyfile",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "packsync.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "packsync.key"),
		},
		Sync: SyncConfig{
			Concurrency: 4,
			PageSize:    20,
		},
	}
}

// FindRepo returns the repo with the given name.
func (c *Config) FindRepo(name string) (RepoConfig, bool) {
	for _, r := range c.Repos {
		if r.Name == name {
			return r, true
		}
	}
	return RepoConfig{}, false
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// WriteToFile replaces the config file at path.
func WriteToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := WriteToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
