package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir: "/home/user/.local/share/packsync",
		LogDir:  "/home/user/.local/share/packsync/log",
		Index:   IndexConfig{Type: "sqlite", DataDir: "/home/user/.local/share/packsync/db"},
		Store: StoreConfig{
			Type:      "s3",
			CacheSize: 64,
			S3Bucket:  "packs",
			S3Prefix:  "mirror",
			S3Region:  "eu-west-1",
		},
		Identity: IdentityConfig{
			Type:           "keyfile",
			PublicKeyPath:  "/home/user/.local/share/packsync/keys/packsync.pub",
			PrivateKeyPath: "/home/user/.local/share/packsync/keys/packsync.key",
		},
		Sync: SyncConfig{Concurrency: 8, PageSize: 50},
		Repos: []RepoConfig{
			{Name: "main", Kind: "sharded-map", Root: "bafyreib"},
			{Name: "legacy", Kind: "flat-map", Root: "bafyreic"},
		},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if got.Index != original.Index {
		t.Errorf("Index = %+v, want %+v", got.Index, original.Index)
	}
	if got.Store != original.Store {
		t.Errorf("Store = %+v, want %+v", got.Store, original.Store)
	}
	if got.Identity != original.Identity {
		t.Errorf("Identity = %+v, want %+v", got.Identity, original.Identity)
	}
	if got.Sync != original.Sync {
		t.Errorf("Sync = %+v, want %+v", got.Sync, original.Sync)
	}
	if len(got.Repos) != 2 {
		t.Fatalf("len(Repos) = %d, want 2", len(got.Repos))
	}
	if got.Repos[0] != original.Repos[0] {
		t.Errorf("Repos[0] = %+v, want %+v", got.Repos[0], original.Repos[0])
	}
}

func TestManager_Write_OmitsUnusedUnionFields(t *testing.T) {
	cfg := &Config{Store: StoreConfig{Type: "memory"}}

	var buf bytes.Buffer
	if err := (&Manager{}).Write(&buf, cfg); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if strings.Contains(buf.String(), "s3_bucket") {
		t.Errorf("encoded config contains s3_bucket for a memory store:\n%s", buf.String())
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/packsync")

	if cfg.BaseDir != "/data/packsync" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/packsync")
	}
	if cfg.LogDir != "/data/packsync/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/packsync/log")
	}
	if cfg.Index.Type != "sqlite" || cfg.Index.DataDir != "/data/packsync/db" {
		t.Errorf("Index = %+v, want sqlite in /data/packsync/db", cfg.Index)
	}
	if cfg.Store.Type != "filesystem" || cfg.Store.FSRoot != "/data/packsync/blocks" {
		t.Errorf("Store = %+v, want filesystem in /data/packsync/blocks", cfg.Store)
	}
	if cfg.Identity.PublicKeyPath != "/data/packsync/keys/packsync.pub" {
		t.Errorf("Identity.PublicKeyPath = %q, want %q", cfg.Identity.PublicKeyPath, "/data/packsync/keys/packsync.pub")
	}
	if cfg.Identity.PrivateKeyPath != "/data/packsync/keys/packsync.key" {
		t.Errorf("Identity.PrivateKeyPath = %q, want %q", cfg.Identity.PrivateKeyPath, "/data/packsync/keys/packsync.key")
	}
	if cfg.Sync.PageSize != 20 {
		t.Errorf("Sync.PageSize = %d, want 20", cfg.Sync.PageSize)
	}
}

func TestConfig_FindRepo(t *testing.T) {
	cfg := &Config{Repos: []RepoConfig{{Name: "a", Kind: "flat-map", Root: "x"}}}

	if r, ok := cfg.FindRepo("a"); !ok || r.Root != "x" {
		t.Errorf("FindRepo(a) = %+v, %v", r, ok)
	}
	if _, ok := cfg.FindRepo("b"); ok {
		t.Error("FindRepo(b) found a repo, want none")
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "packsync.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "packsync.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "packsync.toml")
		cfg := NewConfig(dir)
		cfg.Index = IndexConfig{Type: "memory"}
		cfg.Repos = []RepoConfig{{Name: "main", Kind: "flat-map", Root: "bafy"}}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Index.Type != "memory" {
			t.Errorf("Index.Type = %q, want %q", got.Index.Type, "memory")
		}
		if len(got.Repos) != 1 || got.Repos[0].Name != "main" {
			t.Errorf("Repos = %+v, want one repo named main", got.Repos)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/packsync.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}

func TestWriteToFile_Overwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "packsync.toml")

	cfg := NewConfig(dir)
	if err := Init(path, cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	cfg.Repos = append(cfg.Repos, RepoConfig{Name: "added", Kind: "flat-map", Root: "bafy"})
	if err := WriteToFile(path, cfg); err != nil {
		t.Fatalf("WriteToFile() error = %v", err)
	}

	got, err := ReadFromFile(path)
	if err != nil {
		t.Fatalf("ReadFromFile() error = %v", err)
	}
	if _, ok := got.FindRepo("added"); !ok {
		t.Error("repo added after Init was not persisted")
	}
}
