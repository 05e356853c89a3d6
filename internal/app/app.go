package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ipfs/go-cid"

	"packsync-go/internal/blockstore"
	"packsync-go/internal/config"
	"packsync-go/internal/identity"
	"packsync-go/internal/index"
	"packsync-go/internal/keys"
	"packsync-go/internal/pack"
	"packsync-go/internal/packsync"
	"packsync-go/internal/profile"
	"packsync-go/internal/repo"
)

// ErrUnknownRepo is returned when a repo name is not in the config.
var ErrUnknownRepo = errors.New("unknown repo")

// App is the application layer between the CLI and the sync engine.
// It constructs all dependencies from config and closes them on Close.
type App struct {
	cfg      *config.Config
	index    *index.SQLiteIndex
	store    blockstore.Store
	repos    *repo.Registry
	ids      *identity.Registry
	keyFile  *identity.KeyFile
	syncer   *packsync.Syncer
	logger   *slog.Logger
	logFile  *os.File
	pageSize int
}

// Options tune NewApp.
type Options struct {
	Verbose bool
	Clock   packsync.Clock
	IDGen   packsync.IDGenerator
}

// NewApp creates a fully wired App from the given config.
// The caller must call Close when done.
func NewApp(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if opts.Clock == nil {
		opts.Clock = packsync.RealClock{}
	}
	if opts.IDGen == nil {
		opts.IDGen = packsync.UUIDGenerator{}
	}

	idx, err := index.NewIndexFromConfig(cfg.Index, opts.Clock)
	if err != nil {
		return nil, fmt.Errorf("creating index: %w", err)
	}
	if err := idx.CheckMigrations(); err != nil {
		idx.Close()
		return nil, fmt.Errorf("index schema out of date: %w", err)
	}

	store, err := blockstore.NewStoreFromConfig(ctx, cfg.Store)
	if err != nil {
		idx.Close()
		return nil, fmt.Errorf("creating store: %w", err)
	}

	ids, keyFile, err := identity.NewRegistryFromConfig(cfg.Identity)
	if err != nil {
		store.Close()
		idx.Close()
		return nil, fmt.Errorf("creating identity providers: %w", err)
	}

	runID := opts.Clock.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, runID, opts.Verbose)
	if err != nil {
		store.Close()
		idx.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	pageSize := cfg.Sync.PageSize
	if pageSize <= 0 {
		pageSize = index.DefaultPageSize
	}

	return &App{
		cfg:      cfg,
		index:    idx,
		store:    store,
		repos:    repo.NewRegistry(repo.Options{Concurrency: cfg.Sync.Concurrency}),
		ids:      ids,
		keyFile:  keyFile,
		syncer:   packsync.NewSyncer(idx, &slogAdapter{l: logger}, opts.Clock, opts.IDGen),
		logger:   logger,
		logFile:  logFile,
		pageSize: pageSize,
	}, nil
}

// Store returns the content store.
func (a *App) Store() blockstore.Store { return a.store }

// KeyFile returns the configured key file.
func (a *App) KeyFile() *identity.KeyFile { return a.keyFile }

// Providers returns the identity providers, optionally only the available ones.
func (a *App) Providers(onlyAvailable bool) []identity.Provider {
	return a.ids.List(onlyAvailable)
}

// RequestIdentities asks the provider of the given type for identities.
func (a *App) RequestIdentities(ctx context.Context, providerType string, inputs map[string]string) ([]identity.Identity, error) {
	p, err := a.ids.Get(providerType)
	if err != nil {
		return nil, err
	}
	ids, err := p.RequestIdentities(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("requesting identities from %s: %w", providerType, err)
	}
	return ids, nil
}

// openRepo builds the repo configured under name.
func (a *App) openRepo(name string) (packsync.Repo, error) {
	rc, ok := a.cfg.FindRepo(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRepo, name)
	}
	root, err := cid.Decode(rc.Root)
	if err != nil {
		return nil, fmt.Errorf("repo %s: invalid root: %w", name, err)
	}
	return a.repos.New(rc.Kind, root, a.store)
}

// Sync crawls the named repo into the index. onBatch, if set, is called with
// the keys of every ingested batch. Returns the number of ingested records.
func (a *App) Sync(ctx context.Context, name string, onBatch func(keys []string)) (int, error) {
	r, err := a.openRepo(name)
	if err != nil {
		return 0, err
	}

	n := 0
	for keys, err := range a.syncer.Iterate(ctx, r) {
		if err != nil {
			return n, err
		}
		n += len(keys)
		if onBatch != nil {
			onBatch(keys)
		}
	}
	return n, nil
}

// RepoStatus is a configured repo with its sync position.
type RepoStatus struct {
	Name    string
	Address string
	Cursor  packsync.Cursor
}

// Repos returns every configured repo with its persisted cursor.
func (a *App) Repos(ctx context.Context) ([]RepoStatus, error) {
	statuses := make([]RepoStatus, 0, len(a.cfg.Repos))
	for _, rc := range a.cfg.Repos {
		r, err := a.openRepo(rc.Name)
		if err != nil {
			return nil, err
		}
		cursor, err := a.syncer.LastCursor(ctx, r)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, RepoStatus{Name: rc.Name, Address: r.Address(), Cursor: cursor})
	}
	return statuses, nil
}

// Latest returns the page-th page (zero-based) of the newest records.
// A page past the end is empty.
func (a *App) Latest(ctx context.Context, page int) ([]packsync.IndexRecord, error) {
	pages, err := a.index.Query(ctx, packsync.SortLatest, a.pageSize)
	if err != nil {
		return nil, err
	}
	i := 0
	for records, err := range pages {
		if err != nil {
			return nil, err
		}
		if i == page || len(records) == 0 {
			return records, nil
		}
		i++
	}
	return nil, nil
}

// Count returns the number of indexed records.
func (a *App) Count(ctx context.Context) (int, error) {
	return a.index.Count(ctx)
}

// History returns the most recent sync runs.
func (a *App) History(ctx context.Context, limit int) ([]*packsync.SyncRun, error) {
	return a.syncer.History(ctx, limit)
}

// PackView is a loaded pack together with what could be established about it.
type PackView struct {
	CID      cid.Cid
	Pack     *pack.Pack
	Signed   bool
	Verified bool
	// VerifyErr is set when the signature material itself is malformed.
	VerifyErr error
	Uploader  profile.Profile
	// HasUploader is false when neither a signature nor a known source names the uploader.
	HasUploader bool
}

// FetchPack loads the pack stored under rawCID and checks its signature.
func (a *App) FetchPack(ctx context.Context, rawCID string) (*PackView, error) {
	c, err := cid.Decode(rawCID)
	if err != nil {
		return nil, fmt.Errorf("invalid cid: %w", err)
	}
	p, err := pack.Load(ctx, a.store, c)
	if err != nil {
		return nil, err
	}

	view := &PackView{CID: c, Pack: p, Signed: p.Signature != nil}
	if view.Signed {
		ok, err := p.Verify()
		if err != nil {
			a.logger.Warn("malformed pack signature", "cid", c, "error", err)
			view.VerifyErr = fmt.Errorf("verifying pack %s: %w", c, err)
		}
		view.Verified = ok
	}

	prof, ok, err := profile.ForPack(p)
	if err != nil {
		a.logger.Warn("resolving uploader", "cid", c, "error", err)
	}
	view.Uploader, view.HasUploader = prof, ok
	return view, nil
}

// CreatePack builds a pack from info, signs it with id and stores it.
func (a *App) CreatePack(ctx context.Context, info pack.Info, id identity.Identity) (cid.Cid, error) {
	p, err := pack.New(info)
	if err != nil {
		return cid.Undef, err
	}
	c, err := pack.Store(ctx, a.store, p, id)
	if err != nil {
		return cid.Undef, err
	}
	a.logger.Info("pack created", "cid", c, "title", p.Title)
	return c, nil
}

// RevisePack stores a new revision of the pack under prevCID.
func (a *App) RevisePack(ctx context.Context, prevCID string, info pack.Info, id identity.Identity) (cid.Cid, error) {
	prev, err := a.FetchPack(ctx, prevCID)
	if err != nil {
		return cid.Undef, err
	}
	p, err := prev.Pack.Revise(info)
	if err != nil {
		return cid.Undef, err
	}
	c, err := pack.Store(ctx, a.store, p, id)
	if err != nil {
		return cid.Undef, err
	}
	a.logger.Info("pack revised", "cid", c, "previous", prevCID)
	return c, nil
}

// Profile returns the most complete profile of pub.
func (a *App) Profile(ctx context.Context, pub keys.PublicKey) (profile.Profile, error) {
	return profile.Latest(ctx, a.store, pub)
}

// PublishProfile publishes prof for id and returns the pointer name.
func (a *App) PublishProfile(ctx context.Context, id identity.Identity, prof profile.Profile) (string, error) {
	return profile.Publish(ctx, a.store, id, prof)
}

// BackupIndex writes a consistent snapshot of the index to path.
func (a *App) BackupIndex(path string) error {
	start := time.Now()
	if err := a.index.BackupTo(path); err != nil {
		return err
	}
	a.logger.Info("index backed up", "path", path, "took", time.Since(start))
	return nil
}

// Close closes the index, the store and the log file.
func (a *App) Close() error {
	var errs []error
	if err := a.index.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing index: %w", err))
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return errors.Join(errs...)
}
