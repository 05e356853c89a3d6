package packsync

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
)

// Syncer drives repo crawls into the local index, checkpointing the cursor
// after every ingested batch.
type Syncer struct {
	index  Index
	logger Logger
	clock  Clock
	idgen  IDGenerator

	mu     sync.Mutex
	active map[string]bool
}

// NewSyncer creates a Syncer writing into index.
func NewSyncer(index Index, logger Logger, clock Clock, idgen IDGenerator) *Syncer {
	return &Syncer{
		index:  index,
		logger: logger,
		clock:  clock,
		idgen:  idgen,
		active: make(map[string]bool),
	}
}

// LastCursor returns the persisted cursor of repo, or the zero cursor.
func (s *Syncer) LastCursor(ctx context.Context, repo Repo) (Cursor, error) {
	cursor, err := s.index.GetCursor(ctx, repo.Address())
	if err != nil {
		return Cursor{}, fmt.Errorf("reading cursor for %s: %w", repo.Address(), err)
	}
	return cursor, nil
}

// Iterate crawls repo from its last cursor. For every batch it upserts the
// records, persists the batch cursor, then yields the ingested keys. On any
// exit the last cursor whose batch was fully upserted is persisted again, so
// a later run resumes at the first batch that was not ingested.
//
// A failure is yielded as the final element. Breaking out of the loop stops
// the crawl between batches.
func (s *Syncer) Iterate(ctx context.Context, repo Repo) iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		addr := repo.Address()
		if err := s.acquire(addr); err != nil {
			yield(nil, err)
			return
		}
		defer s.release(addr)

		cursor, err := s.LastCursor(ctx, repo)
		if err != nil {
			yield(nil, err)
			return
		}

		run := &SyncRun{
			ID:        s.idgen.New(),
			Address:   addr,
			StartedAt: s.clock.Now(),
			Status:    RunRunning,
		}
		if err := s.index.CreateSyncRun(ctx, run); err != nil {
			yield(nil, fmt.Errorf("recording sync run: %w", err))
			return
		}
		s.logger.Info("sync started", "repo", addr, "run", run.ID, "cursor", cursor.String())

		stopped, syncErr := s.drain(ctx, repo, cursor, run, &cursor, yield)

		// The consumer may have cancelled ctx; the final checkpoint still has to land.
		persistCtx := context.WithoutCancel(ctx)
		if err := s.index.PutCursor(persistCtx, addr, cursor); err != nil {
			syncErr = errors.Join(syncErr, fmt.Errorf("saving cursor for %s: %w", addr, err))
		}

		run.FinishedAt = s.clock.Now()
		switch {
		case syncErr != nil:
			run.Status = RunError
			run.Error = syncErr.Error()
		case stopped:
			run.Status = RunStopped
		default:
			run.Status = RunSuccess
		}
		if err := s.index.FinishSyncRun(persistCtx, run); err != nil {
			syncErr = errors.Join(syncErr, fmt.Errorf("recording sync run: %w", err))
		}

		if syncErr != nil {
			s.logger.Error("sync failed", "repo", addr, "run", run.ID, "ingested", run.Ingested, "error", syncErr)
			if !stopped {
				yield(nil, syncErr)
			}
			return
		}
		s.logger.Info("sync finished", "repo", addr, "run", run.ID, "ingested", run.Ingested, "status", run.Status)
	}
}

// drain pulls batches until the iterator is exhausted, an error occurs or the
// consumer stops. last is advanced only after a batch has been upserted.
func (s *Syncer) drain(ctx context.Context, repo Repo, from Cursor, run *SyncRun, last *Cursor, yield func([]string, error) bool) (stopped bool, err error) {
	it := repo.Iterator(from)
	defer func() {
		if cerr := it.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing iterator: %w", cerr)
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		batch, err := it.Next(ctx)
		if errors.Is(err, ErrExhausted) {
			return false, nil
		}
		if err != nil {
			return false, err
		}

		keys, err := s.index.Upsert(ctx, batch.Records)
		if err != nil {
			return false, fmt.Errorf("ingesting batch: %w", err)
		}
		*last = batch.Cursor
		run.Ingested += len(keys)

		if err := s.index.PutCursor(ctx, repo.Address(), batch.Cursor); err != nil {
			return false, fmt.Errorf("saving cursor for %s: %w", repo.Address(), err)
		}
		s.logger.Debug("batch ingested", "repo", repo.Address(), "records", len(keys), "cursor", batch.Cursor.String())

		if !yield(keys, nil) {
			return true, nil
		}
	}
}

// Collect runs Iterate to completion and returns every ingested key.
func (s *Syncer) Collect(ctx context.Context, repo Repo) ([]string, error) {
	var all []string
	for keys, err := range s.Iterate(ctx, repo) {
		if err != nil {
			return all, err
		}
		all = append(all, keys...)
	}
	return all, nil
}

// History returns the most recent sync runs, newest first.
func (s *Syncer) History(ctx context.Context, limit int) ([]*SyncRun, error) {
	runs, err := s.index.ListSyncRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	return runs, nil
}

func (s *Syncer) acquire(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[addr] {
		return fmt.Errorf("%w: %s", ErrSyncInProgress, addr)
	}
	s.active[addr] = true
	return nil
}

func (s *Syncer) release(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, addr)
}
