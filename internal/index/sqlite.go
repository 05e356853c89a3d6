// Package index implements the local secondary index over synced records.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"packsync-go/internal/index/migrations"
	"packsync-go/internal/packsync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// DefaultPageSize is used when a query is made with a non-positive page size.
const DefaultPageSize = 20

// SQLiteIndex implements packsync.Index on SQLite.
type SQLiteIndex struct {
	db    *sql.DB
	clock packsync.Clock
	path  string
}

var _ packsync.Index = (*SQLiteIndex)(nil)

// NewSQLiteIndex opens the index at path, or ":memory:" for an in-memory
// index. The schema is not migrated; call MigrateUp or CheckMigrations.
func NewSQLiteIndex(path string, clock packsync.Clock) (*SQLiteIndex, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = packsync.RealClock{}
	}
	return &SQLiteIndex{db: db, clock: clock, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	// PRAGMAs are per connection and every :memory: connection is its own
	// database, so the pool is held to one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// Records

const upsertRecord = `
INSERT INTO records (repo, id, uploader, uploader_sig, pack, thumbnail, title,
                     duration, npages, nparts, updated, created)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (repo, id) DO UPDATE SET
    uploader = excluded.uploader,
    uploader_sig = excluded.uploader_sig,
    pack = excluded.pack,
    thumbnail = excluded.thumbnail,
    title = excluded.title,
    duration = excluded.duration,
    npages = excluded.npages,
    nparts = excluded.nparts,
    updated = excluded.updated,
    created = excluded.created`

// Upsert inserts or replaces records in a single transaction. Either every
// record is written or none is.
func (s *SQLiteIndex) Upsert(ctx context.Context, records []packsync.IndexRecord) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	recStmt, err := tx.PrepareContext(ctx, upsertRecord)
	if err != nil {
		return nil, fmt.Errorf("preparing record upsert: %w", err)
	}
	defer recStmt.Close()

	delStmt, err := tx.PrepareContext(ctx, `DELETE FROM record_instruments WHERE repo = ? AND id = ?`)
	if err != nil {
		return nil, fmt.Errorf("preparing instrument delete: %w", err)
	}
	defer delStmt.Close()

	insStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO record_instruments (repo, id, position, instrument) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("preparing instrument insert: %w", err)
	}
	defer insStmt.Close()

	keys := make([]string, 0, len(records))
	for _, r := range records {
		_, err := recStmt.ExecContext(ctx,
			r.Repo, r.ID, r.Uploader, r.UploaderSig, r.Pack, r.Thumbnail, r.Title,
			r.Duration, r.Pages, r.Parts, r.Updated.UnixMilli(), nullMillis(r.Created))
		if err != nil {
			return nil, fmt.Errorf("upserting record %s: %w", r.Key(), err)
		}

		if _, err := delStmt.ExecContext(ctx, r.Repo, r.ID); err != nil {
			return nil, fmt.Errorf("clearing instruments of %s: %w", r.Key(), err)
		}
		for i, inst := range r.Instruments {
			if _, err := insStmt.ExecContext(ctx, r.Repo, r.ID, i, inst); err != nil {
				return nil, fmt.Errorf("inserting instrument of %s: %w", r.Key(), err)
			}
		}
		keys = append(keys, r.Key())
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return keys, nil
}

const selectRecord = `
SELECT repo, id, uploader, uploader_sig, pack, thumbnail, title,
       duration, npages, nparts, updated, created
FROM records`

// Get returns one record, or nil if it is not indexed.
func (s *SQLiteIndex) Get(ctx context.Context, repo, id string) (*packsync.IndexRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectRecord+` WHERE repo = ? AND id = ?`, repo, id)
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}
	records, err := s.scanRecords(ctx, rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// Count returns the number of indexed records.
func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

// Query returns the pages of records in the requested order. The view is
// fixed when Query is called; the sequence ends after the first empty page.
func (s *SQLiteIndex) Query(ctx context.Context, sort packsync.SortMode, pageSize int) (iter.Seq2[[]packsync.IndexRecord, error], error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var q string
	var args []any
	switch sort {
	case packsync.SortLatest:
		q = selectRecord + ` WHERE updated <= ? ORDER BY updated DESC, repo, id LIMIT ? OFFSET ?`
		args = []any{s.clock.Now().UnixMilli()}
	default:
		return nil, fmt.Errorf("%w: %q", packsync.ErrUnsupportedSort, sort)
	}

	return func(yield func([]packsync.IndexRecord, error) bool) {
		for offset := 0; ; offset += pageSize {
			rows, err := s.db.QueryContext(ctx, q, append(args, pageSize, offset)...)
			if err != nil {
				yield(nil, fmt.Errorf("querying %s page: %w", sort, err))
				return
			}
			page, err := s.scanRecords(ctx, rows)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(page, nil) || len(page) == 0 {
				return
			}
		}
	}, nil
}

// scanRecords reads and closes rows, then loads instruments for each record.
func (s *SQLiteIndex) scanRecords(ctx context.Context, rows *sql.Rows) ([]packsync.IndexRecord, error) {
	records := []packsync.IndexRecord{}
	for rows.Next() {
		var r packsync.IndexRecord
		var updated int64
		var created sql.NullInt64
		if err := rows.Scan(&r.Repo, &r.ID, &r.Uploader, &r.UploaderSig, &r.Pack, &r.Thumbnail,
			&r.Title, &r.Duration, &r.Pages, &r.Parts, &updated, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		r.Updated = time.UnixMilli(updated).UTC()
		if created.Valid {
			r.Created = time.UnixMilli(created.Int64).UTC()
		}
		records = append(records, r)
	}
	err := rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}

	for i := range records {
		inst, err := s.instruments(ctx, records[i].Repo, records[i].ID)
		if err != nil {
			return nil, err
		}
		records[i].Instruments = inst
	}
	return records, nil
}

func (s *SQLiteIndex) instruments(ctx context.Context, repo, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT instrument FROM record_instruments WHERE repo = ? AND id = ? ORDER BY position`, repo, id)
	if err != nil {
		return nil, fmt.Errorf("loading instruments: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var inst string
		if err := rows.Scan(&inst); err != nil {
			return nil, fmt.Errorf("scanning instrument: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func nullMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

// Cursors

// GetCursor returns the cursor stored for address, or the zero cursor.
func (s *SQLiteIndex) GetCursor(ctx context.Context, address string) (packsync.Cursor, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT cursor FROM repos WHERE address = ?`, address).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return packsync.Cursor{}, nil
	}
	if err != nil {
		return packsync.Cursor{}, fmt.Errorf("getting cursor for %s: %w", address, err)
	}

	var c packsync.Cursor
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return packsync.Cursor{}, fmt.Errorf("decoding cursor for %s: %w", address, err)
	}
	return c, nil
}

// PutCursor stores the cursor for address, replacing any previous value.
func (s *SQLiteIndex) PutCursor(ctx context.Context, address string, cursor packsync.Cursor) error {
	raw, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("encoding cursor: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO repos (address, cursor) VALUES (?, ?)
		 ON CONFLICT (address) DO UPDATE SET cursor = excluded.cursor`, address, string(raw))
	if err != nil {
		return fmt.Errorf("putting cursor for %s: %w", address, err)
	}
	return nil
}

// Sync run history

func (s *SQLiteIndex) CreateSyncRun(ctx context.Context, run *packsync.SyncRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (id, address, started_at, status) VALUES (?, ?, ?, ?)`,
		run.ID, run.Address, run.StartedAt.UTC(), run.Status)
	if err != nil {
		return fmt.Errorf("creating sync run: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) FinishSyncRun(ctx context.Context, run *packsync.SyncRun) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs SET finished_at = ?, status = ?, ingested = ?, error = ? WHERE id = ?`,
		run.FinishedAt.UTC(), run.Status, run.Ingested, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("finishing sync run: %w", err)
	}
	return nil
}

// ListSyncRuns returns the most recent runs first.
func (s *SQLiteIndex) ListSyncRuns(ctx context.Context, limit int) ([]*packsync.SyncRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, address, started_at, finished_at, status, ingested, error
		 FROM sync_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*packsync.SyncRun
	for rows.Next() {
		var run packsync.SyncRun
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.Address, &run.StartedAt, &finished,
			&run.Status, &run.Ingested, &run.Error); err != nil {
			return nil, fmt.Errorf("scanning sync run: %w", err)
		}
		if finished.Valid {
			run.FinishedAt = finished.Time
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// Maintenance

// Path returns the index file path (or ":memory:").
func (s *SQLiteIndex) Path() string {
	return s.path
}

// MigrateUp applies pending schema migrations.
func (s *SQLiteIndex) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the schema is up-to-date.
func (s *SQLiteIndex) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo writes a complete copy of the index to destPath using VACUUM INTO.
func (s *SQLiteIndex) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up index: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteIndex) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
