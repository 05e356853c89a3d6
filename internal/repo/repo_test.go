package repo

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/ipfs/go-cid"

	"packsync-go/internal/dag"
	"packsync-go/internal/packsync"
	"packsync-go/internal/testutil"
)

var testNow = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func drain(t *testing.T, it packsync.BatchIterator) ([]packsync.Batch, error) {
	t.Helper()
	defer it.Close()

	var batches []packsync.Batch
	for {
		b, err := it.Next(context.Background())
		if errors.Is(err, packsync.ErrExhausted) {
			return batches, nil
		}
		if err != nil {
			return batches, err
		}
		batches = append(batches, b)
	}
}

func TestFlatMap_Iterator(t *testing.T) {
	store := testutil.NewCountingStore()

	created := float64(testNow.Add(-time.Hour).UnixMilli()) / 1000
	withCreated := testutil.NewEntry(t, "Nocturne", testNow)
	withCreated.Created = &created
	thumb := dag.NewLink(mustSum(t, "thumb"))
	withCreated.Thumbnail = &thumb
	withCreated.Uploader = []byte{0x08, 0x01}

	root := testutil.PutMap(t, store, map[string]testutil.Entry{
		"b": testutil.NewEntry(t, "Ballade", testNow),
		"a": withCreated,
	})
	r := NewFlatMap(root, store)

	t.Run("one batch with root cursor", func(t *testing.T) {
		batches, err := drain(t, r.Iterator(packsync.Cursor{}))
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if len(batches) != 1 {
			t.Fatalf("got %d batches, want 1", len(batches))
		}
		b := batches[0]
		if b.Cursor.Key() != root.String() {
			t.Errorf("cursor = %v, want %s", b.Cursor, root)
		}

		var ids []string
		for _, rec := range b.Records {
			ids = append(ids, rec.ID)
			if rec.Repo != r.Address() {
				t.Errorf("record repo = %s, want %s", rec.Repo, r.Address())
			}
		}
		if !slices.Equal(ids, []string{"a", "b"}) {
			t.Errorf("ids = %v, want [a b]", ids)
		}

		a := b.Records[0]
		if a.Title != "Nocturne" || !a.Updated.Equal(testNow) {
			t.Errorf("record a = %+v", a)
		}
		if !a.Created.Equal(testNow.Add(-time.Hour)) {
			t.Errorf("Created = %v", a.Created)
		}
		if a.Thumbnail != thumb.String() || a.Pack == "" {
			t.Errorf("links = %q / %q", a.Thumbnail, a.Pack)
		}
		if string(a.Uploader) != "\x08\x01" {
			t.Errorf("Uploader = %x", a.Uploader)
		}
		if !b.Records[1].Created.IsZero() {
			t.Errorf("record b Created = %v, want zero", b.Records[1].Created)
		}
	})

	t.Run("cursor at root short-circuits", func(t *testing.T) {
		before := store.Fetches()
		batches, err := drain(t, r.Iterator(packsync.KeyCursor(root.String())))
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if len(batches) != 0 {
			t.Errorf("got %d batches, want 0", len(batches))
		}
		if store.Fetches() != before {
			t.Error("iterator fetched with a cursor at the root")
		}
	})
}

func TestFlatMap_DagJSONBytes(t *testing.T) {
	store := testutil.NewCountingStore()
	packCid := mustSum(t, "pack:Prelude")
	node := fmt.Sprintf(`{"p":{"scorepack":{"/":%q},"title":"Prelude","updated":1705314600,`+
		`"_uploader":{"/":{"bytes":"CAE"}},"_uploaderSig":{"/":{"bytes":"c2ln"}}}}`, packCid.String())
	root, err := store.Put(context.Background(), cid.DagJSON, []byte(node))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	batches, err := drain(t, NewFlatMap(root, store).Iterator(packsync.Cursor{}))
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if len(batches) != 1 || len(batches[0].Records) != 1 {
		t.Fatalf("got %d batches, want 1 with one record", len(batches))
	}
	rec := batches[0].Records[0]
	if string(rec.Uploader) != "\x08\x01" {
		t.Errorf("Uploader = %x, want 0801", rec.Uploader)
	}
	if string(rec.UploaderSig) != "sig" {
		t.Errorf("UploaderSig = %q, want sig", rec.UploaderSig)
	}
	if rec.Pack != packCid.String() {
		t.Errorf("Pack = %s, want %s", rec.Pack, packCid)
	}
}

func TestFlatMap_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*testutil.Entry)
		field  string
	}{
		{name: "no pack", mutate: func(e *testutil.Entry) { e.Pack = nil }, field: "scorepack"},
		{name: "no title", mutate: func(e *testutil.Entry) { e.Title = "" }, field: "title"},
		{name: "no updated", mutate: func(e *testutil.Entry) { e.Updated = nil }, field: "updated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewCountingStore()
			e := testutil.NewEntry(t, "Etude", testNow)
			tt.mutate(&e)
			r := NewFlatMap(testutil.PutMap(t, store, map[string]testutil.Entry{"x": e}), store)

			_, err := drain(t, r.Iterator(packsync.Cursor{}))
			var recErr *packsync.RecordError
			if !errors.As(err, &recErr) {
				t.Fatalf("Next() error = %v, want RecordError", err)
			}
			if recErr.Field != tt.field || recErr.ID != "x" {
				t.Errorf("RecordError = %+v, want field %s", recErr, tt.field)
			}
			if !errors.Is(err, packsync.ErrMalformedRecord) {
				t.Error("RecordError does not match ErrMalformedRecord")
			}
		})
	}
}

func TestFlatMap_FetchError(t *testing.T) {
	store := testutil.NewCountingStore()
	root := testutil.PutMap(t, store, map[string]testutil.Entry{"x": testutil.NewEntry(t, "x", testNow)})
	store.Fail(root, true)

	_, err := drain(t, NewFlatMap(root, store).Iterator(packsync.Cursor{}))
	var fetchErr *packsync.RemoteFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Next() error = %v, want RemoteFetchError", err)
	}
	if !fetchErr.Cid.Equals(root) {
		t.Errorf("RemoteFetchError.Cid = %s, want %s", fetchErr.Cid, root)
	}
}

func TestShardedMap_Iterator(t *testing.T) {
	store := testutil.NewCountingStore()
	m1 := testutil.PutMap(t, store, map[string]testutil.Entry{"one": testutil.NewEntry(t, "one", testNow)})
	m2 := testutil.PutMap(t, store, map[string]testutil.Entry{"two": testutil.NewEntry(t, "two", testNow)})
	m3 := testutil.PutMap(t, store, map[string]testutil.Entry{"three": testutil.NewEntry(t, "three", testNow)})
	root := testutil.PutShardIndex(t, store, map[string]cid.Cid{"a": m1, "b": m2, "c": m3, "d": m1})
	r := NewShardedMap(root, store, 3)

	t.Run("cursor grows monotonically", func(t *testing.T) {
		batches, err := drain(t, r.Iterator(packsync.Cursor{}))
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if len(batches) != 3 {
			t.Fatalf("got %d batches, want 3", len(batches))
		}
		for i, b := range batches {
			if got := len(b.Cursor.Visited()); got != i+1 {
				t.Errorf("batch %d cursor has %d maps, want %d", i, got, i+1)
			}
			if i > 0 {
				for _, id := range batches[i-1].Cursor.Visited() {
					if !b.Cursor.Has(id) {
						t.Errorf("batch %d cursor lost %s", i, id)
					}
				}
			}
		}
	})

	t.Run("visited maps are skipped", func(t *testing.T) {
		before := store.FetchesOf(m1)
		batches, err := drain(t, r.Iterator(packsync.VisitedCursor(m1.String(), m2.String())))
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if len(batches) != 1 || batches[0].Records[0].ID != "three" {
			t.Fatalf("batches = %+v, want only map three", batches)
		}
		if store.FetchesOf(m1) != before {
			t.Error("visited map was fetched")
		}
	})

	t.Run("shard index fetch error", func(t *testing.T) {
		store.Fail(root, true)
		defer store.Fail(root, false)

		_, err := drain(t, r.Iterator(packsync.Cursor{}))
		if !errors.Is(err, testutil.ErrInjected) {
			t.Errorf("Next() error = %v, want injected failure", err)
		}
	})

	t.Run("close before exhaustion", func(t *testing.T) {
		it := r.Iterator(packsync.Cursor{})
		if _, err := it.Next(context.Background()); err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if err := it.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
}

func TestShardedMap_DeliversBeforeAllMapsFetched(t *testing.T) {
	store := testutil.NewCountingStore()
	shards := make(map[string]cid.Cid)
	for i := range 10 {
		name := fmt.Sprintf("shard-%02d", i)
		shards[name] = testutil.PutMap(t, store, map[string]testutil.Entry{name: testutil.NewEntry(t, name, testNow)})
	}
	root := testutil.PutShardIndex(t, store, shards)

	it := NewShardedMap(root, store, 1).Iterator(packsync.Cursor{})
	defer it.Close()

	if _, err := it.Next(context.Background()); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	// The shard index, the delivered map and at most one map waiting for
	// the next call.
	if got := store.Fetches(); got > 3 {
		t.Errorf("first batch returned after %d fetches, want at most 3 of 11", got)
	}

	batches, err := drain(t, it)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if len(batches) != 9 {
		t.Errorf("got %d remaining batches, want 9", len(batches))
	}
}

func TestRegistry(t *testing.T) {
	store := testutil.NewCountingStore()
	reg := NewRegistry(Options{Concurrency: 2})
	root := mustSum(t, "root")

	if got := reg.Kinds(); !slices.Equal(got, []string{KindFlatMap, KindShardedMap}) {
		t.Errorf("Kinds() = %v", got)
	}

	tests := []struct {
		kind    string
		wantErr error
	}{
		{kind: KindFlatMap},
		{kind: KindShardedMap},
		{kind: "hamt", wantErr: packsync.ErrUnknownRepoKind},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			r, err := reg.New(tt.kind, root, store)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("New() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if r.Kind() != tt.kind {
				t.Errorf("Kind() = %s, want %s", r.Kind(), tt.kind)
			}
			want := "/" + tt.kind + "/ipfs/" + root.String()
			if r.Address() != want {
				t.Errorf("Address() = %s, want %s", r.Address(), want)
			}

			opened, err := reg.Open(r.Address(), store)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if opened.Address() != r.Address() {
				t.Errorf("Open() address = %s, want %s", opened.Address(), r.Address())
			}
		})
	}

	t.Run("custom kind", func(t *testing.T) {
		reg.Register("mirror", func(root cid.Cid, store packsync.ContentStore, _ Options) packsync.Repo {
			return NewFlatMap(root, store)
		})
		if !slices.Contains(reg.Kinds(), "mirror") {
			t.Error("registered kind not listed")
		}
	})
}

func TestParseAddress(t *testing.T) {
	root := mustSum(t, "root")

	tests := []struct {
		name    string
		address string
		kind    string
		wantErr bool
	}{
		{name: "flat", address: "/flat-map/ipfs/" + root.String(), kind: KindFlatMap},
		{name: "without leading slash", address: "sharded-map/ipfs/" + root.String(), kind: KindShardedMap},
		{name: "wrong scheme", address: "/flat-map/ipns/" + root.String(), wantErr: true},
		{name: "bad cid", address: "/flat-map/ipfs/nope", wantErr: true},
		{name: "too short", address: "/flat-map", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, c, err := ParseAddress(tt.address)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAddress() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if kind != tt.kind || !c.Equals(root) {
				t.Errorf("ParseAddress() = %s, %s", kind, c)
			}
		})
	}
}

func TestFromSeconds(t *testing.T) {
	got := fromSeconds(1700000000.1234)
	if got.UnixMilli() != 1700000000123 {
		t.Errorf("fromSeconds() = %d ms, want 1700000000123", got.UnixMilli())
	}
	if !strings.HasSuffix(got.Location().String(), "UTC") {
		t.Errorf("location = %s, want UTC", got.Location())
	}
}

func mustSum(t *testing.T, data string) cid.Cid {
	t.Helper()
	c, err := dag.Sum(cid.DagCBOR, []byte(data))
	if err != nil {
		t.Fatalf("Sum() error = %v", err)
	}
	return c
}
