package repo

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/ipfs/go-cid"

	"packsync-go/internal/dag"
	"packsync-go/internal/packsync"
)

// entry is the value of one key in a remote map node.
type entry struct {
	Pack        *dag.Link `cbor:"scorepack" json:"scorepack"`
	Thumbnail   *dag.Link `cbor:"thumbnail" json:"thumbnail"`
	Title       *string   `cbor:"title" json:"title"`
	Duration    float64   `cbor:"duration" json:"duration"`
	Pages       int       `cbor:"npages" json:"npages"`
	Parts       int       `cbor:"nparts" json:"nparts"`
	Instruments []string  `cbor:"instruments" json:"instruments"`
	Updated     *float64  `cbor:"updated" json:"updated"`
	Created     *float64  `cbor:"created" json:"created"`
	Uploader    dag.Bytes `cbor:"_uploader" json:"_uploader"`
	UploaderSig dag.Bytes `cbor:"_uploaderSig" json:"_uploaderSig"`
}

// loadMap fetches the map node c and rebuilds one record per entry,
// ordered by entry key.
func loadMap(ctx context.Context, store packsync.ContentStore, addr string, c cid.Cid) ([]packsync.IndexRecord, error) {
	var m map[string]entry
	if err := store.ResolveNode(ctx, c, &m); err != nil {
		return nil, &packsync.RemoteFetchError{Cid: c, Err: err}
	}

	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	records := make([]packsync.IndexRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := m[id].record(addr, id)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (e entry) record(addr, id string) (packsync.IndexRecord, error) {
	switch {
	case e.Pack == nil || !e.Pack.Defined():
		return packsync.IndexRecord{}, &packsync.RecordError{Repo: addr, ID: id, Field: "scorepack"}
	case e.Title == nil || *e.Title == "":
		return packsync.IndexRecord{}, &packsync.RecordError{Repo: addr, ID: id, Field: "title"}
	case e.Updated == nil || math.IsNaN(*e.Updated) || math.IsInf(*e.Updated, 0):
		return packsync.IndexRecord{}, &packsync.RecordError{Repo: addr, ID: id, Field: "updated"}
	}

	rec := packsync.IndexRecord{
		Repo:        addr,
		ID:          id,
		Uploader:    []byte(e.Uploader),
		UploaderSig: []byte(e.UploaderSig),
		Pack:        e.Pack.String(),
		Title:       *e.Title,
		Duration:    e.Duration,
		Pages:       e.Pages,
		Parts:       e.Parts,
		Instruments: e.Instruments,
		Updated:     fromSeconds(*e.Updated),
	}
	if e.Thumbnail != nil {
		rec.Thumbnail = e.Thumbnail.String()
	}
	if e.Created != nil {
		rec.Created = fromSeconds(*e.Created)
	}
	return rec, nil
}

// fromSeconds converts a Unix timestamp in (fractional) seconds, keeping
// millisecond precision.
func fromSeconds(s float64) time.Time {
	return time.UnixMilli(int64(math.Round(s * 1000))).UTC()
}
