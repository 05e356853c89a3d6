package packsync

import "time"

// IndexRecord is one entry of a remote repository as stored in the local index.
// Repo and ID together form the primary key.
type IndexRecord struct {
	Repo string
	ID   string

	// Uploader is the marshaled public key of the uploader, if the repo records one.
	Uploader    []byte
	UploaderSig []byte

	// Pack is the CID of the record's signed pack.
	Pack      string
	Thumbnail string

	Title       string
	Duration    float64 // seconds
	Pages       int
	Parts       int
	Instruments []string

	Updated time.Time
	Created time.Time // zero when unknown
}

// Key returns the index key of the record.
func (r IndexRecord) Key() string {
	return r.Repo + "/" + r.ID
}
