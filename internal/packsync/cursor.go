package packsync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Cursor is the resumption state of a crawl. It has three shapes: the zero
// value (never synced), a single opaque key, or a set of visited node ids.
// Cursors are values; the With* methods return a new cursor and never
// modify the receiver.
type Cursor struct {
	key     string
	visited map[string]struct{}
}

// KeyCursor returns a cursor holding a single key.
func KeyCursor(key string) Cursor {
	return Cursor{key: key}
}

// VisitedCursor returns a cursor holding the given set of visited ids.
func VisitedCursor(ids ...string) Cursor {
	c := Cursor{visited: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		c.visited[id] = struct{}{}
	}
	return c
}

// IsZero reports whether the cursor is the never-synced cursor.
func (c Cursor) IsZero() bool {
	return c.key == "" && c.visited == nil
}

// Key returns the single key, or "" for other shapes.
func (c Cursor) Key() string { return c.key }

// Has reports whether id is in the visited set.
func (c Cursor) Has(id string) bool {
	_, ok := c.visited[id]
	return ok
}

// Visited returns the visited ids in sorted order.
func (c Cursor) Visited() []string {
	return slices.Sorted(maps.Keys(c.visited))
}

// WithVisited returns a copy of c with id added to the visited set.
func (c Cursor) WithVisited(id string) Cursor {
	next := Cursor{visited: make(map[string]struct{}, len(c.visited)+1)}
	maps.Copy(next.visited, c.visited)
	next.visited[id] = struct{}{}
	return next
}

// Equal reports whether two cursors hold the same state.
func (c Cursor) Equal(o Cursor) bool {
	if c.key != o.key || (c.visited == nil) != (o.visited == nil) {
		return false
	}
	return maps.Equal(c.visited, o.visited)
}

func (c Cursor) String() string {
	switch {
	case c.visited != nil:
		return fmt.Sprintf("visited(%d)", len(c.visited))
	case c.key != "":
		return c.key
	default:
		return "<none>"
	}
}

// MarshalJSON encodes the cursor as null, a string, or an array of ids.
func (c Cursor) MarshalJSON() ([]byte, error) {
	switch {
	case c.visited != nil:
		ids := c.Visited()
		if ids == nil {
			ids = []string{}
		}
		return json.Marshal(ids)
	case c.key != "":
		return json.Marshal(c.key)
	default:
		return []byte("null"), nil
	}
}

func (c *Cursor) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*c = Cursor{}
	case len(data) > 0 && data[0] == '"':
		var key string
		if err := json.Unmarshal(data, &key); err != nil {
			return fmt.Errorf("decoding cursor key: %w", err)
		}
		*c = KeyCursor(key)
	case len(data) > 0 && data[0] == '[':
		var ids []string
		if err := json.Unmarshal(data, &ids); err != nil {
			return fmt.Errorf("decoding cursor set: %w", err)
		}
		*c = VisitedCursor(ids...)
	default:
		return fmt.Errorf("decoding cursor: unexpected value %q", data)
	}
	return nil
}
