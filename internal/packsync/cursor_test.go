package packsync

import (
	"encoding/json"
	"slices"
	"testing"
)

func TestCursor_JSON(t *testing.T) {
	tests := []struct {
		name   string
		cursor Cursor
		want   string
	}{
		{name: "never synced", cursor: Cursor{}, want: `null`},
		{name: "key", cursor: KeyCursor("bafyroot"), want: `"bafyroot"`},
		{name: "visited set is sorted", cursor: VisitedCursor("b", "a", "c"), want: `["a","b","c"]`},
		{name: "empty visited set", cursor: VisitedCursor(), want: `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.cursor)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Marshal() = %s, want %s", data, tt.want)
			}

			var got Cursor
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if !got.Equal(tt.cursor) {
				t.Errorf("Unmarshal() = %v, want %v", got, tt.cursor)
			}
		})
	}

	t.Run("rejects other values", func(t *testing.T) {
		var c Cursor
		if err := json.Unmarshal([]byte(`{"k":1}`), &c); err == nil {
			t.Error("Unmarshal() of an object succeeded")
		}
	})
}

func TestCursor_WithVisitedDoesNotAlias(t *testing.T) {
	base := VisitedCursor("a")
	next := base.WithVisited("b")

	if base.Has("b") {
		t.Error("WithVisited modified the receiver")
	}
	if !next.Has("a") || !next.Has("b") {
		t.Errorf("next = %v, want a and b", next.Visited())
	}

	fromZero := Cursor{}.WithVisited("x")
	if !slices.Equal(fromZero.Visited(), []string{"x"}) {
		t.Errorf("Visited() = %v, want [x]", fromZero.Visited())
	}
}

func TestCursor_Shapes(t *testing.T) {
	if !(Cursor{}).IsZero() {
		t.Error("zero cursor IsZero() = false")
	}
	if KeyCursor("k").IsZero() || VisitedCursor().IsZero() {
		t.Error("non-zero cursor reported as zero")
	}
	if KeyCursor("k").Equal(VisitedCursor("k")) {
		t.Error("key and visited cursors compare equal")
	}
	if VisitedCursor().Equal(Cursor{}) {
		t.Error("empty visited set equals never-synced cursor")
	}
}
