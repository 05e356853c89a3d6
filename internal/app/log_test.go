package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPacksyncHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		runID   string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			runID:   "run-123",
			level:   slog.LevelInfo,
			message: "sync started",
			want:    "2024-06-15T14:30:45Z\tINFO\trun-123\tsync started\n",
		},
		{
			name:    "debug level",
			runID:   "run-456",
			level:   slog.LevelDebug,
			message: "batch ingested",
			want:    "2024-06-15T14:30:45Z\tDEBUG\trun-456\tbatch ingested\n",
		},
		{
			name:    "with record attrs",
			runID:   "run-789",
			level:   slog.LevelInfo,
			message: "pack created",
			attrs:   []slog.Attr{slog.String("path", "bafyroot"), slog.Int("size", 42)},
			want:    "2024-06-15T14:30:45Z\tINFO\trun-789\tpack created\tpath=bafyroot\tsize=42\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &packsyncHandler{w: &buf, runID: tt.runID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestPacksyncHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &packsyncHandler{w: &buf, runID: "run-1"}

	// Add pre-set attrs
	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "syncer")}).(*packsyncHandler)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "fetch", 0)
	r.AddAttrs(slog.String("key", "abc"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=syncer") {
		t.Errorf("expected pre-set attr component=syncer, got: %q", got)
	}
	if !strings.Contains(got, "key=abc") {
		t.Errorf("expected record attr key=abc, got: %q", got)
	}
}

func TestPacksyncHandler_WithAttrs_doesNotMutateOriginal(t *testing.T) {
	var buf bytes.Buffer
	h := &packsyncHandler{w: &buf, runID: "run-1", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("b", "2")}).(*packsyncHandler)

	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}
	if len(h2.attrs) != 2 {
		t.Errorf("new handler attrs: got %d, want 2", len(h2.attrs))
	}
}

func TestPacksyncHandler_Enabled(t *testing.T) {
	tests := []struct {
		name  string
		level slog.Leveler
		check slog.Level
		want  bool
	}{
		{name: "no level enables debug", check: slog.LevelDebug, want: true},
		{name: "info hides debug", level: slog.LevelInfo, check: slog.LevelDebug, want: false},
		{name: "info shows info", level: slog.LevelInfo, check: slog.LevelInfo, want: true},
		{name: "info shows error", level: slog.LevelInfo, check: slog.LevelError, want: true},
		{name: "debug shows debug", level: slog.LevelDebug, check: slog.LevelDebug, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &packsyncHandler{level: tt.level}
			if got := h.Enabled(context.Background(), tt.check); got != tt.want {
				t.Errorf("Enabled(%v) = %v, want %v", tt.check, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()

	logger, f, err := newLogger(dir, "test-run", false)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	if logger == nil {
		t.Fatal("newLogger() returned nil logger")
	}
	if f == nil {
		t.Fatal("newLogger() returned nil file")
	}
}

func TestNewLogger_writesLogFile(t *testing.T) {
	dir := t.TempDir()

	logger, f, err := newLogger(dir, "run-9", false)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	logger.Debug("hidden")
	logger.Info("visible", "repo", "r1")
	f.Close()

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	got := string(data)
	if strings.Contains(got, "hidden") {
		t.Errorf("debug record written without verbose: %q", got)
	}
	if !strings.Contains(got, "\tINFO\trun-9\tvisible\trepo=r1\n") {
		t.Errorf("log file = %q", got)
	}
}
