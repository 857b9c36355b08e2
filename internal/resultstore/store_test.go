package resultstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/modallabs/modal-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.ResultStoreConfig{RetentionMode: "ephemeral"}
	rs, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })

	if err := rs.Append(ctx, Record{EnvelopeID: "e1", Kind: "text"}); err != nil {
		t.Fatalf("ephemeral append should be a no-op: %v", err)
	}
	records, err := rs.ListRecent(ctx, "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("ephemeral store returned %d records", len(records))
	}
}

func TestAppendAndListRecent(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.ResultStoreConfig{Path: filepath.Join(tmp, "results.db"), RetentionMode: "session"}
	rs, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open result store: %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })

	rec := Record{
		EnvelopeID: "env-123",
		Kind:       "symbol",
		Content:    "I want water right now.",
		Confidence: 0.81,
		ElapsedMS:  12,
		Warnings:   []string{"confidence near threshold"},
		Node:       "node-a",
	}
	if err := rs.Append(context.Background(), rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := rs.Append(context.Background(), Record{EnvelopeID: "env-124", Kind: "text", Content: "hello"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	records, err := rs.ListRecent(context.Background(), "symbol", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 symbol record, got %d", len(records))
	}
	got := records[0]
	if got.Content != rec.Content || got.Confidence != rec.Confidence {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Warnings) != 1 || got.Warnings[0] != rec.Warnings[0] {
		t.Fatalf("warnings mismatch: %v", got.Warnings)
	}
	if len(got.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", got.Errors)
	}

	all, err := rs.ListRecent(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 records, got %d", len(all))
	}
}

func TestPruneByDaysAndCount(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.ResultStoreConfig{
		Path:          filepath.Join(tmp, "results.db"),
		RetentionMode: "persistent",
		RetentionDays: 1,
		MaxResults:    2,
	}
	rs, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open result store: %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })

	rs.clock = func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }
	if err := rs.Append(context.Background(), Record{EnvelopeID: "stale", Kind: "text"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	rs.clock = func() time.Time { return time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC) }
	for _, id := range []string{"fresh-1", "fresh-2", "fresh-3"} {
		if err := rs.Append(context.Background(), Record{EnvelopeID: id, Kind: "text"}); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}
	if err := rs.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	records, err := rs.ListRecent(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records after prune, got %d", len(records))
	}
	for _, rec := range records {
		if rec.EnvelopeID == "stale" {
			t.Fatal("stale record survived pruning")
		}
	}
}
