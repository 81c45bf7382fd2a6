package engine

import (
	"path/filepath"
	"testing"
)

func TestCheckpointMarkAndHasProcessed(t *testing.T) {
	cp := newCheckpoint("gotsport-sample")

	if cp.HasProcessed("evt-1") {
		t.Fatal("expected evt-1 unprocessed on a fresh checkpoint")
	}

	cp.MarkProcessed("evt-1")
	if !cp.HasProcessed("evt-1") {
		t.Fatal("expected evt-1 processed after MarkProcessed")
	}

	cp.MarkProcessed("evt-1")
	if len(cp.ProcessedEventIDs) != 1 {
		t.Fatalf("expected MarkProcessed to be idempotent, got %d entries", len(cp.ProcessedEventIDs))
	}
}

func TestCheckpointSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")

	cp := newCheckpoint("leagueapps-sample")
	cp.MarkProcessed("evt-1")
	cp.MarkProcessed("evt-2")

	if err := cp.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := loadCheckpoint(path)
	if err != nil {
		t.Fatalf("loadCheckpoint: %v", err)
	}

	if !loaded.HasProcessed("evt-1") || !loaded.HasProcessed("evt-2") {
		t.Fatalf("expected both events marked processed after round trip, got %v", loaded.ProcessedEventIDs)
	}
	if loaded.Adapter != "leagueapps-sample" {
		t.Fatalf("expected adapter id to survive round trip, got %q", loaded.Adapter)
	}
}

func TestLoadCheckpointMissingFileReturnsFresh(t *testing.T) {
	cp, err := loadCheckpoint(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("loadCheckpoint on missing file: %v", err)
	}
	if cp.HasProcessed("anything") {
		t.Fatal("expected a fresh checkpoint for a missing file")
	}
}

func TestClearCheckpointRemovesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")

	cp := newCheckpoint("gotsport-sample")
	cp.MarkProcessed("evt-1")
	if err := cp.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := clearCheckpoint(path); err != nil {
		t.Fatalf("clearCheckpoint: %v", err)
	}

	loaded, err := loadCheckpoint(path)
	if err != nil {
		t.Fatalf("loadCheckpoint after clear: %v", err)
	}
	if loaded.HasProcessed("evt-1") {
		t.Fatal("expected a cleared checkpoint to come back empty")
	}
}
