package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// checkpoint is the on-disk resume state for one adapter run (§4.B.6): the
// set of source event IDs already processed (successfully staged or
// permanently failed), so a re-run with --resume skips them instead of
// re-scraping from scratch.
type checkpoint struct {
	Adapter           string         `json:"adapter"`
	LastEventID       string         `json:"lastEventId,omitempty"`
	ProcessedEventIDs []string       `json:"processedEventIds"`
	LastRun           string         `json:"lastRun"` // ISO8601
	Stats             checkpointStats `json:"stats"`

	processed map[string]bool // derived from ProcessedEventIDs, not serialized
}

type checkpointStats struct {
	EventsProcessed int `json:"eventsProcessed"`
	MatchesStaged   int `json:"matchesStaged"`
}

// newCheckpoint starts fresh resume state for adapterID.
func newCheckpoint(adapterID string) *checkpoint {
	return &checkpoint{
		Adapter:   adapterID,
		processed: map[string]bool{},
	}
}

// loadCheckpoint reads path, returning a fresh checkpoint if the file does
// not exist (first run, or a prior run cleared it on success).
func loadCheckpoint(path string) (*checkpoint, error) {
	if path == "" {
		return newCheckpoint(""), nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return newCheckpoint(""), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", path, err)
	}

	var cp checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", path, err)
	}

	cp.processed = make(map[string]bool, len(cp.ProcessedEventIDs))
	for _, id := range cp.ProcessedEventIDs {
		cp.processed[id] = true
	}
	return &cp, nil
}

// HasProcessed reports whether sourceEventID was already handled in an
// earlier --resume'd run.
func (cp *checkpoint) HasProcessed(sourceEventID string) bool {
	return cp.processed[sourceEventID]
}

// MarkProcessed records sourceEventID as handled, whether it staged matches,
// staged zero matches terminally, or failed permanently. 0-match events are
// deliberately NOT marked by callers (§4.B.6) so they retry next run.
func (cp *checkpoint) MarkProcessed(sourceEventID string) {
	if cp.processed == nil {
		cp.processed = map[string]bool{}
	}
	if cp.processed[sourceEventID] {
		return
	}
	cp.processed[sourceEventID] = true
	cp.ProcessedEventIDs = append(cp.ProcessedEventIDs, sourceEventID)
	cp.LastEventID = sourceEventID
	cp.Stats.EventsProcessed++
}

// Save atomically writes cp to path (write-temp-then-rename, so a crash
// mid-write never leaves a truncated checkpoint file behind).
func (cp *checkpoint) Save(path string) error {
	if path == "" {
		return nil
	}

	cp.LastRun = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp checkpoint: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename checkpoint into place: %w", err)
	}
	return nil
}

// clearCheckpoint removes the checkpoint file after a clean run (§4.B.6):
// every discovered event was either staged or fully failed-and-recorded,
// so the next run should start from discovery again.
func clearCheckpoint(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove checkpoint %s: %w", path, err)
	}
	return nil
}
