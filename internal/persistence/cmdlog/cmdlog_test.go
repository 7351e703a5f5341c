package cmdlog

import (
	"path/filepath"
	"testing"

	"regent/internal/sim/step"
)

func TestReplayJournalRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.jsonl.zst")
	meta := Meta{
		SimVersion:   "0.3",
		ManifestHash: "abcd",
		Scenario:     "two_crowns",
		Seed:         42,
		Checksum:     "c0",
	}
	w, err := NewFile(path, meta)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	entries := []Entry{
		{Tick: 1, Batch: []step.Issued{
			{Country: "SWE", Cmd: step.Command{Kind: step.CmdMoveArmy, Army: 1, Target: 3}},
		}, Checksum: "c1"},
		{Tick: 2},
		{Tick: 3, Checksum: "c3"},
	}
	for _, e := range entries {
		if err := w.Append(e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	gotMeta, got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if gotMeta != meta {
		t.Fatalf("meta mangled: %+v", gotMeta)
	}
	if len(got) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(got), len(entries))
	}
	for i := range entries {
		if got[i].Tick != entries[i].Tick || got[i].Checksum != entries[i].Checksum {
			t.Fatalf("entry %d mangled: %+v", i, got[i])
		}
	}
	if got[0].Batch[0].Cmd.Kind != step.CmdMoveArmy {
		t.Fatalf("batch mangled: %+v", got[0].Batch)
	}
}

func TestRotatingWriterAppends(t *testing.T) {
	dir := t.TempDir()
	w := NewRotating(dir, "journal")
	for tick := uint64(1); tick <= 3; tick++ {
		if err := w.Append(Entry{Tick: tick}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "journal-*.jsonl.zst"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one journal file, got %v (%v)", matches, err)
	}
}
