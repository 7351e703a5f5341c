package indexdb

import (
	"path/filepath"
	"testing"
)

func openTest(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestTickIndexRoundTrip(t *testing.T) {
	idx := openTest(t)
	idx.RecordTick(10, "aaa")
	idx.RecordTick(20, "bbb")
	idx.RecordTick(20, "ccc") // re-record wins
	idx.Flush()

	sum, ok, err := idx.ChecksumAt(20)
	if err != nil || !ok {
		t.Fatalf("checksum at 20: %q %v %v", sum, ok, err)
	}
	if sum != "ccc" {
		t.Fatalf("checksum %q, want ccc", sum)
	}
	if _, ok, _ := idx.ChecksumAt(15); ok {
		t.Fatal("found checksum for unindexed tick")
	}
}

func TestLatestSave(t *testing.T) {
	idx := openTest(t)
	idx.RecordSave(100, "saves/tick-100.sav", "c100")
	idx.RecordSave(200, "saves/tick-200.sav", "c200")
	idx.Flush()

	row, ok, err := idx.LatestSave(150)
	if err != nil || !ok {
		t.Fatalf("latest save: %v %v", ok, err)
	}
	if row.Tick != 100 || row.Path != "saves/tick-100.sav" {
		t.Fatalf("wrong save: %+v", row)
	}
	if _, ok, _ := idx.LatestSave(50); ok {
		t.Fatal("found save before any existed")
	}
}

func TestDesyncLog(t *testing.T) {
	idx := openTest(t)
	idx.RecordDesync(DesyncRow{Tick: 42, Session: "s1", Peer: "DAN", Got: "x", Want: "y"})
	idx.RecordDesync(DesyncRow{Tick: 43, Session: "s1", Peer: "SWE", Got: "p", Want: "q"})
	idx.RecordDesync(DesyncRow{Tick: 44, Session: "s2", Peer: "NOR", Got: "a", Want: "b"})
	idx.Flush()

	rows, err := idx.Desyncs("s1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 2 || rows[0].Tick != 42 || rows[1].Peer != "SWE" {
		t.Fatalf("wrong rows: %+v", rows)
	}
}
