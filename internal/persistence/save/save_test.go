package save

import (
	"path/filepath"
	"testing"

	"regent/internal/sim/fixed"
	"regent/internal/sim/state"
)

func sampleWorld() *state.WorldState {
	s := state.New(state.Date{Year: 1444, Month: 11, Day: 11}, 42)
	s.Tick = 365
	s.Countries["SWE"] = &state.CountryState{
		Treasury:     fixed.FromRaw(1234567),
		Manpower:     fixed.FromInt(8000),
		Institutions: map[string]bool{"feudalism": true},
		Relations:    map[state.Tag]fixed.Value{"DAN": fixed.FromInt(-20)},
	}
	s.Provinces[1] = &state.ProvinceState{
		Owner: "SWE", Controller: "SWE",
		BaseTax:   fixed.FromInt(5),
		Buildings: map[string]bool{"temple": true},
		Cores:     map[state.Tag]bool{"SWE": true},
	}
	s.Armies[1] = &state.Army{ID: 1, Owner: "SWE", Location: 1,
		Regiments: []state.Regiment{{Type: "infantry", Strength: fixed.FromRaw(9995000)}}}
	s.Wars[1] = &state.War{ID: 1, Attackers: []state.Tag{"SWE"}, Defenders: []state.Tag{"DAN"},
		Started: s.Date}
	s.NextArmyID = 2
	s.NextWarID = 2
	return s
}

func TestSaveRoundTrip(t *testing.T) {
	s := sampleWorld()
	path := filepath.Join(t.TempDir(), "saves", "tick-365.sav")
	hdr := Header{
		SimVersion:   "0.3",
		ManifestHash: "abcd",
		Scenario:     "two_crowns",
		Seed:         42,
		Tick:         s.Tick,
		Checksum:     s.Checksum(),
	}
	if err := Write(path, hdr, s); err != nil {
		t.Fatalf("write: %v", err)
	}

	gotHdr, loaded, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if gotHdr.Version != FormatVersion || gotHdr.Checksum != hdr.Checksum || gotHdr.Tick != 365 {
		t.Fatalf("header mangled: %+v", gotHdr)
	}
	if loaded.Checksum() != s.Checksum() {
		t.Fatal("loaded state checksum differs from saved state")
	}
}

func TestReadHeaderOnly(t *testing.T) {
	s := sampleWorld()
	path := filepath.Join(t.TempDir(), "tick.sav")
	if err := Write(path, Header{SimVersion: "0.3", Tick: 365, Checksum: "c1"}, s); err != nil {
		t.Fatalf("write: %v", err)
	}
	hdr, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if hdr.Tick != 365 || hdr.Checksum != "c1" {
		t.Fatalf("header mangled: %+v", hdr)
	}
}

func TestTransferRoundTrip(t *testing.T) {
	s := sampleWorld()
	hdr := Header{SimVersion: "0.3", ManifestHash: "abcd", Tick: s.Tick, Checksum: s.Checksum()}
	blob, err := EncodeTransfer(hdr, s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	chunks := SplitChunks(blob)
	var joined []byte
	for _, c := range chunks {
		joined = append(joined, c...)
	}

	gotHdr, loaded, err := DecodeTransfer(joined)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if gotHdr.Checksum != hdr.Checksum {
		t.Fatalf("header checksum mangled: %+v", gotHdr)
	}
	if loaded.Checksum() != s.Checksum() {
		t.Fatal("transferred state checksum differs")
	}
}
