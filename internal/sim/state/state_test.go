package state

import (
	"testing"

	"regent/internal/sim/fixed"
)

func testWorld() *WorldState {
	s := New(Date{Year: 1444, Month: 11, Day: 11}, 42)
	s.Countries["SWE"] = &CountryState{
		Treasury:     fixed.FromInt(100),
		Manpower:     fixed.FromInt(10000),
		Stability:    1,
		Institutions: map[string]bool{"feudalism": true},
		Relations:    map[Tag]fixed.Value{"DAN": fixed.FromInt(-50)},
		Capital:      1,
	}
	s.Countries["DAN"] = &CountryState{
		Treasury: fixed.FromInt(80),
		Capital:  2,
	}
	s.Provinces[1] = &ProvinceState{
		Owner: "SWE", Controller: "SWE",
		BaseTax: fixed.FromInt(5), BaseProduction: fixed.FromInt(4), BaseManpower: fixed.FromInt(3),
		TradeGood: "grain", TradeNode: "baltic",
		Cores: map[Tag]bool{"SWE": true},
	}
	s.Provinces[2] = &ProvinceState{
		Owner: "DAN", Controller: "DAN",
		BaseTax: fixed.FromInt(6), BaseProduction: fixed.FromInt(2), BaseManpower: fixed.FromInt(2),
		TradeGood: "fish", TradeNode: "baltic",
		Cores: map[Tag]bool{"DAN": true},
	}
	s.Armies[1] = &Army{
		ID: 1, Owner: "SWE", Location: 1,
		Regiments: []Regiment{{Type: "infantry", Strength: fixed.FromInt(1000)}},
	}
	s.NextArmyID = 2
	return s
}

func TestChecksumStable(t *testing.T) {
	s := testWorld()
	a := s.Checksum()
	b := s.Checksum()
	if a != b {
		t.Fatalf("checksum changed without mutation: %s vs %s", a, b)
	}
}

func TestChecksumIndependentOfInsertionOrder(t *testing.T) {
	build := func(order []ProvinceID) *WorldState {
		s := New(Date{Year: 1444, Month: 11, Day: 11}, 7)
		for _, id := range order {
			s.Provinces[id] = &ProvinceState{Owner: "FRA", Controller: "FRA", BaseTax: fixed.FromInt(int64(id))}
		}
		s.Countries["FRA"] = &CountryState{}
		return s
	}
	a := build([]ProvinceID{1, 2, 3, 4, 5, 6, 7, 8})
	b := build([]ProvinceID{8, 3, 5, 1, 7, 2, 6, 4})
	if a.Checksum() != b.Checksum() {
		t.Fatal("checksum depends on map insertion order")
	}
}

func TestChecksumSeesGameplayFields(t *testing.T) {
	s := testWorld()
	before := s.Checksum()
	s.Countries["SWE"].Treasury = s.Countries["SWE"].Treasury.Add(fixed.One)
	if s.Checksum() == before {
		t.Fatal("treasury change not reflected in checksum")
	}
}

func TestChecksumIgnoresIncomeLedger(t *testing.T) {
	s := testWorld()
	before := s.Checksum()
	s.Countries["SWE"].Income.Taxation = fixed.FromInt(99)
	if s.Checksum() != before {
		t.Fatal("derived income ledger leaked into checksum")
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := testWorld()
	before := s.Checksum()
	c := s.Clone()

	c.Countries["SWE"].Treasury = fixed.Zero
	c.Provinces[1].Autonomy = fixed.One
	c.Armies[1].Regiments[0].Strength = fixed.Zero
	c.Truces = append(c.Truces, Truce{A: "DAN", B: "SWE", Until: Date{Year: 1450, Month: 1, Day: 1}})
	c.Alliances = append(c.Alliances, Alliance{A: "DAN", B: "SWE"})
	c.Countries["DAN"].PendingCalls = map[WarID]int8{1: -1}

	if s.Checksum() != before {
		t.Fatal("mutating clone changed the original snapshot")
	}
	if c.Checksum() == before {
		t.Fatal("clone mutations not visible in clone checksum")
	}
}

func TestRNGDeterministic(t *testing.T) {
	a := New(Date{Year: 1444, Month: 11, Day: 11}, 99)
	b := New(Date{Year: 1444, Month: 11, Day: 11}, 99)
	for i := 0; i < 1000; i++ {
		if a.RandUint64() != b.RandUint64() {
			t.Fatalf("sequences diverged at draw %d", i)
		}
	}
	v := a.RandFixed()
	if v.IsNegative() || v >= fixed.One {
		t.Fatalf("RandFixed out of [0,1): %v", v)
	}
}

func TestDateArithmetic(t *testing.T) {
	d := Date{Year: 1444, Month: 11, Day: 11}
	if got := d.AddDays(20); got != (Date{Year: 1444, Month: 12, Day: 1}) {
		t.Errorf("AddDays(20) = %v", got)
	}
	if got := d.AddDays(51); got != (Date{Year: 1445, Month: 1, Day: 1}) {
		t.Errorf("AddDays(51) = %v", got)
	}
	if !d.AddDays(20).MonthStart() {
		t.Error("Dec 1 should be a month start")
	}
	if d.AddDays(365) != (Date{Year: 1445, Month: 11, Day: 11}) {
		t.Errorf("year advance: %v", d.AddDays(365))
	}
	if !d.Before(d.AddDays(1)) || d.AddDays(1).Before(d) {
		t.Error("Before ordering broken")
	}
}

func TestTruceLookup(t *testing.T) {
	s := testWorld()
	s.Truces = append(s.Truces, Truce{A: "DAN", B: "SWE", Until: Date{Year: 1450, Month: 1, Day: 1}})
	if !s.TruceActive("SWE", "DAN", Date{Year: 1449, Month: 6, Day: 1}) {
		t.Error("truce not found with reversed tags")
	}
	if s.TruceActive("SWE", "DAN", Date{Year: 1450, Month: 1, Day: 1}) {
		t.Error("truce active at expiry")
	}
}

func TestAllianceLookup(t *testing.T) {
	s := testWorld()
	s.Alliances = append(s.Alliances, Alliance{A: "DAN", B: "SWE"})
	if !s.Allied("SWE", "DAN") || !s.Allied("DAN", "SWE") {
		t.Error("alliance not found with reversed tags")
	}
	if s.Allied("SWE", "NOR") {
		t.Error("phantom alliance")
	}
	s.Alliances = append(s.Alliances, Alliance{A: "NOR", B: "SWE"})
	if allies := s.Allies("SWE"); len(allies) != 2 || allies[0] != "DAN" || allies[1] != "NOR" {
		t.Errorf("allies of SWE = %v", allies)
	}
}

func TestArmyStrength(t *testing.T) {
	a := &Army{Regiments: []Regiment{
		{Type: "infantry", Strength: fixed.FromInt(800)},
		{Type: "cavalry", Strength: fixed.FromInt(250)},
	}}
	if got := a.Strength(); got != fixed.FromInt(1050) {
		t.Errorf("strength = %v", got)
	}
}
