package visibility

import (
	"testing"

	"regent/internal/sim/catalogs"
	"regent/internal/sim/fixed"
	"regent/internal/sim/state"
)

func testFixture() (*state.WorldState, *catalogs.Catalogs) {
	cats := &catalogs.Catalogs{
		Provinces: catalogs.ProvinceCatalog{
			ByID: map[state.ProvinceID]catalogs.ProvinceDef{
				1: {ID: 1, Adjacent: []state.ProvinceID{2}},
				2: {ID: 2, Adjacent: []state.ProvinceID{1, 3}},
				3: {ID: 3, Adjacent: []state.ProvinceID{2, 4}},
				4: {ID: 4, Adjacent: []state.ProvinceID{3}},
			},
		},
	}
	s := state.New(state.Date{Year: 1444, Month: 11, Day: 11}, 9)
	s.Countries["SWE"] = &state.CountryState{Treasury: fixed.FromInt(100), Capital: 1}
	s.Countries["DAN"] = &state.CountryState{Treasury: fixed.FromInt(80), Capital: 3}
	s.Provinces[1] = &state.ProvinceState{Owner: "SWE", Controller: "SWE", BaseTax: fixed.FromInt(5)}
	s.Provinces[2] = &state.ProvinceState{Owner: "DAN", Controller: "DAN", BaseTax: fixed.FromInt(4)}
	s.Provinces[3] = &state.ProvinceState{Owner: "DAN", Controller: "DAN", BaseTax: fixed.FromInt(3)}
	s.Provinces[4] = &state.ProvinceState{Owner: "DAN", Controller: "DAN", BaseTax: fixed.FromInt(2)}
	s.Armies[1] = &state.Army{ID: 1, Owner: "DAN", Location: 4,
		Regiments: []state.Regiment{{Type: "infantry", Strength: fixed.FromInt(1000)}}}
	s.NextArmyID = 2
	return s, cats
}

func provinceByID(v *View, id state.ProvinceID) *ProvinceView {
	for i := range v.Provinces {
		if v.Provinces[i].ID == id {
			return &v.Provinces[i]
		}
	}
	return nil
}

func countryByTag(v *View, tag state.Tag) *CountryView {
	for i := range v.Countries {
		if v.Countries[i].Tag == tag {
			return &v.Countries[i]
		}
	}
	return nil
}

func TestOmniscientSeesEverything(t *testing.T) {
	s, cats := testFixture()
	v := Omniscient{}.Project(s, cats, "")
	for _, c := range v.Countries {
		if !c.Known {
			t.Fatalf("country %s hidden from omniscient view", c.Tag)
		}
	}
	for _, p := range v.Provinces {
		if !p.Known {
			t.Fatalf("province %d hidden from omniscient view", p.ID)
		}
	}
	if got := countryByTag(v, "DAN").Treasury; got != fixed.FromInt(80) {
		t.Fatalf("treasury %v, want 80", got)
	}
}

func TestFogHidesForeignInternals(t *testing.T) {
	s, cats := testFixture()
	v := Fog{}.Project(s, cats, "SWE")

	dan := countryByTag(v, "DAN")
	if dan.Known || !dan.Treasury.IsZero() {
		t.Fatalf("foreign treasury leaked: %+v", dan)
	}
	swe := countryByTag(v, "SWE")
	if !swe.Known || swe.Treasury != fixed.FromInt(100) {
		t.Fatalf("own country redacted: %+v", swe)
	}
}

func TestFogSightRange(t *testing.T) {
	s, cats := testFixture()
	v := Fog{}.Project(s, cats, "SWE")

	// Province 2 borders SWE territory, 3 and 4 are beyond sight.
	if p := provinceByID(v, 2); !p.Known || p.BaseTax.IsZero() {
		t.Fatalf("border province hidden: %+v", p)
	}
	for _, id := range []state.ProvinceID{3, 4} {
		p := provinceByID(v, id)
		if p.Known {
			t.Fatalf("distant province %d visible", id)
		}
		if p.Owner != "DAN" {
			t.Fatal("ownership is public even under fog")
		}
		if !p.BaseTax.IsZero() {
			t.Fatalf("distant province %d leaked development", id)
		}
	}

	// The DAN army in province 4 is out of sight.
	if a := v.Armies[0]; a.Known || !a.Strength.IsZero() {
		t.Fatalf("hidden army leaked strength: %+v", a)
	}
}

func TestFogArmyExtendsSight(t *testing.T) {
	s, cats := testFixture()
	s.Armies[2] = &state.Army{ID: 2, Owner: "SWE", Location: 3,
		Regiments: []state.Regiment{{Type: "infantry", Strength: fixed.FromInt(1000)}}}
	v := Fog{}.Project(s, cats, "SWE")

	if p := provinceByID(v, 4); !p.Known {
		t.Fatal("army adjacency did not extend sight")
	}
	// The DAN army is now in a known province.
	for _, a := range v.Armies {
		if a.ID == 1 && !a.Known {
			t.Fatal("foreign army in sight range still hidden")
		}
	}
}

func TestProjectionDoesNotMutateSnapshot(t *testing.T) {
	s, cats := testFixture()
	before := s.Checksum()
	Fog{}.Project(s, cats, "SWE")
	Omniscient{}.Project(s, cats, "DAN")
	if s.Checksum() != before {
		t.Fatal("projection mutated the snapshot")
	}
}
