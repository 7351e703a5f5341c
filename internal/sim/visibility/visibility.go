// Package visibility builds read-only per-viewer projections of a world
// snapshot. UI frontends and AI planners consume Views instead of touching
// WorldState directly, so a policy can withhold what a country should not
// know. Projections never mutate the snapshot and are safe to build
// concurrently from the same snapshot.
package visibility

import (
	"sort"

	"regent/internal/sim/catalogs"
	"regent/internal/sim/fixed"
	"regent/internal/sim/state"
)

// Policy decides what a viewer country sees.
type Policy interface {
	// Project builds the viewer's view of the snapshot. An empty viewer
	// tag means a spectator.
	Project(s *state.WorldState, cats *catalogs.Catalogs, viewer state.Tag) *View
}

// View is a flattened, viewer-specific picture of the world. Slices are
// sorted by key so two peers building the same view get identical output.
type View struct {
	Date   state.Date `json:"date"`
	Tick   uint64     `json:"tick"`
	Viewer state.Tag  `json:"viewer,omitempty"`

	Countries []CountryView    `json:"countries"`
	Provinces []ProvinceView   `json:"provinces"`
	Armies    []ArmyView       `json:"armies"`
	Wars      []WarView        `json:"wars"`
	Alliances []state.Alliance `json:"alliances,omitempty"`
}

// CountryView always carries public diplomacy facts. Internals (treasury,
// manpower, mana) are populated only when the policy grants them; Known
// reports whether they are.
type CountryView struct {
	Tag      state.Tag   `json:"tag"`
	Capital  state.ProvinceID `json:"capital"`
	Prestige fixed.Value `json:"prestige"`

	Known     bool               `json:"known"`
	Treasury  fixed.Value        `json:"treasury,omitempty"`
	Manpower  fixed.Value        `json:"manpower,omitempty"`
	Stability int8               `json:"stability,omitempty"`
	AdmMana   fixed.Value        `json:"adm_mana,omitempty"`
	DipMana   fixed.Value        `json:"dip_mana,omitempty"`
	MilMana   fixed.Value        `json:"mil_mana,omitempty"`
	Income    state.IncomeLedger `json:"income,omitempty"`
}

type ProvinceView struct {
	ID         state.ProvinceID `json:"id"`
	Owner      state.Tag        `json:"owner"`
	Controller state.Tag        `json:"controller"`

	Known         bool        `json:"known"`
	BaseTax       fixed.Value `json:"base_tax,omitempty"`
	BaseProduction fixed.Value `json:"base_production,omitempty"`
	BaseManpower  fixed.Value `json:"base_manpower,omitempty"`
	Autonomy      fixed.Value `json:"autonomy,omitempty"`
	FortLevel     uint8       `json:"fort_level,omitempty"`
	SiegeProgress fixed.Value `json:"siege_progress,omitempty"`
	Buildings     []string    `json:"buildings,omitempty"`
}

type ArmyView struct {
	ID       state.ArmyID     `json:"id"`
	Owner    state.Tag        `json:"owner"`
	Location state.ProvinceID `json:"location"`

	Known    bool        `json:"known"`
	Strength fixed.Value `json:"strength,omitempty"`
	Moving   bool        `json:"moving,omitempty"`
}

type WarView struct {
	ID        state.WarID `json:"id"`
	Attackers []state.Tag `json:"attackers"`
	Defenders []state.Tag `json:"defenders"`
	Score     int8        `json:"score"`
}

// Omniscient grants full knowledge of everything. Spectators, the replay
// verifier and debugging tools use it.
type Omniscient struct{}

func (Omniscient) Project(s *state.WorldState, cats *catalogs.Catalogs, viewer state.Tag) *View {
	v := &View{Date: s.Date, Tick: s.Tick, Viewer: viewer}
	for _, tag := range sortedTags(s) {
		v.Countries = append(v.Countries, countryView(s.Countries[tag], tag, true))
	}
	for _, id := range sortedProvinceIDs(s) {
		v.Provinces = append(v.Provinces, provinceView(s.Provinces[id], id, true))
	}
	for _, id := range sortedArmyIDs(s) {
		v.Armies = append(v.Armies, armyView(s.Armies[id], true))
	}
	v.Wars = warViews(s)
	v.Alliances = allianceViews(s)
	return v
}

// Fog is the realistic policy. The viewer has full knowledge of itself,
// its provinces and armies. Foreign provinces are known when adjacent to
// viewer territory or holding a viewer army; foreign armies are known when
// standing in a known province. Wars, alliances and ownership are public.
type Fog struct{}

func (Fog) Project(s *state.WorldState, cats *catalogs.Catalogs, viewer state.Tag) *View {
	v := &View{Date: s.Date, Tick: s.Tick, Viewer: viewer}
	known := knownProvinces(s, cats, viewer)

	for _, tag := range sortedTags(s) {
		v.Countries = append(v.Countries, countryView(s.Countries[tag], tag, tag == viewer))
	}
	for _, id := range sortedProvinceIDs(s) {
		v.Provinces = append(v.Provinces, provinceView(s.Provinces[id], id, known[id]))
	}
	for _, id := range sortedArmyIDs(s) {
		a := s.Armies[id]
		v.Armies = append(v.Armies, armyView(a, a.Owner == viewer || known[a.Location]))
	}
	v.Wars = warViews(s)
	v.Alliances = allianceViews(s)
	return v
}

// knownProvinces computes the viewer's sight set: owned or controlled
// provinces, their neighbors, and anywhere a viewer army stands.
func knownProvinces(s *state.WorldState, cats *catalogs.Catalogs, viewer state.Tag) map[state.ProvinceID]bool {
	known := map[state.ProvinceID]bool{}
	mark := func(id state.ProvinceID) {
		known[id] = true
		if def, ok := cats.Provinces.ByID[id]; ok {
			for _, adj := range def.Adjacent {
				known[adj] = true
			}
		}
	}
	for _, id := range sortedProvinceIDs(s) {
		p := s.Provinces[id]
		if p.Owner == viewer || p.Controller == viewer {
			mark(id)
		}
	}
	for _, id := range sortedArmyIDs(s) {
		if a := s.Armies[id]; a.Owner == viewer {
			mark(a.Location)
		}
	}
	return known
}

func countryView(c *state.CountryState, tag state.Tag, known bool) CountryView {
	v := CountryView{Tag: tag, Capital: c.Capital, Prestige: c.Prestige, Known: known}
	if known {
		v.Treasury = c.Treasury
		v.Manpower = c.Manpower
		v.Stability = c.Stability
		v.AdmMana = c.AdmMana
		v.DipMana = c.DipMana
		v.MilMana = c.MilMana
		v.Income = c.Income
	}
	return v
}

func provinceView(p *state.ProvinceState, id state.ProvinceID, known bool) ProvinceView {
	v := ProvinceView{ID: id, Owner: p.Owner, Controller: p.Controller, Known: known}
	if !known {
		return v
	}
	v.BaseTax = p.BaseTax
	v.BaseProduction = p.BaseProduction
	v.BaseManpower = p.BaseManpower
	v.Autonomy = p.Autonomy
	v.FortLevel = p.FortLevel
	v.SiegeProgress = p.SiegeProgress
	for b, built := range p.Buildings {
		if built {
			v.Buildings = append(v.Buildings, b)
		}
	}
	sort.Strings(v.Buildings)
	return v
}

func armyView(a *state.Army, known bool) ArmyView {
	v := ArmyView{ID: a.ID, Owner: a.Owner, Location: a.Location, Known: known}
	if known {
		v.Strength = a.Strength()
		v.Moving = a.Movement != nil
	}
	return v
}

func warViews(s *state.WorldState) []WarView {
	ids := make([]state.WarID, 0, len(s.Wars))
	for id := range s.Wars {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	views := make([]WarView, 0, len(ids))
	for _, id := range ids {
		w := s.Wars[id]
		views = append(views, WarView{
			ID:        id,
			Attackers: append([]state.Tag(nil), w.Attackers...),
			Defenders: append([]state.Tag(nil), w.Defenders...),
			Score:     w.Score,
		})
	}
	return views
}

// allianceViews copies the pact list in sorted order. Pacts are public,
// both policies expose them all.
func allianceViews(s *state.WorldState) []state.Alliance {
	pacts := append([]state.Alliance(nil), s.Alliances...)
	sort.Slice(pacts, func(i, j int) bool {
		if pacts[i].A != pacts[j].A {
			return pacts[i].A < pacts[j].A
		}
		return pacts[i].B < pacts[j].B
	})
	return pacts
}

func sortedTags(s *state.WorldState) []state.Tag {
	tags := make([]state.Tag, 0, len(s.Countries))
	for t := range s.Countries {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

func sortedProvinceIDs(s *state.WorldState) []state.ProvinceID {
	ids := make([]state.ProvinceID, 0, len(s.Provinces))
	for id := range s.Provinces {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedArmyIDs(s *state.WorldState) []state.ArmyID {
	ids := make([]state.ArmyID, 0, len(s.Armies))
	for id := range s.Armies {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
