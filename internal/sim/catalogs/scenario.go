package catalogs

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"regent/internal/sim/fixed"
	"regent/internal/sim/state"
)

// Scenario is the campaign starting position: which countries exist, who
// owns what, and which armies stand where on day one. Unlike the reference
// tables it is consumed once, at world construction.
type Scenario struct {
	Name      string     `json:"name"`
	StartDate state.Date `json:"start_date"`

	Countries []ScenarioCountry `json:"countries"`
	Provinces []ScenarioProvince `json:"provinces"`
	Armies    []ScenarioArmy    `json:"armies"`
	Fleets    []ScenarioFleet   `json:"fleets,omitempty"`
	Wars      []ScenarioWar     `json:"wars"`
	Alliances []ScenarioAlliance `json:"alliances,omitempty"`
}

type ScenarioCountry struct {
	Tag      state.Tag   `json:"tag"`
	Treasury fixed.Value `json:"treasury"`
	Manpower fixed.Value `json:"manpower"`
	Capital  state.ProvinceID `json:"capital"`
	HomeNode string      `json:"home_node"`
	Stability int8       `json:"stability,omitempty"`
}

type ScenarioProvince struct {
	ID             state.ProvinceID `json:"id"`
	Owner          state.Tag        `json:"owner"`
	BaseTax        fixed.Value      `json:"base_tax"`
	BaseProduction fixed.Value      `json:"base_production"`
	BaseManpower   fixed.Value      `json:"base_manpower"`
	Autonomy       fixed.Value      `json:"autonomy,omitempty"`
	TradeGood      string           `json:"trade_good"`
	FortLevel      uint8            `json:"fort_level,omitempty"`
}

type ScenarioArmy struct {
	Owner    state.Tag        `json:"owner"`
	Name     string           `json:"name"`
	Location state.ProvinceID `json:"location"`
	Infantry int              `json:"infantry"`
	Cavalry  int              `json:"cavalry,omitempty"`
}

type ScenarioFleet struct {
	Owner    state.Tag        `json:"owner"`
	Name     string           `json:"name"`
	Location state.ProvinceID `json:"location"` // must be a sea province
	Light    int              `json:"light"`
	Heavy    int              `json:"heavy,omitempty"`
}

type ScenarioWar struct {
	Attacker   state.Tag `json:"attacker"`
	Defender   state.Tag `json:"defender"`
	CasusBelli string    `json:"casus_belli"`
}

type ScenarioAlliance struct {
	A state.Tag `json:"a"`
	B state.Tag `json:"b"`
}

// LoadScenario reads a starting-position file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := json.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	if len(sc.Countries) == 0 {
		return nil, fmt.Errorf("scenario %s: no countries", path)
	}
	return &sc, nil
}

const regimentSize = 1000

// Build constructs the day-zero world snapshot from the scenario and the
// reference tables. Entities are created in sorted order so ids assigned
// here are identical on every peer.
func (sc *Scenario) Build(cats *Catalogs, seed uint64) (*state.WorldState, error) {
	s := state.New(sc.StartDate, seed)

	countries := append([]ScenarioCountry(nil), sc.Countries...)
	sort.Slice(countries, func(i, j int) bool { return countries[i].Tag < countries[j].Tag })
	for _, c := range countries {
		if _, dup := s.Countries[c.Tag]; dup {
			return nil, fmt.Errorf("scenario: duplicate country %s", c.Tag)
		}
		s.Countries[c.Tag] = &state.CountryState{
			Treasury:     c.Treasury,
			Manpower:     c.Manpower,
			Stability:    c.Stability,
			Capital:      c.Capital,
			HomeNode:     c.HomeNode,
			AdmTech:      1,
			DipTech:      1,
			MilTech:      1,
			Institutions: map[string]bool{},
			Relations:    map[state.Tag]fixed.Value{},
		}
	}

	for _, p := range sc.Provinces {
		def, ok := cats.Provinces.ByID[p.ID]
		if !ok {
			return nil, fmt.Errorf("scenario: unknown province %d", p.ID)
		}
		if p.Owner != "" {
			if _, ok := s.Countries[p.Owner]; !ok {
				return nil, fmt.Errorf("scenario: province %d owned by unknown %s", p.ID, p.Owner)
			}
		}
		if p.TradeGood != "" {
			if _, ok := cats.TradeGoods.ByID[p.TradeGood]; !ok {
				return nil, fmt.Errorf("scenario: province %d has unknown good %s", p.ID, p.TradeGood)
			}
		}
		cores := map[state.Tag]bool{}
		if p.Owner != "" {
			cores[p.Owner] = true
		}
		s.Provinces[p.ID] = &state.ProvinceState{
			Owner:          p.Owner,
			Controller:     p.Owner,
			BaseTax:        p.BaseTax,
			BaseProduction: p.BaseProduction,
			BaseManpower:   p.BaseManpower,
			Autonomy:       p.Autonomy.Clamp01(),
			TradeGood:      p.TradeGood,
			TradeNode:      def.TradeNode,
			FortLevel:      p.FortLevel,
			IsSea:          def.IsSea,
			Buildings:      map[string]bool{},
			Cores:          cores,
			Claims:         map[state.Tag]bool{},
		}
	}

	for _, a := range sc.Armies {
		if _, ok := s.Countries[a.Owner]; !ok {
			return nil, fmt.Errorf("scenario: army for unknown country %s", a.Owner)
		}
		if _, ok := s.Provinces[a.Location]; !ok {
			return nil, fmt.Errorf("scenario: army in unknown province %d", a.Location)
		}
		var regs []state.Regiment
		for i := 0; i < a.Infantry; i++ {
			regs = append(regs, state.Regiment{Type: "infantry", Strength: fixed.FromInt(regimentSize)})
		}
		for i := 0; i < a.Cavalry; i++ {
			regs = append(regs, state.Regiment{Type: "cavalry", Strength: fixed.FromInt(regimentSize)})
		}
		id := s.NextArmyID
		s.NextArmyID++
		s.Armies[id] = &state.Army{ID: id, Name: a.Name, Owner: a.Owner, Location: a.Location, Regiments: regs}
	}

	for _, f := range sc.Fleets {
		if _, ok := s.Countries[f.Owner]; !ok {
			return nil, fmt.Errorf("scenario: fleet for unknown country %s", f.Owner)
		}
		p, ok := s.Provinces[f.Location]
		if !ok {
			return nil, fmt.Errorf("scenario: fleet in unknown province %d", f.Location)
		}
		if !p.IsSea {
			return nil, fmt.Errorf("scenario: fleet of %s anchored on land in %d", f.Owner, f.Location)
		}
		var ships []state.Ship
		for i := 0; i < f.Light; i++ {
			ships = append(ships, state.Ship{Type: "light", Hull: fixed.FromInt(100)})
		}
		for i := 0; i < f.Heavy; i++ {
			ships = append(ships, state.Ship{Type: "heavy", Hull: fixed.FromInt(300)})
		}
		id := s.NextFleetID
		s.NextFleetID++
		s.Fleets[id] = &state.Fleet{ID: id, Name: f.Name, Owner: f.Owner, Location: f.Location, Ships: ships}
	}

	for _, w := range sc.Wars {
		if _, ok := s.Countries[w.Attacker]; !ok {
			return nil, fmt.Errorf("scenario: war attacker %s unknown", w.Attacker)
		}
		if _, ok := s.Countries[w.Defender]; !ok {
			return nil, fmt.Errorf("scenario: war defender %s unknown", w.Defender)
		}
		id := s.NextWarID
		s.NextWarID++
		s.Wars[id] = &state.War{
			ID:         id,
			Attackers:  []state.Tag{w.Attacker},
			Defenders:  []state.Tag{w.Defender},
			CasusBelli: w.CasusBelli,
			Started:    sc.StartDate,
		}
	}

	for _, a := range sc.Alliances {
		if _, ok := s.Countries[a.A]; !ok {
			return nil, fmt.Errorf("scenario: alliance member %s unknown", a.A)
		}
		if _, ok := s.Countries[a.B]; !ok {
			return nil, fmt.Errorf("scenario: alliance member %s unknown", a.B)
		}
		x, y := a.A, a.B
		if y < x {
			x, y = y, x
		}
		if x == y || s.Allied(x, y) {
			return nil, fmt.Errorf("scenario: bad alliance %s/%s", a.A, a.B)
		}
		s.Alliances = append(s.Alliances, state.Alliance{A: x, B: y})
	}

	for name := range cats.TradeNodes.ByID {
		s.TradeNodes[name] = &state.TradeNodeState{Power: map[state.Tag]fixed.Value{}}
	}

	return s, nil
}
