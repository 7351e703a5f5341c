// Package state holds the immutable-by-convention world snapshot: every
// entity the simulation tracks, keyed by stable identifiers. A snapshot is
// produced once per tick by the transition function; concurrent readers hold
// old snapshots and never observe partial writes. All gameplay-relevant
// quantities are fixed-point or integer so the checksum is bit-stable.
package state

import (
	"sort"

	"regent/internal/sim/fixed"
)

// WorldState is the root snapshot.
type WorldState struct {
	Date Date   `json:"date"`
	Tick uint64 `json:"tick"`

	// RNGSeed is the campaign seed; RNGState evolves with every draw and is
	// part of the checksum so replays catch stray draws immediately.
	RNGSeed  uint64 `json:"rng_seed"`
	RNGState uint64 `json:"rng_state"`

	Countries map[Tag]*CountryState        `json:"countries"`
	Provinces map[ProvinceID]*ProvinceState `json:"provinces"`
	Armies    map[ArmyID]*Army             `json:"armies"`
	Fleets    map[FleetID]*Fleet           `json:"fleets"`
	Wars      map[WarID]*War               `json:"wars"`

	// Engagements are active land battles, keyed by the province they are
	// fought in. At most one engagement per province.
	Engagements map[ProvinceID]*Engagement `json:"engagements"`

	TradeNodes map[string]*TradeNodeState `json:"trade_nodes"`

	Truces    []Truce    `json:"truces"`
	Alliances []Alliance `json:"alliances"`

	// Monotonic entity id counters. Never reused, part of the checksum.
	NextArmyID  ArmyID  `json:"next_army_id"`
	NextFleetID FleetID `json:"next_fleet_id"`
	NextWarID   WarID   `json:"next_war_id"`
}

// New returns an empty world at the given start date and seed.
func New(start Date, seed uint64) *WorldState {
	if seed == 0 {
		seed = 1
	}
	return &WorldState{
		Date:        start,
		RNGSeed:     seed,
		RNGState:    seed,
		Countries:   make(map[Tag]*CountryState),
		Provinces:   make(map[ProvinceID]*ProvinceState),
		Armies:      make(map[ArmyID]*Army),
		Fleets:      make(map[FleetID]*Fleet),
		Wars:        make(map[WarID]*War),
		Engagements: make(map[ProvinceID]*Engagement),
		TradeNodes:  make(map[string]*TradeNodeState),
		NextArmyID:  1,
		NextFleetID: 1,
		NextWarID:   1,
	}
}

// Stability bounds.
const (
	StabilityMin = -3
	StabilityMax = 3
)

// CountryState is owned exclusively by the WorldState; systems mutate it
// during a tick, external callers only ever read it.
type CountryState struct {
	Treasury fixed.Value `json:"treasury"`
	Manpower fixed.Value `json:"manpower"`

	Stability     int8        `json:"stability"` // clamped to [-3, 3]
	Prestige      fixed.Value `json:"prestige"`  // clamped to [-100, 100]
	ArmyTradition fixed.Value `json:"army_tradition"`

	AdmMana fixed.Value `json:"adm_mana"`
	DipMana fixed.Value `json:"dip_mana"`
	MilMana fixed.Value `json:"mil_mana"`

	AdmTech uint8 `json:"adm_tech"`
	DipTech uint8 `json:"dip_tech"`
	MilTech uint8 `json:"mil_tech"`

	Institutions map[string]bool `json:"institutions"` // embraced set

	Capital  ProvinceID `json:"capital"`
	HomeNode string     `json:"home_node"`

	// National modifiers feeding the economy formulas.
	TaxModifier        fixed.Value `json:"tax_modifier"`
	ProductionModifier fixed.Value `json:"production_modifier"`
	ManpowerModifier   fixed.Value `json:"manpower_modifier"`

	// Relations holds diplomatic opinion per other tag, clamped to
	// [-100, 100]. Entries drift back toward zero and are dropped once
	// they reach it.
	Relations map[Tag]fixed.Value `json:"relations"`

	// PendingCalls maps a war to the side this country has been called to
	// join: +1 attacker, -1 defender. Cleared on join, decline, or when
	// the war ends.
	PendingCalls map[WarID]int8 `json:"pending_calls,omitempty"`

	Income IncomeLedger `json:"income"`
}

// IncomeLedger tracks the current month's income by source. Reset at the
// start of every monthly tick; excluded from the checksum (derived data).
type IncomeLedger struct {
	Taxation   fixed.Value `json:"taxation"`
	Production fixed.Value `json:"production"`
	Trade      fixed.Value `json:"trade"`
	Expenses   fixed.Value `json:"expenses"`
}

type ProvinceState struct {
	Owner      Tag `json:"owner"`
	Controller Tag `json:"controller"`

	BaseTax      fixed.Value `json:"base_tax"`
	BaseProduction fixed.Value `json:"base_production"`
	BaseManpower fixed.Value `json:"base_manpower"`

	Autonomy fixed.Value `json:"autonomy"` // normalized, clamped to [0,1] before use
	Unrest   fixed.Value `json:"unrest"`

	TradeGood string `json:"trade_good"`
	TradeNode string `json:"trade_node"`

	FortLevel     uint8       `json:"fort_level"`
	SiegeProgress fixed.Value `json:"siege_progress"`

	Buildings map[string]bool `json:"buildings"`
	Cores     map[Tag]bool    `json:"cores"`
	Claims    map[Tag]bool    `json:"claims"`

	IsSea bool `json:"is_sea"`
}

// Occupied reports whether the controller differs from the owner.
func (p *ProvinceState) Occupied() bool {
	return p.Owner != "" && p.Controller != p.Owner
}

// Regiment is one unit of an army. Strength is in men.
type Regiment struct {
	Type     string      `json:"type"` // "infantry","cavalry","artillery"
	Strength fixed.Value `json:"strength"`
}

// Movement is progress along a precomputed path. Progress accumulates daily;
// on reaching One the army arrives at Path[Next] and Next advances.
type Movement struct {
	Path     []ProvinceID `json:"path"` // remaining waypoints, front is next
	Progress fixed.Value  `json:"progress"`
}

type Army struct {
	ID        ArmyID     `json:"id"`
	Name      string     `json:"name"`
	Owner     Tag        `json:"owner"`
	Location  ProvinceID `json:"location"`
	Regiments []Regiment `json:"regiments"`
	Movement  *Movement  `json:"movement,omitempty"`
}

// Strength is the army's total manpower across regiments.
func (a *Army) Strength() fixed.Value {
	var t fixed.Value
	for i := range a.Regiments {
		t = t.Add(a.Regiments[i].Strength)
	}
	return t
}

type Ship struct {
	Type string      `json:"type"`
	Hull fixed.Value `json:"hull"`
}

type Fleet struct {
	ID       FleetID    `json:"id"`
	Name     string     `json:"name"`
	Owner    Tag        `json:"owner"`
	Location ProvinceID `json:"location"`
	Ships    []Ship     `json:"ships"`
}

// War is created by a DeclareWar command and removed on peace. The founding
// member of each side stays at index zero; allies answering a call to arms
// are appended in batch order, which is identical on every peer.
type War struct {
	ID         WarID  `json:"id"`
	Attackers  []Tag  `json:"attackers"`
	Defenders  []Tag  `json:"defenders"`
	CasusBelli string `json:"casus_belli"`
	Started    Date   `json:"started"`

	// Score is the attacker's war score in [-100, 100].
	Score int8 `json:"score"`

	AttackerCasualties fixed.Value `json:"attacker_casualties"`
	DefenderCasualties fixed.Value `json:"defender_casualties"`

	// PendingPeace is the outstanding offer, if any.
	PendingPeace *PeaceOffer `json:"pending_peace,omitempty"`
}

// Side reports which coalition tag belongs to: +1 attacker, -1 defender,
// 0 not a participant.
func (w *War) Side(t Tag) int {
	for _, a := range w.Attackers {
		if a == t {
			return 1
		}
	}
	for _, d := range w.Defenders {
		if d == t {
			return -1
		}
	}
	return 0
}

type PeaceOffer struct {
	From     Tag          `json:"from"`
	Offered  Date         `json:"offered"`
	Ceded    []ProvinceID `json:"ceded"` // provinces demanded by From's side
	Tribute  fixed.Value  `json:"tribute"`
}

// EngagementPhase is the battle lifecycle: Forming the day opposing armies
// first share a province, Active while casualties are exchanged, Resolved
// once a side is destroyed or disengages.
type EngagementPhase uint8

const (
	EngagementForming EngagementPhase = iota
	EngagementActive
	EngagementResolved
)

type Engagement struct {
	Province  ProvinceID      `json:"province"`
	Phase     EngagementPhase `json:"phase"`
	Attackers []ArmyID        `json:"attackers"` // sorted
	Defenders []ArmyID        `json:"defenders"` // sorted
	Days      uint32          `json:"days"`
	War       WarID           `json:"war"`
}

// TradeNodeState is the per-node runtime trade picture, rebuilt monthly.
type TradeNodeState struct {
	Value fixed.Value         `json:"value"`
	Power map[Tag]fixed.Value `json:"power"`
}

// Truce blocks new wars between two tags until the expiry date. Tags are
// stored in sorted order.
type Truce struct {
	A     Tag  `json:"a"`
	B     Tag  `json:"b"`
	Until Date `json:"until"`
}

// TruceActive reports whether a truce between a and b covers date d.
func (s *WorldState) TruceActive(a, b Tag, d Date) bool {
	if b < a {
		a, b = b, a
	}
	for _, t := range s.Truces {
		if t.A == a && t.B == b && d.Before(t.Until) {
			return true
		}
	}
	return false
}

// Alliance is a mutual pact between two tags, stored with A < B like a
// truce.
type Alliance struct {
	A Tag `json:"a"`
	B Tag `json:"b"`
}

// Allied reports whether a and b share an alliance.
func (s *WorldState) Allied(a, b Tag) bool {
	if b < a {
		a, b = b, a
	}
	for _, al := range s.Alliances {
		if al.A == a && al.B == b {
			return true
		}
	}
	return false
}

// Allies returns the sorted allies of t.
func (s *WorldState) Allies(t Tag) []Tag {
	var out []Tag
	for _, al := range s.Alliances {
		switch t {
		case al.A:
			out = append(out, al.B)
		case al.B:
			out = append(out, al.A)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
