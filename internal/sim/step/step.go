// Package step is the deterministic state-transition function and the
// systems it orchestrates. Advance is pure with respect to the snapshot: it
// clones its input, runs the documented phase sequence, and returns the next
// snapshot. No I/O, no wall-clock reads, no iteration over unsorted maps.
package step

import (
	"fmt"
	"log"
	"sort"

	"regent/internal/sim/catalogs"
	"regent/internal/sim/fixed"
	"regent/internal/sim/state"
	"regent/internal/sim/tuning"
)

// Config threads the gameplay rate constants and failure policy through a
// tick. It is constructed once at startup and shared; never mutated.
type Config struct {
	Rates tuning.Rates

	// Strict makes invariant violations panic instead of clamping.
	// Development and tests run strict; production hosts run lenient and
	// log every clamp.
	Strict bool

	// Logger receives invariant-clamp reports in lenient mode. Nil
	// silences them.
	Logger *log.Logger

	// Workers > 1 enables data-parallel province accumulation inside the
	// economy systems. Output is identical for any worker count.
	Workers int
}

// invariant reports a violated invariant. Strict mode fails fast; otherwise
// the caller clamps and the violation is logged.
func (cfg *Config) invariant(format string, args ...any) {
	if cfg.Strict {
		panic("invariant violated: " + fmt.Sprintf(format, args...))
	}
	if cfg.Logger != nil {
		cfg.Logger.Printf("invariant clamped: "+format, args...)
	}
}

// Advance computes the next snapshot from the current one plus the tick's
// consolidated command batch.
//
// Phase order, fixed on every peer:
//
//	daily:   validate/apply commands -> movement -> combat -> siege ->
//	         occupation
//	monthly: unrest -> taxation -> production -> manpower -> trade power ->
//	         trade value -> trade income -> expenses -> mana -> diplomacy
//	yearly:  prestige decay
//
// Systems never observe another system's in-progress output: each runs to
// completion before the next starts.
func Advance(s *state.WorldState, batch []Issued, cats *catalogs.Catalogs, cfg *Config) (*state.WorldState, []Rejection) {
	n := s.Clone()
	n.Date = s.Date.AddDays(1)
	n.Tick = s.Tick + 1

	var rejected []Rejection
	for _, is := range batch {
		if err := CanExecute(n, cats, is.Country, is.Cmd); err != nil {
			ae, ok := err.(*ActionError)
			if !ok {
				ae = &ActionError{Code: ErrBadCommand, Detail: err.Error()}
			}
			rejected = append(rejected, Rejection{Country: is.Country, Cmd: is.Cmd, Err: ae})
			continue
		}
		apply(n, cats, cfg, is.Country, is.Cmd)
	}

	systemMovement(n, cfg)
	systemCombat(n, cfg)
	systemSiege(n, cfg)
	systemOccupation(n, cfg)

	if n.Date.MonthStart() {
		for _, tag := range sortedTags(n) {
			n.Countries[tag].Income = state.IncomeLedger{}
		}
		systemUnrest(n, cfg)
		systemTaxation(n, cats, cfg)
		systemProduction(n, cats, cfg)
		systemManpower(n, cats, cfg)
		systemTradePower(n, cats, cfg)
		systemTradeValue(n, cats, cfg)
		systemTradeIncome(n, cats, cfg)
		systemExpenses(n, cfg)
		systemMana(n, cfg)
		systemDiplomacy(n, cfg)
	}

	if n.Date.YearStart() {
		systemPrestigeDecay(n, cfg)
	}

	return n, rejected
}

// apply executes a command already accepted by CanExecute. Mutations here
// mirror the validation exactly; any drift between the two is a bug.
func apply(s *state.WorldState, cats *catalogs.Catalogs, cfg *Config, actor state.Tag, cmd Command) {
	c := s.Countries[actor]

	switch cmd.Kind {
	case CmdMoveArmy:
		a := s.Armies[cmd.Army]
		path := findPath(s, cats, a.Location, cmd.Target)
		a.Movement = &state.Movement{Path: path}

	case CmdRecruitRegiment:
		c.Treasury = c.Treasury.Sub(recruitCost)
		c.Manpower = c.Manpower.Sub(regimentSize)
		reg := state.Regiment{Type: cmd.Name, Strength: regimentSize}
		if a := armyAt(s, actor, cmd.Target); a != nil {
			a.Regiments = append(a.Regiments, reg)
			return
		}
		id := s.NextArmyID
		s.NextArmyID++
		s.Armies[id] = &state.Army{
			ID:        id,
			Name:      fmt.Sprintf("%s %d. Army", actor, id),
			Owner:     actor,
			Location:  cmd.Target,
			Regiments: []state.Regiment{reg},
		}

	case CmdDisbandArmy:
		a := s.Armies[cmd.Army]
		// Half the remaining strength returns to the pool.
		c.Manpower = c.Manpower.Add(a.Strength().DivInt(2))
		delete(s.Armies, cmd.Army)

	case CmdDeclareWar:
		id := s.NextWarID
		s.NextWarID++
		s.Wars[id] = &state.War{
			ID:         id,
			Attackers:  []state.Tag{actor},
			Defenders:  []state.Tag{cmd.Tag},
			CasusBelli: cmd.Name,
			Started:    s.Date,
		}
		if !hasCasusBelli(s, actor, cmd.Tag) {
			c.Stability -= noCasusBelliStabilityHit
			if c.Stability < state.StabilityMin {
				c.Stability = state.StabilityMin
			}
		}
		// Attacking an ally voids the pact on the spot.
		if s.Allied(actor, cmd.Tag) {
			removeAlliance(s, actor, cmd.Tag)
			shiftRelations(s, actor, cmd.Tag, relBreakAlliance)
		}
		// The defender's allies are invited automatically; the attacker
		// must call each ally by command.
		for _, ally := range s.Allies(cmd.Tag) {
			if ally == actor {
				continue
			}
			callAlly(s, s.Wars[id], cmd.Tag, ally)
		}

	case CmdOfferPeace:
		w := s.Wars[cmd.War]
		ceded := append([]state.ProvinceID(nil), cmd.Provinces...)
		sort.Slice(ceded, func(i, j int) bool { return ceded[i] < ceded[j] })
		w.PendingPeace = &state.PeaceOffer{
			From:    actor,
			Offered: s.Date,
			Ceded:   ceded,
			Tribute: cmd.Amount.Max(0),
		}

	case CmdAcceptPeace:
		settlePeace(s, cfg, s.Wars[cmd.War])

	case CmdDevelopProvince:
		p := s.Provinces[cmd.Target]
		switch cmd.Name {
		case DevTax:
			c.AdmMana = c.AdmMana.Sub(developCost)
			p.BaseTax = p.BaseTax.Add(fixed.One)
		case DevProduction:
			c.DipMana = c.DipMana.Sub(developCost)
			p.BaseProduction = p.BaseProduction.Add(fixed.One)
		case DevManpower:
			c.MilMana = c.MilMana.Sub(developCost)
			p.BaseManpower = p.BaseManpower.Add(fixed.One)
		}

	case CmdBuildBuilding:
		def := cats.Buildings.ByID[cmd.Name]
		c.Treasury = c.Treasury.Sub(def.Cost)
		p := s.Provinces[cmd.Target]
		p.Buildings[cmd.Name] = true
		if def.FortLevel > p.FortLevel {
			p.FortLevel = def.FortLevel
		}

	case CmdEmbraceInstitution:
		c.AdmMana = c.AdmMana.Sub(embraceCost)
		c.Institutions[cmd.Name] = true

	case CmdBuyTech:
		levels := cats.Technologies.Levels[cmd.Name]
		switch cmd.Name {
		case "adm":
			c.AdmMana = c.AdmMana.Sub(levels[c.AdmTech].Cost)
			c.AdmTech++
		case "dip":
			c.DipMana = c.DipMana.Sub(levels[c.DipTech].Cost)
			c.DipTech++
		case "mil":
			c.MilMana = c.MilMana.Sub(levels[c.MilTech].Cost)
			c.MilTech++
		}

	case CmdFormAlliance:
		formAlliance(s, actor, cmd.Tag)

	case CmdBreakAlliance:
		removeAlliance(s, actor, cmd.Tag)
		shiftRelations(s, actor, cmd.Tag, relBreakAlliance)

	case CmdCallAlly:
		callAlly(s, s.Wars[cmd.War], actor, cmd.Tag)

	case CmdJoinWar:
		joinWar(s, s.Wars[cmd.War], actor)

	case CmdDeclineCall:
		declineCall(s, actor, cmd.War)

	case CmdFabricateClaim:
		c.DipMana = c.DipMana.Sub(claimCost)
		p := s.Provinces[cmd.Target]
		if p.Claims == nil {
			p.Claims = map[state.Tag]bool{}
		}
		p.Claims[actor] = true
	}
}

// settlePeace applies a pending offer: ceded provinces change owner, the
// tribute moves, the war ends and a five-year truce binds every pairing of
// former enemies.
func settlePeace(s *state.WorldState, cfg *Config, w *state.War) {
	offer := w.PendingPeace
	winner := w.Side(offer.From)

	for _, pid := range offer.Ceded {
		p, ok := s.Provinces[pid]
		if !ok || w.Side(p.Owner) == winner || w.Side(p.Owner) == 0 {
			continue
		}
		newOwner := leaderOf(w, winner)
		p.Owner = newOwner
		p.Controller = newOwner
		p.SiegeProgress = 0
	}
	if offer.Tribute > 0 {
		from := leaderOf(w, -winner)
		to := leaderOf(w, winner)
		payer := s.Countries[from]
		payee := s.Countries[to]
		paid := offer.Tribute.Min(payer.Treasury.Max(0))
		payer.Treasury = payer.Treasury.Sub(paid)
		payee.Treasury = payee.Treasury.Add(paid)
	}

	// Restore control of every remaining occupation between the parties.
	for _, pid := range sortedProvinceIDs(s) {
		p := s.Provinces[pid]
		if p.Occupied() && w.Side(p.Owner) != 0 && w.Side(p.Controller) != 0 {
			p.Controller = p.Owner
			p.SiegeProgress = 0
		}
	}

	until := s.Date.AddDays(5 * 365)
	for _, a := range w.Attackers {
		for _, d := range w.Defenders {
			x, y := a, d
			if y < x {
				x, y = y, x
			}
			s.Truces = append(s.Truces, state.Truce{A: x, B: y, Until: until})
		}
	}

	// Drop engagements that belonged to this war.
	for _, pid := range sortedEngagementIDs(s) {
		if s.Engagements[pid].War == w.ID {
			delete(s.Engagements, pid)
		}
	}

	// Unanswered calls to arms die with the war.
	for _, tag := range sortedTags(s) {
		delete(s.Countries[tag].PendingCalls, w.ID)
	}

	delete(s.Wars, w.ID)
}

// leaderOf returns the first (founding) member of a war side.
func leaderOf(w *state.War, side int) state.Tag {
	if side > 0 {
		return w.Attackers[0]
	}
	return w.Defenders[0]
}

// armyAt returns the lowest-id army of owner in the province, or nil.
func armyAt(s *state.WorldState, owner state.Tag, at state.ProvinceID) *state.Army {
	var best *state.Army
	for _, id := range sortedArmyIDs(s) {
		a := s.Armies[id]
		if a.Owner == owner && a.Location == at {
			best = a
			break
		}
	}
	return best
}

// Sorted key helpers. Every system walks collections through these so map
// iteration order can never reach the outputs.

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

func sortedWarIDs(s *state.WorldState) []state.WarID {
	ids := make([]state.WarID, 0, len(s.Wars))
	for id := range s.Wars {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedEngagementIDs(s *state.WorldState) []state.ProvinceID {
	ids := make([]state.ProvinceID, 0, len(s.Engagements))
	for id := range s.Engagements {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedFleetIDs(s *state.WorldState) []state.FleetID {
	ids := make([]state.FleetID, 0, len(s.Fleets))
	for id := range s.Fleets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
