package step

import (
	"sort"

	"regent/internal/sim/fixed"
	"regent/internal/sim/state"
)

// systemCombat drives the engagement state machine:
//
//	Forming  — opposing armies share a province, battle lines are drawn
//	Active   — daily casualty exchange
//	Resolved — a side has no strength left, the engagement is removed
//
// Total strength across the world strictly decreases while any engagement
// is Active; combat can never create strength.
func systemCombat(s *state.WorldState, cfg *Config) {
	formEngagements(s)

	for _, pid := range sortedEngagementIDs(s) {
		e := s.Engagements[pid]
		refreshSides(s, e)

		switch e.Phase {
		case state.EngagementForming:
			if len(e.Attackers) == 0 || len(e.Defenders) == 0 {
				e.Phase = state.EngagementResolved
				break
			}
			e.Phase = state.EngagementActive

		case state.EngagementActive:
			if len(e.Attackers) == 0 || len(e.Defenders) == 0 {
				e.Phase = state.EngagementResolved
				break
			}
			e.Days++
			fightDay(s, cfg, e)
			if len(e.Attackers) == 0 || len(e.Defenders) == 0 {
				e.Phase = state.EngagementResolved
			}
		}

		if e.Phase == state.EngagementResolved {
			delete(s.Engagements, pid)
		}
	}
}

// formEngagements opens an engagement in every province where armies of
// opposing war sides are co-located and none is running yet.
func formEngagements(s *state.WorldState) {
	for _, pid := range provincesWithArmies(s) {
		if _, open := s.Engagements[pid]; open {
			continue
		}
		war, ok := hostileWarAt(s, pid)
		if !ok {
			continue
		}
		e := &state.Engagement{
			Province: pid,
			Phase:    state.EngagementForming,
			War:      war,
		}
		collectSides(s, e)
		if len(e.Attackers) > 0 && len(e.Defenders) > 0 {
			s.Engagements[pid] = e
		}
	}
}

// hostileWarAt returns the lowest war id with armies of both sides in the
// province.
func hostileWarAt(s *state.WorldState, pid state.ProvinceID) (state.WarID, bool) {
	for _, wid := range sortedWarIDs(s) {
		w := s.Wars[wid]
		att, def := false, false
		for _, aid := range sortedArmyIDs(s) {
			a := s.Armies[aid]
			if a.Location != pid {
				continue
			}
			switch w.Side(a.Owner) {
			case 1:
				att = true
			case -1:
				def = true
			}
		}
		if att && def {
			return wid, true
		}
	}
	return 0, false
}

// collectSides fills the engagement membership from the armies currently in
// its province, in ascending army id order.
func collectSides(s *state.WorldState, e *state.Engagement) {
	w := s.Wars[e.War]
	e.Attackers = e.Attackers[:0]
	e.Defenders = e.Defenders[:0]
	if w == nil {
		return
	}
	for _, aid := range sortedArmyIDs(s) {
		a := s.Armies[aid]
		if a.Location != e.Province {
			continue
		}
		switch w.Side(a.Owner) {
		case 1:
			e.Attackers = append(e.Attackers, aid)
		case -1:
			e.Defenders = append(e.Defenders, aid)
		}
	}
}

// refreshSides re-collects membership so reinforcements arriving on a later
// tick join the line, and destroyed armies drop out.
func refreshSides(s *state.WorldState, e *state.Engagement) {
	collectSides(s, e)
}

// fightDay applies one day of mutual casualties. Each army loses
// strength × rate × (enemyPower / totalPower), spread evenly across its
// regiments. If both sides hit zero the same day, both are destroyed; there
// is no implicit winner.
func fightDay(s *state.WorldState, cfg *Config, e *state.Engagement) {
	attPower := sidePower(s, e.Attackers)
	defPower := sidePower(s, e.Defenders)
	total := attPower.Add(defPower)
	if total.IsZero() {
		return
	}

	w := s.Wars[e.War]
	rate := cfg.Rates.CombatDailyRate

	// Casualty fractions are computed from the start-of-day powers for
	// both sides before any strength is removed.
	attLossFrac := rate.Mul(defPower.Div(total))
	defLossFrac := rate.Mul(attPower.Div(total))

	attLoss := applyCasualties(s, cfg, e.Attackers, attLossFrac)
	defLoss := applyCasualties(s, cfg, e.Defenders, defLossFrac)
	if w != nil {
		w.AttackerCasualties = w.AttackerCasualties.Add(attLoss)
		w.DefenderCasualties = w.DefenderCasualties.Add(defLoss)
	}

	pruneDestroyed(s, e)
}

func sidePower(s *state.WorldState, side []state.ArmyID) fixed.Value {
	var total fixed.Value
	for _, id := range side {
		if a, ok := s.Armies[id]; ok {
			total = total.Add(a.Strength())
		}
	}
	return total
}

// applyCasualties removes frac of each army's strength, evenly across its
// regiments, never below zero. Returns the total strength removed.
func applyCasualties(s *state.WorldState, cfg *Config, side []state.ArmyID, frac fixed.Value) fixed.Value {
	if frac.IsNegative() {
		cfg.invariant("negative casualty fraction %v", frac)
		return fixed.Zero
	}
	var removed fixed.Value
	for _, id := range side {
		a, ok := s.Armies[id]
		if !ok {
			continue
		}
		loss := a.Strength().Mul(frac)
		if loss.IsZero() && a.Strength() > 0 {
			// Below fixed-point resolution; take the minimum cut so
			// battles always terminate.
			loss = fixed.FromRaw(1)
		}
		perReg := loss.DivInt(int64(len(a.Regiments))).Max(fixed.FromRaw(1))
		for i := range a.Regiments {
			cut := perReg.Min(a.Regiments[i].Strength)
			a.Regiments[i].Strength = a.Regiments[i].Strength.Sub(cut)
			removed = removed.Add(cut)
		}
	}
	return removed
}

// pruneDestroyed deletes zero-strength regiments, removes armies with no
// regiments from the map entirely, and drops them from the engagement.
func pruneDestroyed(s *state.WorldState, e *state.Engagement) {
	prune := func(side []state.ArmyID) []state.ArmyID {
		kept := side[:0]
		for _, id := range side {
			a, ok := s.Armies[id]
			if !ok {
				continue
			}
			regs := a.Regiments[:0]
			for _, r := range a.Regiments {
				if r.Strength > 0 {
					regs = append(regs, r)
				}
			}
			a.Regiments = regs
			if len(a.Regiments) == 0 {
				delete(s.Armies, id)
				continue
			}
			kept = append(kept, id)
		}
		return kept
	}
	e.Attackers = prune(e.Attackers)
	e.Defenders = prune(e.Defenders)
}

// provincesWithArmies returns the sorted set of provinces that hold at
// least one army.
func provincesWithArmies(s *state.WorldState) []state.ProvinceID {
	seen := map[state.ProvinceID]bool{}
	for _, a := range s.Armies {
		seen[a.Location] = true
	}
	ids := make([]state.ProvinceID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
