package step

import (
	"regent/internal/sim/fixed"
	"regent/internal/sim/state"
)

// systemSiege advances sieges: an uncontested hostile army in a fortified
// enemy province accumulates daily progress; at full progress the fort
// falls and the controller flips to the besieger.
func systemSiege(s *state.WorldState, cfg *Config) {
	for _, pid := range sortedProvinceIDs(s) {
		p := s.Provinces[pid]
		if p.FortLevel == 0 || p.Owner == "" {
			continue
		}
		besieger, ok := uncontestedHostile(s, pid, p)
		if !ok {
			// No siege without a lone hostile force; progress holds
			// (the garrison does not re-sort itself overnight).
			continue
		}
		p.SiegeProgress = p.SiegeProgress.Add(cfg.Rates.SiegeDailyProgress)
		if p.SiegeProgress < fixed.One {
			continue
		}
		p.Controller = besieger
		p.SiegeProgress = fixed.Zero
	}
}

// systemOccupation flips control of unfortified enemy provinces instantly
// when a hostile army stands in them unopposed.
func systemOccupation(s *state.WorldState, cfg *Config) {
	for _, pid := range sortedProvinceIDs(s) {
		p := s.Provinces[pid]
		if p.FortLevel != 0 || p.Owner == "" {
			continue
		}
		besieger, ok := uncontestedHostile(s, pid, p)
		if !ok {
			continue
		}
		p.Controller = besieger
	}
}

// uncontestedHostile returns the occupying tag when exactly one war side
// hostile to the province's controller holds armies there and no defending
// army is present. The tag chosen is the owner of the lowest-id hostile
// army, which is identical on every peer.
func uncontestedHostile(s *state.WorldState, pid state.ProvinceID, p *state.ProvinceState) (state.Tag, bool) {
	if _, fighting := s.Engagements[pid]; fighting {
		return "", false
	}
	var hostile state.Tag
	for _, aid := range sortedArmyIDs(s) {
		a := s.Armies[aid]
		if a.Location != pid {
			continue
		}
		if a.Owner == p.Controller || !atWar(s, a.Owner, p.Controller) {
			// A friendly or neutral army lifts the siege by presence.
			if a.Owner == p.Controller {
				return "", false
			}
			continue
		}
		if hostile == "" {
			hostile = a.Owner
		}
	}
	if hostile == "" {
		return "", false
	}
	// Control already flipped; nothing left to do this tick.
	if p.Controller == hostile {
		return "", false
	}
	return hostile, true
}

// atWar reports whether a and b are on opposite sides of any active war.
func atWar(s *state.WorldState, a, b state.Tag) bool {
	for _, wid := range sortedWarIDs(s) {
		w := s.Wars[wid]
		if w.Side(a)*w.Side(b) == -1 {
			return true
		}
	}
	return false
}
