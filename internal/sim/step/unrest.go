package step

import (
	"regent/internal/sim/fixed"
	"regent/internal/sim/state"
)

var unrestCap = fixed.FromInt(10)

// systemUnrest is the monthly unrest bookkeeping. Occupation stirs a
// province up; once the occupier leaves or peace returns control, unrest
// settles back down. Unrest in turn suppresses tax income, so war-torn
// land recovers its revenue gradually rather than the day the war ends.
func systemUnrest(s *state.WorldState, cfg *Config) {
	for _, pid := range sortedProvinceIDs(s) {
		p := s.Provinces[pid]
		if p.Owner == "" || p.IsSea {
			continue
		}
		if p.Occupied() {
			p.Unrest = p.Unrest.Add(cfg.Rates.UnrestOccupiedMonthly).Min(unrestCap)
		} else {
			p.Unrest = p.Unrest.Sub(cfg.Rates.UnrestMonthlyDecay).Max(fixed.Zero)
		}
	}
}

// unrestPenalty converts province unrest into a tax multiplier discount:
// one percent of income per point of unrest, at most ten percent.
func unrestPenalty(p *state.ProvinceState) fixed.Value {
	return p.Unrest.Min(unrestCap).DivInt(100)
}
