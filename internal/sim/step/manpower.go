package step

import (
	"regent/internal/sim/catalogs"
	"regent/internal/sim/fixed"
	"regent/internal/sim/state"
)

// manpowerMax is the country's manpower ceiling: the sum over unoccupied
// owned provinces of baseManpower × per-dev yield × (1 + national + local
// bonuses) × (1 − autonomy), plus a flat floor every country receives.
func manpowerMax(s *state.WorldState, cats *catalogs.Catalogs, tag state.Tag, cfg *Config) fixed.Value {
	c := s.Countries[tag]
	total := cfg.Rates.ManpowerBase
	for _, id := range sortedProvinceIDs(s) {
		p := s.Provinces[id]
		if p.Owner != tag || p.Occupied() {
			continue
		}
		local := buildingBonus(cats, p, func(d catalogs.BuildingDef) fixed.Value { return d.ManpowerBonus })
		total = total.Add(p.BaseManpower.
			Mul(cfg.Rates.ManpowerPerDev).
			Mul(fixed.One.Add(c.ManpowerModifier).Add(local)).
			Mul(fixed.One.Sub(clampAutonomy(p, cfg))))
	}
	return total
}

// systemManpower regenerates each country's manpower pool toward its
// maximum. Recovery spreads the full pool over ManpowerRecoveryMonths.
// A pool above the ceiling (territory lost since last month) is pulled
// down to it immediately.
func systemManpower(s *state.WorldState, cats *catalogs.Catalogs, cfg *Config) {
	for _, tag := range sortedTags(s) {
		c := s.Countries[tag]
		max := manpowerMax(s, cats, tag, cfg)
		if c.Manpower >= max {
			c.Manpower = max
			continue
		}
		regen := max.DivInt(int64(cfg.Rates.ManpowerRecoveryMonths))
		c.Manpower = c.Manpower.Add(regen).Min(max)
	}
}
