package step

import (
	"sort"

	"regent/internal/sim/catalogs"
	"regent/internal/sim/fixed"
	"regent/internal/sim/sched"
	"regent/internal/sim/state"
)

// systemTaxation runs monthly tax collection.
//
// Per province: baseTax × (1 + national + local) × (1 − autonomy) ×
// (1 − unrest penalty) / 12, floored at zero. Occupied provinces pay
// nothing. Every country also collects one ducat of base income.
//
// The per-province terms are computed via the scheduler and folded in
// ascending province order, so worker count never shifts a rounding.
func systemTaxation(s *state.WorldState, cats *catalogs.Catalogs, cfg *Config) {
	ids := sortedProvinceIDs(s)

	type share struct {
		owner  state.Tag
		amount fixed.Value
	}
	slots := sched.Map(cfg.Workers, len(ids), func(i int) share {
		p := s.Provinces[ids[i]]
		if p.Owner == "" || p.Occupied() {
			return share{}
		}
		c := s.Countries[p.Owner]
		local := buildingBonus(cats, p, func(d catalogs.BuildingDef) fixed.Value { return d.TaxBonus })
		monthly := p.BaseTax.
			Mul(fixed.One.Add(c.TaxModifier).Add(local)).
			Mul(fixed.One.Sub(clampAutonomy(p, cfg))).
			Mul(fixed.One.Sub(unrestPenalty(p))).
			DivInt(12)
		if monthly.IsNegative() {
			cfg.invariant("negative tax income %v in province %d", monthly, ids[i])
			monthly = fixed.Zero
		}
		return share{owner: p.Owner, amount: monthly}
	})

	totals := sched.Fold(map[state.Tag]fixed.Value{}, slots,
		func(acc map[state.Tag]fixed.Value, sh share) map[state.Tag]fixed.Value {
			if sh.owner != "" {
				acc[sh.owner] = acc[sh.owner].Add(sh.amount)
			}
			return acc
		})

	for _, tag := range sortedTags(s) {
		c := s.Countries[tag]
		income := totals[tag].Add(fixed.One)
		c.Treasury = c.Treasury.Add(income)
		c.Income.Taxation = c.Income.Taxation.Add(income)
	}
}

// clampAutonomy returns the province autonomy bounded to [0,1], reporting
// out-of-range stored values as invariant violations.
func clampAutonomy(p *state.ProvinceState, cfg *Config) fixed.Value {
	if p.Autonomy.IsNegative() || p.Autonomy > fixed.One {
		cfg.invariant("autonomy %v out of [0,1]", p.Autonomy)
	}
	return p.Autonomy.Clamp01()
}

// buildingBonus sums one bonus field over the province's buildings, in
// catalog-independent sorted order (addition is associative on fixed-point,
// but the walk stays sorted anyway).
func buildingBonus(cats *catalogs.Catalogs, p *state.ProvinceState, pick func(catalogs.BuildingDef) fixed.Value) fixed.Value {
	var total fixed.Value
	for _, id := range sortedBuildings(p) {
		if def, ok := cats.Buildings.ByID[id]; ok {
			total = total.Add(pick(def))
		}
	}
	return total
}

func sortedBuildings(p *state.ProvinceState) []string {
	if len(p.Buildings) == 0 {
		return nil
	}
	ids := make([]string, 0, len(p.Buildings))
	for id, built := range p.Buildings {
		if built {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
