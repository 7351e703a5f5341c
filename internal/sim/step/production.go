package step

import (
	"regent/internal/sim/catalogs"
	"regent/internal/sim/fixed"
	"regent/internal/sim/sched"
	"regent/internal/sim/state"
)

// goodsOutputRate is the produced-units-per-base-production constant.
var goodsOutputRate = fixed.FromRaw(2000) // 0.2

// productionValue is the raw monthly goods value of a province before
// national modifiers: baseProduction × 0.2 × goods price / 12. This is
// also the amount the province feeds into its trade node.
func productionValue(cats *catalogs.Catalogs, p *state.ProvinceState) fixed.Value {
	good, ok := cats.TradeGoods.ByID[p.TradeGood]
	if !ok {
		return fixed.Zero
	}
	return p.BaseProduction.Mul(goodsOutputRate).Mul(good.BasePrice).DivInt(12)
}

// systemProduction credits each owner with the production income of its
// unoccupied provinces, scaled by national and building modifiers and
// reduced by autonomy.
func systemProduction(s *state.WorldState, cats *catalogs.Catalogs, cfg *Config) {
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
		local := buildingBonus(cats, p, func(d catalogs.BuildingDef) fixed.Value { return d.ProdBonus })
		monthly := productionValue(cats, p).
			Mul(fixed.One.Add(c.ProductionModifier).Add(local)).
			Mul(fixed.One.Sub(clampAutonomy(p, cfg)))
		if monthly.IsNegative() {
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
		c.Treasury = c.Treasury.Add(totals[tag])
		c.Income.Production = c.Income.Production.Add(totals[tag])
	}
}
