package step

import (
	"sort"

	"regent/internal/sim/catalogs"
	"regent/internal/sim/fixed"
	"regent/internal/sim/state"
)

// systemTradePower rebuilds every node's power table from scratch. A
// province projects development × (1 − autonomy) of power into its node
// for its controller, so occupation moves trade power along with the land.
func systemTradePower(s *state.WorldState, cats *catalogs.Catalogs, cfg *Config) {
	for _, node := range s.TradeNodes {
		node.Power = make(map[state.Tag]fixed.Value)
	}
	for _, id := range sortedProvinceIDs(s) {
		p := s.Provinces[id]
		if p.Owner == "" || p.TradeNode == "" {
			continue
		}
		node, ok := s.TradeNodes[p.TradeNode]
		if !ok {
			cfg.invariant("province %d references unknown trade node %q", id, p.TradeNode)
			continue
		}
		holder := p.Controller
		if holder == "" {
			holder = p.Owner
		}
		dev := p.BaseTax.Add(p.BaseProduction).Add(p.BaseManpower)
		power := dev.Mul(fixed.One.Sub(clampAutonomy(p, cfg)))
		if power.IsNegative() {
			power = fixed.Zero
		}
		node.Power[holder] = node.Power[holder].Add(power)
	}
}

// systemTradeValue recomputes node values in topological order. Each node
// collects the production value of its provinces plus whatever upstream
// nodes forwarded, then pushes half of the total downstream (split evenly
// when a node has several outlets). End nodes retain everything.
func systemTradeValue(s *state.WorldState, cats *catalogs.Catalogs, cfg *Config) {
	local := map[string]fixed.Value{}
	for _, id := range sortedProvinceIDs(s) {
		p := s.Provinces[id]
		if p.TradeNode == "" {
			continue
		}
		local[p.TradeNode] = local[p.TradeNode].Add(productionValue(cats, p))
	}

	inflow := map[string]fixed.Value{}
	for _, name := range cats.TradeNodes.Order {
		node, ok := s.TradeNodes[name]
		if !ok {
			continue
		}
		total := local[name].Add(inflow[name])
		def := cats.TradeNodes.ByID[name]
		if len(def.Downstream) == 0 {
			node.Value = total
			continue
		}
		forwarded := total.Mul(fixed.Half)
		node.Value = total.Sub(forwarded)
		per := forwarded.DivInt(int64(len(def.Downstream)))
		for _, down := range def.Downstream {
			inflow[down] = inflow[down].Add(per)
		}
	}
}

// systemTradeIncome pays each country its power-proportional share of its
// home node's value.
func systemTradeIncome(s *state.WorldState, cats *catalogs.Catalogs, cfg *Config) {
	for _, tag := range sortedTags(s) {
		c := s.Countries[tag]
		node, ok := s.TradeNodes[c.HomeNode]
		if !ok {
			continue
		}
		power := node.Power[tag]
		if power.IsZero() || power.IsNegative() {
			continue
		}
		var totalPower fixed.Value
		for _, t := range sortedPowerTags(node) {
			totalPower = totalPower.Add(node.Power[t])
		}
		income := node.Value.Mul(power).Div(totalPower)
		c.Treasury = c.Treasury.Add(income)
		c.Income.Trade = c.Income.Trade.Add(income)
	}
}

func sortedPowerTags(node *state.TradeNodeState) []state.Tag {
	tags := make([]state.Tag, 0, len(node.Power))
	for t := range node.Power {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}
