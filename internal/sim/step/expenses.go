package step

import (
	"regent/internal/sim/fixed"
	"regent/internal/sim/state"
)

// systemExpenses charges monthly maintenance for every regiment and ship.
// Maintenance is deducted unconditionally, so the treasury may go
// negative; there is no bankruptcy mechanic, debt just accumulates.
func systemExpenses(s *state.WorldState, cfg *Config) {
	totals := map[state.Tag]fixed.Value{}
	for _, id := range sortedArmyIDs(s) {
		a := s.Armies[id]
		cost := cfg.Rates.RegimentMaintenance.MulInt(int64(len(a.Regiments)))
		totals[a.Owner] = totals[a.Owner].Add(cost)
	}
	for _, id := range sortedFleetIDs(s) {
		f := s.Fleets[id]
		cost := cfg.Rates.ShipMaintenance.MulInt(int64(len(f.Ships)))
		totals[f.Owner] = totals[f.Owner].Add(cost)
	}
	for _, tag := range sortedTags(s) {
		c := s.Countries[tag]
		cost := totals[tag]
		c.Treasury = c.Treasury.Sub(cost)
		c.Income.Expenses = c.Income.Expenses.Add(cost)
	}
}

// systemMana grants the monthly point income for all three pools, capped.
func systemMana(s *state.WorldState, cfg *Config) {
	gain := cfg.Rates.ManaPerMonth
	cap := cfg.Rates.ManaCap
	for _, tag := range sortedTags(s) {
		c := s.Countries[tag]
		c.AdmMana = c.AdmMana.Add(gain).Min(cap)
		c.DipMana = c.DipMana.Add(gain).Min(cap)
		c.MilMana = c.MilMana.Add(gain).Min(cap)
	}
}
