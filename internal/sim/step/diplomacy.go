package step

import (
	"sort"

	"regent/internal/sim/fixed"
	"regent/internal/sim/state"
)

// systemDiplomacy is the monthly diplomatic upkeep: expired truces drop
// out, every war's score is recomputed, and wars past the auto-peace age
// end in a white peace.
func systemDiplomacy(s *state.WorldState, cfg *Config) {
	kept := s.Truces[:0]
	for _, t := range s.Truces {
		if s.Date.Before(t.Until) {
			kept = append(kept, t)
		}
	}
	s.Truces = kept

	driftRelations(s)

	autoPeaceDays := int64(cfg.Rates.WarAutoPeaceYears) * 365
	for _, id := range sortedWarIDs(s) {
		w := s.Wars[id]
		w.Score = warScore(s, w)
		if s.Date.DayNumber()-w.Started.DayNumber() >= autoPeaceDays {
			w.PendingPeace = &state.PeaceOffer{From: leaderOf(w, 1), Offered: s.Date}
			settlePeace(s, cfg, w)
		}
	}
}

// driftRelations pulls every opinion one point toward neutral each month
// and drops entries that reach it, so old grudges and old favors both
// fade.
func driftRelations(s *state.WorldState) {
	for _, tag := range sortedTags(s) {
		c := s.Countries[tag]
		others := make([]string, 0, len(c.Relations))
		for rt := range c.Relations {
			others = append(others, string(rt))
		}
		sort.Strings(others)
		for _, o := range others {
			rt := state.Tag(o)
			r := c.Relations[rt]
			if r.Abs() <= fixed.One {
				delete(c.Relations, rt)
				continue
			}
			if r.IsNegative() {
				c.Relations[rt] = r.Add(fixed.One)
			} else {
				c.Relations[rt] = r.Sub(fixed.One)
			}
		}
	}
}

// warScore computes the attacker's score in [-100, 100]. Occupation is
// worth up to 50 points per direction, scaled by the share of enemy
// provinces a side controls. Casualties contribute up to 25 points for
// whichever side has inflicted more.
func warScore(s *state.WorldState, w *state.War) int8 {
	var defTotal, defHeld, attTotal, attHeld int64
	for _, pid := range sortedProvinceIDs(s) {
		p := s.Provinces[pid]
		switch w.Side(p.Owner) {
		case -1:
			defTotal++
			if w.Side(p.Controller) == 1 {
				defHeld++
			}
		case 1:
			attTotal++
			if w.Side(p.Controller) == -1 {
				attHeld++
			}
		}
	}

	var score fixed.Value
	if defTotal > 0 {
		score = score.Add(fixed.FromInt(50).MulInt(defHeld).DivInt(defTotal))
	}
	if attTotal > 0 {
		score = score.Sub(fixed.FromInt(50).MulInt(attHeld).DivInt(attTotal))
	}

	totalCas := w.AttackerCasualties.Add(w.DefenderCasualties)
	if !totalCas.IsZero() {
		diff := w.DefenderCasualties.Sub(w.AttackerCasualties)
		score = score.Add(fixed.FromInt(25).Mul(diff.Div(totalCas)))
	}

	return int8(score.Clamp(fixed.FromInt(-100), fixed.FromInt(100)).Round())
}

// systemPrestigeDecay is the yearly pull of prestige and army tradition
// toward zero.
func systemPrestigeDecay(s *state.WorldState, cfg *Config) {
	decay := cfg.Rates.PrestigeYearlyDecay
	for _, tag := range sortedTags(s) {
		c := s.Countries[tag]
		c.Prestige = c.Prestige.Sub(c.Prestige.Mul(decay)).
			Clamp(fixed.FromInt(-100), fixed.FromInt(100))
		c.ArmyTradition = c.ArmyTradition.Sub(c.ArmyTradition.Mul(decay)).Max(fixed.Zero)
	}
}
