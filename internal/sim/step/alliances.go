package step

import (
	"regent/internal/sim/fixed"
	"regent/internal/sim/state"
)

// Relation swings for alliance events. Opinions are clamped to [-100, 100]
// and drift back toward zero monthly, so a broken pact heals over time.
var (
	relFormAlliance  = fixed.FromInt(25)
	relBreakAlliance = fixed.FromInt(-25)
	relAnswerCall    = fixed.FromInt(5)
	relDeclineCall   = fixed.FromInt(-10)

	declinePrestigeHit = fixed.FromInt(25)
)

// Declaring war without a core or claim on the target shakes the realm.
const noCasusBelliStabilityHit = 2

func formAlliance(s *state.WorldState, a, b state.Tag) {
	x, y := a, b
	if y < x {
		x, y = y, x
	}
	s.Alliances = append(s.Alliances, state.Alliance{A: x, B: y})
	shiftRelations(s, a, b, relFormAlliance)
}

func removeAlliance(s *state.WorldState, a, b state.Tag) {
	x, y := a, b
	if y < x {
		x, y = y, x
	}
	kept := s.Alliances[:0]
	for _, al := range s.Alliances {
		if al.A == x && al.B == y {
			continue
		}
		kept = append(kept, al)
	}
	s.Alliances = kept
}

// shiftRelations moves both countries' opinion of each other by delta.
func shiftRelations(s *state.WorldState, a, b state.Tag, delta fixed.Value) {
	bound := fixed.FromInt(100)
	if ca, ok := s.Countries[a]; ok {
		if ca.Relations == nil {
			ca.Relations = map[state.Tag]fixed.Value{}
		}
		ca.Relations[b] = ca.Relations[b].Add(delta).Clamp(bound.Neg(), bound)
	}
	if cb, ok := s.Countries[b]; ok {
		if cb.Relations == nil {
			cb.Relations = map[state.Tag]fixed.Value{}
		}
		cb.Relations[a] = cb.Relations[a].Add(delta).Clamp(bound.Neg(), bound)
	}
}

// callAlly records a pending call to arms on the ally's side of the
// caller. The ally answers with join_war or decline_call.
func callAlly(s *state.WorldState, w *state.War, caller, ally state.Tag) {
	c := s.Countries[ally]
	if c.PendingCalls == nil {
		c.PendingCalls = map[state.WarID]int8{}
	}
	c.PendingCalls[w.ID] = int8(w.Side(caller))
}

// joinWar seats the country on its invited side. The joiner is appended so
// the founding member keeps index zero; batch order makes the append
// deterministic.
func joinWar(s *state.WorldState, w *state.War, t state.Tag) {
	c := s.Countries[t]
	side := c.PendingCalls[w.ID]
	delete(c.PendingCalls, w.ID)

	var members []state.Tag
	if side > 0 {
		members = w.Attackers
		w.Attackers = append(w.Attackers, t)
	} else {
		members = w.Defenders
		w.Defenders = append(w.Defenders, t)
	}
	for _, m := range members {
		if s.Allied(t, m) {
			shiftRelations(s, t, m, relAnswerCall)
		}
	}
}

// declineCall refuses a pending call to arms: the refuser loses prestige,
// every alliance with a caller on the invited side breaks, and all
// remaining allies think less of the refuser.
func declineCall(s *state.WorldState, t state.Tag, id state.WarID) {
	c := s.Countries[t]
	side := c.PendingCalls[id]
	delete(c.PendingCalls, id)

	bound := fixed.FromInt(100)
	c.Prestige = c.Prestige.Sub(declinePrestigeHit).Clamp(bound.Neg(), bound)

	allies := s.Allies(t)

	w, ok := s.Wars[id]
	if ok {
		callers := w.Attackers
		if side < 0 {
			callers = w.Defenders
		}
		for _, caller := range callers {
			if s.Allied(t, caller) {
				removeAlliance(s, t, caller)
			}
		}
	}

	for _, ally := range allies {
		shiftRelations(s, t, ally, relDeclineCall)
	}
}

// hasCasusBelli reports whether the attacker holds a core or claim on any
// province owned by the target.
func hasCasusBelli(s *state.WorldState, attacker, target state.Tag) bool {
	for _, pid := range sortedProvinceIDs(s) {
		p := s.Provinces[pid]
		if p.Owner == target && (p.Cores[attacker] || p.Claims[attacker]) {
			return true
		}
	}
	return false
}
