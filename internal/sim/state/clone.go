package state

import "regent/internal/sim/fixed"

// Clone produces the next tick's working snapshot. Only mutable collections
// are copied; callers treat the original as frozen from this point on, so
// historical snapshots can be retained for replay and rollback cheaply.
func (s *WorldState) Clone() *WorldState {
	n := *s

	n.Countries = make(map[Tag]*CountryState, len(s.Countries))
	for tag, c := range s.Countries {
		n.Countries[tag] = c.clone()
	}
	n.Provinces = make(map[ProvinceID]*ProvinceState, len(s.Provinces))
	for id, p := range s.Provinces {
		n.Provinces[id] = p.clone()
	}
	n.Armies = make(map[ArmyID]*Army, len(s.Armies))
	for id, a := range s.Armies {
		n.Armies[id] = a.clone()
	}
	n.Fleets = make(map[FleetID]*Fleet, len(s.Fleets))
	for id, f := range s.Fleets {
		n.Fleets[id] = f.clone()
	}
	n.Wars = make(map[WarID]*War, len(s.Wars))
	for id, w := range s.Wars {
		n.Wars[id] = w.clone()
	}
	n.Engagements = make(map[ProvinceID]*Engagement, len(s.Engagements))
	for id, e := range s.Engagements {
		n.Engagements[id] = e.clone()
	}
	n.TradeNodes = make(map[string]*TradeNodeState, len(s.TradeNodes))
	for name, t := range s.TradeNodes {
		n.TradeNodes[name] = t.clone()
	}
	n.Truces = append([]Truce(nil), s.Truces...)
	n.Alliances = append([]Alliance(nil), s.Alliances...)

	return &n
}

func (c *CountryState) clone() *CountryState {
	n := *c
	n.Institutions = copyBoolMap(c.Institutions)
	n.Relations = make(map[Tag]fixed.Value, len(c.Relations))
	for k, v := range c.Relations {
		n.Relations[k] = v
	}
	if c.PendingCalls != nil {
		n.PendingCalls = make(map[WarID]int8, len(c.PendingCalls))
		for k, v := range c.PendingCalls {
			n.PendingCalls[k] = v
		}
	}
	return &n
}

func (p *ProvinceState) clone() *ProvinceState {
	n := *p
	n.Buildings = copyBoolMap(p.Buildings)
	n.Cores = copyTagSet(p.Cores)
	n.Claims = copyTagSet(p.Claims)
	return &n
}

func (a *Army) clone() *Army {
	n := *a
	n.Regiments = append([]Regiment(nil), a.Regiments...)
	if a.Movement != nil {
		m := *a.Movement
		m.Path = append([]ProvinceID(nil), a.Movement.Path...)
		n.Movement = &m
	}
	return &n
}

func (f *Fleet) clone() *Fleet {
	n := *f
	n.Ships = append([]Ship(nil), f.Ships...)
	return &n
}

func (w *War) clone() *War {
	n := *w
	n.Attackers = append([]Tag(nil), w.Attackers...)
	n.Defenders = append([]Tag(nil), w.Defenders...)
	if w.PendingPeace != nil {
		p := *w.PendingPeace
		p.Ceded = append([]ProvinceID(nil), w.PendingPeace.Ceded...)
		n.PendingPeace = &p
	}
	return &n
}

func (e *Engagement) clone() *Engagement {
	n := *e
	n.Attackers = append([]ArmyID(nil), e.Attackers...)
	n.Defenders = append([]ArmyID(nil), e.Defenders...)
	return &n
}

func (t *TradeNodeState) clone() *TradeNodeState {
	n := *t
	n.Power = make(map[Tag]fixed.Value, len(t.Power))
	for k, v := range t.Power {
		n.Power[k] = v
	}
	return &n
}

func copyBoolMap(m map[string]bool) map[string]bool {
	if m == nil {
		return nil
	}
	n := make(map[string]bool, len(m))
	for k, v := range m {
		n[k] = v
	}
	return n
}

func copyTagSet(m map[Tag]bool) map[Tag]bool {
	if m == nil {
		return nil
	}
	n := make(map[Tag]bool, len(m))
	for k, v := range m {
		n[k] = v
	}
	return n
}
