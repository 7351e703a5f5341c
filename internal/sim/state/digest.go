package state

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
)

// Checksum returns the hex sha256 fingerprint of every gameplay-relevant
// field. Collections are walked in sorted key order so the underlying map
// iteration order never leaks into the result. Cosmetic and derived fields
// (names, income ledgers) are excluded by contract. The receiver is not
// mutated; calling twice on an unchanged snapshot yields identical strings.
func (s *WorldState) Checksum() string {
	h := sha256.New()
	var tmp [8]byte

	s.digestHeader(h, &tmp)
	s.digestCountries(h, &tmp)
	s.digestProvinces(h, &tmp)
	s.digestArmies(h, &tmp)
	s.digestFleets(h, &tmp)
	s.digestWars(h, &tmp)
	s.digestEngagements(h, &tmp)
	s.digestTrade(h, &tmp)
	s.digestTruces(h, &tmp)
	s.digestAlliances(h, &tmp)

	return hex.EncodeToString(h.Sum(nil))
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func writeU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func writeI64(h hashWriter, tmp *[8]byte, v int64) {
	writeU64(h, tmp, uint64(v))
}

func writeStr(h hashWriter, tmp *[8]byte, s string) {
	writeU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// writeSortedSet hashes a string set as (count, sorted members).
func writeSortedSet(h hashWriter, tmp *[8]byte, m map[string]bool) {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	writeU64(h, tmp, uint64(len(keys)))
	for _, k := range keys {
		writeStr(h, tmp, k)
	}
}

func writeTagSet(h hashWriter, tmp *[8]byte, m map[Tag]bool) {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v {
			keys = append(keys, string(k))
		}
	}
	sort.Strings(keys)
	writeU64(h, tmp, uint64(len(keys)))
	for _, k := range keys {
		writeStr(h, tmp, k)
	}
}

func (s *WorldState) digestHeader(h hashWriter, tmp *[8]byte) {
	writeI64(h, tmp, s.Date.DayNumber())
	writeU64(h, tmp, s.Tick)
	writeU64(h, tmp, s.RNGState)
	writeU64(h, tmp, uint64(s.NextArmyID))
	writeU64(h, tmp, uint64(s.NextFleetID))
	writeU64(h, tmp, uint64(s.NextWarID))
}

func (s *WorldState) digestCountries(h hashWriter, tmp *[8]byte) {
	tags := make([]string, 0, len(s.Countries))
	for t := range s.Countries {
		tags = append(tags, string(t))
	}
	sort.Strings(tags)
	writeU64(h, tmp, uint64(len(tags)))
	for _, t := range tags {
		c := s.Countries[Tag(t)]
		writeStr(h, tmp, t)
		writeI64(h, tmp, c.Treasury.Raw())
		writeI64(h, tmp, c.Manpower.Raw())
		writeI64(h, tmp, int64(c.Stability))
		writeI64(h, tmp, c.Prestige.Raw())
		writeI64(h, tmp, c.ArmyTradition.Raw())
		writeI64(h, tmp, c.AdmMana.Raw())
		writeI64(h, tmp, c.DipMana.Raw())
		writeI64(h, tmp, c.MilMana.Raw())
		writeU64(h, tmp, uint64(c.AdmTech)<<16|uint64(c.DipTech)<<8|uint64(c.MilTech))
		writeSortedSet(h, tmp, c.Institutions)
		writeU64(h, tmp, uint64(c.Capital))
		writeStr(h, tmp, c.HomeNode)
		writeI64(h, tmp, c.TaxModifier.Raw())
		writeI64(h, tmp, c.ProductionModifier.Raw())
		writeI64(h, tmp, c.ManpowerModifier.Raw())

		rels := make([]string, 0, len(c.Relations))
		for rt := range c.Relations {
			rels = append(rels, string(rt))
		}
		sort.Strings(rels)
		writeU64(h, tmp, uint64(len(rels)))
		for _, rt := range rels {
			writeStr(h, tmp, rt)
			writeI64(h, tmp, c.Relations[Tag(rt)].Raw())
		}

		calls := make([]int, 0, len(c.PendingCalls))
		for w := range c.PendingCalls {
			calls = append(calls, int(w))
		}
		sort.Ints(calls)
		writeU64(h, tmp, uint64(len(calls)))
		for _, w := range calls {
			writeU64(h, tmp, uint64(w))
			writeI64(h, tmp, int64(c.PendingCalls[WarID(w)]))
		}
	}
}

func (s *WorldState) digestProvinces(h hashWriter, tmp *[8]byte) {
	ids := make([]int, 0, len(s.Provinces))
	for id := range s.Provinces {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	writeU64(h, tmp, uint64(len(ids)))
	for _, id := range ids {
		p := s.Provinces[ProvinceID(id)]
		writeU64(h, tmp, uint64(id))
		writeStr(h, tmp, string(p.Owner))
		writeStr(h, tmp, string(p.Controller))
		writeI64(h, tmp, p.BaseTax.Raw())
		writeI64(h, tmp, p.BaseProduction.Raw())
		writeI64(h, tmp, p.BaseManpower.Raw())
		writeI64(h, tmp, p.Autonomy.Raw())
		writeI64(h, tmp, p.Unrest.Raw())
		writeStr(h, tmp, p.TradeGood)
		writeStr(h, tmp, p.TradeNode)
		writeU64(h, tmp, uint64(p.FortLevel))
		writeI64(h, tmp, p.SiegeProgress.Raw())
		h.Write([]byte{boolByte(p.IsSea)})
		writeSortedSet(h, tmp, p.Buildings)
		writeTagSet(h, tmp, p.Cores)
		writeTagSet(h, tmp, p.Claims)
	}
}

func (s *WorldState) digestArmies(h hashWriter, tmp *[8]byte) {
	ids := make([]int, 0, len(s.Armies))
	for id := range s.Armies {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	writeU64(h, tmp, uint64(len(ids)))
	for _, id := range ids {
		a := s.Armies[ArmyID(id)]
		writeU64(h, tmp, uint64(id))
		writeStr(h, tmp, string(a.Owner))
		writeU64(h, tmp, uint64(a.Location))
		writeU64(h, tmp, uint64(len(a.Regiments)))
		for i := range a.Regiments {
			writeStr(h, tmp, a.Regiments[i].Type)
			writeI64(h, tmp, a.Regiments[i].Strength.Raw())
		}
		if a.Movement == nil {
			writeU64(h, tmp, 0)
		} else {
			writeU64(h, tmp, uint64(len(a.Movement.Path)))
			for _, p := range a.Movement.Path {
				writeU64(h, tmp, uint64(p))
			}
			writeI64(h, tmp, a.Movement.Progress.Raw())
		}
	}
}

func (s *WorldState) digestFleets(h hashWriter, tmp *[8]byte) {
	ids := make([]int, 0, len(s.Fleets))
	for id := range s.Fleets {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	writeU64(h, tmp, uint64(len(ids)))
	for _, id := range ids {
		f := s.Fleets[FleetID(id)]
		writeU64(h, tmp, uint64(id))
		writeStr(h, tmp, string(f.Owner))
		writeU64(h, tmp, uint64(f.Location))
		writeU64(h, tmp, uint64(len(f.Ships)))
		for i := range f.Ships {
			writeStr(h, tmp, f.Ships[i].Type)
			writeI64(h, tmp, f.Ships[i].Hull.Raw())
		}
	}
}

func (s *WorldState) digestWars(h hashWriter, tmp *[8]byte) {
	ids := make([]int, 0, len(s.Wars))
	for id := range s.Wars {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	writeU64(h, tmp, uint64(len(ids)))
	for _, id := range ids {
		w := s.Wars[WarID(id)]
		writeU64(h, tmp, uint64(id))
		writeU64(h, tmp, uint64(len(w.Attackers)))
		for _, t := range w.Attackers {
			writeStr(h, tmp, string(t))
		}
		writeU64(h, tmp, uint64(len(w.Defenders)))
		for _, t := range w.Defenders {
			writeStr(h, tmp, string(t))
		}
		writeStr(h, tmp, w.CasusBelli)
		writeI64(h, tmp, w.Started.DayNumber())
		writeI64(h, tmp, int64(w.Score))
		writeI64(h, tmp, w.AttackerCasualties.Raw())
		writeI64(h, tmp, w.DefenderCasualties.Raw())
		if w.PendingPeace == nil {
			h.Write([]byte{0})
		} else {
			h.Write([]byte{1})
			writeStr(h, tmp, string(w.PendingPeace.From))
			writeI64(h, tmp, w.PendingPeace.Offered.DayNumber())
			writeU64(h, tmp, uint64(len(w.PendingPeace.Ceded)))
			for _, p := range w.PendingPeace.Ceded {
				writeU64(h, tmp, uint64(p))
			}
			writeI64(h, tmp, w.PendingPeace.Tribute.Raw())
		}
	}
}

func (s *WorldState) digestEngagements(h hashWriter, tmp *[8]byte) {
	ids := make([]int, 0, len(s.Engagements))
	for id := range s.Engagements {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	writeU64(h, tmp, uint64(len(ids)))
	for _, id := range ids {
		e := s.Engagements[ProvinceID(id)]
		writeU64(h, tmp, uint64(id))
		h.Write([]byte{byte(e.Phase)})
		writeU64(h, tmp, uint64(e.Days))
		writeU64(h, tmp, uint64(e.War))
		writeU64(h, tmp, uint64(len(e.Attackers)))
		for _, a := range e.Attackers {
			writeU64(h, tmp, uint64(a))
		}
		writeU64(h, tmp, uint64(len(e.Defenders)))
		for _, d := range e.Defenders {
			writeU64(h, tmp, uint64(d))
		}
	}
}

func (s *WorldState) digestTrade(h hashWriter, tmp *[8]byte) {
	names := make([]string, 0, len(s.TradeNodes))
	for n := range s.TradeNodes {
		names = append(names, n)
	}
	sort.Strings(names)
	writeU64(h, tmp, uint64(len(names)))
	for _, name := range names {
		n := s.TradeNodes[name]
		writeStr(h, tmp, name)
		writeI64(h, tmp, n.Value.Raw())
		tags := make([]string, 0, len(n.Power))
		for t := range n.Power {
			tags = append(tags, string(t))
		}
		sort.Strings(tags)
		writeU64(h, tmp, uint64(len(tags)))
		for _, t := range tags {
			writeStr(h, tmp, t)
			writeI64(h, tmp, n.Power[Tag(t)].Raw())
		}
	}
}

func (s *WorldState) digestTruces(h hashWriter, tmp *[8]byte) {
	truces := append([]Truce(nil), s.Truces...)
	sort.Slice(truces, func(i, j int) bool {
		if truces[i].A != truces[j].A {
			return truces[i].A < truces[j].A
		}
		if truces[i].B != truces[j].B {
			return truces[i].B < truces[j].B
		}
		return truces[i].Until.Before(truces[j].Until)
	})
	writeU64(h, tmp, uint64(len(truces)))
	for _, t := range truces {
		writeStr(h, tmp, string(t.A))
		writeStr(h, tmp, string(t.B))
		writeI64(h, tmp, t.Until.DayNumber())
	}
}

func (s *WorldState) digestAlliances(h hashWriter, tmp *[8]byte) {
	pacts := append([]Alliance(nil), s.Alliances...)
	sort.Slice(pacts, func(i, j int) bool {
		if pacts[i].A != pacts[j].A {
			return pacts[i].A < pacts[j].A
		}
		return pacts[i].B < pacts[j].B
	})
	writeU64(h, tmp, uint64(len(pacts)))
	for _, a := range pacts {
		writeStr(h, tmp, string(a.A))
		writeStr(h, tmp, string(a.B))
	}
}
