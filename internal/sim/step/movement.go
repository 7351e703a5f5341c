package step

import (
	"sort"

	"regent/internal/sim/catalogs"
	"regent/internal/sim/fixed"
	"regent/internal/sim/state"
)

// findPath runs a breadth-first search over land provinces. Neighbors are
// expanded in ascending id order, so the returned path is identical on
// every peer. The path excludes the start and ends at dest; nil means
// unreachable.
func findPath(s *state.WorldState, cats *catalogs.Catalogs, start, dest state.ProvinceID) []state.ProvinceID {
	if start == dest {
		return nil
	}
	prev := map[state.ProvinceID]state.ProvinceID{start: start}
	frontier := []state.ProvinceID{start}
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		def, ok := cats.Provinces.ByID[cur]
		if !ok {
			continue
		}
		adj := append([]state.ProvinceID(nil), def.Adjacent...)
		sort.Slice(adj, func(i, j int) bool { return adj[i] < adj[j] })
		for _, next := range adj {
			if _, seen := prev[next]; seen {
				continue
			}
			p, ok := s.Provinces[next]
			if !ok || p.IsSea {
				continue
			}
			prev[next] = cur
			if next == dest {
				return buildPath(prev, start, dest)
			}
			frontier = append(frontier, next)
		}
	}
	return nil
}

func buildPath(prev map[state.ProvinceID]state.ProvinceID, start, dest state.ProvinceID) []state.ProvinceID {
	var rev []state.ProvinceID
	for at := dest; at != start; at = prev[at] {
		rev = append(rev, at)
	}
	path := make([]state.ProvinceID, len(rev))
	for i := range rev {
		path[i] = rev[len(rev)-1-i]
	}
	return path
}

// systemMovement advances every marching army along its path. Armies locked
// in an engagement hold position until it resolves.
func systemMovement(s *state.WorldState, cfg *Config) {
	perDay := fixed.One.DivInt(int64(cfg.Rates.MovementDaysPerProvince))
	for _, id := range sortedArmyIDs(s) {
		a := s.Armies[id]
		if a.Movement == nil || armyEngaged(s, a.ID) {
			continue
		}
		a.Movement.Progress = a.Movement.Progress.Add(perDay)
		if a.Movement.Progress < fixed.One {
			continue
		}
		a.Location = a.Movement.Path[0]
		a.Movement.Path = a.Movement.Path[1:]
		a.Movement.Progress = fixed.Zero
		if len(a.Movement.Path) == 0 {
			a.Movement = nil
		}
	}
}
