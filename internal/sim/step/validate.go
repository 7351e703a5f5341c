package step

import (
	"regent/internal/sim/catalogs"
	"regent/internal/sim/fixed"
	"regent/internal/sim/state"
)

// Fixed command costs. Building costs come from the catalog.
var (
	recruitCost  = fixed.FromInt(10)
	developCost  = fixed.FromInt(50)
	embraceCost  = fixed.FromInt(100)
	claimCost    = fixed.FromInt(25)
	regimentSize = fixed.FromInt(1000)
)

// CanExecute is the read-only feasibility predicate shared by the
// transition function, the UI and AI pre-flight checks. A nil return
// guarantees the command will be accepted by the same tick's transition,
// provided no earlier command in the batch invalidates it first.
func CanExecute(s *state.WorldState, cats *catalogs.Catalogs, actor state.Tag, cmd Command) error {
	c, ok := s.Countries[actor]
	if !ok {
		return reject(ErrCountryNotFound, "no such country %s", actor)
	}

	switch cmd.Kind {
	case CmdMoveArmy:
		return canMoveArmy(s, cats, actor, cmd)

	case CmdRecruitRegiment:
		p, ok := s.Provinces[cmd.Target]
		if !ok {
			return reject(ErrProvinceNotFound, "province %d", cmd.Target)
		}
		if p.Owner != actor {
			return reject(ErrNotOwned, "province %d belongs to %s", cmd.Target, p.Owner)
		}
		if p.Controller != actor {
			return reject(ErrInvalidTarget, "province %d is occupied", cmd.Target)
		}
		if cmd.Name != "infantry" && cmd.Name != "cavalry" {
			return reject(ErrBadCommand, "unknown regiment type %q", cmd.Name)
		}
		if c.Treasury < recruitCost {
			return reject(ErrInsufficientFunds, "need %v, have %v", recruitCost, c.Treasury)
		}
		if c.Manpower < regimentSize {
			return reject(ErrInsufficientManpower, "need %v, have %v", regimentSize, c.Manpower)
		}
		return nil

	case CmdDisbandArmy:
		a, ok := s.Armies[cmd.Army]
		if !ok {
			return reject(ErrArmyNotFound, "army %d", cmd.Army)
		}
		if a.Owner != actor {
			return reject(ErrNotOwned, "army %d belongs to %s", cmd.Army, a.Owner)
		}
		if armyEngaged(s, a.ID) {
			return reject(ErrEngaged, "army %d is in battle", cmd.Army)
		}
		return nil

	case CmdDeclareWar:
		if cmd.Tag == actor {
			return reject(ErrSelfTarget, "cannot declare war on self")
		}
		if _, ok := s.Countries[cmd.Tag]; !ok {
			return reject(ErrCountryNotFound, "no such country %s", cmd.Tag)
		}
		for _, w := range s.Wars {
			if w.Side(actor) != 0 && w.Side(cmd.Tag) != 0 {
				return reject(ErrAlreadyAtWar, "already at war with %s", cmd.Tag)
			}
		}
		if s.TruceActive(actor, cmd.Tag, s.Date) {
			return reject(ErrTruceActive, "truce with %s", cmd.Tag)
		}
		return nil

	case CmdOfferPeace:
		w, ok := s.Wars[cmd.War]
		if !ok {
			return reject(ErrWarNotFound, "war %d", cmd.War)
		}
		if w.Side(actor) == 0 {
			return reject(ErrNotParticipant, "%s is not in war %d", actor, cmd.War)
		}
		for _, pid := range cmd.Provinces {
			p, ok := s.Provinces[pid]
			if !ok {
				return reject(ErrProvinceNotFound, "province %d", pid)
			}
			// Only provinces owned by the other side can be demanded.
			if w.Side(p.Owner) == 0 || w.Side(p.Owner) == w.Side(actor) {
				return reject(ErrInvalidTarget, "province %d not owned by the enemy", pid)
			}
		}
		return nil

	case CmdAcceptPeace:
		w, ok := s.Wars[cmd.War]
		if !ok {
			return reject(ErrWarNotFound, "war %d", cmd.War)
		}
		if w.PendingPeace == nil {
			return reject(ErrNoPendingPeace, "war %d has no offer", cmd.War)
		}
		side := w.Side(actor)
		if side == 0 {
			return reject(ErrNotParticipant, "%s is not in war %d", actor, cmd.War)
		}
		if w.Side(w.PendingPeace.From) == side {
			return reject(ErrOwnOffer, "cannot accept own side's offer")
		}
		return nil

	case CmdDevelopProvince:
		p, ok := s.Provinces[cmd.Target]
		if !ok {
			return reject(ErrProvinceNotFound, "province %d", cmd.Target)
		}
		if p.Owner != actor {
			return reject(ErrNotOwned, "province %d belongs to %s", cmd.Target, p.Owner)
		}
		var pool fixed.Value
		switch cmd.Name {
		case DevTax:
			pool = c.AdmMana
		case DevProduction:
			pool = c.DipMana
		case DevManpower:
			pool = c.MilMana
		default:
			return reject(ErrBadCommand, "unknown development type %q", cmd.Name)
		}
		if pool < developCost {
			return reject(ErrInsufficientMana, "need %v, have %v", developCost, pool)
		}
		return nil

	case CmdBuildBuilding:
		p, ok := s.Provinces[cmd.Target]
		if !ok {
			return reject(ErrProvinceNotFound, "province %d", cmd.Target)
		}
		if p.Owner != actor {
			return reject(ErrNotOwned, "province %d belongs to %s", cmd.Target, p.Owner)
		}
		def, ok := cats.Buildings.ByID[cmd.Name]
		if !ok {
			return reject(ErrBadCommand, "unknown building %q", cmd.Name)
		}
		if p.Buildings[cmd.Name] {
			return reject(ErrAlreadyBuilt, "%s already in province %d", cmd.Name, cmd.Target)
		}
		if c.Treasury < def.Cost {
			return reject(ErrInsufficientFunds, "need %v, have %v", def.Cost, c.Treasury)
		}
		return nil

	case CmdEmbraceInstitution:
		if cmd.Name == "" {
			return reject(ErrBadCommand, "missing institution name")
		}
		if c.Institutions[cmd.Name] {
			return reject(ErrAlreadyEmbraced, "%s already embraced", cmd.Name)
		}
		if c.AdmMana < embraceCost {
			return reject(ErrInsufficientMana, "need %v, have %v", embraceCost, c.AdmMana)
		}
		return nil

	case CmdBuyTech:
		levels, ok := cats.Technologies.Levels[cmd.Name]
		if !ok {
			return reject(ErrBadCommand, "unknown tech category %q", cmd.Name)
		}
		cur := techLevel(c, cmd.Name)
		if int(cur) >= len(levels) {
			return reject(ErrMaxTech, "%s tech already at %d", cmd.Name, cur)
		}
		cost := levels[cur].Cost
		if techPool(c, cmd.Name) < cost {
			return reject(ErrInsufficientMana, "need %v, have %v", cost, techPool(c, cmd.Name))
		}
		return nil

	case CmdFormAlliance:
		if cmd.Tag == actor {
			return reject(ErrSelfTarget, "cannot ally self")
		}
		if _, ok := s.Countries[cmd.Tag]; !ok {
			return reject(ErrCountryNotFound, "no such country %s", cmd.Tag)
		}
		if s.Allied(actor, cmd.Tag) {
			return reject(ErrAlreadyAllied, "already allied with %s", cmd.Tag)
		}
		if atWar(s, actor, cmd.Tag) {
			return reject(ErrAlreadyAtWar, "at war with %s", cmd.Tag)
		}
		if c.Relations[cmd.Tag].IsNegative() {
			return reject(ErrRelationsTooLow, "%s resents %s (%v)", cmd.Tag, actor, c.Relations[cmd.Tag])
		}
		return nil

	case CmdBreakAlliance:
		if !s.Allied(actor, cmd.Tag) {
			return reject(ErrNotAllied, "no alliance with %s", cmd.Tag)
		}
		return nil

	case CmdCallAlly:
		w, ok := s.Wars[cmd.War]
		if !ok {
			return reject(ErrWarNotFound, "war %d", cmd.War)
		}
		if w.Side(actor) == 0 {
			return reject(ErrNotParticipant, "%s is not in war %d", actor, cmd.War)
		}
		if cmd.Tag == actor {
			return reject(ErrSelfTarget, "cannot call self")
		}
		if !s.Allied(actor, cmd.Tag) {
			return reject(ErrNotAllied, "no alliance with %s", cmd.Tag)
		}
		if w.Side(cmd.Tag) != 0 {
			return reject(ErrInvalidTarget, "%s is already in war %d", cmd.Tag, cmd.War)
		}
		return nil

	case CmdJoinWar:
		w, ok := s.Wars[cmd.War]
		if !ok {
			return reject(ErrWarNotFound, "war %d", cmd.War)
		}
		side, pending := c.PendingCalls[cmd.War]
		if !pending {
			return reject(ErrNoPendingCall, "%s has no call for war %d", actor, cmd.War)
		}
		if w.Side(actor) != 0 {
			return reject(ErrInvalidTarget, "%s is already in war %d", actor, cmd.War)
		}
		opposing := w.Attackers
		if side > 0 {
			opposing = w.Defenders
		}
		for _, m := range opposing {
			if s.Allied(actor, m) {
				return reject(ErrConflictingWar, "allied to %s on the other side", m)
			}
		}
		return nil

	case CmdDeclineCall:
		if _, pending := c.PendingCalls[cmd.War]; !pending {
			return reject(ErrNoPendingCall, "%s has no call for war %d", actor, cmd.War)
		}
		return nil

	case CmdFabricateClaim:
		p, ok := s.Provinces[cmd.Target]
		if !ok {
			return reject(ErrProvinceNotFound, "province %d", cmd.Target)
		}
		if p.IsSea {
			return reject(ErrInvalidTarget, "province %d is sea", cmd.Target)
		}
		if p.Owner == "" || p.Owner == actor {
			return reject(ErrInvalidTarget, "province %d has no foreign owner", cmd.Target)
		}
		if p.Cores[actor] || p.Claims[actor] {
			return reject(ErrAlreadyClaimed, "%s already claims province %d", actor, cmd.Target)
		}
		if c.DipMana < claimCost {
			return reject(ErrInsufficientMana, "need %v, have %v", claimCost, c.DipMana)
		}
		return nil
	}

	return reject(ErrBadCommand, "unknown command kind %d", cmd.Kind)
}

func canMoveArmy(s *state.WorldState, cats *catalogs.Catalogs, actor state.Tag, cmd Command) error {
	a, ok := s.Armies[cmd.Army]
	if !ok {
		return reject(ErrArmyNotFound, "army %d", cmd.Army)
	}
	if a.Owner != actor {
		return reject(ErrNotOwned, "army %d belongs to %s", cmd.Army, a.Owner)
	}
	dest, ok := s.Provinces[cmd.Target]
	if !ok {
		return reject(ErrProvinceNotFound, "province %d", cmd.Target)
	}
	if dest.IsSea {
		return reject(ErrInvalidTarget, "province %d is sea", cmd.Target)
	}
	if armyEngaged(s, a.ID) {
		return reject(ErrEngaged, "army %d is in battle", cmd.Army)
	}
	if cmd.Target == a.Location {
		return reject(ErrInvalidTarget, "army %d already at %d", cmd.Army, cmd.Target)
	}
	if findPath(s, cats, a.Location, cmd.Target) == nil {
		return reject(ErrNoPath, "no land path %d -> %d", a.Location, cmd.Target)
	}
	return nil
}

func armyEngaged(s *state.WorldState, id state.ArmyID) bool {
	for _, e := range s.Engagements {
		if e.Phase == state.EngagementResolved {
			continue
		}
		for _, a := range e.Attackers {
			if a == id {
				return true
			}
		}
		for _, d := range e.Defenders {
			if d == id {
				return true
			}
		}
	}
	return false
}

func techLevel(c *state.CountryState, cat string) uint8 {
	switch cat {
	case "adm":
		return c.AdmTech
	case "dip":
		return c.DipTech
	case "mil":
		return c.MilTech
	}
	return 0
}

func techPool(c *state.CountryState, cat string) fixed.Value {
	switch cat {
	case "adm":
		return c.AdmMana
	case "dip":
		return c.DipMana
	case "mil":
		return c.MilMana
	}
	return fixed.Zero
}
