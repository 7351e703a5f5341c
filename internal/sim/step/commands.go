package step

import (
	"regent/internal/sim/fixed"
	"regent/internal/sim/state"
)

// CommandKind discriminates the flat Command record. The numeric values are
// wire format; never renumber.
type CommandKind uint8

const (
	CmdMoveArmy CommandKind = iota + 1
	CmdRecruitRegiment
	CmdDisbandArmy
	CmdDeclareWar
	CmdOfferPeace
	CmdAcceptPeace
	CmdDevelopProvince
	CmdBuildBuilding
	CmdEmbraceInstitution
	CmdBuyTech
	CmdFormAlliance
	CmdBreakAlliance
	CmdCallAlly
	CmdJoinWar
	CmdDeclineCall
	CmdFabricateClaim
)

func (k CommandKind) String() string {
	switch k {
	case CmdMoveArmy:
		return "move_army"
	case CmdRecruitRegiment:
		return "recruit_regiment"
	case CmdDisbandArmy:
		return "disband_army"
	case CmdDeclareWar:
		return "declare_war"
	case CmdOfferPeace:
		return "offer_peace"
	case CmdAcceptPeace:
		return "accept_peace"
	case CmdDevelopProvince:
		return "develop_province"
	case CmdBuildBuilding:
		return "build_building"
	case CmdEmbraceInstitution:
		return "embrace_institution"
	case CmdBuyTech:
		return "buy_tech"
	case CmdFormAlliance:
		return "form_alliance"
	case CmdBreakAlliance:
		return "break_alliance"
	case CmdCallAlly:
		return "call_ally"
	case CmdJoinWar:
		return "join_war"
	case CmdDeclineCall:
		return "decline_call"
	case CmdFabricateClaim:
		return "fabricate_claim"
	}
	return "unknown"
}

// Command is a single player/AI order. It is a flat record so the wire
// codec stays trivial; which fields are meaningful depends on Kind.
type Command struct {
	Kind CommandKind `json:"kind"`

	Army      state.ArmyID       `json:"army,omitempty"`
	Target    state.ProvinceID   `json:"target,omitempty"`
	Tag       state.Tag          `json:"tag,omitempty"`
	War       state.WarID        `json:"war,omitempty"`
	Name      string             `json:"name,omitempty"`
	Amount    fixed.Value        `json:"amount,omitempty"`
	Provinces []state.ProvinceID `json:"provinces,omitempty"`
}

// Issued is a command tagged with the issuing country. The transition
// function receives the tick's consolidated batch as []Issued, already in
// the host's canonical order.
type Issued struct {
	Country state.Tag `json:"country"`
	Cmd     Command   `json:"cmd"`
}

// Rejection reports a dropped command with its structured reason.
type Rejection struct {
	Country state.Tag
	Cmd     Command
	Err     *ActionError
}

// Development categories for CmdDevelopProvince; tech categories for
// CmdBuyTech use the same names as the technology catalog.
const (
	DevTax      = "tax"
	DevProduction = "production"
	DevManpower = "manpower"
)
