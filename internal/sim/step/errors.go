package step

import "fmt"

// Command rejection codes. These travel to the issuing peer verbatim, so
// they stay short and stable.
const (
	ErrInsufficientFunds    = "E_INSUFFICIENT_FUNDS"
	ErrInsufficientManpower = "E_INSUFFICIENT_MANPOWER"
	ErrInsufficientMana     = "E_INSUFFICIENT_MANA"
	ErrCountryNotFound      = "E_COUNTRY_NOT_FOUND"
	ErrProvinceNotFound     = "E_PROVINCE_NOT_FOUND"
	ErrArmyNotFound         = "E_ARMY_NOT_FOUND"
	ErrWarNotFound          = "E_WAR_NOT_FOUND"
	ErrNotOwned             = "E_NOT_OWNED"
	ErrInvalidTarget        = "E_INVALID_TARGET"
	ErrNoPath               = "E_NO_PATH"
	ErrAlreadyAtWar         = "E_ALREADY_AT_WAR"
	ErrSelfTarget           = "E_SELF_TARGET"
	ErrTruceActive          = "E_TRUCE_ACTIVE"
	ErrNotParticipant       = "E_NOT_PARTICIPANT"
	ErrNoPendingPeace       = "E_NO_PENDING_PEACE"
	ErrOwnOffer             = "E_OWN_OFFER"
	ErrAlreadyAllied        = "E_ALREADY_ALLIED"
	ErrNotAllied            = "E_NOT_ALLIED"
	ErrNoPendingCall        = "E_NO_PENDING_CALL"
	ErrConflictingWar       = "E_CONFLICTING_WAR"
	ErrRelationsTooLow      = "E_RELATIONS_TOO_LOW"
	ErrAlreadyClaimed       = "E_ALREADY_CLAIMED"
	ErrAlreadyBuilt         = "E_ALREADY_BUILT"
	ErrAlreadyEmbraced      = "E_ALREADY_EMBRACED"
	ErrMaxTech              = "E_MAX_TECH"
	ErrEngaged              = "E_ENGAGED"
	ErrBadCommand           = "E_BAD_COMMAND"
)

// ActionError is a structured command rejection. It is never fatal: the
// command is dropped, the error is reported to the issuer, and the tick
// proceeds.
type ActionError struct {
	Code   string
	Detail string
}

func (e *ActionError) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return e.Code + ": " + e.Detail
}

func reject(code, format string, args ...any) *ActionError {
	return &ActionError{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// RejectCode extracts the machine code from a validation error, or
// E_BAD_COMMAND for anything else.
func RejectCode(err error) string {
	if ae, ok := err.(*ActionError); ok {
		return ae.Code
	}
	return ErrBadCommand
}
