package protocol

// Session-level reject codes. Command-level codes come from the step
// package and pass through RejectMsg untouched.
const (
	ErrProtoBadRequest    = "E_PROTO_BAD_REQUEST"
	ErrVersionMismatch    = "E_VERSION_MISMATCH"
	ErrManifestMismatch   = "E_MANIFEST_MISMATCH"
	ErrSlotTaken          = "E_SLOT_TAKEN"
	ErrSessionFull        = "E_SESSION_FULL"
	ErrUnknownSession     = "E_UNKNOWN_SESSION"
	ErrRateLimit          = "E_RATE_LIMIT"
	ErrWrongTick          = "E_WRONG_TICK"
	ErrDesynced           = "E_DESYNCED"
	ErrInternal           = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:  {},
	ErrVersionMismatch:  {},
	ErrManifestMismatch: {},
	ErrSlotTaken:        {},
	ErrSessionFull:      {},
	ErrUnknownSession:   {},
	ErrRateLimit:        {},
	ErrWrongTick:        {},
	ErrDesynced:         {},
	ErrInternal:         {},
}

// KnownCode reports whether code is a session-level reject code.
func KnownCode(code string) bool {
	_, ok := knownCodes[code]
	return ok
}
