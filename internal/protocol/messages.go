package protocol

import (
	"regent/internal/sim/state"
	"regent/internal/sim/step"
)

// HELLO (peer -> host). First record on a connection. The host refuses the
// session unless protocol version, sim version and manifest hash all match
// its own; lockstep across diverging builds can only end in desync.
type HelloMsg struct {
	ProtocolVersion string `json:"protocol_version"`
	SimVersion      string `json:"sim_version"`
	ManifestHash    string `json:"manifest_hash"`
	PlayerName      string `json:"player_name"`

	// Country is the requested slot; empty lets the host assign one.
	Country state.Tag `json:"country,omitempty"`

	// Session resumes an earlier seat after a reconnect.
	Session string `json:"session,omitempty"`
}

// WELCOME (host -> peer).
type WelcomeMsg struct {
	ProtocolVersion string    `json:"protocol_version"`
	Session         string    `json:"session"`
	Country         state.Tag `json:"country"`
	Scenario        string    `json:"scenario"`
	Seed            uint64    `json:"seed"`
	TickMs          int       `json:"tick_ms"`

	// Tick is where the session currently stands; a mid-game joiner gets
	// a state transfer before the first TICK_BATCH.
	Tick     uint64 `json:"tick"`
	Checksum string `json:"checksum,omitempty"`
}

// REJECT (host -> peer). Session-level refusal or a per-command rejection
// echo. Cmd is set only for the latter.
type RejectMsg struct {
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
	Tick   uint64 `json:"tick,omitempty"`

	Cmd *step.Command `json:"cmd,omitempty"`
}

// COMMANDS (peer -> host). The peer's commands for the named tick. An
// empty list is an explicit pass; a peer that sends nothing before the
// command timeout is treated as passing and accrues a lag strike.
type CommandsMsg struct {
	Tick     uint64         `json:"tick"`
	Commands []step.Command `json:"commands"`
}

// TICK_BATCH (host -> peers). The consolidated batch every peer must feed
// to its transition function for the named tick. Order is canonical:
// country tag ascending, then submission order within a country.
type TickBatchMsg struct {
	Tick     uint64        `json:"tick"`
	Batch    []step.Issued `json:"batch"`
	Checksum bool          `json:"checksum"` // host expects a CHECKSUM reply
}

// CHECKSUM (peer -> host).
type ChecksumMsg struct {
	Tick uint64 `json:"tick"`
	Sum  string `json:"sum"`
}

// DESYNC (host -> peers). Sent to every peer once a checksum vote
// concludes that a minority diverged.
type DesyncMsg struct {
	Tick     uint64      `json:"tick"`
	Majority string      `json:"majority"`
	Got      string      `json:"got,omitempty"` // the recipient's own checksum, when it diverged
	Peers    []state.Tag `json:"peers"`         // desynced countries
}

// PAUSE / RESUME (host -> peers).
type PauseMsg struct {
	Tick   uint64 `json:"tick"`
	Reason string `json:"reason,omitempty"`
}

type ResumeMsg struct {
	Tick uint64 `json:"tick"`
}

// STATE_CHUNK (host -> peer). One piece of an lz4-compressed gob snapshot
// for a mid-game joiner. Chunks arrive in index order.
type StateChunkMsg struct {
	Tick  uint64 `json:"tick"`
	Index int    `json:"index"`
	Total int    `json:"total"`
	Data  []byte `json:"data"` // base64 via encoding/json
}

// STATE_COMPLETE (host -> peer). Closes a transfer; the peer must now
// report this checksum for Tick before entering the lockstep.
type StateCompleteMsg struct {
	Tick     uint64 `json:"tick"`
	Checksum string `json:"checksum"`
}

// BYE (either direction).
type ByeMsg struct {
	Reason string `json:"reason,omitempty"`
}
