// Package lockstep keeps a set of peers advancing the same simulation in
// step. The host collects each peer's commands for a tick, broadcasts the
// consolidated batch, and every participant feeds it to its own transition
// function; checksums are exchanged on a configured cadence and divergent
// minorities are flagged. The state machines here are message-driven and
// transport-agnostic; cmd binaries wire them to websockets.
package lockstep

import (
	"sort"

	"regent/internal/sim/catalogs"
	"regent/internal/sim/state"
	"regent/internal/sim/step"
)

// Engine owns the current snapshot and advances it tick by tick. It is
// not goroutine-safe; each participant drives its engine from one loop.
type Engine struct {
	cats *catalogs.Catalogs
	cfg  *step.Config
	cur  *state.WorldState

	checksumEvery uint64
}

func NewEngine(s *state.WorldState, cats *catalogs.Catalogs, cfg *step.Config, checksumEvery int) *Engine {
	if checksumEvery < 1 {
		checksumEvery = 1
	}
	return &Engine{cats: cats, cfg: cfg, cur: s, checksumEvery: uint64(checksumEvery)}
}

// State returns the current snapshot. Callers treat it as read-only.
func (e *Engine) State() *state.WorldState { return e.cur }

func (e *Engine) Tick() uint64 { return e.cur.Tick }

// Advance runs one tick with the consolidated batch and retires the old
// snapshot.
func (e *Engine) Advance(batch []step.Issued) []step.Rejection {
	next, rejected := step.Advance(e.cur, batch, e.cats, e.cfg)
	e.cur = next
	return rejected
}

// CanExecute pre-flights a command against the current snapshot.
func (e *Engine) CanExecute(actor state.Tag, cmd step.Command) error {
	return step.CanExecute(e.cur, e.cats, actor, cmd)
}

func (e *Engine) Checksum() string { return e.cur.Checksum() }

// ChecksumDue reports whether the named tick ends with a checksum
// exchange.
func (e *Engine) ChecksumDue(tick uint64) bool {
	return tick%e.checksumEvery == 0
}

// ConsolidateBatch builds the canonical tick batch from per-country
// submissions: country tag ascending, submission order preserved within a
// country. Every peer applies batches in exactly this order.
func ConsolidateBatch(byCountry map[state.Tag][]step.Command) []step.Issued {
	tags := make([]state.Tag, 0, len(byCountry))
	for t := range byCountry {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	var batch []step.Issued
	for _, t := range tags {
		for _, cmd := range byCountry[t] {
			batch = append(batch, step.Issued{Country: t, Cmd: cmd})
		}
	}
	return batch
}
