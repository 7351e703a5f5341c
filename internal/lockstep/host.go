package lockstep

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"regent/internal/persistence/cmdlog"
	"regent/internal/persistence/indexdb"
	"regent/internal/persistence/save"
	"regent/internal/protocol"
	"regent/internal/sim/state"
	"regent/internal/sim/step"
	"regent/internal/sim/tuning"
)

type hostPhase int

const (
	phaseCollecting hostPhase = iota
	phaseAwaitChecksums
	phasePaused
)

// HostOptions carries everything outside the lockstep rules themselves.
type HostOptions struct {
	Tuning       tuning.Tuning
	ManifestHash string
	Scenario     string
	Seed         uint64

	Logger  *log.Logger
	Journal *cmdlog.Writer      // optional tick journal
	Index   *indexdb.SQLiteIndex // optional sqlite index
	SaveDir string               // optional periodic saves
}

// Host runs the authoritative side of a session. All fields are owned by
// the Run loop; external goroutines talk to it through the enqueue
// methods, and tests drive the unexported handlers directly.
type Host struct {
	eng *Engine
	opt HostOptions
	log *log.Logger

	sessionID string
	slots     []state.Tag // unassigned countries, sorted
	seats     map[string]*Seat

	phase    hostPhase
	pausedAt hostPhase // phase to restore on resume

	// collectUntil holds the open collection window's deadline while some
	// eligible seat has not submitted; zero when no grace is running.
	collectUntil time.Time

	voteTick     uint64
	voteDeadline time.Time
	reported     map[string]string // session -> checksum; "" key is the host

	inbox chan hostEvent
}

type hostEventKind int

const (
	evJoin hostEventKind = iota + 1
	evLeave
	evCommands
	evChecksum
	evPause
	evResume
)

type hostEvent struct {
	kind    hostEventKind
	link    Link
	hello   protocol.HelloMsg
	session string
	cmds    protocol.CommandsMsg
	sum     protocol.ChecksumMsg
	reason  string
}

func NewHost(eng *Engine, opt HostOptions) *Host {
	logger := opt.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[host] ", log.LstdFlags)
	}
	h := &Host{
		eng:       eng,
		opt:       opt,
		log:       logger,
		sessionID: uuid.NewString(),
		seats:     map[string]*Seat{},
		reported:  map[string]string{},
		inbox:     make(chan hostEvent, 256),
	}
	h.slots = sortedCountryTags(eng.State())
	return h
}

// SessionID identifies this session in journals and the desync index.
func (h *Host) SessionID() string { return h.sessionID }

// Enqueue entry points, safe from transport goroutines.

func (h *Host) Join(link Link, hello protocol.HelloMsg) {
	h.inbox <- hostEvent{kind: evJoin, link: link, hello: hello}
}

func (h *Host) Leave(session string) {
	h.inbox <- hostEvent{kind: evLeave, session: session}
}

func (h *Host) Submit(session string, msg protocol.CommandsMsg) {
	h.inbox <- hostEvent{kind: evCommands, session: session, cmds: msg}
}

func (h *Host) ReportChecksum(session string, msg protocol.ChecksumMsg) {
	h.inbox <- hostEvent{kind: evChecksum, session: session, sum: msg}
}

// Pause suspends stepping; queued commands stay queued.
func (h *Host) Pause(reason string) {
	h.inbox <- hostEvent{kind: evPause, reason: reason}
}

func (h *Host) Resume() {
	h.inbox <- hostEvent{kind: evResume}
}

// Run drives the session until ctx is done. One goroutine owns all state.
func (h *Host) Run(ctx context.Context) error {
	interval := time.Duration(h.opt.Tuning.TickMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.broadcast(protocol.TypeBye, protocol.ByeMsg{Reason: "host shutdown"})
			return ctx.Err()
		case ev := <-h.inbox:
			h.dispatch(ev)
		case now := <-ticker.C:
			if len(h.seats) == 0 {
				continue // the session idles until someone is seated
			}
			switch h.phase {
			case phaseCollecting:
				h.collectTick(now)
			case phaseAwaitChecksums:
				if now.After(h.voteDeadline) {
					h.checksumTimeout()
				}
			}
		}
	}
}

func (h *Host) dispatch(ev hostEvent) {
	switch ev.kind {
	case evJoin:
		h.handleJoin(ev.link, ev.hello)
	case evLeave:
		h.dropSeat(ev.session, "")
	case evCommands:
		h.handleCommands(ev.session, ev.cmds)
	case evChecksum:
		h.handleChecksum(ev.session, ev.sum)
	case evPause:
		h.doPause(ev.reason)
	case evResume:
		h.doResume()
	}
}

func (h *Host) handleJoin(link Link, hello protocol.HelloMsg) {
	refuse := func(code, detail string) {
		_ = link.Send(protocol.TypeReject, protocol.RejectMsg{Code: code, Detail: detail})
		link.Close()
	}
	if hello.ProtocolVersion != protocol.Version {
		refuse(protocol.ErrVersionMismatch, "protocol "+hello.ProtocolVersion)
		return
	}
	if hello.SimVersion != h.opt.Tuning.SimVersion {
		refuse(protocol.ErrVersionMismatch, "sim "+hello.SimVersion)
		return
	}
	if hello.ManifestHash != h.opt.ManifestHash {
		refuse(protocol.ErrManifestMismatch, hello.ManifestHash)
		return
	}

	// Reconnect to an existing seat.
	if hello.Session != "" {
		seat, ok := h.seats[hello.Session]
		if !ok {
			refuse(protocol.ErrUnknownSession, hello.Session)
			return
		}
		seat.link.Close()
		seat.link = link
		h.welcome(seat)
		return
	}

	country, ok := h.takeSlot(hello.Country)
	if !ok {
		if hello.Country != "" {
			refuse(protocol.ErrSlotTaken, string(hello.Country))
		} else {
			refuse(protocol.ErrSessionFull, "")
		}
		return
	}

	seat := newSeat(country, hello.PlayerName, link,
		h.opt.Tuning.Lockstep.CommandsPerSec, h.opt.Tuning.Lockstep.CommandBurst)
	h.seats[seat.Session] = seat
	h.log.Printf("seat %s joined as %s (%q)", seat.Session, country, hello.PlayerName)
	h.welcome(seat)

	if h.eng.Tick() > 0 {
		h.transferState(seat)
	}
}

func (h *Host) welcome(seat *Seat) {
	_ = seat.link.Send(protocol.TypeWelcome, protocol.WelcomeMsg{
		ProtocolVersion: protocol.Version,
		Session:         seat.Session,
		Country:         seat.Country,
		Scenario:        h.opt.Scenario,
		Seed:            h.opt.Seed,
		TickMs:          h.opt.Tuning.TickMs,
		Tick:            h.eng.Tick(),
		Checksum:        h.eng.Checksum(),
	})
}

// transferState ships the current snapshot to a mid-game joiner. The seat
// stays out of collection and votes until the transfer completes.
func (h *Host) transferState(seat *Seat) {
	seat.synced = false
	hdr := save.Header{
		SimVersion:   h.opt.Tuning.SimVersion,
		ManifestHash: h.opt.ManifestHash,
		Scenario:     h.opt.Scenario,
		Seed:         h.opt.Seed,
		Tick:         h.eng.Tick(),
		Checksum:     h.eng.Checksum(),
	}
	blob, err := save.EncodeTransfer(hdr, h.eng.State())
	if err != nil {
		h.log.Printf("state transfer encode failed: %v", err)
		h.dropSeat(seat.Session, "transfer failed")
		return
	}
	chunks := save.SplitChunks(blob)
	for i, c := range chunks {
		if err := seat.link.Send(protocol.TypeStateChunk, protocol.StateChunkMsg{
			Tick: h.eng.Tick(), Index: i, Total: len(chunks), Data: c,
		}); err != nil {
			h.dropSeat(seat.Session, "transfer failed")
			return
		}
	}
	_ = seat.link.Send(protocol.TypeStateComplete, protocol.StateCompleteMsg{
		Tick:     h.eng.Tick(),
		Checksum: h.eng.Checksum(),
	})
	seat.synced = true
}

func (h *Host) handleCommands(session string, msg protocol.CommandsMsg) {
	seat, ok := h.seats[session]
	if !ok {
		return
	}
	reject := func(code, detail string) {
		_ = seat.link.Send(protocol.TypeReject, protocol.RejectMsg{
			Code: code, Detail: detail, Tick: msg.Tick,
		})
	}
	if seat.desynced {
		reject(protocol.ErrDesynced, "")
		return
	}
	if !seat.synced || h.phase == phasePaused {
		reject(protocol.ErrWrongTick, "not accepting commands")
		return
	}
	if msg.Tick != h.eng.Tick()+1 {
		reject(protocol.ErrWrongTick, "")
		return
	}
	if !seat.limiter.AllowN(time.Now(), max(1, len(msg.Commands))) {
		reject(protocol.ErrRateLimit, "")
		return
	}
	seat.submitted = true
	seat.commands = msg.Commands
	seat.strikes = 0
}

// collectTick closes the collection window when every eligible seat has
// submitted. A tick with submissions outstanding stays open up to the
// command timeout past its due time, then closes with strikes for the
// absentees.
func (h *Host) collectTick(now time.Time) {
	if !h.allSubmitted() {
		grace := time.Duration(h.opt.Tuning.Lockstep.CommandTimeoutMs) * time.Millisecond
		if grace > 0 {
			if h.collectUntil.IsZero() {
				h.collectUntil = now.Add(grace)
				return
			}
			if now.Before(h.collectUntil) {
				return
			}
		}
	}
	h.collectUntil = time.Time{}
	h.runTick(now)
}

func (h *Host) allSubmitted() bool {
	for _, s := range h.seats {
		if s.synced && !s.desynced && !s.submitted {
			return false
		}
	}
	return true
}

// runTick closes the collection window: absent submissions count as passes
// and lag strikes, the consolidated batch goes out, and the host's own
// engine advances.
func (h *Host) runTick(now time.Time) {
	tick := h.eng.Tick() + 1

	byCountry := map[state.Tag][]step.Command{}
	for _, s := range h.sortedSeats() {
		if !s.synced || s.desynced {
			continue
		}
		if s.submitted {
			byCountry[s.Country] = s.commands
		} else {
			s.strikes++
			h.log.Printf("seat %s (%s) missed tick %d, strike %d", s.Session, s.Country, tick, s.strikes)
			if s.strikes >= h.opt.Tuning.Lockstep.LagStrikesToDrop {
				h.dropSeat(s.Session, "lagging")
				continue
			}
		}
		s.submitted = false
		s.commands = nil
	}

	batch := ConsolidateBatch(byCountry)
	due := h.eng.ChecksumDue(tick)
	h.broadcast(protocol.TypeTickBatch, protocol.TickBatchMsg{
		Tick: tick, Batch: batch, Checksum: due,
	})

	rejected := h.eng.Advance(batch)
	h.echoRejections(tick, rejected)

	entry := cmdlog.Entry{Tick: tick, Batch: batch}
	if due {
		entry.Checksum = h.eng.Checksum()
	}
	if h.opt.Journal != nil {
		if err := h.opt.Journal.Append(entry); err != nil {
			h.log.Printf("journal append: %v", err)
		}
	}
	h.maybeSave(tick)

	if due {
		h.startVote(tick, now)
	}
}

func (h *Host) echoRejections(tick uint64, rejected []step.Rejection) {
	for i := range rejected {
		r := &rejected[i]
		for _, s := range h.sortedSeats() {
			if s.Country == r.Country {
				cmd := r.Cmd
				_ = s.link.Send(protocol.TypeReject, protocol.RejectMsg{
					Code: r.Err.Code, Detail: r.Err.Detail, Tick: tick, Cmd: &cmd,
				})
				break
			}
		}
	}
}

func (h *Host) maybeSave(tick uint64) {
	if h.opt.SaveDir == "" || h.opt.Tuning.SaveEveryTicks <= 0 {
		return
	}
	if tick%uint64(h.opt.Tuning.SaveEveryTicks) != 0 {
		return
	}
	sum := h.eng.Checksum()
	path := savePath(h.opt.SaveDir, tick)
	hdr := save.Header{
		SimVersion:   h.opt.Tuning.SimVersion,
		ManifestHash: h.opt.ManifestHash,
		Scenario:     h.opt.Scenario,
		Seed:         h.opt.Seed,
		Tick:         tick,
		Checksum:     sum,
	}
	if err := save.Write(path, hdr, h.eng.State()); err != nil {
		h.log.Printf("save tick %d: %v", tick, err)
		return
	}
	if h.opt.Index != nil {
		h.opt.Index.RecordSave(tick, path, sum)
	}
}

func (h *Host) startVote(tick uint64, now time.Time) {
	h.voteTick = tick
	h.reported = map[string]string{"": h.eng.Checksum()}
	h.voteDeadline = now.Add(time.Duration(h.opt.Tuning.Lockstep.ChecksumTimeoutMs) * time.Millisecond)
	if h.votersOutstanding() == 0 {
		h.resolveVote()
		return
	}
	h.phase = phaseAwaitChecksums
}

func (h *Host) handleChecksum(session string, msg protocol.ChecksumMsg) {
	if h.phase != phaseAwaitChecksums || msg.Tick != h.voteTick {
		return
	}
	seat, ok := h.seats[session]
	if !ok || !seat.synced || seat.desynced {
		return
	}
	h.reported[session] = msg.Sum
	if h.votersOutstanding() == 0 {
		h.resolveVote()
	}
}

func (h *Host) checksumTimeout() {
	for _, s := range h.sortedSeats() {
		if !s.synced || s.desynced {
			continue
		}
		if _, ok := h.reported[s.Session]; !ok {
			s.strikes++
			h.log.Printf("seat %s (%s) missed checksum %d, strike %d", s.Session, s.Country, h.voteTick, s.strikes)
			if s.strikes >= h.opt.Tuning.Lockstep.LagStrikesToDrop {
				h.dropSeat(s.Session, "lagging")
			}
		}
	}
	h.resolveVote()
}

func (h *Host) votersOutstanding() int {
	n := 0
	for _, s := range h.seats {
		if s.synced && !s.desynced {
			if _, ok := h.reported[s.Session]; !ok {
				n++
			}
		}
	}
	return n
}

// resolveVote finds the majority checksum and flags the minority. The
// host's own checksum is one vote. Ties break toward the smallest
// checksum string so the outcome never depends on map order.
func (h *Host) resolveVote() {
	counts := map[string]int{}
	for _, sum := range h.reported {
		counts[sum]++
	}
	var majority string
	for sum, n := range counts {
		if majority == "" || n > counts[majority] || (n == counts[majority] && sum < majority) {
			majority = sum
		}
	}

	var desynced []state.Tag
	for _, s := range h.sortedSeats() {
		sum, ok := h.reported[s.Session]
		if !ok || sum == majority {
			continue
		}
		s.desynced = true
		desynced = append(desynced, s.Country)
		h.log.Printf("seat %s (%s) desynced at tick %d: got %.12s want %.12s", s.Session, s.Country, h.voteTick, sum, majority)
		if h.opt.Index != nil {
			h.opt.Index.RecordDesync(indexdb.DesyncRow{
				Tick:    h.voteTick,
				Session: h.sessionID,
				Peer:    string(s.Country),
				Got:     sum,
				Want:    majority,
			})
		}
	}

	if h.opt.Index != nil {
		h.opt.Index.RecordTick(h.voteTick, majority)
	}

	if len(desynced) > 0 {
		for _, s := range h.sortedSeats() {
			got := ""
			if s.desynced {
				got = h.reported[s.Session]
			}
			_ = s.link.Send(protocol.TypeDesync, protocol.DesyncMsg{
				Tick:     h.voteTick,
				Majority: majority,
				Got:      got,
				Peers:    desynced,
			})
		}
	}

	h.phase = phaseCollecting
}

func (h *Host) doPause(reason string) {
	if h.phase == phasePaused {
		return
	}
	h.pausedAt = h.phase
	h.phase = phasePaused
	h.broadcast(protocol.TypePause, protocol.PauseMsg{Tick: h.eng.Tick(), Reason: reason})
}

func (h *Host) doResume() {
	if h.phase != phasePaused {
		return
	}
	h.phase = h.pausedAt
	h.broadcast(protocol.TypeResume, protocol.ResumeMsg{Tick: h.eng.Tick()})
}

func (h *Host) dropSeat(session, reason string) {
	seat, ok := h.seats[session]
	if !ok {
		return
	}
	delete(h.seats, session)
	h.returnSlot(seat.Country)
	if reason != "" {
		_ = seat.link.Send(protocol.TypeBye, protocol.ByeMsg{Reason: reason})
	}
	seat.link.Close()
	h.log.Printf("seat %s (%s) dropped: %s", session, seat.Country, reason)
}

func (h *Host) takeSlot(want state.Tag) (state.Tag, bool) {
	if len(h.slots) == 0 {
		return "", false
	}
	if want == "" {
		tag := h.slots[0]
		h.slots = h.slots[1:]
		return tag, true
	}
	for i, tag := range h.slots {
		if tag == want {
			h.slots = append(h.slots[:i], h.slots[i+1:]...)
			return tag, true
		}
	}
	return "", false
}

func (h *Host) returnSlot(tag state.Tag) {
	h.slots = append(h.slots, tag)
	sort.Slice(h.slots, func(i, j int) bool { return h.slots[i] < h.slots[j] })
}

func (h *Host) broadcast(typ byte, v any) {
	for _, s := range h.sortedSeats() {
		if err := s.link.Send(typ, v); err != nil {
			h.dropSeat(s.Session, "")
		}
	}
}

func (h *Host) sortedSeats() []*Seat {
	seats := make([]*Seat, 0, len(h.seats))
	for _, s := range h.seats {
		seats = append(seats, s)
	}
	sort.Slice(seats, func(i, j int) bool { return seats[i].Country < seats[j].Country })
	return seats
}

func sortedCountryTags(s *state.WorldState) []state.Tag {
	tags := make([]state.Tag, 0, len(s.Countries))
	for t := range s.Countries {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

func savePath(dir string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("tick-%d.sav", tick))
}
