package lockstep

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"regent/internal/protocol"
	"regent/internal/sim/catalogs"
	"regent/internal/sim/fixed"
	"regent/internal/sim/state"
	"regent/internal/sim/step"
	"regent/internal/sim/tuning"
)

func testCatalogs() *catalogs.Catalogs {
	return &catalogs.Catalogs{
		TradeGoods: catalogs.TradeGoodCatalog{
			ByID: map[string]catalogs.TradeGoodDef{
				"grain": {ID: "grain", BasePrice: fixed.FromInt(2)},
			},
		},
		Provinces: catalogs.ProvinceCatalog{
			ByID: map[state.ProvinceID]catalogs.ProvinceDef{
				1: {ID: 1, Adjacent: []state.ProvinceID{2}, TradeNode: "baltic"},
				2: {ID: 2, Adjacent: []state.ProvinceID{1, 3}, TradeNode: "baltic"},
				3: {ID: 3, Adjacent: []state.ProvinceID{2}, TradeNode: "baltic"},
			},
		},
		TradeNodes: catalogs.TradeNodeCatalog{
			Order: []string{"baltic"},
			ByID:  map[string]catalogs.TradeNodeDef{"baltic": {ID: "baltic"}},
		},
	}
}

func testWorld() *state.WorldState {
	s := state.New(state.Date{Year: 1444, Month: 11, Day: 11}, 7)
	for i, tag := range []state.Tag{"DAN", "NOR", "SWE"} {
		pid := state.ProvinceID(i + 1)
		s.Countries[tag] = &state.CountryState{
			Treasury: fixed.FromInt(100),
			Manpower: fixed.FromInt(5000),
			Capital:  pid,
			HomeNode: "baltic",
		}
		s.Provinces[pid] = &state.ProvinceState{
			Owner: tag, Controller: tag,
			BaseTax: fixed.FromInt(3), BaseProduction: fixed.FromInt(3), BaseManpower: fixed.FromInt(2),
			TradeGood: "grain", TradeNode: "baltic",
			Buildings: map[string]bool{}, Cores: map[state.Tag]bool{tag: true},
		}
	}
	s.TradeNodes["baltic"] = &state.TradeNodeState{Power: map[state.Tag]fixed.Value{}}
	return s
}

func testStepCfg() *step.Config {
	return &step.Config{Rates: tuning.Default().Rates, Strict: true}
}

func quietLog() *log.Logger { return log.New(io.Discard, "", 0) }

func testTuning() tuning.Tuning {
	tun := tuning.Default()
	tun.ChecksumEveryTicks = 1
	// Tests step far faster than wall clock; keep the limiter out of the way.
	tun.Lockstep.CommandsPerSec = 1000
	tun.Lockstep.CommandBurst = 1000
	return tun
}

// memLink implements Link; sent records pile up for the test to pump.
type memLink struct {
	recs   []protocol.Record
	closed bool
}

func (l *memLink) Send(typ byte, v any) error {
	frame, err := protocol.Encode(typ, v)
	if err != nil {
		return err
	}
	rec, err := protocol.Unmarshal(frame)
	if err != nil {
		return err
	}
	l.recs = append(l.recs, rec)
	return nil
}

func (l *memLink) Close() { l.closed = true }

func (l *memLink) drain() []protocol.Record {
	recs := l.recs
	l.recs = nil
	return recs
}

// memConn is the peer-side half: Recv pops what the host link queued,
// Send routes straight into the host's handlers.
type memConn struct {
	link *memLink
	host *Host
	seat func() string // resolves the seat session lazily
}

func (c *memConn) Send(typ byte, v any) error {
	frame, err := protocol.Encode(typ, v)
	if err != nil {
		return err
	}
	rec, err := protocol.Unmarshal(frame)
	if err != nil {
		return err
	}
	switch rec.Type {
	case protocol.TypeCommands:
		var m protocol.CommandsMsg
		if err := protocol.Decode(rec, &m); err != nil {
			return err
		}
		c.host.handleCommands(c.seat(), m)
	case protocol.TypeChecksum:
		var m protocol.ChecksumMsg
		if err := protocol.Decode(rec, &m); err != nil {
			return err
		}
		c.host.handleChecksum(c.seat(), m)
	}
	return nil
}

func (c *memConn) Recv() (protocol.Record, error) {
	if len(c.link.recs) == 0 {
		return protocol.Record{}, io.EOF
	}
	rec := c.link.recs[0]
	c.link.recs = c.link.recs[1:]
	return rec, nil
}

func (c *memConn) Close() error { return nil }

type harness struct {
	t    *testing.T
	host *Host
	cats *catalogs.Catalogs
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cats := testCatalogs()
	eng := NewEngine(testWorld(), cats, testStepCfg(), 1)
	host := NewHost(eng, HostOptions{
		Tuning:       testTuning(),
		ManifestHash: "m1",
		Scenario:     "test",
		Seed:         7,
		Logger:       quietLog(),
	})
	return &harness{t: t, host: host, cats: cats}
}

func (h *harness) hello(country state.Tag) protocol.HelloMsg {
	return protocol.HelloMsg{
		ProtocolVersion: protocol.Version,
		SimVersion:      h.host.opt.Tuning.SimVersion,
		ManifestHash:    "m1",
		PlayerName:      "player-" + string(country),
		Country:         country,
	}
}

// join connects a fully wired peer with a local copy of the start state.
func (h *harness) join(country state.Tag) (*Peer, *memLink) {
	h.t.Helper()
	link := &memLink{}
	conn := &memConn{link: link, host: h.host}
	var session string
	conn.seat = func() string { return session }

	peer := NewPeer(conn, PeerOptions{
		Logger:        quietLog(),
		Cats:          h.cats,
		StepCfg:       testStepCfg(),
		Initial:       testWorld(),
		ChecksumEvery: 1,
	})

	h.host.handleJoin(link, h.hello(country))
	for sess, s := range h.host.seats {
		if s.Country == country {
			session = sess
		}
	}
	if session == "" {
		h.t.Fatalf("no seat assigned for %s", country)
	}
	if err := peer.Handshake(h.hello(country)); err != nil {
		h.t.Fatalf("handshake %s: %v", country, err)
	}
	return peer, link
}

// pump delivers all pending host->peer records.
func (h *harness) pump(peers map[*Peer]*memLink) {
	h.t.Helper()
	for peer, link := range peers {
		for _, rec := range link.drain() {
			if err := peer.handle(rec); err != nil {
				h.t.Fatalf("peer %s handle %s: %v", peer.Country(), protocol.TypeName(rec.Type), err)
			}
		}
	}
}

func (h *harness) tick(peers map[*Peer]*memLink) {
	h.t.Helper()
	if h.host.phase != phaseCollecting {
		h.t.Fatalf("tick in phase %d", h.host.phase)
	}
	h.host.runTick(time.Now())
	h.pump(peers)
	if h.host.phase != phaseCollecting {
		h.t.Fatalf("vote unresolved, phase %d", h.host.phase)
	}
}

func TestHandshakeRefusals(t *testing.T) {
	h := newHarness(t)

	cases := []struct {
		name  string
		hello protocol.HelloMsg
		code  string
	}{
		{"bad protocol", func() protocol.HelloMsg {
			m := h.hello("SWE")
			m.ProtocolVersion = "0.0"
			return m
		}(), protocol.ErrVersionMismatch},
		{"bad sim version", func() protocol.HelloMsg {
			m := h.hello("SWE")
			m.SimVersion = "bad"
			return m
		}(), protocol.ErrVersionMismatch},
		{"bad manifest", func() protocol.HelloMsg {
			m := h.hello("SWE")
			m.ManifestHash = "other"
			return m
		}(), protocol.ErrManifestMismatch},
		{"unknown session", func() protocol.HelloMsg {
			m := h.hello("SWE")
			m.Session = "nope"
			return m
		}(), protocol.ErrUnknownSession},
	}
	for _, tc := range cases {
		link := &memLink{}
		h.host.handleJoin(link, tc.hello)
		if len(link.recs) != 1 || link.recs[0].Type != protocol.TypeReject {
			t.Fatalf("%s: expected one REJECT, got %d records", tc.name, len(link.recs))
		}
		var r protocol.RejectMsg
		if err := protocol.Decode(link.recs[0], &r); err != nil || r.Code != tc.code {
			t.Fatalf("%s: code %s, want %s", tc.name, r.Code, tc.code)
		}
		if !link.closed {
			t.Fatalf("%s: link left open after refusal", tc.name)
		}
	}
}

func TestSlotAssignment(t *testing.T) {
	h := newHarness(t)

	l1 := &memLink{}
	h.host.handleJoin(l1, h.hello("SWE"))
	if len(h.host.seats) != 1 {
		t.Fatal("seat not created")
	}

	// Same slot again.
	l2 := &memLink{}
	h.host.handleJoin(l2, h.hello("SWE"))
	var r protocol.RejectMsg
	if err := protocol.Decode(l2.recs[0], &r); err != nil || r.Code != protocol.ErrSlotTaken {
		t.Fatalf("expected E_SLOT_TAKEN, got %+v", r)
	}

	// Unspecified slot takes the lowest free tag.
	l3 := &memLink{}
	h.host.handleJoin(l3, h.hello(""))
	var w protocol.WelcomeMsg
	if err := protocol.Decode(l3.recs[0], &w); err != nil {
		t.Fatalf("decode welcome: %v", err)
	}
	if w.Country != "DAN" {
		t.Fatalf("auto-assigned %s, want DAN", w.Country)
	}

	// Fill the last slot, then the session is full.
	l4 := &memLink{}
	h.host.handleJoin(l4, h.hello("NOR"))
	l5 := &memLink{}
	h.host.handleJoin(l5, h.hello(""))
	if err := protocol.Decode(l5.recs[0], &r); err != nil || r.Code != protocol.ErrSessionFull {
		t.Fatalf("expected E_SESSION_FULL, got %+v", r)
	}
}

func TestLockstepKeepsPeersIdentical(t *testing.T) {
	h := newHarness(t)
	p1, l1 := h.join("SWE")
	p2, l2 := h.join("DAN")
	peers := map[*Peer]*memLink{p1: l1, p2: l2}

	if err := p1.Queue(step.Command{Kind: step.CmdRecruitRegiment, Target: 3, Name: "infantry"}); err != nil {
		t.Fatalf("queue: %v", err)
	}

	for i := 0; i < 40; i++ {
		h.tick(peers)
	}

	want := h.host.eng.Checksum()
	if p1.State().Checksum() != want || p2.State().Checksum() != want {
		t.Fatal("peer states diverged from host")
	}
	if p1.Desynced() || p2.Desynced() {
		t.Fatal("healthy peers flagged desynced")
	}
	// The recruit command reached every simulation.
	if len(h.host.eng.State().Armies) != 1 {
		t.Fatalf("host has %d armies, want 1", len(h.host.eng.State().Armies))
	}
	if len(p2.State().Armies) != 1 {
		t.Fatal("command missing from the other peer's state")
	}
}

func TestMinorityDesyncFlagged(t *testing.T) {
	h := newHarness(t)
	p1, l1 := h.join("SWE")
	p2, l2 := h.join("DAN")
	peers := map[*Peer]*memLink{p1: l1, p2: l2}

	h.tick(peers)

	// Corrupt one peer's state between ticks.
	p2.State().Countries["DAN"].Treasury = fixed.FromInt(9999)

	h.tick(peers)
	// The DESYNC broadcast lands after the vote resolves; deliver it.
	h.pump(peers)

	if !p2.Desynced() {
		t.Fatal("corrupted peer not flagged")
	}
	if p1.Desynced() {
		t.Fatal("healthy peer flagged")
	}
	var seat2 *Seat
	for _, s := range h.host.seats {
		if s.Country == "DAN" {
			seat2 = s
		}
	}
	if seat2 == nil || !seat2.desynced {
		t.Fatal("host did not mark the seat desynced")
	}

	// Submissions from a desynced seat are refused.
	h.host.handleCommands(seat2.Session, protocol.CommandsMsg{Tick: h.host.eng.Tick() + 1})
	found := false
	for _, rec := range l2.drain() {
		if rec.Type == protocol.TypeReject {
			var r protocol.RejectMsg
			_ = protocol.Decode(rec, &r)
			if r.Code == protocol.ErrDesynced {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("desynced seat's submission not refused")
	}

	// The healthy majority keeps stepping.
	h.tick(map[*Peer]*memLink{p1: l1})
	if p1.State().Checksum() != h.host.eng.Checksum() {
		t.Fatal("majority diverged after minority was dropped from the vote")
	}
}

func TestLagStrikesDropSeat(t *testing.T) {
	h := newHarness(t)
	link := &memLink{}
	h.host.handleJoin(link, h.hello("SWE"))
	if len(h.host.seats) != 1 {
		t.Fatal("seat missing")
	}
	strikes := h.host.opt.Tuning.Lockstep.LagStrikesToDrop

	// The peer never submits; every collection window is a strike, and
	// every vote window times out for another.
	for i := 0; len(h.host.seats) > 0 && i < strikes; i++ {
		h.host.runTick(time.Now())
		if h.host.phase == phaseAwaitChecksums {
			h.host.checksumTimeout()
		}
	}
	if len(h.host.seats) != 0 {
		t.Fatalf("lagging seat survived %d windows", strikes)
	}
	// The slot is free again.
	if _, ok := h.host.takeSlot("SWE"); !ok {
		t.Fatal("slot not returned after drop")
	}
}

// A tick with submissions outstanding stays open up to the command timeout
// before it closes with strikes; a fully submitted tick closes at once.
func TestCollectionWindowWaitsForSlowSeat(t *testing.T) {
	h := newHarness(t)
	p1, l1 := h.join("DAN")
	p2, l2 := h.join("SWE")
	peers := map[*Peer]*memLink{p1: l1, p2: l2}

	// Both handshakes queued an explicit pass for tick 1.
	now := time.Now()
	h.host.collectTick(now)
	if got := h.host.eng.Tick(); got != 1 {
		t.Fatalf("fully submitted window did not close: tick %d", got)
	}
	h.pump(peers)

	var slow *Seat
	for _, s := range h.host.seats {
		if s.Country == "SWE" {
			slow = s
		}
	}
	slow.submitted = false
	slow.commands = nil

	h.host.collectTick(now)
	if got := h.host.eng.Tick(); got != 1 {
		t.Fatalf("window closed with a submission outstanding: tick %d", got)
	}
	h.host.collectTick(now.Add(time.Second))
	if got := h.host.eng.Tick(); got != 1 {
		t.Fatalf("window closed inside the grace period: tick %d", got)
	}

	grace := time.Duration(h.host.opt.Tuning.Lockstep.CommandTimeoutMs) * time.Millisecond
	h.host.collectTick(now.Add(grace + time.Second))
	if got := h.host.eng.Tick(); got != 2 {
		t.Fatalf("window never closed: tick %d", got)
	}
	if slow.strikes != 1 {
		t.Fatalf("absent seat has %d strikes, want 1", slow.strikes)
	}
	h.pump(peers)
	if h.host.phase != phaseCollecting {
		t.Fatalf("vote unresolved, phase %d", h.host.phase)
	}
}

func TestMidGameJoinStateTransfer(t *testing.T) {
	h := newHarness(t)
	p1, l1 := h.join("SWE")
	peers := map[*Peer]*memLink{p1: l1}
	for i := 0; i < 10; i++ {
		h.tick(peers)
	}

	// A second player joins without local state.
	link := &memLink{}
	conn := &memConn{link: link, host: h.host}
	var session string
	conn.seat = func() string { return session }
	p2 := NewPeer(conn, PeerOptions{
		Logger:        quietLog(),
		Cats:          h.cats,
		StepCfg:       testStepCfg(),
		ChecksumEvery: 1,
	})
	h.host.handleJoin(link, h.hello("DAN"))
	for sess, s := range h.host.seats {
		if s.Country == "DAN" {
			session = sess
		}
	}
	if err := p2.Handshake(h.hello("DAN")); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	// Drain the transfer records.
	for _, rec := range link.drain() {
		if err := p2.handle(rec); err != nil {
			t.Fatalf("transfer: %v", err)
		}
	}
	if p2.State() == nil {
		t.Fatal("no state after transfer")
	}
	if p2.State().Checksum() != h.host.eng.Checksum() {
		t.Fatal("transferred state differs from host")
	}

	// Both peers stay in step afterwards.
	peers[p2] = link
	for i := 0; i < 5; i++ {
		h.tick(peers)
	}
	if p2.State().Checksum() != h.host.eng.Checksum() {
		t.Fatal("joiner diverged after transfer")
	}
}

func TestPauseBlocksSubmissions(t *testing.T) {
	h := newHarness(t)
	p1, l1 := h.join("SWE")
	peers := map[*Peer]*memLink{p1: l1}
	h.tick(peers)

	h.host.doPause("host break")
	h.pump(peers)
	if !p1.paused {
		t.Fatal("peer did not observe pause")
	}

	var seat *Seat
	for _, s := range h.host.seats {
		seat = s
	}
	h.host.handleCommands(seat.Session, protocol.CommandsMsg{Tick: h.host.eng.Tick() + 1})
	recs := l1.drain()
	if len(recs) != 1 || recs[0].Type != protocol.TypeReject {
		t.Fatal("submission during pause not refused")
	}

	h.host.doResume()
	h.pump(peers)
	if p1.paused {
		t.Fatal("peer did not observe resume")
	}
	before := h.host.eng.Tick()
	h.tick(peers)
	if h.host.eng.Tick() != before+1 {
		t.Fatal("stepping did not resume")
	}
}

func TestSinglePlayerLoopback(t *testing.T) {
	tun := testTuning()
	tun.TickMs = 2
	// Scheduling jitter must not drop the only player.
	tun.Lockstep.LagStrikesToDrop = 1000

	cats := testCatalogs()
	host := NewHost(NewEngine(testWorld(), cats, testStepCfg(), 1), HostOptions{
		Tuning:       tun,
		ManifestHash: "m1",
		Scenario:     "test",
		Seed:         7,
		Logger:       quietLog(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = host.Run(ctx) }()

	conn := NewLoopback(host)
	peer := NewPeer(conn, PeerOptions{
		Logger:        quietLog(),
		Cats:          cats,
		StepCfg:       testStepCfg(),
		Initial:       testWorld(),
		ChecksumEvery: 1,
	})
	ticks := make(chan uint64, 1024)
	peer.OnTick = func(s *state.WorldState) {
		select {
		case ticks <- s.Tick:
		default:
		}
	}
	if err := peer.Handshake(protocol.HelloMsg{
		SimVersion:   tun.SimVersion,
		ManifestHash: "m1",
		PlayerName:   "solo",
		Country:      "SWE",
	}); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	go func() { _ = peer.Run(ctx) }()

	deadline := time.After(10 * time.Second)
	var last uint64
	for last < 20 {
		select {
		case last = <-ticks:
		case <-deadline:
			t.Fatalf("session stalled at tick %d", last)
		}
	}
	if peer.Desynced() {
		t.Fatal("solo peer flagged desynced")
	}
}

func TestConsolidateBatchOrder(t *testing.T) {
	byCountry := map[state.Tag][]step.Command{
		"SWE": {{Kind: step.CmdMoveArmy, Army: 1}, {Kind: step.CmdMoveArmy, Army: 2}},
		"DAN": {{Kind: step.CmdRecruitRegiment, Target: 2}},
	}
	batch := ConsolidateBatch(byCountry)
	if len(batch) != 3 {
		t.Fatalf("batch length %d", len(batch))
	}
	if batch[0].Country != "DAN" || batch[1].Country != "SWE" || batch[2].Country != "SWE" {
		t.Fatalf("country order wrong: %+v", batch)
	}
	if batch[1].Cmd.Army != 1 || batch[2].Cmd.Army != 2 {
		t.Fatal("submission order not preserved within a country")
	}
}
