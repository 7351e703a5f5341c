package lockstep

import (
	"context"
	"fmt"
	"log"

	"regent/internal/persistence/save"
	"regent/internal/protocol"
	"regent/internal/sim/catalogs"
	"regent/internal/sim/state"
	"regent/internal/sim/step"
)

// Conn is the peer's view of its connection to the host: framed records
// in both directions.
type Conn interface {
	Send(typ byte, v any) error
	Recv() (protocol.Record, error)
	Close() error
}

// Peer mirrors the host's simulation from broadcast batches. Commands
// queued between ticks are submitted for the next tick as one message.
type Peer struct {
	log  *log.Logger
	conn Conn

	cats    *catalogs.Catalogs
	stepCfg *step.Config

	eng      *Engine
	session  string
	country  state.Tag
	paused   bool
	desynced bool

	queue []step.Command

	// state transfer reassembly
	chunks [][]byte

	checksumEvery int

	// OnTick, if set, runs after every applied tick with the new
	// snapshot; UI and AI layers hang off it.
	OnTick func(s *state.WorldState)
}

// PeerOptions configures a peer before handshake.
type PeerOptions struct {
	Logger  *log.Logger
	Cats    *catalogs.Catalogs
	StepCfg *step.Config

	// Initial is the scenario start state; nil means the peer expects a
	// state transfer (mid-game join).
	Initial *state.WorldState

	ChecksumEvery int
}

func NewPeer(conn Conn, opt PeerOptions) *Peer {
	logger := opt.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[peer] ", log.LstdFlags)
	}
	p := &Peer{
		log:           logger,
		conn:          conn,
		cats:          opt.Cats,
		stepCfg:       opt.StepCfg,
		checksumEvery: opt.ChecksumEvery,
	}
	if opt.Initial != nil {
		p.eng = NewEngine(opt.Initial, opt.Cats, opt.StepCfg, opt.ChecksumEvery)
	}
	return p
}

// Handshake sends HELLO and waits for WELCOME. The returned error carries
// the reject code when the host refuses.
func (p *Peer) Handshake(hello protocol.HelloMsg) error {
	hello.ProtocolVersion = protocol.Version
	if err := p.conn.Send(protocol.TypeHello, hello); err != nil {
		return err
	}
	rec, err := p.conn.Recv()
	if err != nil {
		return err
	}
	switch rec.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := protocol.Decode(rec, &w); err != nil {
			return err
		}
		p.session = w.Session
		p.country = w.Country
		if p.eng != nil && w.Tick != p.eng.Tick() {
			return fmt.Errorf("host at tick %d, local state at %d", w.Tick, p.eng.Tick())
		}
		if p.eng != nil && w.Checksum != "" && w.Checksum != p.eng.Checksum() {
			return fmt.Errorf("start state checksum mismatch")
		}
		if p.eng == nil {
			return nil // state transfer sends the first pass
		}
		// Submit an explicit pass so the first collection window does
		// not count as a lag strike.
		return p.conn.Send(protocol.TypeCommands, protocol.CommandsMsg{Tick: w.Tick + 1})
	case protocol.TypeReject:
		var r protocol.RejectMsg
		if err := protocol.Decode(rec, &r); err != nil {
			return err
		}
		return fmt.Errorf("refused: %s %s", r.Code, r.Detail)
	default:
		return fmt.Errorf("unexpected %s during handshake", protocol.TypeName(rec.Type))
	}
}

func (p *Peer) Session() string     { return p.session }
func (p *Peer) Country() state.Tag  { return p.country }
func (p *Peer) Desynced() bool      { return p.desynced }
func (p *Peer) State() *state.WorldState {
	if p.eng == nil {
		return nil
	}
	return p.eng.State()
}

// Queue stages a command for the next submission. Pre-flight validation
// failures are returned immediately; the authoritative check still happens
// on the consolidated batch.
func (p *Peer) Queue(cmd step.Command) error {
	if p.eng == nil {
		return fmt.Errorf("no state yet")
	}
	if err := p.eng.CanExecute(p.country, cmd); err != nil {
		return err
	}
	p.queue = append(p.queue, cmd)
	return nil
}

// Run processes host records until the connection drops or ctx is done.
func (p *Peer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := p.conn.Recv()
		if err != nil {
			return err
		}
		if err := p.handle(rec); err != nil {
			return err
		}
	}
}

func (p *Peer) handle(rec protocol.Record) error {
	switch rec.Type {
	case protocol.TypeTickBatch:
		var m protocol.TickBatchMsg
		if err := protocol.Decode(rec, &m); err != nil {
			return err
		}
		return p.applyTick(m)

	case protocol.TypeReject:
		var m protocol.RejectMsg
		if err := protocol.Decode(rec, &m); err != nil {
			return err
		}
		if m.Cmd != nil {
			p.log.Printf("command rejected at tick %d: %s %s", m.Tick, m.Code, m.Detail)
		} else {
			p.log.Printf("rejected: %s %s", m.Code, m.Detail)
		}
		return nil

	case protocol.TypeDesync:
		var m protocol.DesyncMsg
		if err := protocol.Decode(rec, &m); err != nil {
			return err
		}
		if m.Got != "" {
			p.desynced = true
			p.log.Printf("desynced at tick %d: got %.12s want %.12s", m.Tick, m.Got, m.Majority)
		}
		return nil

	case protocol.TypePause:
		p.paused = true
		return nil

	case protocol.TypeResume:
		p.paused = false
		return nil

	case protocol.TypeStateChunk:
		var m protocol.StateChunkMsg
		if err := protocol.Decode(rec, &m); err != nil {
			return err
		}
		if m.Index != len(p.chunks) {
			return fmt.Errorf("state chunk %d out of order, want %d", m.Index, len(p.chunks))
		}
		p.chunks = append(p.chunks, m.Data)
		return nil

	case protocol.TypeStateComplete:
		var m protocol.StateCompleteMsg
		if err := protocol.Decode(rec, &m); err != nil {
			return err
		}
		return p.finishTransfer(m)

	case protocol.TypeBye:
		var m protocol.ByeMsg
		_ = protocol.Decode(rec, &m)
		return fmt.Errorf("host closed session: %s", m.Reason)

	default:
		p.log.Printf("ignoring unexpected %s", protocol.TypeName(rec.Type))
		return nil
	}
}

// applyTick feeds the consolidated batch through the local transition
// function, reports the checksum when asked, and submits the queued
// commands for the next tick.
func (p *Peer) applyTick(m protocol.TickBatchMsg) error {
	if p.eng == nil {
		return fmt.Errorf("tick batch before state transfer completed")
	}
	if m.Tick != p.eng.Tick()+1 {
		return fmt.Errorf("tick batch %d does not follow local tick %d", m.Tick, p.eng.Tick())
	}
	p.eng.Advance(m.Batch)

	if m.Checksum && !p.desynced {
		if err := p.conn.Send(protocol.TypeChecksum, protocol.ChecksumMsg{
			Tick: m.Tick,
			Sum:  p.eng.Checksum(),
		}); err != nil {
			return err
		}
	}
	if p.OnTick != nil {
		p.OnTick(p.eng.State())
	}
	if p.desynced || p.paused {
		return nil
	}

	cmds := p.queue
	p.queue = nil
	return p.conn.Send(protocol.TypeCommands, protocol.CommandsMsg{
		Tick:     m.Tick + 1,
		Commands: cmds,
	})
}

// finishTransfer rebuilds the engine from the reassembled blob and
// verifies the advertised checksum before trusting it.
func (p *Peer) finishTransfer(m protocol.StateCompleteMsg) error {
	var blob []byte
	for _, c := range p.chunks {
		blob = append(blob, c...)
	}
	p.chunks = nil

	hdr, s, err := save.DecodeTransfer(blob)
	if err != nil {
		return fmt.Errorf("state transfer: %w", err)
	}
	if hdr.Tick != m.Tick {
		return fmt.Errorf("state transfer header tick %d, want %d", hdr.Tick, m.Tick)
	}
	if s.Checksum() != m.Checksum {
		return fmt.Errorf("state transfer checksum mismatch at tick %d", m.Tick)
	}
	p.eng = NewEngine(s, p.cats, p.stepCfg, p.checksumEvery)
	p.log.Printf("state transfer complete at tick %d", m.Tick)

	// Enter the lockstep with an explicit pass for the next tick.
	return p.conn.Send(protocol.TypeCommands, protocol.CommandsMsg{Tick: m.Tick + 1})
}
