package lockstep

import (
	"fmt"
	"io"
	"sync"

	"regent/internal/protocol"
)

// NewLoopback wires a peer to a host in the same process. Single-player is
// a session over a loopback instead of a socket; the host still paces,
// journals and checksums exactly as it would online.
func NewLoopback(h *Host) Conn {
	return &loopback{
		host: h,
		in:   make(chan protocol.Record, 256),
		done: make(chan struct{}),
	}
}

// loopback is the peer-facing Conn; loopbackLink is the same pipe seen
// from the host.
type loopback struct {
	host *Host
	in   chan protocol.Record

	mu   sync.Mutex
	sess string

	closeOnce sync.Once
	done      chan struct{}
}

func (l *loopback) session() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sess
}

func (l *loopback) Send(typ byte, v any) error {
	frame, err := protocol.Encode(typ, v)
	if err != nil {
		return err
	}
	rec, err := protocol.Unmarshal(frame)
	if err != nil {
		return err
	}
	switch rec.Type {
	case protocol.TypeHello:
		var m protocol.HelloMsg
		if err := protocol.Decode(rec, &m); err != nil {
			return err
		}
		l.host.Join(&loopbackLink{l}, m)
	case protocol.TypeCommands:
		var m protocol.CommandsMsg
		if err := protocol.Decode(rec, &m); err != nil {
			return err
		}
		l.host.Submit(l.session(), m)
	case protocol.TypeChecksum:
		var m protocol.ChecksumMsg
		if err := protocol.Decode(rec, &m); err != nil {
			return err
		}
		l.host.ReportChecksum(l.session(), m)
	case protocol.TypeBye:
		l.host.Leave(l.session())
	default:
		return fmt.Errorf("loopback cannot carry %s to the host", protocol.TypeName(rec.Type))
	}
	return nil
}

func (l *loopback) Recv() (protocol.Record, error) {
	select {
	case rec := <-l.in:
		return rec, nil
	case <-l.done:
		// Deliver what the host queued before hanging up.
		select {
		case rec := <-l.in:
			return rec, nil
		default:
			return protocol.Record{}, io.EOF
		}
	}
}

func (l *loopback) Close() error {
	if sess := l.session(); sess != "" {
		l.host.Leave(sess)
	}
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

type loopbackLink struct{ *loopback }

func (l *loopbackLink) Send(typ byte, v any) error {
	frame, err := protocol.Encode(typ, v)
	if err != nil {
		return err
	}
	rec, err := protocol.Unmarshal(frame)
	if err != nil {
		return err
	}
	if rec.Type == protocol.TypeWelcome {
		var w protocol.WelcomeMsg
		if err := protocol.Decode(rec, &w); err != nil {
			return err
		}
		l.mu.Lock()
		l.sess = w.Session
		l.mu.Unlock()
	}
	select {
	case <-l.done:
		return io.ErrClosedPipe
	case l.in <- rec:
		return nil
	default:
		return io.ErrClosedPipe
	}
}

func (l *loopbackLink) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}
