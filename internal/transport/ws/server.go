// Package ws carries lockstep protocol records over websocket binary
// frames: one record per frame, already length-prefixed so a frame can be
// relayed or journaled as-is.
package ws

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"regent/internal/lockstep"
	"regent/internal/protocol"
)

const (
	writeWait  = 5 * time.Second
	readWait   = 60 * time.Second
	helloWait  = 5 * time.Second
	sendBuffer = 256
)

type Server struct {
	host *lockstep.Host
	log  *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(host *lockstep.Host, logger *log.Logger) *Server {
	return &Server{
		host: host,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}

		link := newLink(conn)
		go link.writeLoop()
		defer link.Close()

		// First frame must be HELLO; the host decides the rest.
		_ = conn.SetReadDeadline(time.Now().Add(helloWait))
		rec, err := readRecord(conn)
		if err != nil || rec.Type != protocol.TypeHello {
			return
		}
		var hello protocol.HelloMsg
		if err := protocol.Decode(rec, &hello); err != nil {
			return
		}
		s.host.Join(link, hello)

		for {
			_ = conn.SetReadDeadline(time.Now().Add(readWait))
			rec, err := readRecord(conn)
			if err != nil {
				break
			}
			session := link.session()
			if session == "" {
				continue // still waiting for the host to seat us
			}
			switch rec.Type {
			case protocol.TypeCommands:
				var m protocol.CommandsMsg
				if err := protocol.Decode(rec, &m); err != nil {
					continue
				}
				s.host.Submit(session, m)
			case protocol.TypeChecksum:
				var m protocol.ChecksumMsg
				if err := protocol.Decode(rec, &m); err != nil {
					continue
				}
				s.host.ReportChecksum(session, m)
			case protocol.TypeBye:
				s.host.Leave(session)
				return
			default:
				s.log.Printf("ignoring %s from %s", protocol.TypeName(rec.Type), session)
			}
		}

		if session := link.session(); session != "" {
			s.host.Leave(session)
		}
	}
}

func readRecord(conn *websocket.Conn) (protocol.Record, error) {
	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			return protocol.Record{}, err
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		return protocol.Unmarshal(msg)
	}
}

// wsLink is the host's outbound half of one connection. Send runs on the
// host loop, so it only queues; the writer goroutine owns the socket.
type wsLink struct {
	conn *websocket.Conn
	out  chan []byte

	mu   sync.Mutex
	sess string

	closeOnce sync.Once
	done      chan struct{}
}

func newLink(conn *websocket.Conn) *wsLink {
	return &wsLink{
		conn: conn,
		out:  make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (l *wsLink) Send(typ byte, v any) error {
	frame, err := protocol.Encode(typ, v)
	if err != nil {
		return err
	}
	// The seat session travels inside WELCOME; remember it so the reader
	// loop can attribute inbound frames.
	if typ == protocol.TypeWelcome {
		if w, ok := v.(protocol.WelcomeMsg); ok {
			l.mu.Lock()
			l.sess = w.Session
			l.mu.Unlock()
		}
	}
	select {
	case l.out <- frame:
		return nil
	case <-l.done:
		return websocket.ErrCloseSent
	default:
		// A peer that cannot drain the send buffer is as good as gone.
		l.Close()
		return websocket.ErrCloseSent
	}
}

// Close stops accepting frames; the writer drains what was already queued
// (a handshake REJECT must still reach the peer) and closes the socket.
func (l *wsLink) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

func (l *wsLink) session() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sess
}

func (l *wsLink) writeLoop() {
	defer l.conn.Close()
	write := func(frame []byte) bool {
		_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return l.conn.WriteMessage(websocket.BinaryMessage, frame) == nil
	}
	for {
		select {
		case <-l.done:
			for {
				select {
				case frame := <-l.out:
					if !write(frame) {
						return
					}
				default:
					return
				}
			}
		case frame := <-l.out:
			if !write(frame) {
				l.Close()
				return
			}
		}
	}
}
