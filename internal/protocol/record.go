// Package protocol is the lockstep wire format: length-prefixed binary
// records with a one-byte type discriminant and JSON message bodies. The
// carrier (websocket frames, a pipe, a test buffer) only needs to deliver
// byte streams in order.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

const Version = "1.0"

// MaxRecordLen bounds a single record. State transfers ship in chunks, so
// nothing legitimate comes close.
const MaxRecordLen = 8 << 20

// Record types. Wire values, never renumber.
const (
	TypeHello         byte = 1
	TypeWelcome       byte = 2
	TypeReject        byte = 3
	TypeCommands      byte = 4
	TypeTickBatch     byte = 5
	TypeChecksum      byte = 6
	TypeDesync        byte = 7
	TypePause         byte = 8
	TypeResume        byte = 9
	TypeStateChunk    byte = 10
	TypeStateComplete byte = 11
	TypeBye           byte = 12
)

// TypeName returns a short label for logs.
func TypeName(t byte) string {
	switch t {
	case TypeHello:
		return "HELLO"
	case TypeWelcome:
		return "WELCOME"
	case TypeReject:
		return "REJECT"
	case TypeCommands:
		return "COMMANDS"
	case TypeTickBatch:
		return "TICK_BATCH"
	case TypeChecksum:
		return "CHECKSUM"
	case TypeDesync:
		return "DESYNC"
	case TypePause:
		return "PAUSE"
	case TypeResume:
		return "RESUME"
	case TypeStateChunk:
		return "STATE_CHUNK"
	case TypeStateComplete:
		return "STATE_COMPLETE"
	case TypeBye:
		return "BYE"
	}
	return fmt.Sprintf("UNKNOWN(%d)", t)
}

// Record is one framed message.
type Record struct {
	Type    byte
	Payload []byte
}

// Marshal frames a record: u32 little-endian length of (type byte +
// payload), then the type byte, then the payload.
func Marshal(typ byte, payload []byte) []byte {
	buf := make([]byte, 4+1+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(1+len(payload)))
	buf[4] = typ
	copy(buf[5:], payload)
	return buf
}

// Encode marshals v to JSON and frames it.
func Encode(typ byte, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", TypeName(typ), err)
	}
	return Marshal(typ, payload), nil
}

// Write frames and writes a single record.
func Write(w io.Writer, typ byte, v any) error {
	buf, err := Encode(typ, v)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// Read reads exactly one record from the stream.
func Read(r io.Reader) (Record, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Record{}, err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if n == 0 {
		return Record{}, fmt.Errorf("empty record")
	}
	if n > MaxRecordLen {
		return Record{}, fmt.Errorf("record length %d exceeds limit", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Record{}, err
	}
	return Record{Type: body[0], Payload: body[1:]}, nil
}

// Unmarshal parses a complete framed record from a buffer, as delivered by
// message-oriented carriers like websocket binary frames.
func Unmarshal(buf []byte) (Record, error) {
	if len(buf) < 5 {
		return Record{}, fmt.Errorf("record too short: %d bytes", len(buf))
	}
	n := binary.LittleEndian.Uint32(buf)
	if int(n) != len(buf)-4 {
		return Record{}, fmt.Errorf("record length %d does not match frame %d", n, len(buf)-4)
	}
	if n > MaxRecordLen {
		return Record{}, fmt.Errorf("record length %d exceeds limit", n)
	}
	return Record{Type: buf[4], Payload: buf[5:]}, nil
}

// Decode unmarshals a record's JSON body into out.
func Decode(rec Record, out any) error {
	if err := json.Unmarshal(rec.Payload, out); err != nil {
		return fmt.Errorf("decode %s: %w", TypeName(rec.Type), err)
	}
	return nil
}
