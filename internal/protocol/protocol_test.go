package protocol

import (
	"bytes"
	"io"
	"testing"

	"regent/internal/sim/fixed"
	"regent/internal/sim/step"
)

func TestRecordRoundTripStream(t *testing.T) {
	var buf bytes.Buffer
	msgs := []CommandsMsg{
		{Tick: 1, Commands: []step.Command{{Kind: step.CmdMoveArmy, Army: 3, Target: 7}}},
		{Tick: 2, Commands: nil},
	}
	for _, m := range msgs {
		if err := Write(&buf, TypeCommands, m); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	for i := range msgs {
		rec, err := Read(&buf)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if rec.Type != TypeCommands {
			t.Fatalf("type %s, want COMMANDS", TypeName(rec.Type))
		}
		var got CommandsMsg
		if err := Decode(rec, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Tick != msgs[i].Tick || len(got.Commands) != len(msgs[i].Commands) {
			t.Fatalf("record %d mangled: %+v", i, got)
		}
	}
	if _, err := Read(&buf); err != io.EOF {
		t.Fatalf("expected EOF after last record, got %v", err)
	}
}

func TestRecordRoundTripFrame(t *testing.T) {
	frame, err := Encode(TypeChecksum, ChecksumMsg{Tick: 42, Sum: "abc123"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	rec, err := Unmarshal(frame)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var got ChecksumMsg
	if err := Decode(rec, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Tick != 42 || got.Sum != "abc123" {
		t.Fatalf("frame mangled: %+v", got)
	}
}

func TestUnmarshalRejectsMangledFrames(t *testing.T) {
	frame, _ := Encode(TypeBye, ByeMsg{})
	cases := [][]byte{
		nil,
		frame[:3],
		frame[:len(frame)-1], // truncated payload
		append(append([]byte(nil), frame...), 0xFF),
	}
	for i, c := range cases {
		if _, err := Unmarshal(c); err == nil {
			t.Fatalf("case %d: mangled frame accepted", i)
		}
	}
}

func TestReadEnforcesLengthLimit(t *testing.T) {
	buf := []byte{0xFF, 0xFF, 0xFF, 0xFF, TypeHello}
	if _, err := Read(bytes.NewReader(buf)); err == nil {
		t.Fatal("oversized record accepted")
	}
}

func TestCommandsPreserveFixedPointAmounts(t *testing.T) {
	in := CommandsMsg{Tick: 9, Commands: []step.Command{
		{Kind: step.CmdOfferPeace, War: 1, Amount: fixed.FromRaw(1234567)},
	}}
	frame, err := Encode(TypeCommands, in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	rec, _ := Unmarshal(frame)
	var out CommandsMsg
	if err := Decode(rec, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Commands[0].Amount != fixed.FromRaw(1234567) {
		t.Fatalf("amount drifted: %v", out.Commands[0].Amount)
	}
}

func TestKnownCodes(t *testing.T) {
	for _, c := range []string{
		ErrProtoBadRequest, ErrVersionMismatch, ErrManifestMismatch,
		ErrSlotTaken, ErrSessionFull, ErrUnknownSession,
		ErrRateLimit, ErrWrongTick, ErrDesynced, ErrInternal,
	} {
		if !KnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if KnownCode("E_NOT_DEFINED") {
		t.Fatal("unknown code accepted")
	}
}
