package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"regent/internal/protocol"
	"regent/internal/sim/fixed"
	"regent/internal/sim/state"
	"regent/internal/sim/step"
)

// Every wire message must match its published schema, so third-party
// clients can validate traffic without reading the Go structs.
func TestSchemasMatchMessages(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", name))
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}
	validate := func(schema *jsonschema.Schema, msg any) {
		t.Helper()
		raw, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			t.Fatalf("reparse: %v", err)
		}
		if err := schema.Validate(v); err != nil {
			t.Fatalf("validate %s: %v", raw, err)
		}
	}

	sum := strings.Repeat("ab", 32)

	validate(compile("hello.schema.json"), protocol.HelloMsg{
		ProtocolVersion: protocol.Version,
		SimVersion:      "0.3",
		ManifestHash:    sum,
		PlayerName:      "gustav",
		Country:         "SWE",
	})

	validate(compile("welcome.schema.json"), protocol.WelcomeMsg{
		ProtocolVersion: protocol.Version,
		Session:         "9f6b1c2a",
		Country:         "SWE",
		Scenario:        "two_crowns",
		Seed:            1444,
		TickMs:          100,
		Tick:            12,
		Checksum:        sum,
	})

	validate(compile("commands.schema.json"), protocol.CommandsMsg{
		Tick: 13,
		Commands: []step.Command{
			{Kind: step.CmdMoveArmy, Army: 4, Target: 9},
			{Kind: step.CmdOfferPeace, War: 2, Amount: fixed.FromRaw(250000), Provinces: []state.ProvinceID{9}},
			{Kind: step.CmdFormAlliance, Tag: "DAN"},
		},
	})

	// An explicit pass serializes commands as null.
	validate(compile("commands.schema.json"), protocol.CommandsMsg{Tick: 14})

	validate(compile("tick_batch.schema.json"), protocol.TickBatchMsg{
		Tick: 13,
		Batch: []step.Issued{
			{Country: "DAN", Cmd: step.Command{Kind: step.CmdRecruitRegiment, Target: 3, Name: "infantry"}},
		},
		Checksum: true,
	})

	validate(compile("checksum.schema.json"), protocol.ChecksumMsg{Tick: 13, Sum: sum})

	validate(compile("desync.schema.json"), protocol.DesyncMsg{
		Tick:     13,
		Majority: sum,
		Got:      strings.Repeat("cd", 32),
		Peers:    []state.Tag{"DAN"},
	})
}

func TestSchemasRejectMalformed(t *testing.T) {
	schema, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", "checksum.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	for _, raw := range []string{
		`{"tick":0,"sum":"` + strings.Repeat("ab", 32) + `"}`,
		`{"tick":5,"sum":"not-a-hash"}`,
		`{"sum":"` + strings.Repeat("ab", 32) + `"}`,
	} {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			t.Fatalf("parse: %v", err)
		}
		if err := schema.Validate(v); err == nil {
			t.Fatalf("schema accepted %s", raw)
		}
	}
}
