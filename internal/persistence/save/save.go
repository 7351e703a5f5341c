// Package save reads and writes world snapshots on disk and over the
// wire. Disk saves are zstd-framed gob with a JSON header line in front so
// tools can identify a file without decoding the body. Wire transfers for
// mid-game joiners use lz4, which favors speed over ratio.
package save

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"regent/internal/sim/state"
)

// FormatVersion guards the gob body layout.
const FormatVersion = 1

type Header struct {
	Version      int    `json:"version"`
	SimVersion   string `json:"sim_version"`
	ManifestHash string `json:"manifest_hash"`
	Scenario     string `json:"scenario"`
	Seed         uint64 `json:"seed"`
	Tick         uint64 `json:"tick"`
	Checksum     string `json:"checksum"`
}

// Write stores a save artifact at path, creating parent directories.
func Write(path string, hdr Header, s *state.WorldState) error {
	hdr.Version = FormatVersion
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(hdr)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(s); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

// Read loads a save artifact.
func Read(path string) (Header, *state.WorldState, error) {
	var hdr Header
	f, err := os.Open(path)
	if err != nil {
		return hdr, nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return hdr, nil, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return hdr, nil, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &hdr); err != nil {
		return hdr, nil, fmt.Errorf("parse header: %w", err)
	}
	if hdr.Version != FormatVersion {
		return hdr, nil, fmt.Errorf("unsupported save version %d", hdr.Version)
	}

	var s state.WorldState
	if err := gob.NewDecoder(br).Decode(&s); err != nil {
		return hdr, nil, fmt.Errorf("gob decode: %w", err)
	}
	return hdr, &s, nil
}

// ReadHeader parses only the header line, cheap enough to run over a whole
// save directory.
func ReadHeader(path string) (Header, error) {
	var hdr Header
	f, err := os.Open(path)
	if err != nil {
		return hdr, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return hdr, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return hdr, fmt.Errorf("read header: %w", err)
	}
	err = json.Unmarshal(line, &hdr)
	return hdr, err
}
