package save

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"

	"regent/internal/sim/state"
)

// TransferChunkSize is the payload size of one STATE_CHUNK record.
const TransferChunkSize = 256 * 1024

// EncodeTransfer serializes a snapshot for an in-band state transfer:
// the same header-line-plus-gob layout as a disk save, lz4-compressed.
func EncodeTransfer(hdr Header, s *state.WorldState) ([]byte, error) {
	hdr.Version = FormatVersion
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)

	bw := bufio.NewWriterSize(zw, 128*1024)
	hb, _ := json.Marshal(hdr)
	if _, err := bw.Write(hb); err != nil {
		return nil, err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return nil, err
	}
	if err := gob.NewEncoder(bw).Encode(s); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeTransfer reassembles a snapshot from a transfer blob.
func DecodeTransfer(blob []byte) (Header, *state.WorldState, error) {
	var hdr Header
	zr := lz4.NewReader(bytes.NewReader(blob))
	br := bufio.NewReaderSize(zr, 128*1024)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return hdr, nil, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &hdr); err != nil {
		return hdr, nil, fmt.Errorf("parse header: %w", err)
	}
	if hdr.Version != FormatVersion {
		return hdr, nil, fmt.Errorf("unsupported transfer version %d", hdr.Version)
	}

	var s state.WorldState
	if err := gob.NewDecoder(br).Decode(&s); err != nil && err != io.EOF {
		return hdr, nil, fmt.Errorf("gob decode: %w", err)
	}
	return hdr, &s, nil
}

// SplitChunks cuts a transfer blob into wire-sized pieces, in order.
func SplitChunks(blob []byte) [][]byte {
	if len(blob) == 0 {
		return [][]byte{nil}
	}
	var chunks [][]byte
	for len(blob) > 0 {
		n := TransferChunkSize
		if n > len(blob) {
			n = len(blob)
		}
		chunks = append(chunks, blob[:n])
		blob = blob[n:]
	}
	return chunks
}
