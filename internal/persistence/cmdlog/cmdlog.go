// Package cmdlog is the tick journal: one JSON line per tick holding the
// consolidated command batch and, on checksum ticks, the post-tick
// checksum. The same format serves as the operational journal (rotating
// hourly files) and as the replay artifact (a single file that cmd/replay
// feeds back through the transition function).
package cmdlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"regent/internal/sim/step"
)

// Entry is one journaled tick.
type Entry struct {
	Tick     uint64        `json:"tick"`
	Batch    []step.Issued `json:"batch,omitempty"`
	Checksum string        `json:"checksum,omitempty"`
}

// Meta is the first line of a replay journal.
type Meta struct {
	SimVersion   string `json:"sim_version"`
	ManifestHash string `json:"manifest_hash"`
	Scenario     string `json:"scenario"`
	Seed         uint64 `json:"seed"`
	StartTick    uint64 `json:"start_tick"`
	Checksum     string `json:"checksum"` // checksum of the starting state
}

// Writer appends zstd-compressed JSON lines, optionally rotating hourly.
type Writer struct {
	dir    string
	prefix string
	single string // non-empty for single-file mode

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

// NewRotating journals into dir/prefix-YYYY-MM-DD-HH.jsonl.zst files.
func NewRotating(dir, prefix string) *Writer {
	return &Writer{dir: dir, prefix: prefix}
}

// NewFile journals into exactly one file; used for replay artifacts.
func NewFile(path string, meta Meta) (*Writer, error) {
	w := &Writer{single: path}
	if err := w.open(path); err != nil {
		return nil, err
	}
	return w, w.write(meta)
}

func (w *Writer) Append(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.single == "" {
		hour := time.Now().UTC().Format("2006-01-02-15")
		if hour != w.curHour {
			if err := w.rotateLocked(hour); err != nil {
				return err
			}
		}
	}
	return w.writeLocked(e)
}

func (w *Writer) write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeLocked(v)
}

func (w *Writer) writeLocked(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := filepath.Join(w.dir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
	if err := w.open(path); err != nil {
		return err
	}
	w.curHour = hour
	return nil
}

func (w *Writer) open(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	return nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) closeLocked() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err
}

// ReadFile loads a replay journal: the meta line, then every tick entry in
// order.
func ReadFile(path string) (Meta, []Entry, error) {
	var meta Meta
	f, err := os.Open(path)
	if err != nil {
		return meta, nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return meta, nil, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 1<<20), 64<<20)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return meta, nil, err
		}
		return meta, nil, io.ErrUnexpectedEOF
	}
	if err := json.Unmarshal(sc.Bytes(), &meta); err != nil {
		return meta, nil, fmt.Errorf("parse meta: %w", err)
	}

	var entries []Entry
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return meta, nil, fmt.Errorf("parse entry %d: %w", len(entries), err)
		}
		entries = append(entries, e)
	}
	return meta, entries, sc.Err()
}
