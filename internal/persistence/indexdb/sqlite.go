// Package indexdb keeps a queryable sqlite index of checksums, saves and
// desync incidents. It is a secondary index over the journals: writes are
// enqueued non-blocking and dropped if the indexer falls behind, so the
// simulation never stalls on disk.
package indexdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSave
	reqDesync
	reqBarrier
)

type req struct {
	kind   reqKind
	tick   TickRow
	save   SaveRow
	desync DesyncRow
	done   chan struct{}
}

type TickRow struct {
	Tick     uint64
	Checksum string
}

type SaveRow struct {
	Tick     uint64
	Path     string
	Checksum string
}

type DesyncRow struct {
	Tick    uint64
	Session string
	Peer    string
	Got     string
	Want    string
}

func Open(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-only workload; NORMAL is enough durability for
	// a rebuildable index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			checksum TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS saves (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			checksum TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS desyncs (
			tick INTEGER NOT NULL,
			session TEXT NOT NULL,
			peer TEXT NOT NULL,
			got TEXT NOT NULL,
			want TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (tick, session, peer)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_desyncs_session ON desyncs(session, tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped reports how many writes were discarded because the queue was
// full.
func (s *SQLiteIndex) Dropped() uint64 { return s.dropped.Load() }

func (s *SQLiteIndex) enqueue(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
}

// RecordTick indexes a checksum-tick. Journals remain the source of truth.
func (s *SQLiteIndex) RecordTick(tick uint64, checksum string) {
	s.enqueue(req{kind: reqTick, tick: TickRow{Tick: tick, Checksum: checksum}})
}

func (s *SQLiteIndex) RecordSave(tick uint64, path, checksum string) {
	s.enqueue(req{kind: reqSave, save: SaveRow{Tick: tick, Path: path, Checksum: checksum}})
}

func (s *SQLiteIndex) RecordDesync(d DesyncRow) {
	s.enqueue(req{kind: reqDesync, desync: d})
}

func (s *SQLiteIndex) loop() {
	for r := range s.ch {
		var err error
		switch r.kind {
		case reqTick:
			_, err = s.db.Exec(
				`INSERT OR REPLACE INTO ticks(tick, checksum) VALUES(?, ?)`,
				int64(r.tick.Tick), r.tick.Checksum)
		case reqSave:
			_, err = s.db.Exec(
				`INSERT OR REPLACE INTO saves(tick, path, checksum) VALUES(?, ?, ?)`,
				int64(r.save.Tick), r.save.Path, r.save.Checksum)
		case reqDesync:
			_, err = s.db.Exec(
				`INSERT OR REPLACE INTO desyncs(tick, session, peer, got, want, recorded_at)
				 VALUES(?, ?, ?, ?, ?, ?)`,
				int64(r.desync.Tick), r.desync.Session, r.desync.Peer,
				r.desync.Got, r.desync.Want, time.Now().UTC().Format(time.RFC3339))
		case reqBarrier:
			close(r.done)
		}
		_ = err // index writes are best-effort
	}
}

// ChecksumAt returns the indexed checksum for a tick, if present.
func (s *SQLiteIndex) ChecksumAt(tick uint64) (string, bool, error) {
	var sum string
	err := s.db.QueryRow(`SELECT checksum FROM ticks WHERE tick = ?`, int64(tick)).Scan(&sum)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return sum, true, nil
}

// LatestSave returns the newest indexed save at or before tick.
func (s *SQLiteIndex) LatestSave(tick uint64) (SaveRow, bool, error) {
	var row SaveRow
	var t int64
	err := s.db.QueryRow(
		`SELECT tick, path, checksum FROM saves WHERE tick <= ? ORDER BY tick DESC LIMIT 1`,
		int64(tick)).Scan(&t, &row.Path, &row.Checksum)
	if err == sql.ErrNoRows {
		return row, false, nil
	}
	if err != nil {
		return row, false, err
	}
	row.Tick = uint64(t)
	return row, true, nil
}

// Desyncs lists recorded desync incidents, oldest first. An empty session
// matches every session.
func (s *SQLiteIndex) Desyncs(session string) ([]DesyncRow, error) {
	rows, err := s.db.Query(
		`SELECT tick, session, peer, got, want FROM desyncs WHERE (? = '' OR session = ?) ORDER BY tick, peer`,
		session, session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DesyncRow
	for rows.Next() {
		var d DesyncRow
		var t int64
		if err := rows.Scan(&t, &d.Session, &d.Peer, &d.Got, &d.Want); err != nil {
			return nil, err
		}
		d.Tick = uint64(t)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Flush blocks until every queued write has been applied; tests use it
// before querying.
func (s *SQLiteIndex) Flush() {
	if s == nil || s.closed.Load() {
		return
	}
	done := make(chan struct{})
	s.ch <- req{kind: reqBarrier, done: done}
	<-done
}
