package indexdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"pyre.dev/internal/sim/engine"
)

// SQLiteIndex is a queryable read-model of the engine journal. Writes are
// queued and applied by a single writer goroutine; the compressed journal
// stays the source of truth.
type SQLiteIndex struct {
	db *sqlx.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// mu guards sends on ch against Close.
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

type req struct {
	entry *engine.Entry
	// sync, when set, is closed once everything queued before it is committed.
	sync chan struct{}
}

// Row is one indexed journal entry.
type Row struct {
	RunID    string  `db:"run_id"`
	Tick     uint64  `db:"tick"`
	Seq      int     `db:"seq"`
	SimTime  float64 `db:"sim_time"`
	Kind     string  `db:"kind"`
	World    string  `db:"world"`
	Agent    uint64  `db:"agent"`
	Switch   string  `db:"switch_name"`
	From     string  `db:"from_state"`
	To       string  `db:"to_state"`
	Restored bool    `db:"restored"`
	Error    string  `db:"error"`
}

type Run struct {
	RunID      string `db:"run_id"`
	StartedAt  string `db:"started_at"`
	TickRateHz int    `db:"tick_rate_hz"`
	Scene      string `db:"scene"`
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int
	DropTotal     uint64
}

var ErrClosed = errors.New("index closed")

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", path)
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
		ch: make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sqlx.DB) error {
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

func initSchema(db *sqlx.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			tick_rate_hz INTEGER NOT NULL,
			scene TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS entries (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			sim_time REAL NOT NULL,
			kind TEXT NOT NULL,
			world TEXT NOT NULL,
			agent INTEGER NOT NULL,
			switch_name TEXT NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			restored INTEGER NOT NULL,
			error TEXT NOT NULL,
			PRIMARY KEY (run_id, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_entries_world ON entries(world, kind);`,
		`CREATE INDEX IF NOT EXISTS idx_entries_agent ON entries(agent) WHERE agent != 0;`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
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
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteEntry queues e without blocking. Entries are dropped, and counted,
// when the writer falls behind. Writes after Close are ignored.
func (s *SQLiteIndex) WriteEntry(e engine.Entry) error {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	select {
	case s.ch <- req{entry: &e}:
	default:
		s.dropped.Add(1)
	}
	return nil
}

// Sync waits until every entry queued so far is committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if err := s.enqueueSync(ctx, done); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) enqueueSync(ctx context.Context, done chan struct{}) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.ch <- req{sync: done}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTotal:     s.dropped.Load(),
	}
}

// RecordRun registers a run before its entries arrive.
func (s *SQLiteIndex) RecordRun(ctx context.Context, r Run) error {
	if r.StartedAt == "" {
		r.StartedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT OR REPLACE INTO runs(run_id,started_at,tick_rate_hz,scene) VALUES(:run_id,:started_at,:tick_rate_hz,:scene)`, r)
	return err
}

func (s *SQLiteIndex) Runs(ctx context.Context) ([]Run, error) {
	var out []Run
	err := s.db.SelectContext(ctx, &out, `SELECT run_id,started_at,tick_rate_hz,scene FROM runs ORDER BY started_at`)
	return out, err
}

// Query filters Entries. Zero fields match everything.
type Query struct {
	RunID string
	World string
	Kinds []string
	Agent uint64
	Limit int
}

const selectRows = `SELECT run_id,tick,seq,sim_time,kind,world,agent,switch_name,from_state,to_state,restored,error FROM entries`

// Entries returns matching rows in the order they were journaled.
func (s *SQLiteIndex) Entries(ctx context.Context, q Query) ([]Row, error) {
	var (
		where []string
		args  []any
	)
	if q.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, q.RunID)
	}
	if q.World != "" {
		where = append(where, "world = ?")
		args = append(args, q.World)
	}
	if q.Agent != 0 {
		where = append(where, "agent = ?")
		args = append(args, int64(q.Agent))
	}
	if len(q.Kinds) > 0 {
		in, inArgs, err := sqlx.In("kind IN (?)", q.Kinds)
		if err != nil {
			return nil, err
		}
		where = append(where, in)
		args = append(args, inArgs...)
	}
	query := selectRows
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY rowid"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	var out []Row
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return out, nil
}

// Transitions returns the activate and inactivate history of a world.
func (s *SQLiteIndex) Transitions(ctx context.Context, world string) ([]Row, error) {
	return s.Entries(ctx, Query{World: world, Kinds: []string{engine.EntryActivate, engine.EntryInactivate}})
}

// LastTransition returns the most recent transition of world. It returns
// sql.ErrNoRows when the world never changed.
func (s *SQLiteIndex) LastTransition(ctx context.Context, world string) (Row, error) {
	var r Row
	err := s.db.GetContext(ctx, &r,
		selectRows+` WHERE world = ? AND kind IN (?, ?) ORDER BY rowid DESC LIMIT 1`,
		world, engine.EntryActivate, engine.EntryInactivate)
	return r, err
}

func rowFor(e engine.Entry, seq int) Row {
	return Row{
		RunID:    e.RunID,
		Tick:     e.Tick,
		Seq:      seq,
		SimTime:  e.SimTime,
		Kind:     e.Kind,
		World:    e.World,
		Agent:    e.Agent,
		Switch:   e.Switch,
		From:     e.From,
		To:       e.To,
		Restored: e.Restored,
		Error:    e.Error,
	}
}

const insertRow = `INSERT OR REPLACE INTO entries(run_id,tick,seq,sim_time,kind,world,agent,switch_name,from_state,to_state,restored,error)
	VALUES(:run_id,:tick,:seq,:sim_time,:kind,:world,:agent,:switch_name,:from_state,:to_state,:restored,:error)`

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	var (
		tx            *sqlx.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastRun  string
		lastTick uint64
		seq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		if r.sync != nil {
			commit()
			close(r.sync)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		e := r.entry
		if e.RunID != lastRun || e.Tick != lastTick {
			lastRun, lastTick, seq = e.RunID, e.Tick, 0
		}
		if _, err := tx.NamedExec(insertRow, rowFor(*e, seq)); err != nil {
			rollback()
			continue
		}
		seq++
		opCount++
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
