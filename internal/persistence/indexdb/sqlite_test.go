package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"pyre.dev/internal/sim/engine"
)

func openTemp(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index", "pyre.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestSQLiteIndex_TransitionsInJournalOrder(t *testing.T) {
	idx := openTemp(t)
	ctx := context.Background()
	if err := idx.RecordRun(ctx, Run{RunID: "r1", TickRateHz: 60, Scene: "garden"}); err != nil {
		t.Fatalf("record run: %v", err)
	}

	entries := []engine.Entry{
		{RunID: "r1", Tick: 0, Kind: engine.EntryActivate, World: "garden2", From: "inactive", To: "active"},
		{RunID: "r1", Tick: 40, Kind: engine.EntryEvolve, World: "garden2", Agent: 7, From: "slug", To: "butterfly"},
		{RunID: "r1", Tick: 90, Kind: engine.EntrySwitch, Switch: "move_to_level_two(garden2->garden1)", From: "garden2", To: "garden1"},
		{RunID: "r1", Tick: 90, Kind: engine.EntryInactivate, World: "garden2", From: "active", To: "inactive"},
		{RunID: "r1", Tick: 90, Kind: engine.EntryActivate, World: "garden1", From: "inactive", To: "active"},
		{RunID: "r1", Tick: 120, Kind: engine.EntryActivate, World: "garden2", From: "inactive", To: "active", Restored: true},
	}
	for _, e := range entries {
		if err := idx.WriteEntry(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := idx.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}

	rows, err := idx.Transitions(ctx, "garden2")
	if err != nil {
		t.Fatalf("transitions: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 transitions, got %+v", rows)
	}
	if rows[0].Tick != 0 || rows[1].Kind != engine.EntryInactivate || !rows[2].Restored {
		t.Fatalf("unexpected history: %+v", rows)
	}
	// Two entries precede it in tick 90.
	if rows[1].Seq != 1 {
		t.Fatalf("seq within tick: got %d", rows[1].Seq)
	}

	last, err := idx.LastTransition(ctx, "garden1")
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if last.Tick != 90 || last.Kind != engine.EntryActivate {
		t.Fatalf("last transition: %+v", last)
	}
	if _, err := idx.LastTransition(ctx, "splash screen"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}

	evo, err := idx.Entries(ctx, Query{Agent: 7})
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(evo) != 1 || evo[0].To != "butterfly" {
		t.Fatalf("agent entries: %+v", evo)
	}

	limited, err := idx.Entries(ctx, Query{RunID: "r1", Limit: 2})
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limit: got %d", len(limited))
	}

	runs, err := idx.Runs(ctx)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Scene != "garden" || runs[0].StartedAt == "" {
		t.Fatalf("runs: %+v", runs)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	_ = s.WriteEntry(engine.Entry{Tick: 1})
	_ = s.WriteEntry(engine.Entry{Tick: 2})
	_ = s.WriteEntry(engine.Entry{Tick: 3})

	st := s.Stats()
	if st.DropTotal != 2 {
		t.Fatalf("DropTotal=%d want=2", st.DropTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_ClosedIgnoresWrites(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "pyre.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := idx.WriteEntry(engine.Entry{Tick: 1}); err != nil {
		t.Fatalf("write after close: %v", err)
	}
	if err := idx.Sync(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSQLiteIndex_CloseWhileWriting(t *testing.T) {
	idx := openTemp(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				_ = idx.WriteEntry(engine.Entry{RunID: "r1", Tick: uint64(i), Kind: engine.EntryEvolve, Agent: uint64(w + 1)})
				if i%100 == 0 {
					if err := idx.Sync(ctx); err != nil && !errors.Is(err, ErrClosed) {
						t.Errorf("sync: %v", err)
					}
				}
			}
		}(w)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	wg.Wait()
	if err := idx.Sync(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSQLiteIndex_ReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pyre.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = idx.WriteEntry(engine.Entry{RunID: "r1", Kind: engine.EntryActivate, World: "top"})
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	idx, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()
	rows, err := idx.Transitions(context.Background(), "top")
	if err != nil {
		t.Fatalf("transitions: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("close should commit pending rows, got %d", len(rows))
	}
}
