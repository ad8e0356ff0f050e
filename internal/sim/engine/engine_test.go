package engine

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"pyre.dev/internal/observerproto"
	"pyre.dev/internal/render/memory"
	"pyre.dev/internal/sim/scene"
	"pyre.dev/internal/sim/world"
)

type recordingSink struct {
	entries []Entry
}

func (s *recordingSink) WriteEntry(e Entry) error {
	s.entries = append(s.entries, e)
	return nil
}

func (s *recordingSink) kinds(kind string) []Entry {
	var out []Entry
	for _, e := range s.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func newGarden(t *testing.T, cfg Config) (*Engine, *recordingSink, *memory.Renderer) {
	t.Helper()
	sc, err := scene.Load("")
	if err != nil {
		t.Fatalf("load scene: %v", err)
	}
	r := memory.New()
	clock := NewClock()
	s, err := scene.Build(sc, r, clock, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if cfg.RunID == "" {
		cfg.RunID = "run-test"
	}
	e := New(cfg, s, clock, nil)
	sink := &recordingSink{}
	e.AddSink(sink)
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	return e, sink, r
}

func TestStart_JournalsActivationList(t *testing.T) {
	_, sink, _ := newGarden(t, Config{})
	got := sink.kinds(EntryActivate)
	// splash screen and garden1 stay dormant.
	want := []string{"top", "garden", "garden2"}
	if len(got) != len(want) {
		t.Fatalf("activations: got %d want %d (%+v)", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].World != w || got[i].Tick != 0 || got[i].RunID != "run-test" {
			t.Fatalf("entry %d: %+v", i, got[i])
		}
		if got[i].From != "inactive" || got[i].To != "active" {
			t.Fatalf("entry %d flags: %+v", i, got[i])
		}
	}
}

func TestStep_AdvancesClockAndTick(t *testing.T) {
	e, _, _ := newGarden(t, Config{})
	for i := 0; i < 5; i++ {
		e.Step(0.25)
	}
	if e.CurrentTick() != 5 {
		t.Fatalf("tick: got %d", e.CurrentTick())
	}
	if got := e.clock.Now(); got != 1.25 {
		t.Fatalf("sim time: got %v", got)
	}
}

func TestStep_GardenSwapIsJournaled(t *testing.T) {
	e, sink, r := newGarden(t, Config{})
	for i := 0; i < 300 && len(sink.kinds(EntrySwitch)) == 0; i++ {
		e.Step(0.1)
	}
	fired := sink.kinds(EntrySwitch)
	if len(fired) != 1 {
		t.Fatalf("switch entries: %+v", fired)
	}
	if fired[0].From != "garden2" || fired[0].To != "garden1" {
		t.Fatalf("swap direction: %+v", fired[0])
	}
	if len(sink.kinds(EntryEvolve)) == 0 {
		t.Fatalf("no evolutions journaled")
	}
	for _, ev := range sink.kinds(EntryEvolve) {
		if ev.World != "garden2" || ev.Agent == 0 {
			t.Fatalf("evolve entry: %+v", ev)
		}
		if ev.Tick > fired[0].Tick {
			t.Fatalf("evolution journaled after the swap tick: %+v", ev)
		}
	}

	// The swap's transitions share the switch's tick and follow it.
	var after []Entry
	for _, en := range sink.entries {
		if en.Tick == fired[0].Tick && (en.Kind == EntryActivate || en.Kind == EntryInactivate) {
			after = append(after, en)
		}
	}
	if len(after) != 2 || after[0].World != "garden2" || after[0].Kind != EntryInactivate || after[1].World != "garden1" {
		t.Fatalf("swap transitions: %+v", after)
	}
	if live := r.Stats().Live; live != 2 {
		t.Fatalf("live primitives after swap: %d", live)
	}
}

func TestEnqueue_AppliedAtNextTick(t *testing.T) {
	e, sink, _ := newGarden(t, Config{})
	g2, _ := e.tree.Lookup("garden2")

	if err := e.Enqueue(Command{Op: OpInactivate, World: "garden2"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !e.tree.Active(g2) {
		t.Fatalf("command applied before the tick")
	}
	e.Step(0.1)
	if e.tree.Active(g2) {
		t.Fatalf("command not applied")
	}
	cmds := sink.kinds(EntryCommand)
	if len(cmds) != 1 || cmds[0].Tick != 0 || cmds[0].Error != "" {
		t.Fatalf("command entries: %+v", cmds)
	}

	if err := e.Enqueue(Command{Op: OpRestore, World: "garden2"}); err != nil {
		t.Fatalf("enqueue restore: %v", err)
	}
	e.Step(0.1)
	if !e.tree.Active(g2) {
		t.Fatalf("restore should bring garden2 back")
	}
}

func TestEnqueue_Errors(t *testing.T) {
	e, sink, _ := newGarden(t, Config{CommandQueue: 1})
	if err := e.Enqueue(Command{Op: "EXPLODE", World: "garden"}); !errors.Is(err, ErrUnknownOp) {
		t.Fatalf("expected ErrUnknownOp, got %v", err)
	}
	if err := e.Enqueue(Command{Op: OpActivate}); !errors.Is(err, world.ErrUnknownWorld) {
		t.Fatalf("expected ErrUnknownWorld, got %v", err)
	}
	if err := e.Enqueue(Command{Op: OpActivate, World: "nowhere"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := e.Enqueue(Command{Op: OpActivate, World: "garden"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	e.Step(0.1)
	cmds := sink.kinds(EntryCommand)
	if len(cmds) != 1 || cmds[0].Error == "" {
		t.Fatalf("unknown world should be journaled with its error: %+v", cmds)
	}

	e.Stop()
	e.Stop()
	if err := e.Enqueue(Command{Op: OpActivate, World: "garden"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if _, err := e.RequestSnapshot(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestRequestSnapshot_AnsweredAtTickStart(t *testing.T) {
	e, _, _ := newGarden(t, Config{})
	e.Step(0.5)

	type result struct {
		snap observerproto.SnapshotMsg
		err  error
	}
	done := make(chan result, 1)
	go func() {
		s, err := e.RequestSnapshot(context.Background())
		done <- result{s, err}
	}()
	deadline := time.Now().Add(2 * time.Second)
	for len(e.snapshots) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("request never queued")
		}
		time.Sleep(time.Millisecond)
	}
	e.Step(0.5)

	r := <-done
	if r.err != nil {
		t.Fatalf("snapshot: %v", r.err)
	}
	if r.snap.Tick != 1 || r.snap.SimTime != 0.5 || r.snap.RunID != "run-test" {
		t.Fatalf("snapshot header: %+v", r.snap)
	}
	if len(r.snap.Worlds) != 5 {
		t.Fatalf("worlds: %d", len(r.snap.Worlds))
	}
}

func TestRequestSnapshot_ContextCancelled(t *testing.T) {
	e, _, _ := newGarden(t, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := e.RequestSnapshot(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestBootstrap(t *testing.T) {
	e, _, _ := newGarden(t, Config{TickRateHz: 30})
	b := e.Bootstrap()
	if b.TickRateHz != 30 || b.RunID != "run-test" || b.ProtocolVersion != observerproto.Version {
		t.Fatalf("bootstrap: %+v", b)
	}
	if len(b.Worlds) != 5 || b.Worlds[0] != "top" {
		t.Fatalf("worlds: %v", b.Worlds)
	}
}

func TestRun_StreamsToObservers(t *testing.T) {
	e, _, _ := newGarden(t, Config{TickRateHz: 200, FixedDT: true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- e.Run(ctx) }()

	out := make(chan []byte, 4)
	e.ObserverJoin() <- ObserverJoinRequest{SessionID: "O1", Out: out, IntervalTicks: 2, Worlds: []string{"garden2"}}

	var snap observerproto.SnapshotMsg
	select {
	case b := <-out:
		if err := json.Unmarshal(b, &snap); err != nil {
			t.Fatalf("decode: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no snapshot streamed")
	}
	if snap.Type != "SNAPSHOT" || len(snap.Worlds) != 1 || snap.Worlds[0].Name != "garden2" {
		t.Fatalf("filtered snapshot: %+v", snap)
	}
	if snap.Tick == 0 || math.Abs(snap.SimTime-float64(snap.Tick)/200) > 1e-9 {
		t.Fatalf("fixed dt clock: tick %d time %v", snap.Tick, snap.SimTime)
	}

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("run: %v", err)
	}
	for range out {
	}
}

func TestRun_StopClosesObservers(t *testing.T) {
	e, _, _ := newGarden(t, Config{TickRateHz: 200})
	errc := make(chan error, 1)
	go func() { errc <- e.Run(context.Background()) }()

	out := make(chan []byte, 1)
	e.ObserverJoin() <- ObserverJoinRequest{SessionID: "O1", Out: out}
	<-out
	e.ObserverLeave() <- "O1"
	e.Stop()
	if err := <-errc; err != nil {
		t.Fatalf("run: %v", err)
	}
	for range out {
	}
}
