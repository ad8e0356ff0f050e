// Package engine drives a scene: it owns the tick counter and the simulated
// clock, applies queued commands at tick boundaries and fans transitions out
// to the journal sinks.
package engine

import (
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"pyre.dev/internal/sim/agent"
	"pyre.dev/internal/sim/scene"
	"pyre.dev/internal/sim/world"
)

type Config struct {
	TickRateHz int
	// FixedDT steps by 1/TickRateHz instead of the measured wall-clock delta.
	FixedDT bool
	// RunID stamps journal entries and snapshots. Empty means a fresh uuid.
	RunID string
	// CommandQueue bounds Enqueue. Zero means 64.
	CommandQueue int
}

// Entry kinds.
const (
	EntryActivate   = "ACTIVATE"
	EntryInactivate = "INACTIVATE"
	EntryEvolve     = "EVOLVE"
	EntrySwitch     = "SWITCH"
	EntryCommand    = "COMMAND"
)

// Entry is one journal record. Entries produced during a tick are delivered
// to the sinks after the tick completes.
type Entry struct {
	RunID   string  `json:"run_id"`
	Tick    uint64  `json:"tick"`
	SimTime float64 `json:"sim_time"`
	Kind    string  `json:"kind"`

	World    string `json:"world,omitempty"`
	Agent    uint64 `json:"agent,omitempty"`
	Switch   string `json:"switch,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Restored bool   `json:"restored,omitempty"`
	Error    string `json:"error,omitempty"`
}

type EntryWriter interface {
	WriteEntry(Entry) error
}

// Clock is the simulated time source handed to the scene's timed switches.
// It is read and advanced only on the engine goroutine.
type Clock struct {
	t float64
}

func NewClock() *Clock { return &Clock{} }

func (c *Clock) Now() float64 { return c.t }

var ErrStopped = errors.New("engine stopped")

type Engine struct {
	cfg    Config
	scene  *scene.Scene
	tree   *world.Tree
	roots  []world.ID
	clock  *Clock
	logger *log.Logger
	runID  string

	tick atomic.Uint64

	commands  chan Command
	snapshots chan snapshotReq

	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	observers     map[string]*observerClient

	stop     chan struct{}
	stopOnce sync.Once

	sinks   []EntryWriter
	pending []Entry
}

// New wires the engine to s. The scene must have been built with clock so
// that timed switches read simulated time.
func New(cfg Config, s *scene.Scene, clock *Clock, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if clock == nil {
		clock = NewClock()
	}
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 60
	}
	if cfg.CommandQueue <= 0 {
		cfg.CommandQueue = 64
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	e := &Engine{
		cfg:           cfg,
		scene:         s,
		tree:          s.Tree,
		roots:         s.Roots(),
		clock:         clock,
		logger:        logger,
		runID:         cfg.RunID,
		commands:      make(chan Command, cfg.CommandQueue),
		snapshots:     make(chan snapshotReq, 16),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerSub:   make(chan ObserverSubscribeRequest, 16),
		observerLeave: make(chan string, 16),
		observers:     map[string]*observerClient{},
		stop:          make(chan struct{}),
	}
	s.Tree.OnTransition = e.onTransition
	s.OnEvolve = e.onEvolve
	s.OnFire = e.onFire
	return e
}

// AddSink registers w for every entry. Call before Start.
func (e *Engine) AddSink(w EntryWriter) {
	if w != nil {
		e.sinks = append(e.sinks, w)
	}
}

// Start applies the scene's activation list; its transitions are journaled
// at tick 0.
func (e *Engine) Start() error {
	err := e.scene.Start()
	e.flushEntries()
	return err
}

func (e *Engine) RunID() string { return e.runID }

func (e *Engine) TickRateHz() int { return e.cfg.TickRateHz }

func (e *Engine) CurrentTick() uint64 { return e.tick.Load() }

// WorldNames lists every world in creation order. Names are fixed once the
// scene is built, so this is safe from any goroutine.
func (e *Engine) WorldNames() []string {
	ids := e.tree.IDs()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.tree.Name(id))
	}
	return out
}

// Step advances one tick by dt seconds. It must not run concurrently with Run.
func (e *Engine) Step(dt float64) {
	tick := e.tick.Load()
	e.drainCommands(tick)
	e.answerSnapshots()

	e.clock.t += dt
	for _, root := range e.roots {
		if err := e.tree.Update(root, dt); err != nil {
			e.logger.Printf("tick %d: update %s: %v", tick, e.tree.Name(root), err)
		}
	}
	if err := e.scene.Dispatch.Flush(); err != nil {
		e.logger.Printf("tick %d: dispatch: %v", tick, err)
	}
	e.flushEntries()
	e.tick.Add(1)
	e.stepObservers(tick)
}

func (e *Engine) record(en Entry) {
	en.RunID = e.runID
	en.Tick = e.tick.Load()
	en.SimTime = e.clock.t
	e.pending = append(e.pending, en)
}

func (e *Engine) flushEntries() {
	if len(e.pending) == 0 {
		return
	}
	for _, en := range e.pending {
		for _, s := range e.sinks {
			if err := s.WriteEntry(en); err != nil {
				e.logger.Printf("journal: %v", err)
			}
		}
	}
	e.pending = e.pending[:0]
}

func (e *Engine) onTransition(tr world.Transition) {
	kind := EntryActivate
	if tr.Kind == world.TransitionInactivate {
		kind = EntryInactivate
	}
	e.record(Entry{
		Kind:     kind,
		World:    tr.Name,
		From:     activeLabel(tr.WasActive),
		To:       activeLabel(tr.NowActive),
		Restored: tr.Restored,
	})
}

func (e *Engine) onEvolve(w world.ID, worm *agent.Worm, from, to agent.State) {
	e.record(Entry{
		Kind:  EntryEvolve,
		World: e.tree.Name(w),
		Agent: uint64(worm.ID),
		From:  string(from),
		To:    string(to),
	})
}

func (e *Engine) onFire(sw string, from, to world.ID) {
	e.record(Entry{
		Kind:   EntrySwitch,
		Switch: sw,
		From:   e.tree.Name(from),
		To:     e.tree.Name(to),
	})
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}
