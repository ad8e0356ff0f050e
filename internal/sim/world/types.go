package world

import (
	"errors"

	"pyre.dev/internal/sim/agent"
)

// ID is a handle into a Tree's arena. The zero ID names no world.
type ID int

var (
	ErrUnknownWorld    = errors.New("world: unknown world")
	ErrUnknownAgent    = errors.New("world: unknown agent")
	ErrAgentRegistered = errors.New("world: agent already registered")
	ErrForeignSwitch   = errors.New("world: switch bound to another world")
	ErrDuplicateName   = errors.New("world: duplicate world name")
)

// Switch is a reactive rule owned by exactly one world. It is evaluated after
// the world's agents every tick the world is active.
type Switch interface {
	Name() string
	World() ID
	// Evaluate runs the one-shot initialisation on first call, then the rule.
	Evaluate() error
	// Prime runs the one-shot initialisation if it has not run yet.
	Prime()
	InitializeOnActivation() bool
	Initialized() bool
}

// World is one node of the activation tree. Worlds are only reachable
// through their Tree.
type World struct {
	id       ID
	name     string
	parent   ID
	children []ID

	agents   []agent.Entity
	switches []Switch

	active     bool
	lastActive bool
}

func (w *World) ID() ID { return w.id }

func (w *World) Name() string { return w.name }

func (w *World) Parent() ID { return w.parent }

func (w *World) Active() bool { return w.active }

func (w *World) LastActive() bool { return w.lastActive }

func (w *World) Children() []ID {
	return append([]ID(nil), w.children...)
}

func (w *World) Agents() []agent.Entity {
	return append([]agent.Entity(nil), w.agents...)
}

func (w *World) Switches() []Switch {
	return append([]Switch(nil), w.switches...)
}

// TransitionKind names a change to a world's active flag.
type TransitionKind string

const (
	TransitionActivate   TransitionKind = "activate"
	TransitionInactivate TransitionKind = "inactivate"
)

type Transition struct {
	World     ID
	Name      string
	Kind      TransitionKind
	WasActive bool
	NowActive bool
	Restored  bool
}
