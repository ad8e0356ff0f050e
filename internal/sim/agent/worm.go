package agent

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"

	"pyre.dev/internal/sim/avatar"
)

// State is a worm's place in its lifecycle.
type State string

const (
	Butterfly State = "butterfly"
	Seed      State = "seed"
	Plant     State = "plant"
	Slug      State = "slug"
)

// Lifecycle is the fixed cycle; slug wraps to butterfly.
var Lifecycle = [4]State{Butterfly, Seed, Plant, Slug}

func (s State) Valid() bool {
	return s.index() >= 0
}

func (s State) index() int {
	for i, c := range Lifecycle {
		if c == s {
			return i
		}
	}
	return -1
}

// Next returns the state after s in the cycle.
func (s State) Next() State {
	return Lifecycle[(s.index()+1)%len(Lifecycle)]
}

type WormConfig struct {
	Initial        State
	Lifetimes      map[State]float64
	LifetimeNoise  float64
	Guises         map[State]avatar.Avatar
	ButterflySpeed mgl64.Vec3
	Steering       Steering
	// Rand drives butterfly lifetime jitter and steering noise. Nil uses a fixed seed.
	Rand *rand.Rand
}

// Worm is an agent that cycles butterfly, seed, plant, slug forever. Each
// state has its own pre-built guise; exactly one of them is the agent's avatar.
type Worm struct {
	*Agent

	state          State
	lifetimes      map[State]float64
	lifetimeNoise  float64
	guises         map[State]avatar.Avatar
	ButterflySpeed mgl64.Vec3
	Steering       Steering
	rng            *rand.Rand

	evolutions int
	// evolveErr is a failed guise release, reported by the next Update.
	evolveErr error
	// OnEvolve runs after every state change with the old and new state.
	OnEvolve func(w *Worm, from, to State)
}

func NewWorm(cfg WormConfig) (*Worm, error) {
	initial := cfg.Initial
	if initial == "" {
		initial = Slug
	}
	if !initial.Valid() {
		return nil, fmt.Errorf("%w: initial %q", ErrUnknownState, initial)
	}
	for _, s := range Lifecycle {
		if cfg.Guises[s] == nil {
			return nil, fmt.Errorf("%w: no guise for %q", ErrUnknownState, s)
		}
		if _, ok := cfg.Lifetimes[s]; !ok {
			return nil, fmt.Errorf("%w: no lifetime for %q", ErrUnknownState, s)
		}
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	w := &Worm{
		Agent:          New(cfg.Guises[initial]),
		state:          initial,
		lifetimes:      cfg.Lifetimes,
		lifetimeNoise:  cfg.LifetimeNoise,
		guises:         cfg.Guises,
		ButterflySpeed: cfg.ButterflySpeed,
		Steering:       cfg.Steering,
		rng:            rng,
	}
	w.SetAI(w.controllerFor(initial))
	return w, nil
}

func (w *Worm) State() State { return w.state }

func (w *Worm) Evolutions() int { return w.evolutions }

// Guise returns the pre-built avatar for state s.
func (w *Worm) Guise(s State) avatar.Avatar { return w.guises[s] }

func (w *Worm) Lifetime(s State) float64 { return w.lifetimes[s] }

// evolve moves to the next state. The outgoing guise is hidden before the
// new one becomes the avatar; the next Show draws it.
func (w *Worm) evolve() {
	from := w.state
	next := from.Next()
	if cur := w.Avatar(); cur != nil && cur.Shown() {
		if err := cur.Hide(); err != nil {
			w.evolveErr = errors.Join(w.evolveErr, fmt.Errorf("evolve %s -> %s: hide %s guise: %w", from, next, from, err))
		}
	}
	w.SetAvatar(w.guises[next])
	w.state = next
	if next != Butterfly {
		w.Rotation = mgl64.Vec3{}
		w.Velocity = mgl64.Vec3{}
		w.AngularVelocity = mgl64.Vec3{}
	}
	w.SetAI(w.controllerFor(next))
	w.evolutions++
	if w.OnEvolve != nil {
		w.OnEvolve(w, from, next)
	}
}

// Update ticks the worm like any agent and also reports a guise that failed
// to release when the worm evolved during this tick.
func (w *Worm) Update(dt float64) error {
	err := w.Agent.Update(dt)
	if w.evolveErr != nil {
		err = errors.Join(w.evolveErr, err)
		w.evolveErr = nil
	}
	return err
}

func (w *Worm) controllerFor(s State) AI {
	if s == Butterfly {
		jitter := 0.0
		if w.lifetimeNoise > 0 {
			jitter = w.rng.Float64() * w.lifetimeNoise
		}
		return NewButterflyAI(w, w.lifetimes[Butterfly]+jitter)
	}
	return NewWormAI(w, w.lifetimes[s])
}
