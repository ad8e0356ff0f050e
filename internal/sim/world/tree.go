// Package world is the activation tree: worlds hold agents and switches, and
// only active worlds tick.
package world

import (
	"errors"
	"fmt"
	"io"
	"log"

	"pyre.dev/internal/sim/agent"
)

// Tree is the arena that owns every World. Parents and switches refer to
// worlds by ID, never by pointer.
type Tree struct {
	worlds []*World
	byName map[string]ID

	nextAgent agent.ID
	agents    map[agent.ID]ID

	logger *log.Logger

	// OnTransition, if set, sees every activate and inactivate in the order they happen.
	OnTransition func(Transition)
}

func NewTree(logger *log.Logger) *Tree {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Tree{
		byName: map[string]ID{},
		agents: map[agent.ID]ID{},
		logger: logger,
	}
}

func (t *Tree) get(id ID) (*World, error) {
	if id <= 0 || int(id) > len(t.worlds) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownWorld, id)
	}
	return t.worlds[id-1], nil
}

// Get returns the world for id.
func (t *Tree) Get(id ID) (*World, error) { return t.get(id) }

func (t *Tree) add(name string, parent ID) (ID, error) {
	if name != "" {
		if _, dup := t.byName[name]; dup {
			return 0, fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
	}
	w := &World{id: ID(len(t.worlds) + 1), name: name, parent: parent}
	t.worlds = append(t.worlds, w)
	if name != "" {
		t.byName[name] = w.id
	}
	return w.id, nil
}

// NewRoot adds a world with no parent. A tree may hold several roots.
func (t *Tree) NewRoot(name string) (ID, error) {
	return t.add(name, 0)
}

// NewChild adds a world under parent. Children keep insertion order.
func (t *Tree) NewChild(parent ID, name string) (ID, error) {
	p, err := t.get(parent)
	if err != nil {
		return 0, err
	}
	id, err := t.add(name, parent)
	if err != nil {
		return 0, err
	}
	p.children = append(p.children, id)
	return id, nil
}

func (t *Tree) Lookup(name string) (ID, bool) {
	id, ok := t.byName[name]
	return id, ok
}

// Name returns the world's name, or "" for an unknown id.
func (t *Tree) Name(id ID) string {
	w, err := t.get(id)
	if err != nil {
		return ""
	}
	return w.name
}

func (t *Tree) Len() int { return len(t.worlds) }

// IDs returns every world in creation order.
func (t *Tree) IDs() []ID {
	out := make([]ID, len(t.worlds))
	for i := range t.worlds {
		out[i] = ID(i + 1)
	}
	return out
}

func (t *Tree) Active(id ID) bool {
	w, err := t.get(id)
	return err == nil && w.active
}

// AddAgent registers e in world id and assigns its agent ID. An entity lives
// in exactly one world.
func (t *Tree) AddAgent(id ID, e agent.Entity) (agent.ID, error) {
	w, err := t.get(id)
	if err != nil {
		return 0, err
	}
	base := e.Base()
	if base.ID != 0 {
		if home, ok := t.agents[base.ID]; ok {
			return 0, fmt.Errorf("%w: agent %d in world %q", ErrAgentRegistered, base.ID, t.Name(home))
		}
	}
	t.nextAgent++
	base.ID = t.nextAgent
	t.agents[base.ID] = id
	w.agents = append(w.agents, e)
	return base.ID, nil
}

// RemoveAgent detaches an agent from its world and hides it.
func (t *Tree) RemoveAgent(aid agent.ID) error {
	id, ok := t.agents[aid]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownAgent, aid)
	}
	w, err := t.get(id)
	if err != nil {
		return err
	}
	for i, e := range w.agents {
		if e.Base().ID != aid {
			continue
		}
		w.agents = append(w.agents[:i], w.agents[i+1:]...)
		delete(t.agents, aid)
		e.Base().ID = 0
		return e.Hide()
	}
	return fmt.Errorf("%w: %d", ErrUnknownAgent, aid)
}

// Agent resolves an agent handle. ok is false once the agent has been removed.
func (t *Tree) Agent(aid agent.ID) (e agent.Entity, home ID, ok bool) {
	home, ok = t.agents[aid]
	if !ok {
		return nil, 0, false
	}
	w, err := t.get(home)
	if err != nil {
		return nil, 0, false
	}
	for _, e := range w.agents {
		if e.Base().ID == aid {
			return e, home, true
		}
	}
	return nil, 0, false
}

// AddSwitch registers s with the world it is bound to.
func (t *Tree) AddSwitch(id ID, s Switch) error {
	w, err := t.get(id)
	if err != nil {
		return err
	}
	if s.World() != id {
		return fmt.Errorf("%w: %s is bound to %q, not %q", ErrForeignSwitch, s.Name(), t.Name(s.World()), w.name)
	}
	w.switches = append(w.switches, s)
	return nil
}

// RemoveSwitch reports whether s was registered with world id.
func (t *Tree) RemoveSwitch(id ID, s Switch) (bool, error) {
	w, err := t.get(id)
	if err != nil {
		return false, err
	}
	for i, c := range w.switches {
		if c == s {
			w.switches = append(w.switches[:i], w.switches[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// Activate marks the world active, shows its agents and primes switches that
// initialise on activation. Agent errors are joined; the walk does not stop.
func (t *Tree) Activate(id ID, children bool) error {
	return t.activate(id, children, false)
}

func (t *Tree) activate(id ID, children, restored bool) error {
	w, err := t.get(id)
	if err != nil {
		return err
	}
	w.lastActive = w.active
	w.active = true
	t.emit(w, TransitionActivate, restored)

	var errs []error
	for _, e := range w.agents {
		if err := e.Show(); err != nil {
			errs = append(errs, fmt.Errorf("show agent %d in %q: %w", e.Base().ID, w.name, err))
		}
	}
	for _, s := range w.switches {
		if s.InitializeOnActivation() {
			s.Prime()
		}
	}
	if children {
		for _, c := range append([]ID(nil), w.children...) {
			if err := t.activate(c, true, restored); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Inactivate marks the world inactive and hides its agents.
func (t *Tree) Inactivate(id ID, children bool) error {
	return t.inactivate(id, children, false)
}

func (t *Tree) inactivate(id ID, children, restored bool) error {
	w, err := t.get(id)
	if err != nil {
		return err
	}
	w.lastActive = w.active
	w.active = false
	t.emit(w, TransitionInactivate, restored)

	var errs []error
	for _, e := range w.agents {
		if err := e.Hide(); err != nil {
			errs = append(errs, fmt.Errorf("hide agent %d in %q: %w", e.Base().ID, w.name, err))
		}
	}
	if children {
		for _, c := range append([]ID(nil), w.children...) {
			if err := t.inactivate(c, true, restored); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Restore re-applies the world's previous active flag. Children, when
// requested, are activated or inactivated along with it.
func (t *Tree) Restore(id ID, children bool) error {
	w, err := t.get(id)
	if err != nil {
		return err
	}
	if w.lastActive {
		return t.activate(id, children, true)
	}
	return t.inactivate(id, children, true)
}

// SwapWorld inactivates from (always with its children) and then activates
// or restores to. There is no rollback: if the second step fails, from stays
// inactive.
func (t *Tree) SwapWorld(to, from ID, swapChildren, restore bool) error {
	if _, err := t.get(to); err != nil {
		return err
	}
	if err := t.Inactivate(from, true); err != nil {
		return fmt.Errorf("swap %q -> %q: %w", t.Name(from), t.Name(to), err)
	}
	var err error
	if restore {
		err = t.Restore(to, swapChildren)
	} else {
		err = t.Activate(to, swapChildren)
	}
	if err != nil {
		return fmt.Errorf("swap %q -> %q: %w", t.Name(from), t.Name(to), err)
	}
	return nil
}

// Update ticks an active world: agents first, then switches, then every
// active child. An inactive world does nothing. Agent and switch errors are
// logged and the tick carries on.
func (t *Tree) Update(id ID, dt float64) error {
	w, err := t.get(id)
	if err != nil {
		return err
	}
	t.update(w, dt)
	return nil
}

func (t *Tree) update(w *World, dt float64) {
	if !w.active {
		return
	}
	for _, e := range append([]agent.Entity(nil), w.agents...) {
		if err := e.Update(dt); err != nil {
			t.logger.Printf("world %q: agent %d: %v", w.name, e.Base().ID, err)
		}
	}
	for _, s := range append([]Switch(nil), w.switches...) {
		if err := s.Evaluate(); err != nil {
			t.logger.Printf("world %q: switch %s: %v", w.name, s.Name(), err)
		}
	}
	for _, c := range append([]ID(nil), w.children...) {
		child := t.worlds[c-1]
		if child.active {
			t.update(child, dt)
		}
	}
}

func (t *Tree) emit(w *World, kind TransitionKind, restored bool) {
	if t.OnTransition == nil {
		return
	}
	t.OnTransition(Transition{
		World:     w.id,
		Name:      w.name,
		Kind:      kind,
		WasActive: w.lastActive,
		NowActive: w.active,
		Restored:  restored,
	})
}
