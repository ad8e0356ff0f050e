package switches

import (
	"fmt"

	"pyre.dev/internal/sim/agent"
	"pyre.dev/internal/sim/world"
)

// MoveToLevelTwo swaps its world out for next once every worm that was in the
// world at initialisation has been a seed at least once.
//
// It does not disable itself. The swap inactivates the owning world, which
// takes the switch off the update path; an owner that stays active would see
// the swap repeated every tick.
type MoveToLevelTwo struct {
	Base
	tree *world.Tree
	next world.ID

	worms   []agent.ID
	evolved []bool
	fired   int

	// OnFire runs before the swap.
	OnFire func(from, to world.ID)
}

func NewMoveToLevelTwo(tree *world.Tree, w, next world.ID) *MoveToLevelTwo {
	m := &MoveToLevelTwo{tree: tree, next: next}
	m.Base = Base{
		name:             fmt.Sprintf("move_to_level_two(%s->%s)", tree.Name(w), tree.Name(next)),
		world:            w,
		initOnActivation: true,
		init:             m.track,
	}
	return m
}

func (m *MoveToLevelTwo) track() {
	w, err := m.tree.Get(m.world)
	if err != nil {
		return
	}
	for _, e := range w.Agents() {
		if _, ok := e.(*agent.Worm); ok {
			m.worms = append(m.worms, e.Base().ID)
			m.evolved = append(m.evolved, false)
		}
	}
}

func (m *MoveToLevelTwo) Evaluate() error {
	m.Prime()
	for i, id := range m.worms {
		e, _, ok := m.tree.Agent(id)
		if !ok {
			continue
		}
		if w, ok := e.(*agent.Worm); ok && w.State() == agent.Seed {
			m.evolved[i] = true
		}
	}
	if len(m.evolved) == 0 {
		return nil
	}
	for _, ok := range m.evolved {
		if !ok {
			return nil
		}
	}
	return m.do()
}

func (m *MoveToLevelTwo) do() error {
	m.fired++
	if m.OnFire != nil {
		m.OnFire(m.world, m.next)
	}
	return m.tree.SwapWorld(m.next, m.world, false, false)
}

// Tracked returns the worm handles captured at initialisation.
func (m *MoveToLevelTwo) Tracked() []agent.ID { return append([]agent.ID(nil), m.worms...) }

// Evolved returns the sticky per-worm flags, parallel to Tracked.
func (m *MoveToLevelTwo) Evolved() []bool { return append([]bool(nil), m.evolved...) }

func (m *MoveToLevelTwo) Fired() int { return m.fired }
