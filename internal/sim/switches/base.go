// Package switches holds the rules that watch agents and rearrange the world
// tree: the garden's MoveToLevelTwo, generic condition/action rules and the
// topic dispatcher that lets rules react to notifications.
package switches

import "pyre.dev/internal/sim/world"

// Base carries what every switch shares: its world and a one-shot
// initialisation that runs either lazily on first Evaluate or eagerly when
// the world activates.
type Base struct {
	name             string
	world            world.ID
	initOnActivation bool
	initialized      bool
	init             func()
}

func (b *Base) Name() string { return b.name }

func (b *Base) World() world.ID { return b.world }

func (b *Base) InitializeOnActivation() bool { return b.initOnActivation }

func (b *Base) Initialized() bool { return b.initialized }

// Prime runs the initialisation if it has not run yet.
func (b *Base) Prime() {
	if b.initialized {
		return
	}
	b.initialized = true
	if b.init != nil {
		b.init()
	}
}
