package avatar

import (
	"github.com/go-gl/mathgl/mgl64"

	"pyre.dev/internal/sim/geom"
)

// Avatar is the renderable side of an agent or level element.
//
// Show is idempotent: the first call allocates a primitive, later calls update it.
// Hide releases it and fails with ErrNotShown when nothing is held.
type Avatar interface {
	Show() error
	Hide() error
	Shown() bool

	State() string
	SetState(state string)

	// Place copies an agent's physical state into the avatar's coordinate.
	Place(position, rotation, size mgl64.Vec3)
	Coordinate() *geom.Coordinate

	attach(parent *Composite)
}

func parentChain(own *geom.Coordinate, p *Composite) []geom.Coordinate {
	chain := []geom.Coordinate{*own}
	for ; p != nil; p = p.parent {
		chain = append(chain, p.coord)
	}
	return chain
}
