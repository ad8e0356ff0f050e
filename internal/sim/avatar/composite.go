package avatar

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"

	"pyre.dev/internal/sim/geom"
)

// Composite groups child avatars under one coordinate. Children are placed by
// their own coordinate first and then by every enclosing composite.
type Composite struct {
	children []Avatar
	coord    geom.Coordinate
	parent   *Composite
	state    string
}

func NewComposite() *Composite {
	c := geom.NewCoordinate()
	c.CenterFlag = false
	return &Composite{coord: c}
}

// Add takes ownership of child. Draw order follows insertion order.
func (c *Composite) Add(child Avatar) {
	child.attach(c)
	c.children = append(c.children, child)
}

func (c *Composite) Children() []Avatar { return c.children }

func (c *Composite) Show() error {
	var errs []error
	for _, ch := range c.children {
		if err := ch.Show(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Composite) Hide() error {
	var errs []error
	for _, ch := range c.children {
		if err := ch.Hide(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shown reports whether any child holds a render resource.
func (c *Composite) Shown() bool {
	for _, ch := range c.children {
		if ch.Shown() {
			return true
		}
	}
	return false
}

func (c *Composite) State() string { return c.state }

// SetState forwards to every child.
func (c *Composite) SetState(state string) {
	c.state = state
	for _, ch := range c.children {
		ch.SetState(state)
	}
}

func (c *Composite) Place(position, rotation, size mgl64.Vec3) {
	c.coord.Position = position
	c.coord.Rotation = rotation
	c.coord.Size = size
}

func (c *Composite) Coordinate() *geom.Coordinate { return &c.coord }

func (c *Composite) attach(parent *Composite) { c.parent = parent }
