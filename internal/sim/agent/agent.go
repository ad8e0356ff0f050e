// Package agent holds the simulated entities: the physical record, the
// controllers that drive it, and the two specialised agents (Worm and Spin).
package agent

import (
	"github.com/go-gl/mathgl/mgl64"

	"pyre.dev/internal/sim/avatar"
)

// ID is assigned by the world tree when an entity is registered. Zero means unregistered.
type ID uint64

type Agent struct {
	ID ID

	Position        mgl64.Vec3
	Rotation        mgl64.Vec3
	Velocity        mgl64.Vec3
	AngularVelocity mgl64.Vec3
	// Speed is a body-frame velocity for the current tick only.
	Speed mgl64.Vec3
	Size  mgl64.Vec3

	// T is the agent's local clock. It only advances while the agent is ticked.
	T float64

	avatar avatar.Avatar
	ai     AI
}

// New returns an agent at the origin driven by a BaseAI. av may be nil.
func New(av avatar.Avatar) *Agent {
	a := &Agent{Size: mgl64.Vec3{1, 1, 1}, avatar: av}
	a.ai = NewBaseAI(a)
	return a
}

// Entity is anything a world can hold and tick.
type Entity interface {
	Base() *Agent
	Update(dt float64) error
	Show() error
	Hide() error
}

func (a *Agent) Base() *Agent { return a }

func (a *Agent) Avatar() avatar.Avatar { return a.avatar }

func (a *Agent) SetAvatar(av avatar.Avatar) { a.avatar = av }

func (a *Agent) AI() AI { return a.ai }

// SetAI replaces the controller. Nothing carries over from the old one.
func (a *Agent) SetAI(ai AI) { a.ai = ai }

// Update advances the clock, runs the controller and redraws the avatar.
func (a *Agent) Update(dt float64) error {
	a.T += dt
	if a.ai != nil {
		a.ai.Update(dt)
	}
	return a.Show()
}

// Show pushes the physical state into the avatar and shows it.
func (a *Agent) Show() error {
	if a.avatar == nil {
		return nil
	}
	a.avatar.Place(a.Position, a.Rotation, a.Size)
	return a.avatar.Show()
}

// Hide is a no-op when nothing is shown.
func (a *Agent) Hide() error {
	if a.avatar == nil || !a.avatar.Shown() {
		return nil
	}
	return a.avatar.Hide()
}
