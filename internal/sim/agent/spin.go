package agent

import "pyre.dev/internal/sim/avatar"

// Avatar states a spin uses.
const (
	SpinUp   = "up"
	SpinDown = "down"
)

// Spin is a boolean cell linked to its neighbours. A GameOfLifeAI decides its
// next value.
//
// Cells advance one at a time while their world ticks, so each keeps the value
// it had before its last advance. NeighborSum reads that value from neighbours
// that are already a generation ahead, which makes a lattice step synchronous.
type Spin struct {
	*Agent
	spin      bool
	prev      bool
	gen       uint64
	neighbors []*Spin
}

func NewSpin(av avatar.Avatar, spin bool) *Spin {
	s := &Spin{Agent: New(av)}
	s.SetSpin(spin)
	s.SetAI(NewGameOfLifeAI(s))
	return s
}

func (s *Spin) Spin() bool { return s.spin }

func (s *Spin) SetSpin(v bool) {
	s.spin = v
	if av := s.Avatar(); av != nil {
		if v {
			av.SetState(SpinUp)
		} else {
			av.SetState(SpinDown)
		}
	}
}

// Generation counts the GameOfLifeAI steps applied to s.
func (s *Spin) Generation() uint64 { return s.gen }

func (s *Spin) advance(v bool) {
	s.prev = s.spin
	s.gen++
	s.SetSpin(v)
}

// valueAt is the spin's value as of generation gen.
func (s *Spin) valueAt(gen uint64) bool {
	if s.gen > gen {
		return s.prev
	}
	return s.spin
}

func (s *Spin) Link(n *Spin) { s.neighbors = append(s.neighbors, n) }

// Unlink forgets n. It reports whether n was a neighbour.
func (s *Spin) Unlink(n *Spin) bool {
	for i, c := range s.neighbors {
		if c == n {
			s.neighbors = append(s.neighbors[:i], s.neighbors[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Spin) Neighbors() []*Spin { return s.neighbors }

// NeighborSum counts live neighbours in s's current generation.
func (s *Spin) NeighborSum() int {
	n := 0
	for _, c := range s.neighbors {
		if c.valueAt(s.gen) {
			n++
		}
	}
	return n
}
