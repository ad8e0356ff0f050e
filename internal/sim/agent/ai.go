package agent

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"

	"pyre.dev/internal/sim/geom"
)

// Kind tags the closed set of behaviour controllers.
type Kind uint8

const (
	KindBase Kind = iota
	KindWorm
	KindButterfly
	KindGameOfLife
)

func (k Kind) String() string {
	switch k {
	case KindBase:
		return "base"
	case KindWorm:
		return "worm"
	case KindButterfly:
		return "butterfly"
	case KindGameOfLife:
		return "game_of_life"
	default:
		return "unknown"
	}
}

// AI is the behaviour controller bound to one agent. Update never fails.
type AI interface {
	Kind() Kind
	Update(dt float64)
	// Time is the controller's local clock. It starts at the agent's T when the
	// controller is created.
	Time() float64
}

// BaseAI advances the clock and integrates the bound agent's motion once per tick.
type BaseAI struct {
	agent *Agent
	t     float64
}

func NewBaseAI(a *Agent) *BaseAI {
	return &BaseAI{agent: a, t: a.T}
}

func (b *BaseAI) Kind() Kind { return KindBase }

func (b *BaseAI) Time() float64 { return b.t }

func (b *BaseAI) Update(dt float64) { b.step(dt) }

func (b *BaseAI) step(dt float64) {
	b.t += dt
	integrate(b.agent, dt)
}

// integrate applies one tick of motion. Speed is a body-frame velocity rotated
// by the agent's current rotation; it is consumed and cleared.
func integrate(a *Agent, dt float64) {
	v := a.Velocity.Add(geom.RotateVec(a.Speed, a.Rotation))
	a.Position = a.Position.Add(v.Mul(dt))
	a.Rotation = a.Rotation.Add(a.AngularVelocity.Mul(dt))
	a.Speed = mgl64.Vec3{}
}

// WormAI evolves its worm once Lifetime has passed since the last evolution.
// At most one evolution happens per tick, however large dt is.
type WormAI struct {
	BaseAI
	worm         *Worm
	Lifetime     float64
	lastEvolvedT float64
}

func NewWormAI(w *Worm, lifetime float64) *WormAI {
	return &WormAI{
		BaseAI:       BaseAI{agent: w.Agent, t: w.T},
		worm:         w,
		Lifetime:     lifetime,
		lastEvolvedT: w.T,
	}
}

func (w *WormAI) Kind() Kind { return KindWorm }

func (w *WormAI) Update(dt float64) {
	w.step(dt)
	w.timer()
}

func (w *WormAI) timer() {
	if w.t-w.lastEvolvedT > w.Lifetime {
		w.lastEvolvedT = w.t
		w.worm.evolve()
	}
}

// Steering shapes the butterfly's wandering turn rate.
type Steering struct {
	SineAmp    float64 `yaml:"sine_amp"`
	Period     float64 `yaml:"period"`
	Phase      float64 `yaml:"phase"`
	NoiseTheta float64 `yaml:"noise_theta"`
	KTheta     float64 `yaml:"k_theta"`
}

func DefaultSteering() Steering {
	return Steering{SineAmp: 1, Period: 2, NoiseTheta: 2, KTheta: 1}
}

// Garden bounds: positions wrap into [GardenMin, GardenMin+GardenSpan) on every axis.
const (
	GardenMin  = -4.0
	GardenSpan = 8.0
)

// ButterflyAI steers a flying worm and keeps it inside the wrap-around garden.
type ButterflyAI struct {
	WormAI
	steer Steering
	rng   *rand.Rand
}

func NewButterflyAI(w *Worm, lifetime float64) *ButterflyAI {
	return &ButterflyAI{
		WormAI: *NewWormAI(w, lifetime),
		steer:  w.Steering,
		rng:    w.rng,
	}
}

func (b *ButterflyAI) Kind() Kind { return KindButterfly }

func (b *ButterflyAI) Update(dt float64) {
	a := b.agent
	s := b.steer
	if s.Period != 0 {
		a.AngularVelocity[2] += s.SineAmp * math.Sin(2*math.Pi*b.t/s.Period+s.Phase)
	}
	a.AngularVelocity[2] += s.NoiseTheta * (b.rng.Float64() - 0.5)
	a.AngularVelocity = a.AngularVelocity.Sub(a.AngularVelocity.Mul(dt * s.KTheta))
	a.Speed = b.worm.ButterflySpeed

	b.step(dt)
	for i := 0; i < 3; i++ {
		a.Position[i] = geom.Wrap(a.Position[i], GardenMin, GardenSpan)
	}
	b.timer()
}

// GameOfLifeAI applies B3/S23 to a spin every Period seconds.
type GameOfLifeAI struct {
	BaseAI
	spin      *Spin
	Period    float64
	lastFlipT float64
}

func NewGameOfLifeAI(s *Spin) *GameOfLifeAI {
	return &GameOfLifeAI{
		BaseAI:    BaseAI{agent: s.Agent, t: s.T},
		spin:      s,
		Period:    1,
		lastFlipT: s.T,
	}
}

func (g *GameOfLifeAI) Kind() Kind { return KindGameOfLife }

func (g *GameOfLifeAI) Update(dt float64) {
	g.step(dt)
	if g.t-g.lastFlipT > g.Period {
		g.lastFlipT = g.t
		g.spin.advance(Life(g.spin.Spin(), g.spin.NeighborSum()))
	}
}

// Life is the B3/S23 rule: a live cell survives with 2 or 3 live neighbours, a
// dead one is born with exactly 3.
func Life(alive bool, neighbors int) bool {
	if alive {
		return neighbors == 2 || neighbors == 3
	}
	return neighbors == 3
}
