// Package scene turns a scene config into a ready world tree: resources,
// worlds, levels, populations and switches.
package scene

import (
	"fmt"
	"io"
	"log"
	"math/rand"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl64"

	"pyre.dev/internal/sim/agent"
	"pyre.dev/internal/sim/avatar"
	"pyre.dev/internal/sim/geom"
	"pyre.dev/internal/sim/level"
	"pyre.dev/internal/sim/switches"
	"pyre.dev/internal/sim/world"
)

// Scene owns everything Build created.
type Scene struct {
	Tree      *world.Tree
	Resources *avatar.Resources
	Dispatch  *switches.Dispatch

	Worms    []*agent.Worm
	Spins    []*agent.Spin
	Levels   []*level.Level
	Switches []world.Switch

	activate []ActivationSpec

	// OnEvolve, if set, sees every worm evolution with the worm's world.
	OnEvolve func(w world.ID, worm *agent.Worm, from, to agent.State)
	// OnFire, if set, sees every switch firing just before its swap.
	OnFire func(sw string, from, to world.ID)
}

// EvolveTopic is the dispatch topic notified when a worm enters s.
func EvolveTopic(s agent.State) string { return "worm." + string(s) }

// Build validates cfg and constructs the scene. Nothing is shown until Start.
func Build(cfg Config, r avatar.Renderer, clock switches.Clock, logger *log.Logger) (*Scene, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Scene{
		Tree:      world.NewTree(logger),
		Resources: avatar.NewResources(),
		Dispatch:  switches.NewDispatch(),
		activate:  cfg.Activate,
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	for _, v := range cfg.Visuals {
		s.Resources.Set(v.Key, avatar.Visual{
			Texture:   avatar.TextureRef(v.Texture),
			TexCoords: geom.TexCoord(v.Cell[0], v.Cell[1], v.Grid[0], v.Grid[1], v.FlipY),
		})
	}

	for _, w := range cfg.Worlds {
		var err error
		if w.Parent == "" {
			_, err = s.Tree.NewRoot(w.Name)
		} else {
			parent, _ := s.Tree.Lookup(w.Parent)
			_, err = s.Tree.NewChild(parent, w.Name)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}
	id := func(name string) world.ID {
		v, _ := s.Tree.Lookup(name)
		return v
	}

	for _, ls := range cfg.Levels {
		path := ls.Path
		if !filepath.IsAbs(path) && cfg.dir != "" {
			path = filepath.Join(cfg.dir, path)
		}
		m, err := level.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: level %s: %v", ErrConfig, ls.Name, err)
		}
		textures := map[string]avatar.TextureRef{}
		for img, ref := range ls.Textures {
			textures[img] = avatar.TextureRef(ref)
		}
		l, err := level.New(r, s.Resources, ls.Name, m, level.Options{
			Scale:    ls.Scale,
			Position: mgl64.Vec3(ls.Position),
			Center:   ls.Center,
			Textures: textures,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: level %s: %v", ErrConfig, ls.Name, err)
		}
		if _, err := s.Tree.AddAgent(id(ls.World), l); err != nil {
			return nil, fmt.Errorf("%w: level %s: %v", ErrConfig, ls.Name, err)
		}
		s.Levels = append(s.Levels, l)
	}

	for _, ws := range cfg.Worms {
		home := id(ws.World)
		for i := 0; i < ws.Count; i++ {
			worm, err := s.newWorm(r, ws, rng)
			if err != nil {
				return nil, fmt.Errorf("%w: worms in %s: %v", ErrConfig, ws.World, err)
			}
			if _, err := s.Tree.AddAgent(home, worm); err != nil {
				return nil, fmt.Errorf("%w: worms in %s: %v", ErrConfig, ws.World, err)
			}
			worm.OnEvolve = func(w *agent.Worm, from, to agent.State) {
				s.Dispatch.Notify(EvolveTopic(to))
				if s.OnEvolve != nil {
					s.OnEvolve(home, w, from, to)
				}
			}
			s.Worms = append(s.Worms, worm)
		}
	}

	for _, ss := range cfg.Spins {
		if err := s.addSpins(r, ss, rng); err != nil {
			return nil, err
		}
	}

	for _, sw := range cfg.Switches {
		if err := s.addSwitch(sw, clock); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scene) newWorm(r avatar.Renderer, ws WormSpec, rng *rand.Rand) (*agent.Worm, error) {
	guises := make(map[agent.State]avatar.Avatar, len(agent.Lifecycle))
	lifetimes := make(map[agent.State]float64, len(agent.Lifecycle))
	for _, st := range agent.Lifecycle {
		guises[st] = avatar.NewSprite(r, s.Resources, ws.Guises[string(st)])
		lifetimes[st] = ws.Lifetimes[string(st)]
	}
	w, err := agent.NewWorm(agent.WormConfig{
		Initial:        agent.State(ws.Initial),
		Lifetimes:      lifetimes,
		LifetimeNoise:  ws.LifetimeNoise,
		Guises:         guises,
		ButterflySpeed: mgl64.Vec3(ws.ButterflySpeed),
		Steering:       *ws.Steering,
		Rand:           rand.New(rand.NewSource(rng.Int63())),
	})
	if err != nil {
		return nil, err
	}
	sz := ws.SizeMin + rng.Float64()*(ws.SizeMax-ws.SizeMin)
	w.Size = mgl64.Vec3{sz, sz, sz}
	w.Position = mgl64.Vec3{
		rng.Float64()*ws.Spacing - ws.Spacing/2,
		rng.Float64()*ws.Spacing - ws.Spacing/2,
		ws.Z,
	}
	return w, nil
}

func (s *Scene) addSpins(r avatar.Renderer, ss SpinSpec, rng *rand.Rand) error {
	home, _ := s.Tree.Lookup(ss.World)
	states := map[string][]string{agent.SpinUp: {ss.UpVisual}, agent.SpinDown: {ss.DownVisual}}
	grid := make([]*agent.Spin, ss.Rows*ss.Cols)
	for row := 0; row < ss.Rows; row++ {
		for col := 0; col < ss.Cols; col++ {
			mesh := avatar.NewMesh(r, s.Resources, avatar.Cube, states, agent.SpinDown)
			sp := agent.NewSpin(mesh, rng.Float64() < ss.Density)
			if g, ok := sp.AI().(*agent.GameOfLifeAI); ok {
				g.Period = ss.Period
			}
			sp.Position = mgl64.Vec3{
				(float64(col) - float64(ss.Cols-1)/2) * ss.Spacing,
				(float64(row) - float64(ss.Rows-1)/2) * ss.Spacing,
				0,
			}
			if _, err := s.Tree.AddAgent(home, sp); err != nil {
				return fmt.Errorf("%w: spins in %s: %v", ErrConfig, ss.World, err)
			}
			grid[row*ss.Cols+col] = sp
		}
	}
	for row := 0; row < ss.Rows; row++ {
		for col := 0; col < ss.Cols; col++ {
			sp := grid[row*ss.Cols+col]
			seen := map[*agent.Spin]bool{sp: true}
			for dr := -1; dr <= 1; dr++ {
				for dc := -1; dc <= 1; dc++ {
					n := grid[((row+dr+ss.Rows)%ss.Rows)*ss.Cols+(col+dc+ss.Cols)%ss.Cols]
					if !seen[n] {
						seen[n] = true
						sp.Link(n)
					}
				}
			}
		}
	}
	s.Spins = append(s.Spins, grid...)
	return nil
}

func (s *Scene) addSwitch(ss SwitchSpec, clock switches.Clock) error {
	from, _ := s.Tree.Lookup(ss.World)
	to, _ := s.Tree.Lookup(ss.Next)
	var sw world.Switch
	switch ss.Kind {
	case SwitchMoveToLevelTwo:
		m := switches.NewMoveToLevelTwo(s.Tree, from, to)
		name := m.Name()
		m.OnFire = func(from, to world.ID) {
			if s.OnFire != nil {
				s.OnFire(name, from, to)
			}
		}
		sw = m
	case SwitchSwapAfter, SwitchSwapWhenAll:
		var cond switches.Condition
		if ss.Kind == SwitchSwapAfter {
			if clock == nil {
				return fmt.Errorf("%w: %s needs a clock", ErrConfig, ss.Kind)
			}
			cond = switches.Elapsed(clock, ss.After)
		} else if ss.Sticky {
			cond = switches.EveryWormHasBeen(from, agent.State(ss.State))
		} else {
			cond = switches.AllWormsIn(from, agent.State(ss.State))
		}
		name := fmt.Sprintf("%s(%s->%s)", ss.Kind, ss.World, ss.Next)
		swap := switches.Swap(to, from, ss.Children, ss.Restore)
		action := func(t *world.Tree) error {
			if s.OnFire != nil {
				s.OnFire(name, from, to)
			}
			return swap(t)
		}
		rule := switches.NewRule(name, s.Tree, from, cond, action,
			switches.Once(), switches.InitializeOnActivation())
		if ss.On != "" {
			s.Dispatch.WatchRule(ss.On, rule)
		}
		sw = rule
	}
	if err := s.Tree.AddSwitch(from, sw); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	s.Switches = append(s.Switches, sw)
	return nil
}

// Start applies the activation list in order.
func (s *Scene) Start() error {
	for _, a := range s.activate {
		id, ok := s.Tree.Lookup(a.World)
		if !ok {
			return fmt.Errorf("%w: activate unknown world %q", ErrConfig, a.World)
		}
		if err := s.Tree.Activate(id, a.Children); err != nil {
			return fmt.Errorf("activate %s: %w", a.World, err)
		}
	}
	return nil
}

// Roots returns the worlds without a parent, in creation order.
func (s *Scene) Roots() []world.ID {
	var out []world.ID
	for _, id := range s.Tree.IDs() {
		if w, err := s.Tree.Get(id); err == nil && w.Parent() == 0 {
			out = append(out, id)
		}
	}
	return out
}
