package scene

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"pyre.dev/internal/sim/agent"
)

// ErrConfig marks every scene error found before the loop starts.
var ErrConfig = errors.New("scene: invalid config")

type Config struct {
	Seed     int64            `yaml:"seed"`
	Visuals  []VisualSpec     `yaml:"visuals"`
	Worlds   []WorldSpec      `yaml:"worlds"`
	Levels   []LevelSpec      `yaml:"levels,omitempty"`
	Worms    []WormSpec       `yaml:"worms,omitempty"`
	Spins    []SpinSpec       `yaml:"spins,omitempty"`
	Switches []SwitchSpec     `yaml:"switches,omitempty"`
	Activate []ActivationSpec `yaml:"activate"`

	// dir resolves relative level paths; set by Load.
	dir string
}

// VisualSpec names one cell of a texture atlas.
type VisualSpec struct {
	Key     string `yaml:"key"`
	Texture string `yaml:"texture"`
	Cell    [2]int `yaml:"cell"`
	Grid    [2]int `yaml:"grid"`
	FlipY   bool   `yaml:"flip_y"`
}

type WorldSpec struct {
	Name   string `yaml:"name"`
	Parent string `yaml:"parent,omitempty"`
}

type LevelSpec struct {
	Name     string            `yaml:"name"`
	World    string            `yaml:"world"`
	Path     string            `yaml:"path"`
	Scale    float64           `yaml:"scale"`
	Center   bool              `yaml:"center"`
	Position [3]float64        `yaml:"position"`
	Textures map[string]string `yaml:"textures,omitempty"`
}

type WormSpec struct {
	World         string             `yaml:"world"`
	Count         int                `yaml:"count"`
	Initial       string             `yaml:"initial"`
	Spacing       float64            `yaml:"spacing"`
	Z             float64            `yaml:"z"`
	SizeMin       float64            `yaml:"size_min"`
	SizeMax       float64            `yaml:"size_max"`
	Lifetimes     map[string]float64 `yaml:"lifetimes"`
	LifetimeNoise float64            `yaml:"lifetime_noise"`
	// Guises maps each state to a visual key.
	Guises         map[string]string `yaml:"guises"`
	ButterflySpeed [3]float64        `yaml:"butterfly_speed"`
	Steering       *agent.Steering   `yaml:"steering,omitempty"`
}

// SpinSpec lays out a rows×cols torus of spins, each linked to its eight neighbours.
type SpinSpec struct {
	World      string  `yaml:"world"`
	Rows       int     `yaml:"rows"`
	Cols       int     `yaml:"cols"`
	Spacing    float64 `yaml:"spacing"`
	Density    float64 `yaml:"density"`
	Period     float64 `yaml:"period"`
	UpVisual   string  `yaml:"up_visual"`
	DownVisual string  `yaml:"down_visual"`
}

const (
	SwitchMoveToLevelTwo = "move_to_level_two"
	SwitchSwapAfter      = "swap_after"
	SwitchSwapWhenAll    = "swap_when_all"
)

type SwitchSpec struct {
	Kind  string `yaml:"kind"`
	World string `yaml:"world"`
	Next  string `yaml:"next"`

	// swap_after
	After float64 `yaml:"after,omitempty"`
	// swap_when_all
	State string `yaml:"state,omitempty"`
	// Sticky counts a worm once it has been in State since the rule was
	// built, instead of requiring every worm to be in State at once.
	Sticky bool `yaml:"sticky,omitempty"`

	Children bool `yaml:"children,omitempty"`
	Restore  bool `yaml:"restore,omitempty"`
	// On re-evaluates the rule whenever this dispatch topic is flushed.
	On string `yaml:"on,omitempty"`
}

type ActivationSpec struct {
	World    string `yaml:"world"`
	Children bool   `yaml:"children"`
}

// Load reads a scene file. An empty path returns the built-in garden scene.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		cfg := Defaults()
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: scene.yaml: %v", ErrConfig, err)
	}
	cfg.dir = filepath.Dir(path)
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("scene.yaml: %w", err)
	}
	return cfg, nil
}

// Defaults is the garden of worms. garden2 hands over to garden1 once every
// worm in it has been a seed, and garden1 hands back the same way. The first
// handover is a one-shot rule, so the scene settles in garden2 after the
// return trip.
func Defaults() Config {
	lifetimes := map[string]float64{"butterfly": 2, "seed": 1.5, "plant": 1, "slug": 1}
	guises := map[string]string{"butterfly": "butterfly", "seed": "seed", "plant": "plant", "slug": "slug"}
	worms := func(world string) WormSpec {
		return WormSpec{
			World:          world,
			Count:          2,
			Initial:        "slug",
			Spacing:        7.07,
			Z:              0.5,
			SizeMin:        0.66,
			SizeMax:        1,
			Lifetimes:      lifetimes,
			LifetimeNoise:  3,
			Guises:         guises,
			ButterflySpeed: [3]float64{0, 2, 0},
		}
	}
	return Config{
		Seed: 1,
		Visuals: []VisualSpec{
			{Key: "slug", Texture: "garden.png", Cell: [2]int{0, 1}, Grid: [2]int{4, 4}},
			{Key: "plant", Texture: "garden.png", Cell: [2]int{0, 0}, Grid: [2]int{4, 4}},
			{Key: "butterfly", Texture: "garden.png", Cell: [2]int{1, 0}, Grid: [2]int{4, 4}},
			{Key: "seed", Texture: "garden.png", Cell: [2]int{1, 1}, Grid: [2]int{4, 4}},
		},
		Worlds: []WorldSpec{
			{Name: "top"},
			{Name: "splash screen", Parent: "top"},
			{Name: "garden", Parent: "top"},
			{Name: "garden1", Parent: "garden"},
			{Name: "garden2", Parent: "garden"},
		},
		Worms: []WormSpec{worms("garden1"), worms("garden2")},
		Switches: []SwitchSpec{
			{Kind: SwitchSwapWhenAll, World: "garden2", Next: "garden1", State: string(agent.Seed), Sticky: true},
			{Kind: SwitchMoveToLevelTwo, World: "garden1", Next: "garden2"},
		},
		Activate: []ActivationSpec{
			{World: "top"},
			{World: "garden"},
			{World: "garden2", Children: true},
		},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	for i := range c.Visuals {
		for k := 0; k < 2; k++ {
			if c.Visuals[i].Grid[k] <= 0 {
				c.Visuals[i].Grid[k] = 1
			}
		}
	}
	for i := range c.Worms {
		w := &c.Worms[i]
		if w.Initial == "" {
			w.Initial = string(agent.Slug)
		}
		if w.SizeMin <= 0 {
			w.SizeMin = 1
		}
		if w.SizeMax < w.SizeMin {
			w.SizeMax = w.SizeMin
		}
		if w.Steering == nil {
			s := agent.DefaultSteering()
			w.Steering = &s
		}
	}
	for i := range c.Spins {
		s := &c.Spins[i]
		if s.Spacing <= 0 {
			s.Spacing = 1
		}
		if s.Period <= 0 {
			s.Period = 1
		}
		if s.UpVisual == "" {
			s.UpVisual = "red"
		}
		if s.DownVisual == "" {
			s.DownVisual = "blue"
		}
	}
	for i := range c.Levels {
		if c.Levels[i].Scale == 0 {
			c.Levels[i].Scale = 1
		}
	}
}

func (c Config) Validate() error {
	c.Normalize()
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
	}
	if len(c.Worlds) == 0 {
		return bad("worlds must not be empty")
	}
	worlds := map[string]bool{}
	for i, w := range c.Worlds {
		name := strings.TrimSpace(w.Name)
		if name == "" {
			return bad("worlds[%d] name must not be empty", i)
		}
		if worlds[name] {
			return bad("duplicate world: %s", name)
		}
		if w.Parent != "" && !worlds[w.Parent] {
			return bad("world %s: parent %q must be declared before it", name, w.Parent)
		}
		worlds[name] = true
	}
	visuals := map[string]bool{}
	for i, v := range c.Visuals {
		if v.Key == "" || v.Texture == "" {
			return bad("visuals[%d] needs key and texture", i)
		}
		if visuals[v.Key] {
			return bad("duplicate visual: %s", v.Key)
		}
		if v.Cell[0] < 0 || v.Cell[1] < 0 || v.Cell[0] >= v.Grid[0] || v.Cell[1] >= v.Grid[1] {
			return bad("visual %s: cell %v outside grid %v", v.Key, v.Cell, v.Grid)
		}
		visuals[v.Key] = true
	}
	for i, l := range c.Levels {
		if l.Name == "" || l.Path == "" {
			return bad("levels[%d] needs name and path", i)
		}
		if !worlds[l.World] {
			return bad("level %s: unknown world %q", l.Name, l.World)
		}
	}
	for i, w := range c.Worms {
		if !worlds[w.World] {
			return bad("worms[%d]: unknown world %q", i, w.World)
		}
		if w.Count < 0 {
			return bad("worms[%d]: count must be >= 0", i)
		}
		if !agent.State(w.Initial).Valid() {
			return bad("worms[%d]: %v %q", i, agent.ErrUnknownState, w.Initial)
		}
		for _, s := range agent.Lifecycle {
			lt, ok := w.Lifetimes[string(s)]
			if !ok || lt < 0 {
				return bad("worms[%d]: lifetime for %s missing or negative", i, s)
			}
			key, ok := w.Guises[string(s)]
			if !ok {
				return bad("worms[%d]: no guise for %s", i, s)
			}
			if !visuals[key] {
				return bad("worms[%d]: guise %s uses unknown visual %q", i, s, key)
			}
		}
		if w.LifetimeNoise < 0 {
			return bad("worms[%d]: lifetime_noise must be >= 0", i)
		}
	}
	for i, s := range c.Spins {
		if !worlds[s.World] {
			return bad("spins[%d]: unknown world %q", i, s.World)
		}
		if s.Rows <= 0 || s.Cols <= 0 {
			return bad("spins[%d]: rows and cols must be > 0", i)
		}
		if s.Density < 0 || s.Density > 1 {
			return bad("spins[%d]: density must be in [0, 1]", i)
		}
		if !visuals[s.UpVisual] || !visuals[s.DownVisual] {
			return bad("spins[%d]: unknown visual %q or %q", i, s.UpVisual, s.DownVisual)
		}
	}
	for i, s := range c.Switches {
		if !worlds[s.World] || !worlds[s.Next] {
			return bad("switches[%d]: unknown world %q or %q", i, s.World, s.Next)
		}
		switch s.Kind {
		case SwitchMoveToLevelTwo:
		case SwitchSwapAfter:
			if s.After < 0 {
				return bad("switches[%d]: after must be >= 0", i)
			}
		case SwitchSwapWhenAll:
			if !agent.State(s.State).Valid() {
				return bad("switches[%d]: %v %q", i, agent.ErrUnknownState, s.State)
			}
		default:
			return bad("switches[%d]: unknown kind %q", i, s.Kind)
		}
	}
	if len(c.Activate) == 0 {
		return bad("activate must name at least one world")
	}
	for i, a := range c.Activate {
		if !worlds[a.World] {
			return bad("activate[%d]: unknown world %q", i, a.World)
		}
	}
	return nil
}
