package switches

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"pyre.dev/internal/render/memory"
	"pyre.dev/internal/sim/agent"
	"pyre.dev/internal/sim/avatar"
	"pyre.dev/internal/sim/geom"
	"pyre.dev/internal/sim/world"
)

var testRenderer = memory.New()

func newWorm(t *testing.T, initial agent.State, lifetimes map[agent.State]float64) *agent.Worm {
	t.Helper()
	res := avatar.NewResources()
	guises := map[agent.State]avatar.Avatar{}
	for i, s := range agent.Lifecycle {
		res.Set(string(s), avatar.Visual{Texture: "garden", TexCoords: geom.TexCoord(i%2, i/2, 4, 4, false)})
		guises[s] = avatar.NewSprite(testRenderer, res, string(s))
	}
	w, err := agent.NewWorm(agent.WormConfig{
		Initial:        initial,
		Lifetimes:      lifetimes,
		Guises:         guises,
		ButterflySpeed: mgl64.Vec3{0, 2, 0},
		Steering:       agent.DefaultSteering(),
		Rand:           rand.New(rand.NewSource(3)),
	})
	if err != nil {
		t.Fatalf("NewWorm: %v", err)
	}
	return w
}

func uniform(d float64) map[agent.State]float64 {
	return map[agent.State]float64{agent.Butterfly: d, agent.Seed: d, agent.Plant: d, agent.Slug: d}
}

type garden struct {
	tree      *world.Tree
	top, a, b world.ID
}

func newGarden(t *testing.T) *garden {
	t.Helper()
	g := &garden{tree: world.NewTree(nil)}
	var err error
	if g.top, err = g.tree.NewRoot("top"); err != nil {
		t.Fatalf("root: %v", err)
	}
	if g.a, err = g.tree.NewChild(g.top, "garden1"); err != nil {
		t.Fatalf("a: %v", err)
	}
	if g.b, err = g.tree.NewChild(g.top, "garden2"); err != nil {
		t.Fatalf("b: %v", err)
	}
	return g
}

func (g *garden) start(t *testing.T) {
	t.Helper()
	if err := g.tree.Activate(g.top, false); err != nil {
		t.Fatalf("activate top: %v", err)
	}
	if err := g.tree.Activate(g.a, false); err != nil {
		t.Fatalf("activate a: %v", err)
	}
}

func (g *garden) tick(t *testing.T, dt float64) {
	t.Helper()
	if err := g.tree.Update(g.top, dt); err != nil {
		t.Fatalf("update: %v", err)
	}
}

func TestMoveToLevelTwo_EndToEnd(t *testing.T) {
	g := newGarden(t)
	wa := newWorm(t, agent.Butterfly, map[agent.State]float64{agent.Butterfly: 2, agent.Seed: 1.5, agent.Plant: 1, agent.Slug: 1})
	wb := newWorm(t, agent.Slug, uniform(1))
	if _, err := g.tree.AddAgent(g.a, wa); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := g.tree.AddAgent(g.b, wb); err != nil {
		t.Fatalf("add: %v", err)
	}
	sw := NewMoveToLevelTwo(g.tree, g.a, g.b)
	if err := g.tree.AddSwitch(g.a, sw); err != nil {
		t.Fatalf("add switch: %v", err)
	}
	var firedAt []float64
	sw.OnFire = func(from, to world.ID) {
		if wa.State() != agent.Seed {
			t.Fatalf("fired while worm is %s", wa.State())
		}
		firedAt = append(firedAt, wa.T)
	}
	g.start(t)
	if !sw.Initialized() || len(sw.Tracked()) != 1 {
		t.Fatalf("activation should prime the switch with one worm: %v", sw.Tracked())
	}

	for i := 0; i < 20; i++ {
		g.tick(t, 0.5)
	}
	if sw.Fired() != 1 || len(firedAt) != 1 || firedAt[0] != 2.5 {
		t.Fatalf("fired %d times at %v", sw.Fired(), firedAt)
	}
	if g.tree.Active(g.a) || !g.tree.Active(g.b) {
		t.Fatalf("expected garden1 inactive and garden2 active")
	}
	if wa.T != 2.5 {
		t.Fatalf("worm in the inactive world kept ticking: T=%v", wa.T)
	}
	if wb.T == 0 {
		t.Fatalf("worm in the new world never ticked")
	}
}

func TestMoveToLevelTwo_NoWormsNeverFires(t *testing.T) {
	g := newGarden(t)
	if _, err := g.tree.AddAgent(g.a, agent.New(nil)); err != nil {
		t.Fatalf("add: %v", err)
	}
	sw := NewMoveToLevelTwo(g.tree, g.a, g.b)
	if err := g.tree.AddSwitch(g.a, sw); err != nil {
		t.Fatalf("add switch: %v", err)
	}
	g.start(t)
	for i := 0; i < 10; i++ {
		g.tick(t, 1)
	}
	if sw.Fired() != 0 || !g.tree.Active(g.a) {
		t.Fatalf("switch fired with no worms")
	}
}

func TestMoveToLevelTwo_WaitsForEveryWorm(t *testing.T) {
	g := newGarden(t)
	early := newWorm(t, agent.Seed, uniform(1))
	stuck := newWorm(t, agent.Slug, uniform(1000))
	for _, w := range []*agent.Worm{early, stuck} {
		if _, err := g.tree.AddAgent(g.a, w); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	sw := NewMoveToLevelTwo(g.tree, g.a, g.b)
	if err := g.tree.AddSwitch(g.a, sw); err != nil {
		t.Fatalf("add switch: %v", err)
	}
	g.start(t)
	for i := 0; i < 50; i++ {
		g.tick(t, 0.5)
	}
	if sw.Fired() != 0 {
		t.Fatalf("fired while a worm never reached seed")
	}
	if ev := sw.Evolved(); !ev[0] || ev[1] {
		t.Fatalf("evolved flags: %v", ev)
	}
}

func TestMoveToLevelTwo_FlagsAreSticky(t *testing.T) {
	g := newGarden(t)
	passing := newWorm(t, agent.Seed, map[agent.State]float64{agent.Butterfly: 100, agent.Seed: 0.5, agent.Plant: 0.5, agent.Slug: 0.5})
	late := newWorm(t, agent.Butterfly, map[agent.State]float64{agent.Butterfly: 2, agent.Seed: 100, agent.Plant: 100, agent.Slug: 100})
	for _, w := range []*agent.Worm{passing, late} {
		if _, err := g.tree.AddAgent(g.a, w); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	sw := NewMoveToLevelTwo(g.tree, g.a, g.b)
	if err := g.tree.AddSwitch(g.a, sw); err != nil {
		t.Fatalf("add switch: %v", err)
	}
	g.start(t)
	for i := 0; i < 5; i++ {
		g.tick(t, 0.5)
	}
	if passing.State() == agent.Seed {
		t.Fatalf("first worm should have moved past seed, still %s", passing.State())
	}
	if late.State() != agent.Seed || sw.Fired() != 1 {
		t.Fatalf("expected one firing once the late worm seeded: state %s fired %d", late.State(), sw.Fired())
	}
}

func TestMoveToLevelTwo_LazyInitWithoutActivation(t *testing.T) {
	g := newGarden(t)
	w := newWorm(t, agent.Slug, uniform(10))
	if _, err := g.tree.AddAgent(g.a, w); err != nil {
		t.Fatalf("add: %v", err)
	}
	sw := NewMoveToLevelTwo(g.tree, g.a, g.b)
	if sw.Initialized() {
		t.Fatalf("initialised before use")
	}
	if err := sw.Evaluate(); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !sw.Initialized() || len(sw.Tracked()) != 1 {
		t.Fatalf("first evaluate should initialise")
	}
}

func TestMoveToLevelTwo_RemovedWormNeverCounts(t *testing.T) {
	g := newGarden(t)
	w := newWorm(t, agent.Slug, uniform(10))
	id, err := g.tree.AddAgent(g.a, w)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	sw := NewMoveToLevelTwo(g.tree, g.a, g.b)
	_ = g.tree.AddSwitch(g.a, sw)
	g.start(t)
	if err := g.tree.RemoveAgent(id); err != nil {
		t.Fatalf("remove: %v", err)
	}
	for i := 0; i < 5; i++ {
		g.tick(t, 1)
	}
	if sw.Fired() != 0 {
		t.Fatalf("a vanished worm was treated as evolved")
	}
}

type fakeClock struct{ now float64 }

func (c *fakeClock) Now() float64 { return c.now }

func TestRule_OnceAndElapsed(t *testing.T) {
	g := newGarden(t)
	clock := &fakeClock{}
	r := NewRule("timeout", g.tree, g.a, Elapsed(clock, 3), Swap(g.b, g.a, false, false), Once())
	if err := g.tree.AddSwitch(g.a, r); err != nil {
		t.Fatalf("add: %v", err)
	}
	g.start(t)
	for i := 0; i < 3; i++ {
		g.tick(t, 1)
		clock.now++
	}
	if r.Fired() != 0 {
		t.Fatalf("fired early at %v", clock.now)
	}
	g.tick(t, 1)
	if r.Fired() != 1 || !g.tree.Active(g.b) || g.tree.Active(g.a) {
		t.Fatalf("rule should have swapped once")
	}
	// Even called directly, a Once rule stays quiet.
	if err := r.Evaluate(); err != nil || r.Fired() != 1 {
		t.Fatalf("once rule fired again: %d %v", r.Fired(), err)
	}
}

func TestRule_Conditions(t *testing.T) {
	g := newGarden(t)
	yes := func(*world.Tree) bool { return true }
	no := func(*world.Tree) bool { return false }
	if !All(yes, yes)(g.tree) || All(yes, no)(g.tree) || All()(g.tree) {
		t.Fatalf("All")
	}
	if !Any(no, yes)(g.tree) || Any(no)(g.tree) {
		t.Fatalf("Any")
	}
	if Not(yes)(g.tree) {
		t.Fatalf("Not")
	}

	cond := AllWormsIn(g.a, agent.Plant)
	if cond(g.tree) {
		t.Fatalf("empty world cannot satisfy AllWormsIn")
	}
	p1 := newWorm(t, agent.Plant, uniform(1))
	p2 := newWorm(t, agent.Plant, uniform(1))
	_, _ = g.tree.AddAgent(g.a, p1)
	_, _ = g.tree.AddAgent(g.a, agent.New(nil))
	if !cond(g.tree) {
		t.Fatalf("single plant worm should satisfy AllWormsIn")
	}
	_, _ = g.tree.AddAgent(g.a, p2)
	_, _ = g.tree.AddAgent(g.a, newWorm(t, agent.Slug, uniform(1)))
	if cond(g.tree) {
		t.Fatalf("slug worm should break AllWormsIn")
	}
}

func TestEveryWormHasBeen_CountsPastStates(t *testing.T) {
	g := newGarden(t)
	cond := EveryWormHasBeen(g.a, agent.Seed)
	if cond(g.tree) {
		t.Fatalf("empty world cannot satisfy EveryWormHasBeen")
	}
	seed := newWorm(t, agent.Seed, uniform(1))
	slug := newWorm(t, agent.Slug, uniform(1))
	_, _ = g.tree.AddAgent(g.a, seed)
	_, _ = g.tree.AddAgent(g.a, slug)
	g.start(t)
	if cond(g.tree) {
		t.Fatalf("the slug has not been a seed yet")
	}
	for i := 0; i < 20 && !cond(g.tree); i++ {
		g.tick(t, 0.5)
	}
	if !cond(g.tree) {
		t.Fatalf("both worms should have been seeds by T=%v", slug.T)
	}
	if seed.State() == agent.Seed || AllWormsIn(g.a, agent.Seed)(g.tree) {
		t.Fatalf("the first worm should have moved on: %s", seed.State())
	}
}

func TestRule_SequenceJoinsErrors(t *testing.T) {
	g := newGarden(t)
	act := Sequence(Activate(g.b, false), Inactivate(world.ID(77), false), Activate(g.a, false))
	err := act(g.tree)
	if !errors.Is(err, world.ErrUnknownWorld) {
		t.Fatalf("expected ErrUnknownWorld, got %v", err)
	}
	if !g.tree.Active(g.a) || !g.tree.Active(g.b) {
		t.Fatalf("sequence should run every action")
	}
}

func TestDispatch_FlushDeliversInOrder(t *testing.T) {
	d := NewDispatch()
	var got []string
	s1 := d.Watch("worm.seed", func() error { got = append(got, "a"); return nil })
	d.Watch("worm.seed", func() error { got = append(got, "b"); return nil })
	d.Watch("other", func() error { got = append(got, "c"); return errors.New("boom") })

	d.Notify("worm.seed")
	d.Notify("worm.seed")
	if len(got) != 0 {
		t.Fatalf("notify must not deliver immediately")
	}
	if err := d.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("delivery: %v", got)
	}

	if !d.StopListening(s1) || d.StopListening(s1) {
		t.Fatalf("StopListening should succeed exactly once")
	}
	got = nil
	d.Notify("other")
	d.Notify("worm.seed")
	if err := d.Flush(); err == nil {
		t.Fatalf("listener error should surface")
	}
	if len(got) != 2 || got[0] != "c" || got[1] != "b" {
		t.Fatalf("delivery after stop: %v", got)
	}
	if topics := d.Topics(); len(topics) != 2 {
		t.Fatalf("topics: %v", topics)
	}
}

func TestDispatch_WatchRuleOnlyWhileActive(t *testing.T) {
	g := newGarden(t)
	d := NewDispatch()
	r := NewRule("on_seed", g.tree, g.a, func(*world.Tree) bool { return true }, nil)
	d.WatchRule("worm.seed", r)

	d.Notify("worm.seed")
	_ = d.Flush()
	if r.Fired() != 0 {
		t.Fatalf("rule fired for an inactive world")
	}
	g.start(t)
	d.Notify("worm.seed")
	_ = d.Flush()
	if r.Fired() != 1 {
		t.Fatalf("rule should fire on notification: %d", r.Fired())
	}
}
