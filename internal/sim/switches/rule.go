package switches

import (
	"errors"

	"pyre.dev/internal/sim/agent"
	"pyre.dev/internal/sim/world"
)

// Condition reads the tree and decides whether a rule fires.
type Condition func(t *world.Tree) bool

// Action mutates the tree.
type Action func(t *world.Tree) error

// Rule is a switch assembled from a condition and an action.
type Rule struct {
	Base
	tree   *world.Tree
	cond   Condition
	action Action
	once   bool
	fired  int
}

type RuleOption func(*Rule)

// Once stops the rule after its first firing.
func Once() RuleOption { return func(r *Rule) { r.once = true } }

// InitializeOnActivation primes the rule when its world activates.
func InitializeOnActivation() RuleOption { return func(r *Rule) { r.initOnActivation = true } }

// OnInit runs f as the rule's one-shot initialisation.
func OnInit(f func()) RuleOption { return func(r *Rule) { r.init = f } }

func NewRule(name string, tree *world.Tree, w world.ID, cond Condition, action Action, opts ...RuleOption) *Rule {
	r := &Rule{Base: Base{name: name, world: w}, tree: tree, cond: cond, action: action}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Rule) Evaluate() error {
	r.Prime()
	if r.once && r.fired > 0 {
		return nil
	}
	if r.cond == nil || !r.cond(r.tree) {
		return nil
	}
	r.fired++
	if r.action == nil {
		return nil
	}
	return r.action(r.tree)
}

func (r *Rule) Fired() int { return r.fired }

// Clock is the simulation time source conditions may read.
type Clock interface {
	Now() float64
}

// Elapsed holds once d seconds of simulation time have passed since the
// condition was first checked.
func Elapsed(c Clock, d float64) Condition {
	start, started := 0.0, false
	return func(*world.Tree) bool {
		now := c.Now()
		if !started {
			start, started = now, true
		}
		return now-start >= d
	}
}

// AllWormsIn holds when world w has at least one worm and every worm in it is in state s.
func AllWormsIn(w world.ID, s agent.State) Condition {
	return func(t *world.Tree) bool {
		ww, err := t.Get(w)
		if err != nil {
			return false
		}
		n := 0
		for _, e := range ww.Agents() {
			worm, ok := e.(*agent.Worm)
			if !ok {
				continue
			}
			if worm.State() != s {
				return false
			}
			n++
		}
		return n > 0
	}
}

// EveryWormHasBeen holds once each worm currently in world w has been seen in
// state s by this condition. A worm stays counted after it moves on.
func EveryWormHasBeen(w world.ID, s agent.State) Condition {
	seen := map[agent.ID]bool{}
	return func(t *world.Tree) bool {
		ww, err := t.Get(w)
		if err != nil {
			return false
		}
		n, all := 0, true
		for _, e := range ww.Agents() {
			worm, ok := e.(*agent.Worm)
			if !ok {
				continue
			}
			n++
			if worm.State() == s {
				seen[worm.ID] = true
			}
			if !seen[worm.ID] {
				all = false
			}
		}
		return n > 0 && all
	}
}

func All(conds ...Condition) Condition {
	return func(t *world.Tree) bool {
		for _, c := range conds {
			if !c(t) {
				return false
			}
		}
		return len(conds) > 0
	}
}

func Any(conds ...Condition) Condition {
	return func(t *world.Tree) bool {
		for _, c := range conds {
			if c(t) {
				return true
			}
		}
		return false
	}
}

func Not(c Condition) Condition {
	return func(t *world.Tree) bool { return !c(t) }
}

// Swap inactivates from and activates (or restores) to.
func Swap(to, from world.ID, children, restore bool) Action {
	return func(t *world.Tree) error { return t.SwapWorld(to, from, children, restore) }
}

func Activate(w world.ID, children bool) Action {
	return func(t *world.Tree) error { return t.Activate(w, children) }
}

func Inactivate(w world.ID, children bool) Action {
	return func(t *world.Tree) error { return t.Inactivate(w, children) }
}

// Sequence runs every action in order and joins their errors.
func Sequence(actions ...Action) Action {
	return func(t *world.Tree) error {
		var errs []error
		for _, a := range actions {
			if err := a(t); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
