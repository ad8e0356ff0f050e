package world

import (
	"pyre.dev/internal/observerproto"
	"pyre.dev/internal/sim/agent"
)

// Fired is implemented by switches that count their actions.
type Fired interface {
	Fired() int
}

// Snapshot copies the whole tree into observer wire types. Nothing in the
// result aliases tree state.
func (t *Tree) Snapshot() []observerproto.WorldState {
	out := make([]observerproto.WorldState, 0, len(t.worlds))
	for _, w := range t.worlds {
		ws := observerproto.WorldState{
			ID:         int(w.id),
			Name:       w.name,
			Parent:     int(w.parent),
			Active:     w.active,
			LastActive: w.lastActive,
		}
		for _, c := range w.children {
			ws.Children = append(ws.Children, int(c))
		}
		for _, e := range w.agents {
			ws.Agents = append(ws.Agents, agentState(e))
		}
		for _, s := range w.switches {
			ss := observerproto.SwitchState{Name: s.Name(), Initialized: s.Initialized()}
			if f, ok := s.(Fired); ok {
				ss.Fired = f.Fired()
			}
			ws.Switches = append(ws.Switches, ss)
		}
		out = append(out, ws)
	}
	return out
}

func agentState(e agent.Entity) observerproto.AgentState {
	a := e.Base()
	st := observerproto.AgentState{
		ID:   uint64(a.ID),
		Kind: "agent",
		Pos:  [3]float64{a.Position[0], a.Position[1], a.Position[2]},
		Rot:  [3]float64{a.Rotation[0], a.Rotation[1], a.Rotation[2]},
		T:    a.T,
	}
	if ai := a.AI(); ai != nil {
		st.AI = ai.Kind().String()
	}
	if av := a.Avatar(); av != nil {
		st.Shown = av.Shown()
	}
	switch v := e.(type) {
	case *agent.Worm:
		st.Kind = "worm"
		st.State = string(v.State())
	case *agent.Spin:
		st.Kind = "spin"
		if v.Spin() {
			st.State = agent.SpinUp
		} else {
			st.State = agent.SpinDown
		}
	case interface{ Kind() string }:
		st.Kind = v.Kind()
	}
	return st
}
