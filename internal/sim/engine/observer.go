package engine

import (
	"encoding/json"
	"slices"
)

// ObserverJoinRequest registers a read-only session that receives snapshot
// JSON on Out every IntervalTicks ticks. All observer state lives on the
// engine goroutine; Out is closed when the session leaves or the engine stops.
type ObserverJoinRequest struct {
	SessionID     string
	Out           chan []byte
	IntervalTicks int
	// Worlds filters the snapshot by world name. Empty means all.
	Worlds []string
}

// ObserverSubscribeRequest updates an existing session.
type ObserverSubscribeRequest struct {
	SessionID     string
	IntervalTicks int
	Worlds        []string
}

type observerClient struct {
	id       string
	out      chan []byte
	interval uint64
	worlds   []string
	lastSent uint64
	sent     bool
}

func (e *Engine) ObserverJoin() chan<- ObserverJoinRequest { return e.observerJoin }

func (e *Engine) ObserverSubscribe() chan<- ObserverSubscribeRequest { return e.observerSub }

func (e *Engine) ObserverLeave() chan<- string { return e.observerLeave }

func clampInterval(n int) uint64 {
	if n <= 0 {
		return 1
	}
	if n > 3600 {
		return 3600
	}
	return uint64(n)
}

func (e *Engine) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.Out == nil {
		return
	}
	if old := e.observers[req.SessionID]; old != nil {
		close(old.out)
	}
	e.observers[req.SessionID] = &observerClient{
		id:       req.SessionID,
		out:      req.Out,
		interval: clampInterval(req.IntervalTicks),
		worlds:   append([]string(nil), req.Worlds...),
	}
}

func (e *Engine) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := e.observers[req.SessionID]
	if c == nil {
		return
	}
	c.interval = clampInterval(req.IntervalTicks)
	c.worlds = append([]string(nil), req.Worlds...)
}

func (e *Engine) handleObserverLeave(id string) {
	c := e.observers[id]
	if c == nil {
		return
	}
	delete(e.observers, id)
	close(c.out)
}

func (e *Engine) closeObservers() {
	for id, c := range e.observers {
		delete(e.observers, id)
		close(c.out)
	}
}

// stepObservers streams the post-tick snapshot to every session that is due.
func (e *Engine) stepObservers(tick uint64) {
	if len(e.observers) == 0 {
		return
	}
	snap := e.Snapshot()
	var full []byte
	for _, c := range e.observers {
		if c.sent && tick-c.lastSent < c.interval {
			continue
		}
		var b []byte
		if len(c.worlds) == 0 {
			if full == nil {
				var err error
				if full, err = json.Marshal(snap); err != nil {
					e.logger.Printf("observer: marshal snapshot: %v", err)
					return
				}
			}
			b = full
		} else {
			s := snap
			s.Worlds = nil
			for _, w := range snap.Worlds {
				if slices.Contains(c.worlds, w.Name) {
					s.Worlds = append(s.Worlds, w)
				}
			}
			var err error
			if b, err = json.Marshal(s); err != nil {
				e.logger.Printf("observer %s: marshal snapshot: %v", c.id, err)
				continue
			}
		}
		sendLatest(c.out, b)
		c.lastSent = tick
		c.sent = true
	}
}
