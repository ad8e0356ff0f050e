package engine

import (
	"context"
	"time"
)

// Run ticks the engine until ctx is cancelled or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(e.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			e.closeObservers()
			return ctx.Err()
		case <-e.stop:
			e.closeObservers()
			return nil
		case req := <-e.observerJoin:
			e.handleObserverJoin(req)
		case req := <-e.observerSub:
			e.handleObserverSubscribe(req)
		case id := <-e.observerLeave:
			e.handleObserverLeave(id)
		case now := <-ticker.C:
			dt := interval.Seconds()
			if !e.cfg.FixedDT {
				dt = now.Sub(last).Seconds()
			}
			last = now
			e.Step(dt)
		}
	}
}

// Stop ends Run. It may be called more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
