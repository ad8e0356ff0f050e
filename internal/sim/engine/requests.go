package engine

import (
	"context"
	"errors"
	"fmt"

	"pyre.dev/internal/observerproto"
	"pyre.dev/internal/sim/world"
)

// Command ops.
const (
	OpActivate   = "ACTIVATE"
	OpInactivate = "INACTIVATE"
	OpRestore    = "RESTORE"
)

var (
	ErrUnknownOp = errors.New("unknown command op")
	ErrQueueFull = errors.New("command queue full")
)

// Command changes a world's activation. It is applied at the start of the
// tick after it was queued, before any world updates.
type Command struct {
	Op       string
	World    string
	Children bool
}

func (c Command) validate() error {
	switch c.Op {
	case OpActivate, OpInactivate, OpRestore:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, c.Op)
	}
	if c.World == "" {
		return fmt.Errorf("%w: empty world name", world.ErrUnknownWorld)
	}
	return nil
}

// Enqueue queues cmd without blocking. It is safe to call from any goroutine.
func (e *Engine) Enqueue(cmd Command) error {
	if err := cmd.validate(); err != nil {
		return err
	}
	select {
	case <-e.stop:
		return ErrStopped
	default:
	}
	select {
	case e.commands <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

func (e *Engine) drainCommands(tick uint64) {
	for {
		select {
		case cmd := <-e.commands:
			e.apply(tick, cmd)
		default:
			return
		}
	}
}

func (e *Engine) apply(tick uint64, cmd Command) {
	en := Entry{Kind: EntryCommand, World: cmd.World, To: cmd.Op}
	err := e.applyCommand(cmd)
	if err != nil {
		en.Error = err.Error()
		e.logger.Printf("tick %d: %s %s: %v", tick, cmd.Op, cmd.World, err)
	}
	e.record(en)
}

func (e *Engine) applyCommand(cmd Command) error {
	id, ok := e.tree.Lookup(cmd.World)
	if !ok {
		return fmt.Errorf("%w: %q", world.ErrUnknownWorld, cmd.World)
	}
	switch cmd.Op {
	case OpActivate:
		return e.tree.Activate(id, cmd.Children)
	case OpInactivate:
		return e.tree.Inactivate(id, cmd.Children)
	case OpRestore:
		return e.tree.Restore(id, cmd.Children)
	}
	return fmt.Errorf("%w: %q", ErrUnknownOp, cmd.Op)
}

type snapshotReq struct {
	Resp chan observerproto.SnapshotMsg
}

// RequestSnapshot asks the engine goroutine for a read-only view of the tree.
// It is answered at the start of the next tick, after queued commands.
func (e *Engine) RequestSnapshot(ctx context.Context) (observerproto.SnapshotMsg, error) {
	resp := make(chan observerproto.SnapshotMsg, 1)
	req := snapshotReq{Resp: resp}

	select {
	case e.snapshots <- req:
	case <-e.stop:
		return observerproto.SnapshotMsg{}, ErrStopped
	case <-ctx.Done():
		return observerproto.SnapshotMsg{}, ctx.Err()
	}

	select {
	case r := <-resp:
		return r, nil
	case <-e.stop:
		return observerproto.SnapshotMsg{}, ErrStopped
	case <-ctx.Done():
		return observerproto.SnapshotMsg{}, ctx.Err()
	}
}

func (e *Engine) answerSnapshots() {
	var snap *observerproto.SnapshotMsg
	for {
		select {
		case r := <-e.snapshots:
			if snap == nil {
				s := e.Snapshot()
				snap = &s
			}
			select {
			case r.Resp <- *snap:
			default:
				// Client gave up; don't block the tick.
			}
		default:
			return
		}
	}
}

// Snapshot builds the observer view of the tree. Call it only from the engine
// goroutine (or when the engine is not running).
func (e *Engine) Snapshot() observerproto.SnapshotMsg {
	return observerproto.SnapshotMsg{
		Type:            "SNAPSHOT",
		ProtocolVersion: observerproto.Version,
		RunID:           e.runID,
		Tick:            e.tick.Load(),
		SimTime:         e.clock.t,
		Worlds:          e.tree.Snapshot(),
	}
}

// Bootstrap describes the run for observers. Safe from any goroutine.
func (e *Engine) Bootstrap() observerproto.BootstrapResponse {
	return observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		RunID:           e.runID,
		Tick:            e.tick.Load(),
		TickRateHz:      e.cfg.TickRateHz,
		Worlds:          e.WorldNames(),
	}
}
