package world

import (
	"fmt"

	"multipart.dev/internal/sim/cell"
	"multipart.dev/internal/sim/multipart"
)

// ReplayTick writes the cell changes of a logged tick back into the world and
// moves the clock past it. It returns the state digest the way step computes
// it, so callers can check it against e.Digest. Audits and highlights are not
// replayed. Must not be called while Run is active.
func (w *World) ReplayTick(e TickLogEntry) (string, error) {
	if cur := w.tick.Load(); e.Tick < cur {
		return "", fmt.Errorf("tick %d already applied (world at %d)", e.Tick, cur)
	}
	for _, c := range e.Changes {
		st := multipart.State{Block: c.Block, Part: c.Part}
		if c.Facing != "" {
			f, err := cell.ParseFacing(c.Facing)
			if err != nil {
				return "", fmt.Errorf("tick %d: %w", e.Tick, err)
			}
			st.Facing = f
		}
		if err := w.SetCell(cell.FromArray(c.Pos), st, multipart.UpdateNone); err != nil {
			return "", fmt.Errorf("tick %d %v: %w", e.Tick, c.Pos, err)
		}
	}
	w.tickChanges = nil
	digest := w.StateDigest()
	w.tick.Store(e.Tick + 1)
	return digest, nil
}
