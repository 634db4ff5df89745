package world

import (
	"fmt"

	"multipart.dev/internal/sim/cell"
	"multipart.dev/internal/sim/multipart"
)

// CellChange is one cell write. Writes made with UpdateClients are also
// flushed to observers with the next frame.
type CellChange struct {
	Pos    [3]int `json:"pos"`
	Block  string `json:"block"`
	Part   int    `json:"part,omitempty"`
	Facing string `json:"facing,omitempty"`
}

func (w *World) stateOf(c Cell) multipart.State {
	id := "AIR"
	if int(c.Block) < len(w.palette) {
		id = w.palette[c.Block]
	}
	return multipart.State{Block: id, Part: int(c.Part), Facing: c.Facing}
}

// SetCell implements multipart.Host.
func (w *World) SetCell(pos cell.Pos, st multipart.State, flags multipart.UpdateFlag) error {
	id, ok := w.index[st.Block]
	if !ok {
		return fmt.Errorf("unknown block %q", st.Block)
	}
	if st.Part < 0 || st.Part > 0xFFFF {
		return fmt.Errorf("part %d out of range", st.Part)
	}
	if err := w.chunks.Set(pos, Cell{Block: id, Part: uint16(st.Part), Facing: st.Facing}); err != nil {
		return err
	}
	flags &= w.cfg.UpdateMask
	if flags&multipart.UpdateNeighbors != 0 {
		w.metrics.neighborUpdate()
	}
	ch := CellChange{Pos: pos.ToArray(), Block: st.Block}
	if _, structure := w.types.Lookup(st.Block); structure {
		ch.Part = st.Part
		ch.Facing = st.Facing.String()
	}
	w.tickChanges = append(w.tickChanges, ch)
	if flags&multipart.UpdateClients != 0 {
		w.pendingChanges = append(w.pendingChanges, ch)
	}
	return nil
}

// DestroyCell implements multipart.Host. Drops are not simulated; drop only
// shows up in the audit trail.
func (w *World) DestroyCell(pos cell.Pos, drop bool) error {
	prev := w.CellState(pos)
	if prev.Block == "AIR" {
		return nil
	}
	if err := w.SetCell(pos, multipart.State{Block: "AIR"}, multipart.UpdateDefault); err != nil {
		return err
	}
	reason := ""
	if drop {
		reason = "drop"
	}
	w.emitAudit(AuditEntry{
		Action: AuditDestroy,
		Block:  prev.Block,
		Pos:    pos.ToArray(),
		Part:   prev.Part,
		Facing: prev.Facing.String(),
		Reason: reason,
	})
	w.metrics.destroyed()
	return nil
}

// CellState implements multipart.Host.
func (w *World) CellState(pos cell.Pos) multipart.State {
	return w.stateOf(w.chunks.Get(pos))
}

// CanBeReplaced implements multipart.Host. Structure cells are never
// replaceable; plain blocks follow the block catalog.
func (w *World) CanBeReplaced(st multipart.State) bool {
	if _, structure := w.types.Lookup(st.Block); structure {
		return false
	}
	return w.cats.Blocks.Replaceable(st.Block)
}

// InteractiveSide implements multipart.Host.
func (w *World) InteractiveSide() bool { return w.cfg.Interactive }

var _ multipart.Host = (*World)(nil)
