package world

import (
	"fmt"

	"multipart.dev/internal/sim/cell"
	"multipart.dev/internal/sim/multipart"
)

// The methods in this file mutate world state. They run on the loop
// goroutine, or directly in tests and tools before Run is started.

func (w *World) emitAudit(e AuditEntry) {
	e.Tick = w.tick.Load()
	if e.Actor == "" {
		e.Actor = w.actor
	}
	w.tickAudits++
	if w.auditLogger != nil {
		_ = w.auditLogger.WriteAudit(e)
	}
}

func (w *World) structureState(id string, placerFacing cell.Facing, part int) (*multipart.Type, multipart.State, error) {
	t, ok := w.types.Lookup(id)
	if !ok {
		return nil, multipart.State{}, fmt.Errorf("%w: %s", ErrUnknownStructure, id)
	}
	st := t.PlacementState(placerFacing)
	st.Part = part
	return t, st, nil
}

// blockCollector gathers the cells a survivability probe rejects and passes
// them on to the highlight registry.
type blockCollector struct {
	cells []cell.Pos
	next  multipart.Notifier
}

func (c *blockCollector) Notify(pos cell.Pos) {
	c.cells = append(c.cells, pos)
	if c.next != nil {
		c.next.Notify(pos)
	}
}

// probeView runs the survivability probe as the interactive side so the
// blocking cells are always reported, whatever side the world is.
type probeView struct{ *World }

func (probeView) InteractiveSide() bool { return true }

// probe reports whether the placement survives, the placement state and the
// result carrying its cells and blocking cells.
func (w *World) probe(id string, anchor cell.Pos, placerFacing cell.Facing, part int) (Result, *multipart.Type, multipart.State, bool) {
	res := Result{Tick: w.tick.Load(), Block: id}
	t, st, err := w.structureState(id, placerFacing, part)
	if err != nil {
		res.Err = err
		return res, nil, st, false
	}
	if res.Cells, res.Err = t.Cells(anchor, st); res.Err != nil {
		return res, t, st, false
	}
	blocked := &blockCollector{}
	if w.InteractiveSide() {
		blocked.next = w.highlights
	}
	ok := t.CheckSurvivability(probeView{w}, blocked, anchor, st)
	res.Blocked = blocked.cells
	return res, t, st, ok
}

// ProbePlacement runs the survivability probe without writing anything.
// Blocking cells are highlighted on the interactive side.
func (w *World) ProbePlacement(id string, anchor cell.Pos, placerFacing cell.Facing, part int) Result {
	res, _, _, _ := w.probe(id, anchor, placerFacing, part)
	return res
}

// PlaceStructure places structure id with the anchor cell taking part index
// part. The placement is refused if any of its cells is occupied by
// something that cannot be replaced.
func (w *World) PlaceStructure(id string, anchor cell.Pos, placerFacing cell.Facing, part int) Result {
	res, t, st, ok := w.probe(id, anchor, placerFacing, part)
	if res.Err != nil {
		return res
	}
	if !ok {
		res.Err = ErrBlocked
		w.metrics.rejected()
		w.emitAudit(AuditEntry{
			Action:  AuditPlaceBlocked,
			Block:   id,
			Pos:     anchor.ToArray(),
			Part:    part,
			Facing:  t.Facing(st).String(),
			Details: map[string]any{"blocked": len(res.Blocked)},
		})
		return res
	}
	res.Err = t.Place(w, anchor, st)
	w.metrics.placed()
	w.emitAudit(AuditEntry{
		Action: AuditPlace,
		Block:  id,
		Pos:    anchor.ToArray(),
		Part:   part,
		Facing: t.Facing(st).String(),
		Reason: errReason(res.Err),
	})
	return res
}

// Break destroys the cell at pos. If it holds a structure part the rest of
// that structure is removed too; only the broken cell drops.
func (w *World) Break(pos cell.Pos) Result {
	st := w.CellState(pos)
	res := Result{Tick: w.tick.Load(), Block: st.Block}
	if st.Block == "AIR" {
		return res
	}
	t, structure := w.types.Lookup(st.Block)
	if !structure {
		res.Err = w.DestroyCell(pos, true)
		if res.Err == nil {
			res.Cells = []cell.Pos{pos}
		}
		return res
	}

	cells, err := t.Cells(pos, st)
	if err != nil {
		res.Err = err
		return res
	}
	for _, c := range cells {
		if w.CellState(c).Block == t.ID() {
			res.Cells = append(res.Cells, c)
		}
	}
	if err := w.DestroyCell(pos, true); err != nil {
		res.Err = err
		return res
	}
	res.Err = t.Destroy(w, pos, st)
	return res
}

// SetBlockAt writes a plain catalog block. Structure ids are refused; use
// PlaceStructure for those.
func (w *World) SetBlockAt(pos cell.Pos, block string) Result {
	res := Result{Tick: w.tick.Load(), Block: block}
	if _, ok := w.cats.Blocks.Index[block]; !ok {
		res.Err = fmt.Errorf("%w: %s", ErrUnknownBlock, block)
		return res
	}
	prev := w.CellState(pos)
	if err := w.SetCell(pos, multipart.State{Block: block}, multipart.UpdateDefault); err != nil {
		res.Err = err
		return res
	}
	res.Cells = []cell.Pos{pos}
	w.emitAudit(AuditEntry{
		Action:  AuditSetBlock,
		Block:   block,
		Pos:     pos.ToArray(),
		Details: map[string]any{"from": prev.Block},
	})
	return res
}

func errReason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
