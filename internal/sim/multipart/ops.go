package multipart

import (
	"errors"
	"fmt"

	"multipart.dev/internal/sim/cell"
)

// Place writes every part of the placement anchored at anchor, including the
// anchor itself, in definition order. There is no rollback: if the host
// rejects a write the parts before it stay placed and the remaining parts are
// still attempted. All rejected writes are returned joined.
func (t *Type) Place(h Host, anchor cell.Pos, st State) error {
	origin, f, err := t.resolve(anchor, st)
	if err != nil {
		return err
	}
	var errs []error
	for i := 0; i < t.parts.Len(); i++ {
		pos := t.Cell(origin, t.parts.At(i), f)
		ps := st
		ps.Block = t.id
		ps.Part = i
		if err := h.SetCell(pos, ps, UpdateDefault); err != nil {
			errs = append(errs, fmt.Errorf("place %s part %d at %s: %w", t.id, i, pos, err))
		}
	}
	return errors.Join(errs...)
}

// CheckSurvivability reports whether every cell of the placement can be
// overwritten. On the interactive side each blocking cell is passed to n.
func (t *Type) CheckSurvivability(h Host, n Notifier, anchor cell.Pos, st State) bool {
	origin, f, err := t.resolve(anchor, st)
	if err != nil {
		return false
	}
	notify := n != nil && h.InteractiveSide()
	ok := true
	for i := 0; i < t.parts.Len(); i++ {
		pos := t.Cell(origin, t.parts.At(i), f)
		if h.CanBeReplaced(h.CellState(pos)) {
			continue
		}
		if notify {
			n.Notify(pos)
		}
		ok = false
	}
	return ok
}

// Destroy removes every part of the placement without drops. Cells that no
// longer hold this structure type are left alone.
func (t *Type) Destroy(h Host, anchor cell.Pos, st State) error {
	origin, f, err := t.resolve(anchor, st)
	if err != nil {
		return err
	}
	var errs []error
	for i := 0; i < t.parts.Len(); i++ {
		pos := t.Cell(origin, t.parts.At(i), f)
		if h.CellState(pos).Block != t.id {
			continue
		}
		if err := h.DestroyCell(pos, false); err != nil {
			errs = append(errs, fmt.Errorf("destroy %s part %d at %s: %w", t.id, i, pos, err))
		}
	}
	return errors.Join(errs...)
}

// ForEachCell calls visit with the absolute cell of every part, in part order.
func (t *Type) ForEachCell(anchor cell.Pos, st State, visit func(part int, pos cell.Pos)) error {
	origin, f, err := t.resolve(anchor, st)
	if err != nil {
		return err
	}
	for i := 0; i < t.parts.Len(); i++ {
		visit(i, t.Cell(origin, t.parts.At(i), f))
	}
	return nil
}

// Cells returns the absolute cells of the placement in part order.
func (t *Type) Cells(anchor cell.Pos, st State) ([]cell.Pos, error) {
	out := make([]cell.Pos, 0, t.parts.Len())
	err := t.ForEachCell(anchor, st, func(_ int, pos cell.Pos) {
		out = append(out, pos)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
