package multipart

import (
	"fmt"
	"strings"

	"multipart.dev/internal/sim/cell"
)

// Definition describes a structure type. DefineParts is called exactly once,
// when the type is registered.
type Definition interface {
	ID() string
	DefineParts(b *Builder)
}

// Orienter is implemented by definitions whose placements can face any
// horizontal direction. Definitions without it always face North.
type Orienter interface {
	Facing(st State) cell.Facing
}

// Type is a registered structure type: a definition plus its frozen part list.
type Type struct {
	def   Definition
	id    string
	parts Parts
}

func NewType(def Definition) (*Type, error) {
	if def == nil {
		return nil, fmt.Errorf("multipart: nil definition")
	}
	id := strings.TrimSpace(def.ID())
	if id == "" {
		return nil, fmt.Errorf("multipart: definition has empty id")
	}
	var b Builder
	def.DefineParts(&b)
	parts, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("structure %s: %w", id, err)
	}
	return &Type{def: def, id: id, parts: parts}, nil
}

// MustNewType is NewType for init-time registration; a bad part list is a
// programming error.
func MustNewType(def Definition) *Type {
	t, err := NewType(def)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Type) ID() string             { return t.id }
func (t *Type) Definition() Definition { return t.def }
func (t *Type) Parts() Parts           { return t.parts }
func (t *Type) Size() int              { return t.parts.Len() }

// PartRange is the inclusive range of the per-cell part property.
func (t *Type) PartRange() (min, max int) { return 0, t.parts.Len() - 1 }

// Directional reports whether placements of t carry a facing.
func (t *Type) Directional() bool {
	_, ok := t.def.(Orienter)
	return ok
}

// Facing returns the orientation of the placement st belongs to.
func (t *Type) Facing(st State) cell.Facing {
	if o, ok := t.def.(Orienter); ok {
		return o.Facing(st)
	}
	return cell.North
}

// delta maps an offset into world space: depth runs against the facing, height
// is world-up and side runs along the facing's counter-clockwise neighbour.
func delta(off Offset, f cell.Facing) cell.Pos {
	return f.Vec().Scale(-off.DZ).
		Add(cell.Up.Scale(off.DY)).
		Add(f.CounterClockwise().Vec().Scale(off.DX))
}

// Origin recovers the structure origin from a cell known to hold offset off.
func (t *Type) Origin(anchor cell.Pos, off Offset, f cell.Facing) cell.Pos {
	return anchor.Sub(delta(off, f))
}

// Cell is the inverse of Origin.
func (t *Type) Cell(origin cell.Pos, off Offset, f cell.Facing) cell.Pos {
	return origin.Add(delta(off, f))
}

// resolve returns the origin and facing of the placement that anchor (holding
// st) belongs to.
func (t *Type) resolve(anchor cell.Pos, st State) (cell.Pos, cell.Facing, error) {
	if st.Part < 0 || st.Part >= t.parts.Len() {
		return cell.Pos{}, cell.North, fmt.Errorf("structure %s: part %d out of range [0,%d]", t.id, st.Part, t.parts.Len()-1)
	}
	f := t.Facing(st)
	return t.Origin(anchor, t.parts.At(st.Part), f), f, nil
}

// PlacementState is the state for a fresh placement by a placer looking
// toward placerFacing. Directional types face back at the placer.
func (t *Type) PlacementState(placerFacing cell.Facing) State {
	st := State{Block: t.id}
	if t.Directional() {
		st.Facing = placerFacing.Opposite()
	}
	return st
}

func (t *Type) Rotate(st State, r cell.Rotation) State {
	if t.Directional() {
		st.Facing = r.Rotate(st.Facing)
	}
	return st
}

func (t *Type) Mirror(st State, m cell.Mirror) State {
	return t.Rotate(st, m.Rotation(st.Facing))
}
