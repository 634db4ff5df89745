package multipart

import (
	"errors"

	"multipart.dev/internal/sim/cell"
)

type plainDef struct {
	id   string
	offs [][3]int
}

func (d plainDef) ID() string { return d.id }

func (d plainDef) DefineParts(b *Builder) {
	for _, o := range d.offs {
		b.Define(o[0], o[1], o[2])
	}
}

type facingDef struct{ plainDef }

func (facingDef) Facing(st State) cell.Facing { return st.Facing }

var errOutOfWorld = errors.New("out of world")

// fakeHost is a map-backed Host. Cells absent from the map are empty and
// replaceable; blocks listed in solid are not.
type fakeHost struct {
	cells       map[cell.Pos]State
	solid       map[string]bool
	interactive bool
	maxY        int

	sets     []cell.Pos
	destroys []cell.Pos
}

func newFakeHost(interactive bool) *fakeHost {
	return &fakeHost{
		cells:       map[cell.Pos]State{},
		solid:       map[string]bool{"stone": true},
		interactive: interactive,
		maxY:        1 << 20,
	}
}

func (h *fakeHost) SetCell(pos cell.Pos, st State, _ UpdateFlag) error {
	if pos.Y > h.maxY {
		return errOutOfWorld
	}
	h.cells[pos] = st
	h.sets = append(h.sets, pos)
	return nil
}

func (h *fakeHost) DestroyCell(pos cell.Pos, _ bool) error {
	delete(h.cells, pos)
	h.destroys = append(h.destroys, pos)
	return nil
}

func (h *fakeHost) CellState(pos cell.Pos) State { return h.cells[pos] }

func (h *fakeHost) CanBeReplaced(st State) bool {
	return st.Empty() || !h.solid[st.Block]
}

func (h *fakeHost) InteractiveSide() bool { return h.interactive }

type recordingNotifier struct{ got []cell.Pos }

func (n *recordingNotifier) Notify(pos cell.Pos) { n.got = append(n.got, pos) }
