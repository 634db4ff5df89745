package multipart

import "multipart.dev/internal/sim/cell"

// UpdateFlag tells the host what to do after a cell changes.
type UpdateFlag uint8

const (
	UpdateNeighbors UpdateFlag = 1 << iota
	UpdateClients

	UpdateNone    UpdateFlag = 0
	UpdateDefault            = UpdateNeighbors | UpdateClients
)

// State is the per-cell state written for every part of a structure. The
// host persists it; the engine only reads Block, Part and Facing back.
type State struct {
	Block  string      `json:"block"`
	Part   int         `json:"part"`
	Facing cell.Facing `json:"facing"`
}

func (s State) Empty() bool { return s.Block == "" }

// Host is the world the engine mutates. It owns storage, persistence and
// rendering; the engine only asks it for single-cell reads and writes.
type Host interface {
	SetCell(pos cell.Pos, st State, flags UpdateFlag) error
	DestroyCell(pos cell.Pos, drop bool) error
	CellState(pos cell.Pos) State
	CanBeReplaced(st State) bool
	// InteractiveSide is true on the side that renders (and therefore
	// shows survivability highlights).
	InteractiveSide() bool
}

// Notifier receives cells that failed a survivability probe.
type Notifier interface {
	Notify(pos cell.Pos)
}
