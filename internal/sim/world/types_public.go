package world

import (
	"errors"

	"multipart.dev/internal/sim/cell"
)

var (
	ErrUnknownStructure = errors.New("unknown structure")
	ErrUnknownBlock     = errors.New("unknown block")
	ErrBlocked          = errors.New("placement blocked")
	ErrNotRunning       = errors.New("world loop not running")
)

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type TickLogEntry struct {
	Tick       uint64       `json:"tick"`
	Changes    []CellChange `json:"changes,omitempty"`
	Audits     int          `json:"audits,omitempty"`
	Highlights int          `json:"highlights"`
	Digest     string       `json:"digest"`
}

const (
	AuditPlace        = "PLACE"
	AuditPlaceBlocked = "PLACE_BLOCKED"
	AuditDestroy      = "DESTROY"
	AuditSetBlock     = "SET_BLOCK"
)

type AuditEntry struct {
	Tick    uint64         `json:"tick"`
	Actor   string         `json:"actor"`
	Action  string         `json:"action"` // e.g. "PLACE"
	Block   string         `json:"block"`
	Pos     [3]int         `json:"pos"`
	Part    int            `json:"part"`
	Facing  string         `json:"facing,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Result is the outcome of one command run on the world loop.
type Result struct {
	Tick    uint64     `json:"tick"`
	Block   string     `json:"block,omitempty"`
	Cells   []cell.Pos `json:"cells,omitempty"`
	Blocked []cell.Pos `json:"blocked,omitempty"`
	Err     error      `json:"-"`
}

type PlaceRequest struct {
	Actor     string
	Structure string
	Anchor    cell.Pos
	// Facing is the direction the placer looks in.
	Facing cell.Facing
	// Part is the part index the anchor cell takes.
	Part int
	Resp chan Result
}

type ProbeRequest struct {
	Actor     string
	Structure string
	Anchor    cell.Pos
	Facing    cell.Facing
	Part      int
	Resp      chan Result
}

type BreakRequest struct {
	Actor string
	Pos   cell.Pos
	Resp  chan Result
}

type SetBlockRequest struct {
	Actor string
	Pos   cell.Pos
	Block string
	Resp  chan Result
}
