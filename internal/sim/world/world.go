package world

import (
	"fmt"
	"sync/atomic"

	"multipart.dev/internal/persistence/snapshot"
	"multipart.dev/internal/sim/catalogs"
	"multipart.dev/internal/sim/highlight"
	"multipart.dev/internal/sim/multipart"
)

type WorldConfig struct {
	ID          string
	TickRateHz  int
	FrameRateHz int
	Height      int
	BoundaryR   int

	// Interactive marks the side that renders highlights. A dedicated
	// authoritative host runs with it off.
	Interactive bool

	HighlightLifetime int
	HighlightColor    [3]float32

	// UpdateMask limits which update flags the host honours on writes.
	UpdateMask multipart.UpdateFlag

	SnapshotEveryTicks int
}

type World struct {
	cfg   WorldConfig
	cats  *catalogs.Catalogs
	types *multipart.Registry

	palette []string
	index   map[string]uint16

	chunks     *ChunkStore
	highlights *highlight.Registry

	tick atomic.Uint64

	tickLogger   TickLogger
	auditLogger  AuditLogger
	snapshotSink chan<- snapshot.SnapshotV1
	metrics      *Metrics

	// Per-tick bookkeeping for the tick log.
	tickChanges []CellChange
	tickAudits  int

	// Actor of the command currently being applied.
	actor string

	// Cells written with UpdateClients since the last frame.
	pendingChanges []CellChange

	observers map[string]*observerClient

	place         chan PlaceRequest
	breakReq      chan BreakRequest
	probeReq      chan ProbeRequest
	setBlock      chan SetBlockRequest
	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	snapshotReq   chan snapshotReq
	stop          chan struct{}
}

func New(cfg WorldConfig, cats *catalogs.Catalogs, types *multipart.Registry) (*World, error) {
	if cats == nil || types == nil {
		return nil, fmt.Errorf("world: nil catalogs or structure registry")
	}
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 20
	}
	if cfg.Height <= 0 {
		cfg.Height = 128
	}
	if cfg.HighlightLifetime <= 0 {
		cfg.HighlightLifetime = highlight.DefaultLifetime
	}

	w := &World{
		cfg:        cfg,
		cats:       cats,
		types:      types,
		index:      map[string]uint16{},
		chunks:     NewChunkStore(cfg.Height, cfg.BoundaryR),
		highlights: highlight.New(cfg.HighlightLifetime),
		observers:  map[string]*observerClient{},

		place:         make(chan PlaceRequest, 256),
		breakReq:      make(chan BreakRequest, 256),
		probeReq:      make(chan ProbeRequest, 256),
		setBlock:      make(chan SetBlockRequest, 256),
		observerJoin:  make(chan ObserverJoinRequest, 64),
		observerSub:   make(chan ObserverSubscribeRequest, 256),
		observerLeave: make(chan string, 64),
		snapshotReq:   make(chan snapshotReq, 8),
		stop:          make(chan struct{}),
	}
	if cfg.HighlightColor != ([3]float32{}) {
		c := cfg.HighlightColor
		w.highlights.SetColor(highlight.Color{R: c[0], G: c[1], B: c[2]})
	}

	// Palette: catalog blocks (AIR first), then structure types by id.
	w.palette = append(w.palette, cats.Blocks.Palette...)
	for _, t := range types.Types() {
		if _, clash := cats.Blocks.Index[t.ID()]; clash {
			return nil, fmt.Errorf("world: structure %s clashes with a block id", t.ID())
		}
		w.palette = append(w.palette, t.ID())
	}
	if len(w.palette) == 0 || w.palette[0] != "AIR" {
		return nil, fmt.Errorf("world: palette must start with AIR")
	}
	if len(w.palette) > 1<<16 {
		return nil, fmt.Errorf("world: palette too large (%d)", len(w.palette))
	}
	for i, id := range w.palette {
		w.index[id] = uint16(i)
	}
	return w, nil
}

func (w *World) Config() WorldConfig { return w.cfg }

func (w *World) ID() string { return w.cfg.ID }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) Highlights() *highlight.Registry { return w.highlights }

func (w *World) Types() *multipart.Registry { return w.types }

func (w *World) Catalogs() *catalogs.Catalogs { return w.cats }

func (w *World) Palette() []string {
	out := make([]string, len(w.palette))
	copy(out, w.palette)
	return out
}

// The setters below must be called before Run.
func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger)                  { w.auditLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }
func (w *World) SetMetrics(m *Metrics)                         { w.metrics = m }

func (w *World) ObserverJoin() chan<- ObserverJoinRequest           { return w.observerJoin }
func (w *World) ObserverSubscribe() chan<- ObserverSubscribeRequest { return w.observerSub }
func (w *World) ObserverLeave() chan<- string                       { return w.observerLeave }

// StructureInfo describes a registered structure type for clients.
type StructureInfo struct {
	ID          string   `json:"id"`
	Directional bool     `json:"directional"`
	Parts       [][3]int `json:"parts"`
}

func (w *World) StructureInfos() []StructureInfo {
	types := w.types.Types()
	out := make([]StructureInfo, 0, len(types))
	for _, t := range types {
		info := StructureInfo{ID: t.ID(), Directional: t.Directional()}
		for _, o := range t.Parts().Offsets() {
			info.Parts = append(info.Parts, [3]int{o.DX, o.DY, o.DZ})
		}
		out = append(out, info)
	}
	return out
}
