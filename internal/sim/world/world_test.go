package world

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/go-cmp/cmp"

	"multipart.dev/internal/observerproto"
	"multipart.dev/internal/persistence/snapshot"
	"multipart.dev/internal/sim/cell"
	"multipart.dev/internal/sim/multipart"
)

var anchor = cell.Pos{X: 10, Y: 64, Z: 10}

func TestNew_PaletteStartsWithAirAndAppendsStructures(t *testing.T) {
	w := newTestWorld(t, testConfig())
	p := w.Palette()
	if p[0] != "AIR" {
		t.Fatalf("palette[0]=%q", p[0])
	}
	tail := p[len(p)-3:]
	if diff := cmp.Diff([]string{"double_door", "example", "example_facing"}, tail); diff != "" {
		t.Fatalf("structure ids (-want +got):\n%s", diff)
	}
	if got := w.CellState(anchor); got.Block != "AIR" {
		t.Fatalf("fresh cell=%+v", got)
	}
}

func TestPlaceStructure_WritesEveryPart(t *testing.T) {
	w := newTestWorld(t, testConfig())
	audits := &recordingAudits{}
	w.SetAuditLogger(audits)

	res := w.PlaceStructure("example", anchor, cell.East, 0)
	if res.Err != nil {
		t.Fatalf("place: %v", res.Err)
	}
	want := []cell.Pos{{X: 10, Y: 64, Z: 10}, {X: 10, Y: 65, Z: 10}, {X: 9, Y: 64, Z: 11}}
	if diff := cmp.Diff(want, res.Cells); diff != "" {
		t.Fatalf("cells (-want +got):\n%s", diff)
	}
	for i, pos := range want {
		st := w.CellState(pos)
		if st.Block != "example" || st.Part != i || st.Facing != cell.North {
			t.Fatalf("cell %s = %+v, want part %d facing NORTH", pos, st, i)
		}
	}
	if diff := cmp.Diff([]string{AuditPlace}, audits.actions()); diff != "" {
		t.Fatalf("audits (-want +got):\n%s", diff)
	}
	if w.Highlights().Len() != 0 {
		t.Fatalf("unexpected highlights after clean placement")
	}
}

func TestPlaceStructure_DirectionalFacesPlacer(t *testing.T) {
	w := newTestWorld(t, testConfig())
	res := w.PlaceStructure("double_door", anchor, cell.North, 0)
	if res.Err != nil {
		t.Fatalf("place: %v", res.Err)
	}
	// Facing SOUTH the part X axis points EAST, so DX=-1 is one cell west.
	left := cell.Pos{X: 9, Y: 64, Z: 10}
	st := w.CellState(left)
	if st.Block != "double_door" || st.Part != 2 || st.Facing != cell.South {
		t.Fatalf("left door cell=%+v", st)
	}
}

func TestPlaceStructure_BlockedCellIsHighlighted(t *testing.T) {
	w := newTestWorld(t, testConfig())
	stone := cell.Pos{X: 10, Y: 65, Z: 10}
	if r := w.SetBlockAt(stone, "STONE"); r.Err != nil {
		t.Fatalf("set block: %v", r.Err)
	}
	audits := &recordingAudits{}
	w.SetAuditLogger(audits)

	res := w.PlaceStructure("example", anchor, cell.North, 0)
	if !errors.Is(res.Err, ErrBlocked) {
		t.Fatalf("err=%v want ErrBlocked", res.Err)
	}
	if diff := cmp.Diff([]cell.Pos{stone}, res.Blocked); diff != "" {
		t.Fatalf("blocked (-want +got):\n%s", diff)
	}
	if got := w.CellState(anchor).Block; got != "AIR" {
		t.Fatalf("anchor written despite block: %s", got)
	}
	if left, ok := w.Highlights().Remaining(stone); !ok || left != 60 {
		t.Fatalf("highlight=%d,%v want 60,true", left, ok)
	}
	if diff := cmp.Diff([]string{AuditPlaceBlocked}, audits.actions()); diff != "" {
		t.Fatalf("audits (-want +got):\n%s", diff)
	}
}

func TestPlaceStructure_ServerSideDoesNotHighlight(t *testing.T) {
	cfg := testConfig()
	cfg.Interactive = false
	w := newTestWorld(t, cfg)
	stone := cell.Pos{X: 10, Y: 65, Z: 10}
	_ = w.SetBlockAt(stone, "STONE")

	res := w.PlaceStructure("example", anchor, cell.North, 0)
	if !errors.Is(res.Err, ErrBlocked) || len(res.Blocked) != 1 {
		t.Fatalf("result=%+v", res)
	}
	if w.Highlights().Len() != 0 {
		t.Fatalf("server side must not highlight")
	}
}

func TestPlaceStructure_OverwritesReplaceableBlocks(t *testing.T) {
	w := newTestWorld(t, testConfig())
	grass := cell.Pos{X: 9, Y: 64, Z: 11}
	_ = w.SetBlockAt(grass, "TALL_GRASS")
	if res := w.PlaceStructure("example", anchor, cell.North, 0); res.Err != nil {
		t.Fatalf("place: %v", res.Err)
	}
	if st := w.CellState(grass); st.Block != "example" || st.Part != 2 {
		t.Fatalf("grass cell=%+v", st)
	}
}

func TestPlaceStructure_PartialAtWorldTop(t *testing.T) {
	w := newTestWorld(t, testConfig())
	top := cell.Pos{X: 10, Y: 127, Z: 10}
	res := w.PlaceStructure("example", top, cell.North, 0)
	if res.Err == nil || !errors.Is(res.Err, ErrOutOfBounds) {
		t.Fatalf("err=%v want out of bounds", res.Err)
	}
	if st := w.CellState(top); st.Block != "example" || st.Part != 0 {
		t.Fatalf("part 0 not kept: %+v", st)
	}
	if st := w.CellState(cell.Pos{X: 9, Y: 127, Z: 11}); st.Block != "example" || st.Part != 2 {
		t.Fatalf("part 2 not attempted after failure: %+v", st)
	}
}

func TestPlaceStructure_UnknownStructure(t *testing.T) {
	w := newTestWorld(t, testConfig())
	if res := w.PlaceStructure("nope", anchor, cell.North, 0); !errors.Is(res.Err, ErrUnknownStructure) {
		t.Fatalf("err=%v", res.Err)
	}
	if res := w.PlaceStructure("example", anchor, cell.North, 3); res.Err == nil {
		t.Fatalf("expected out-of-range part error")
	}
}

func TestBreak_RemovesWholeStructure(t *testing.T) {
	w := newTestWorld(t, testConfig())
	placed := w.PlaceStructure("example", anchor, cell.North, 0)
	if placed.Err != nil {
		t.Fatalf("place: %v", placed.Err)
	}
	audits := &recordingAudits{}
	w.SetAuditLogger(audits)

	res := w.Break(cell.Pos{X: 10, Y: 65, Z: 10})
	if res.Err != nil {
		t.Fatalf("break: %v", res.Err)
	}
	if diff := cmp.Diff(placed.Cells, res.Cells); diff != "" {
		t.Fatalf("broken cells (-want +got):\n%s", diff)
	}
	for _, pos := range placed.Cells {
		if got := w.CellState(pos).Block; got != "AIR" {
			t.Fatalf("cell %s still %s", pos, got)
		}
	}
	if len(audits.entries) != 3 || audits.entries[0].Reason != "drop" || audits.entries[1].Reason != "" {
		t.Fatalf("audits=%+v", audits.entries)
	}
}

func TestBreak_LeavesForeignOccupant(t *testing.T) {
	w := newTestWorld(t, testConfig())
	_ = w.PlaceStructure("example", anchor, cell.North, 0)
	foreign := cell.Pos{X: 9, Y: 64, Z: 11}
	_ = w.SetBlockAt(foreign, "STONE")

	if res := w.Break(anchor); res.Err != nil {
		t.Fatalf("break: %v", res.Err)
	}
	if got := w.CellState(foreign).Block; got != "STONE" {
		t.Fatalf("foreign cell=%s", got)
	}
	if res := w.Break(cell.Pos{X: 0, Y: 10, Z: 0}); res.Err != nil || len(res.Cells) != 0 {
		t.Fatalf("breaking air=%+v", res)
	}
}

func TestSetBlockAt_RefusesStructureIDs(t *testing.T) {
	w := newTestWorld(t, testConfig())
	if res := w.SetBlockAt(anchor, "example"); !errors.Is(res.Err, ErrUnknownBlock) {
		t.Fatalf("err=%v", res.Err)
	}
}

func TestStep_HighlightsExpire(t *testing.T) {
	w := newTestWorld(t, testConfig())
	ticks := &recordingTicks{}
	w.SetTickLogger(ticks)
	_ = w.SetBlockAt(cell.Pos{X: 10, Y: 65, Z: 10}, "STONE")
	_ = w.PlaceStructure("example", anchor, cell.North, 0)

	for i := 0; i < 59; i++ {
		w.StepOnce()
	}
	if w.Highlights().Len() != 1 {
		t.Fatalf("highlight gone early")
	}
	w.StepOnce()
	if w.Highlights().Len() != 0 {
		t.Fatalf("highlight still active after 60 ticks")
	}
	if w.CurrentTick() != 60 {
		t.Fatalf("tick=%d", w.CurrentTick())
	}
	if len(ticks.entries) != 1 || ticks.entries[0].Tick != 0 || ticks.entries[0].Audits != 2 {
		t.Fatalf("tick log=%+v", ticks.entries)
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	w := newTestWorld(t, testConfig())
	_ = w.PlaceStructure("double_door", anchor, cell.West, 1)
	_ = w.SetBlockAt(cell.Pos{X: -20, Y: 0, Z: -33}, "LOG")
	w.StepOnce()

	snap := w.ExportSnapshot(w.CurrentTick() - 1)
	w2 := newTestWorld(t, testConfig())
	if err := w2.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	if w.StateDigest() != w2.StateDigest() {
		t.Fatalf("digest mismatch after import")
	}
	if w2.CurrentTick() != w.CurrentTick() {
		t.Fatalf("tick=%d want %d", w2.CurrentTick(), w.CurrentTick())
	}
	if diff := cmp.Diff(w.CellState(anchor), w2.CellState(anchor)); diff != "" {
		t.Fatalf("anchor (-want +got):\n%s", diff)
	}

	snap.Palette[1] = "UNOBTAINIUM"
	if err := w2.ImportSnapshot(snap); !errors.Is(err, ErrUnknownBlock) {
		t.Fatalf("err=%v want ErrUnknownBlock", err)
	}
}

func TestUpdateMask_SuppressesClientChanges(t *testing.T) {
	cfg := testConfig()
	cfg.UpdateMask = multipart.UpdateNeighbors
	w := newTestWorld(t, cfg)
	_ = w.PlaceStructure("example", anchor, cell.North, 0)
	if len(w.pendingChanges) != 0 {
		t.Fatalf("client changes recorded despite mask: %d", len(w.pendingChanges))
	}
	if len(w.tickChanges) != 3 {
		t.Fatalf("tick changes=%d want 3", len(w.tickChanges))
	}
}

func TestRun_CommandsAndFrames(t *testing.T) {
	cfg := testConfig()
	cfg.TickRateHz = 100
	cfg.FrameRateHz = 200
	w := newTestWorld(t, cfg)
	_ = w.SetBlockAt(cell.Pos{X: 10, Y: 65, Z: 10}, "STONE")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	out := make(chan []byte, 4)
	data := make(chan []byte, 64)
	w.ObserverJoin() <- ObserverJoinRequest{SessionID: "obs", TickOut: out, DataOut: data, Camera: mgl64.Vec3{10, 64, 10}}

	res, err := w.RequestPlace(ctx, PlaceRequest{Actor: "tester", Structure: "example", Anchor: anchor, Facing: cell.North})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if !errors.Is(res.Err, ErrBlocked) {
		t.Fatalf("err=%v want ErrBlocked", res.Err)
	}

	for {
		select {
		case b := <-out:
			var msg observerproto.FrameMsg
			if err := json.Unmarshal(b, &msg); err != nil {
				t.Fatalf("decode frame: %v", err)
			}
			if msg.Type != "FRAME" || len(msg.Lines) == 0 {
				continue
			}
			l := msg.Lines[0]
			if l.Min != [3]float64{0, 1, 0} || l.Max != [3]float64{1, 2, 1} || l.Color[0] != 1 {
				t.Fatalf("line=%+v", l)
			}
			w.Stop()
			if err := <-done; err != nil {
				t.Fatalf("run: %v", err)
			}
			if w.Highlights().Len() != 0 {
				t.Fatalf("highlights kept after Run returned")
			}
			w.Highlights().Notify(anchor)
			if w.Highlights().Len() != 0 {
				t.Fatalf("notify accepted after Run returned")
			}
			return
		case <-ctx.Done():
			t.Fatalf("no highlighted frame received")
		}
	}
}

func decodeChanges(t *testing.T, b []byte) observerproto.ChangesMsg {
	t.Helper()
	var msg observerproto.ChangesMsg
	if err := json.Unmarshal(b, &msg); err != nil {
		t.Fatalf("decode changes: %v", err)
	}
	if msg.Type != "CHANGES" {
		t.Fatalf("type=%q", msg.Type)
	}
	return msg
}

func TestStepFrame_ChangesSurviveFrameBacklog(t *testing.T) {
	w := newTestWorld(t, testConfig())
	tickOut := make(chan []byte, 1)
	data := make(chan []byte, 8)
	w.handleObserverJoin(ObserverJoinRequest{SessionID: "obs", TickOut: tickOut, DataOut: data})

	if res := w.PlaceStructure("example", anchor, cell.North, 0); res.Err != nil {
		t.Fatalf("place: %v", res.Err)
	}
	// Nobody drains the frames; the second one replaces the first.
	w.stepFrame()
	w.stepFrame()

	if len(tickOut) != 1 {
		t.Fatalf("frames queued=%d want 1", len(tickOut))
	}
	if len(data) != 1 {
		t.Fatalf("change messages=%d want 1", len(data))
	}
	msg := decodeChanges(t, <-data)
	if len(msg.Changes) != 3 {
		t.Fatalf("changes=%d want 3", len(msg.Changes))
	}
	for _, c := range msg.Changes {
		if c.Block != "example" {
			t.Fatalf("change=%+v", c)
		}
	}
}

func TestStepFrame_DataOverflowClosesObserver(t *testing.T) {
	w := newTestWorld(t, testConfig())
	tickOut := make(chan []byte, 1)
	data := make(chan []byte, 1)
	w.handleObserverJoin(ObserverJoinRequest{SessionID: "obs", TickOut: tickOut, DataOut: data})

	_ = w.SetBlockAt(anchor, "STONE")
	w.stepFrame()
	_ = w.SetBlockAt(anchor, "AIR")
	w.stepFrame()

	if _, ok := w.observers["obs"]; ok {
		t.Fatalf("observer kept after losing a change")
	}
	if msg := decodeChanges(t, <-data); msg.Changes[0].Block != "STONE" {
		t.Fatalf("first change=%+v", msg.Changes[0])
	}
	if _, ok := <-data; ok {
		t.Fatalf("data stream still open")
	}
}

func TestStep_FreshHighlightDrawnOpaque(t *testing.T) {
	w := newTestWorld(t, testConfig())
	_ = w.SetBlockAt(cell.Pos{X: 10, Y: 65, Z: 10}, "STONE")
	tickOut := make(chan []byte, 1)
	w.handleObserverJoin(ObserverJoinRequest{SessionID: "obs", TickOut: tickOut, DataOut: make(chan []byte, 8), Camera: mgl64.Vec3{10, 64, 10}})

	place := func() { _ = w.PlaceStructure("example", anchor, cell.North, 0) }
	w.step([]func(){place})
	w.stepFrame()

	var msg observerproto.FrameMsg
	if err := json.Unmarshal(<-tickOut, &msg); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if len(msg.Lines) != 1 || msg.Lines[0].Color[3] != 1 {
		t.Fatalf("lines=%+v want one opaque box", msg.Lines)
	}
	if left, _ := w.Highlights().Remaining(cell.Pos{X: 10, Y: 65, Z: 10}); left != 60 {
		t.Fatalf("remaining=%d want 60", left)
	}
}

func TestProbePlacement_BlockedMatchesOnBothSides(t *testing.T) {
	stone := cell.Pos{X: 10, Y: 65, Z: 10}
	var got [][]cell.Pos
	for _, interactive := range []bool{true, false} {
		cfg := testConfig()
		cfg.Interactive = interactive
		w := newTestWorld(t, cfg)
		_ = w.SetBlockAt(stone, "STONE")
		res := w.ProbePlacement("example", anchor, cell.North, 0)
		if res.Err != nil {
			t.Fatalf("probe: %v", res.Err)
		}
		got = append(got, res.Blocked)
		if want := map[bool]int{true: 1, false: 0}[interactive]; w.Highlights().Len() != want {
			t.Fatalf("interactive=%v highlights=%d want %d", interactive, w.Highlights().Len(), want)
		}
	}
	if diff := cmp.Diff(got[0], got[1]); diff != "" {
		t.Fatalf("blocked differs between sides (-interactive +dedicated):\n%s", diff)
	}
	if diff := cmp.Diff([]cell.Pos{stone}, got[0]); diff != "" {
		t.Fatalf("blocked (-want +got):\n%s", diff)
	}
}

func TestStep_PeriodicSnapshots(t *testing.T) {
	cfg := testConfig()
	cfg.SnapshotEveryTicks = 5
	w := newTestWorld(t, cfg)
	sink := make(chan snapshot.SnapshotV1, 4)
	w.SetSnapshotSink(sink)

	for i := 0; i < 10; i++ {
		w.StepOnce()
	}
	close(sink)
	var ticks []uint64
	for s := range sink {
		ticks = append(ticks, s.Header.Tick)
	}
	if diff := cmp.Diff([]uint64{4, 9}, ticks); diff != "" {
		t.Fatalf("snapshot ticks (-want +got):\n%s", diff)
	}
}
