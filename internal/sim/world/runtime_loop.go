package world

import (
	"context"
	"errors"
	"time"
)

func (w *World) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(w.cfg.TickRateHz))
	defer ticker.Stop()

	// A zero frame rate disables rendering; a nil channel never fires.
	var frames <-chan time.Time
	if w.cfg.FrameRateHz > 0 {
		ft := time.NewTicker(time.Second / time.Duration(w.cfg.FrameRateHz))
		defer ft.Stop()
		frames = ft.C
	}

	var pending []func()
	var pendingSnapshots []snapshotReq
	defer w.highlights.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.place:
			pending = append(pending, func() {
				w.actor = req.Actor
				reply(req.Resp, w.PlaceStructure(req.Structure, req.Anchor, req.Facing, req.Part))
			})
		case req := <-w.probeReq:
			pending = append(pending, func() {
				w.actor = req.Actor
				reply(req.Resp, w.ProbePlacement(req.Structure, req.Anchor, req.Facing, req.Part))
			})
		case req := <-w.breakReq:
			pending = append(pending, func() {
				w.actor = req.Actor
				reply(req.Resp, w.Break(req.Pos))
			})
		case req := <-w.setBlock:
			pending = append(pending, func() {
				w.actor = req.Actor
				reply(req.Resp, w.SetBlockAt(req.Pos, req.Block))
			})
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case req := <-w.observerSub:
			w.handleObserverSubscribe(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case req := <-w.snapshotReq:
			pendingSnapshots = append(pendingSnapshots, req)
		case <-frames:
			w.stepFrame()
		case <-ticker.C:
			w.step(pending)
			w.handleSnapshotRequests(pendingSnapshots)
			pending = pending[:0]
			pendingSnapshots = pendingSnapshots[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// step ages highlights, then applies the queued commands in arrival order.
// Highlights raised by this tick's commands are drawn at full lifetime until
// the next step.
func (w *World) step(cmds []func()) {
	start := time.Now()
	tick := w.tick.Load()
	w.highlights.OnTick()
	for _, apply := range cmds {
		apply()
		w.actor = ""
	}

	if w.tickLogger != nil && (len(w.tickChanges) > 0 || w.tickAudits > 0) {
		_ = w.tickLogger.WriteTick(TickLogEntry{
			Tick:       tick,
			Changes:    w.tickChanges,
			Audits:     w.tickAudits,
			Highlights: w.highlights.Len(),
			Digest:     w.StateDigest(),
		})
	}
	w.tickChanges = nil
	w.tickAudits = 0

	// Periodic snapshots land on the last tick of each window.
	if n := w.cfg.SnapshotEveryTicks; n > 0 && (tick+1)%uint64(n) == 0 && w.snapshotSink != nil {
		select {
		case w.snapshotSink <- w.ExportSnapshot(tick):
		default:
		}
	}

	w.tick.Add(1)
	w.metrics.observeStep(tick+1, w.highlights.Len(), len(w.chunks.chunks), time.Since(start))
}

// StepOnce advances the world by one tick with no queued commands. It is
// meant for tests and tools that drive the world without Run.
func (w *World) StepOnce() uint64 {
	w.step(nil)
	return w.tick.Load()
}

func reply(ch chan Result, r Result) {
	if ch == nil {
		return
	}
	select {
	case ch <- r:
	default:
		// Caller gave up; never block the loop.
	}
}

func request[T any](ctx context.Context, ch chan<- T, req T, resp chan Result) (Result, error) {
	select {
	case ch <- req:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case r := <-resp:
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// RequestPlace queues a placement for the next tick and waits for its result.
// It is safe to call from other goroutines.
func (w *World) RequestPlace(ctx context.Context, req PlaceRequest) (Result, error) {
	req.Resp = make(chan Result, 1)
	return request(ctx, w.place, req, req.Resp)
}

func (w *World) RequestProbe(ctx context.Context, req ProbeRequest) (Result, error) {
	req.Resp = make(chan Result, 1)
	return request(ctx, w.probeReq, req, req.Resp)
}

func (w *World) RequestBreak(ctx context.Context, req BreakRequest) (Result, error) {
	req.Resp = make(chan Result, 1)
	return request(ctx, w.breakReq, req, req.Resp)
}

func (w *World) RequestSetBlock(ctx context.Context, req SetBlockRequest) (Result, error) {
	req.Resp = make(chan Result, 1)
	return request(ctx, w.setBlock, req, req.Resp)
}

type snapshotReq struct {
	Resp chan snapshotResp
}

type snapshotResp struct {
	Tick uint64
	Err  string
}

// RequestSnapshot asks the world loop to hand a snapshot to the sink.
func (w *World) RequestSnapshot(ctx context.Context) (uint64, error) {
	resp := make(chan snapshotResp, 1)
	select {
	case w.snapshotReq <- snapshotReq{Resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-resp:
		if r.Err != "" {
			return r.Tick, errors.New(r.Err)
		}
		return r.Tick, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (w *World) handleSnapshotRequests(reqs []snapshotReq) {
	if len(reqs) == 0 {
		return
	}
	cur := w.tick.Load()
	snapTick := uint64(0)
	if cur > 0 {
		snapTick = cur - 1
	}
	errStr := ""
	if w.snapshotSink == nil {
		errStr = "snapshot sink not configured"
	} else {
		select {
		case w.snapshotSink <- w.ExportSnapshot(snapTick):
		default:
			errStr = "snapshot sink backpressure"
		}
	}
	resp := snapshotResp{Tick: snapTick, Err: errStr}
	for _, r := range reqs {
		select {
		case r.Resp <- resp:
		default:
		}
	}
}

func trySend(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	default:
		return false
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
