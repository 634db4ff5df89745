package world

import (
	"encoding/json"

	"github.com/go-gl/mathgl/mgl64"

	"multipart.dev/internal/observerproto"
	"multipart.dev/internal/sim/highlight"
)

// ObserverJoinRequest registers a read-only observer session.
//
// Two outbound streams are used:
// - FRAME highlight lines (TickOut): latest-only, older frames are dropped
// - CHANGES cell deltas (DataOut): never dropped; the session is closed if it overflows
//
// All observer state is maintained by the world loop goroutine.
type ObserverJoinRequest struct {
	SessionID string
	TickOut   chan []byte
	DataOut   chan []byte
	Camera    mgl64.Vec3
}

// ObserverSubscribeRequest moves an existing observer's camera.
type ObserverSubscribeRequest struct {
	SessionID string
	Camera    mgl64.Vec3
}

type observerClient struct {
	id      string
	tickOut chan []byte
	dataOut chan []byte
	rec     highlight.Recorder
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.TickOut == nil || req.DataOut == nil {
		return
	}
	if old := w.observers[req.SessionID]; old != nil {
		w.dropObserver(old)
	}
	w.observers[req.SessionID] = &observerClient{
		id:      req.SessionID,
		tickOut: req.TickOut,
		dataOut: req.DataOut,
		rec:     highlight.Recorder{Cam: req.Camera},
	}
}

func (w *World) handleObserverSubscribe(req ObserverSubscribeRequest) {
	if c := w.observers[req.SessionID]; c != nil {
		c.rec.Cam = req.Camera
	}
}

func (w *World) handleObserverLeave(id string) {
	if c := w.observers[id]; c != nil {
		w.dropObserver(c)
	}
}

// dropObserver closes both streams; the transport ends the session when it
// sees them closed.
func (w *World) dropObserver(c *observerClient) {
	delete(w.observers, c.id)
	close(c.tickOut)
	close(c.dataOut)
}

// stepFrame flushes pending client-visible cell changes and renders the
// highlight registry once per observer. Without observers the changes are
// dropped.
func (w *World) stepFrame() {
	changes := w.pendingChanges
	w.pendingChanges = nil
	if len(w.observers) == 0 {
		return
	}
	tick := w.tick.Load()

	var data []byte
	if len(changes) > 0 {
		msg := observerproto.ChangesMsg{
			Type:            "CHANGES",
			ProtocolVersion: observerproto.Version,
			Tick:            tick,
			Changes:         make([]observerproto.CellChange, 0, len(changes)),
		}
		for _, c := range changes {
			msg.Changes = append(msg.Changes, observerproto.CellChange(c))
		}
		b, err := json.Marshal(msg)
		if err == nil {
			data = b
		}
	}

	for _, c := range w.observers {
		// A lost delta would leave the observer's copy of the world stale.
		if data != nil && !trySend(c.dataOut, data) {
			w.dropObserver(c)
			continue
		}
		c.rec.Reset()
		w.highlights.OnRender(&c.rec)
		b, err := json.Marshal(frameMsg(tick, &c.rec))
		if err != nil {
			continue
		}
		sendLatest(c.tickOut, b)
	}
}

func frameMsg(tick uint64, rec *highlight.Recorder) observerproto.FrameMsg {
	msg := observerproto.FrameMsg{
		Type:            "FRAME",
		ProtocolVersion: observerproto.Version,
		Tick:            tick,
		Camera:          rec.Cam,
		Lines:           make([]observerproto.LineBox, 0, len(rec.Lines)),
	}
	for _, l := range rec.Lines {
		msg.Lines = append(msg.Lines, observerproto.LineBox{
			Min:   l.Box.Min,
			Max:   l.Box.Max,
			Color: [4]float32{l.Color.R, l.Color.G, l.Color.B, l.Color.A},
		})
	}
	return msg
}
