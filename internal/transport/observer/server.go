package observer

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"multipart.dev/internal/observerproto"
	"multipart.dev/internal/sim/world"
)

type Server struct {
	world *world.World
	log   *log.Logger

	// AllowRemote lifts the loopback-only restriction.
	AllowRemote bool

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		cfg := s.world.Config()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			WorldID:         cfg.ID,
			Tick:            s.world.CurrentTick(),
			WorldParams: observerproto.WorldParams{
				TickRateHz:        cfg.TickRateHz,
				FrameRateHz:       cfg.FrameRateHz,
				ChunkSize:         [3]int{16, 16, cfg.Height},
				Height:            cfg.Height,
				BoundaryR:         cfg.BoundaryR,
				HighlightLifetime: cfg.HighlightLifetime,
			},
			BlockPalette: s.world.Palette(),
		}
		for _, info := range s.world.StructureInfos() {
			resp.Structures = append(resp.Structures, observerproto.StructureInfo(info))
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := decodeSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := "O" + uuid.NewString()
		tickOut := make(chan []byte, 8)
		dataOut := make(chan []byte, 4096)
		joinReq := world.ObserverJoinRequest{
			SessionID: sid,
			TickOut:   tickOut,
			DataOut:   dataOut,
			Camera:    mgl64.Vec3(sub.Camera),
		}
		select {
		case s.world.ObserverJoin() <- joinReq:
		default:
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server busy"), time.Now().Add(time.Second))
			return
		}
		left := false
		leave := func() {
			if left {
				return
			}
			left = true
			select {
			case s.world.ObserverLeave() <- sid:
			case <-time.After(time.Second):
				// World loop is stopping; nothing else to do.
			}
		}
		defer leave()
		if s.log != nil {
			s.log.Printf("observer %s subscribed from %s", sid, r.RemoteAddr)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine. The world loop closes both streams when the
		// session leaves or falls too far behind on CHANGES.
		writeErr := make(chan error, 1)
		go func() {
			for {
				var (
					b  []byte
					ok bool
				)
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok = <-dataOut:
				case b, ok = <-tickOut:
				}
				if !ok {
					writeErr <- nil
					// Unblock the reader so the handler can finish.
					_ = conn.SetReadDeadline(time.Now())
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					writeErr <- err
					return
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates that move the camera.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			sub, ok := decodeSubscribe(msg)
			if !ok {
				continue
			}
			req := world.ObserverSubscribeRequest{SessionID: sid, Camera: mgl64.Vec3(sub.Camera)}
			select {
			case s.world.ObserverSubscribe() <- req:
			default:
				// Drop updates under load; the client may resend.
			}
		}

		leave()
		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func decodeSubscribe(b []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(b, &sub); err != nil {
		return sub, false
	}
	if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	return sub, true
}

func (s *Server) allowed(r *http.Request) bool {
	return s.AllowRemote || isLoopbackRemote(r.RemoteAddr)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
