package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"multipart.dev/internal/protocol"
	"multipart.dev/internal/sim/cell"
	"multipart.dev/internal/sim/world"
)

type Server struct {
	world *world.World
	log   *log.Logger

	// CommandTimeout bounds how long a command may wait for the world loop.
	CommandTimeout time.Duration

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	return &Server{
		world:          w,
		log:            logger,
		CommandTimeout: 5 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, name := s.handshake(conn)
		if sessionID == "" {
			return
		}
		if s.log != nil {
			s.log.Printf("session %s (%s) connected from %s", sessionID, name, r.RemoteAddr)
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan []byte, 32)
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Commands are handled one at a time so a session's results come
		// back in the order it sent them.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var reply any
			cmd, err := protocol.DecodeCommand(msg)
			switch {
			case err != nil:
				reply = errorMsg(protocol.ErrProtoBadRequest, err.Error())
			case cmd.ProtocolVersion != protocol.Version:
				reply = errorMsg(protocol.ErrProtoBadRequest, "bad protocol_version")
			case cmd.Type == protocol.TypeHello:
				reply = errorMsg(protocol.ErrProtoBadRequest, "already welcomed")
			default:
				reply = s.execute(ctx, sessionID, cmd)
			}
			b, err := json.Marshal(reply)
			if err != nil {
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
		cancel()
		<-writerDone
		if s.log != nil {
			s.log.Printf("session %s closed", sessionID)
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID, name string) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", ""
	}
	hello, err := protocol.DecodeCommand(msg)
	if err != nil || hello.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", ""
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", ""
	}
	name = hello.ClientName
	if name == "" {
		name = "client"
	}
	sessionID = uuid.NewString()

	if err := writeJSON(conn, s.welcome(sessionID)); err != nil {
		return "", ""
	}
	return sessionID, name
}

func (s *Server) welcome(sessionID string) protocol.WelcomeMsg {
	cfg := s.world.Config()
	cats := s.world.Catalogs()
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		WorldID:         cfg.ID,
		Tick:            s.world.CurrentTick(),
		WorldParams: protocol.WorldParams{
			TickRateHz: cfg.TickRateHz,
			ChunkSize:  [3]int{16, 16, cfg.Height},
			Height:     cfg.Height,
			BoundaryR:  cfg.BoundaryR,
		},
		Catalogs: protocol.CatalogDigests{
			BlockPalette: protocol.DigestRef{Digest: cats.Blocks.PaletteDigest, Count: len(s.world.Palette())},
			Structures:   protocol.DigestRef{Digest: cats.Structures.Digest, Count: len(cats.Structures.ByID)},
		},
	}
}

func (s *Server) execute(ctx context.Context, actor string, cmd protocol.CommandMsg) protocol.ResultMsg {
	ctx, cancel := context.WithTimeout(ctx, s.CommandTimeout)
	defer cancel()

	if cmd.Pos == nil {
		return resultErr(cmd.ID, protocol.ErrBadRequest, "missing pos")
	}
	pos := cell.FromArray(*cmd.Pos)
	var (
		res world.Result
		err error
	)
	switch cmd.Type {
	case protocol.TypePlace, protocol.TypeProbe:
		f, ferr := cell.ParseFacing(cmd.Facing)
		if ferr != nil {
			return resultErr(cmd.ID, protocol.ErrBadRequest, ferr.Error())
		}
		if cmd.Type == protocol.TypePlace {
			res, err = s.world.RequestPlace(ctx, world.PlaceRequest{Actor: actor, Structure: cmd.Structure, Anchor: pos, Facing: f, Part: cmd.Part})
		} else {
			res, err = s.world.RequestProbe(ctx, world.ProbeRequest{Actor: actor, Structure: cmd.Structure, Anchor: pos, Facing: f, Part: cmd.Part})
		}
	case protocol.TypeBreak:
		res, err = s.world.RequestBreak(ctx, world.BreakRequest{Actor: actor, Pos: pos})
	case protocol.TypeSetBlock:
		res, err = s.world.RequestSetBlock(ctx, world.SetBlockRequest{Actor: actor, Pos: pos, Block: cmd.Block})
	default:
		return resultErr(cmd.ID, protocol.ErrBadRequest, "unsupported command "+cmd.Type)
	}
	if err != nil {
		return resultErr(cmd.ID, protocol.ErrWorldBusy, err.Error())
	}

	msg := protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		Ref:             cmd.ID,
		OK:              res.Err == nil,
		Tick:            res.Tick,
		Block:           res.Block,
		Cells:           toArrays(res.Cells),
		Blocked:         toArrays(res.Blocked),
	}
	if res.Err != nil {
		msg.Code = ErrorCode(res.Err)
		msg.Message = res.Err.Error()
	}
	return msg
}

// ErrorCode maps a world error to its wire code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, world.ErrUnknownStructure):
		return protocol.ErrUnknownStructure
	case errors.Is(err, world.ErrUnknownBlock):
		return protocol.ErrUnknownBlock
	case errors.Is(err, world.ErrBlocked):
		return protocol.ErrBlocked
	case errors.Is(err, world.ErrOutOfBounds):
		return protocol.ErrOutOfBounds
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return protocol.ErrWorldBusy
	default:
		return protocol.ErrBadRequest
	}
}

func toArrays(ps []cell.Pos) [][3]int {
	if len(ps) == 0 {
		return nil
	}
	out := make([][3]int, len(ps))
	for i, p := range ps {
		out[i] = p.ToArray()
	}
	return out
}

func resultErr(ref, code, message string) protocol.ResultMsg {
	return protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		Ref:             ref,
		Code:            code,
		Message:         message,
	}
}

func errorMsg(code, message string) protocol.ErrorMsg {
	return protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
