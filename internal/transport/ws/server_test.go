package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"multipart.dev/internal/protocol"
	"multipart.dev/internal/sim/catalogs"
	"multipart.dev/internal/sim/multipart"
	"multipart.dev/internal/sim/world"
)

func startWorld(t *testing.T) *world.World {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	reg := multipart.NewRegistry()
	if err := cats.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	w, err := world.New(world.WorldConfig{
		ID:                "ws-test",
		TickRateHz:        50,
		Height:            128,
		BoundaryR:         256,
		HighlightLifetime: 60,
		UpdateMask:        multipart.UpdateDefault,
	}, cats, reg)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, s string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(s)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func recv[T any](t *testing.T, conn *websocket.Conn) T {
	t.Helper()
	var v T
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	return v
}

func TestServer_HelloPlaceBreak(t *testing.T) {
	w := startWorld(t)
	srv := httptest.NewServer(NewServer(w, nil).Handler())
	defer srv.Close()
	conn := dial(t, srv)

	send(t, conn, `{"type":"HELLO","protocol_version":"1.0","client_name":"tester"}`)
	welcome := recv[protocol.WelcomeMsg](t, conn)
	if welcome.Type != protocol.TypeWelcome || welcome.SessionID == "" || welcome.WorldID != "ws-test" {
		t.Fatalf("welcome=%+v", welcome)
	}
	if welcome.Catalogs.Structures.Count != 3 || welcome.Catalogs.Structures.Digest == "" {
		t.Fatalf("structures digest=%+v", welcome.Catalogs.Structures)
	}

	send(t, conn, `{"type":"PLACE","protocol_version":"1.0","id":"p1","structure":"example","pos":[10,64,10],"facing":"NORTH"}`)
	res := recv[protocol.ResultMsg](t, conn)
	if !res.OK || res.Ref != "p1" || len(res.Cells) != 3 {
		t.Fatalf("place=%+v", res)
	}

	send(t, conn, `{"type":"PLACE","protocol_version":"1.0","id":"p2","structure":"example","pos":[10,64,10],"facing":"NORTH"}`)
	res = recv[protocol.ResultMsg](t, conn)
	if res.OK || res.Code != protocol.ErrBlocked || len(res.Blocked) != 3 {
		t.Fatalf("second place=%+v", res)
	}

	send(t, conn, `{"type":"BREAK","protocol_version":"1.0","id":"b1","pos":[10,65,10]}`)
	res = recv[protocol.ResultMsg](t, conn)
	if !res.OK || res.Ref != "b1" {
		t.Fatalf("break=%+v", res)
	}

	send(t, conn, `{"type":"PROBE","protocol_version":"1.0","id":"q1","structure":"example","pos":[10,64,10],"facing":"EAST"}`)
	res = recv[protocol.ResultMsg](t, conn)
	if !res.OK || len(res.Blocked) != 0 {
		t.Fatalf("probe after break=%+v", res)
	}
}

func TestServer_ErrorsAreReported(t *testing.T) {
	w := startWorld(t)
	srv := httptest.NewServer(NewServer(w, nil).Handler())
	defer srv.Close()
	conn := dial(t, srv)

	send(t, conn, `{"type":"HELLO","protocol_version":"1.0"}`)
	_ = recv[protocol.WelcomeMsg](t, conn)

	send(t, conn, `{"type":"PLACE","protocol_version":"1.0","id":"x"}`)
	em := recv[protocol.ErrorMsg](t, conn)
	if em.Type != protocol.TypeError || em.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("schema error=%+v", em)
	}

	send(t, conn, `{"type":"PLACE","protocol_version":"1.0","id":"u","structure":"nope","pos":[0,0,0],"facing":"SOUTH"}`)
	res := recv[protocol.ResultMsg](t, conn)
	if res.OK || res.Code != protocol.ErrUnknownStructure {
		t.Fatalf("unknown structure=%+v", res)
	}

	send(t, conn, `{"type":"SET_BLOCK","protocol_version":"1.0","id":"s","pos":[0,0,0],"block":"EXAMPLE"}`)
	res = recv[protocol.ResultMsg](t, conn)
	if res.OK || res.Code != protocol.ErrUnknownBlock {
		t.Fatalf("set block=%+v", res)
	}

	send(t, conn, `{"type":"SET_BLOCK","protocol_version":"1.0","id":"o","pos":[0,500,0],"block":"STONE"}`)
	res = recv[protocol.ResultMsg](t, conn)
	if res.OK || res.Code != protocol.ErrOutOfBounds {
		t.Fatalf("out of bounds=%+v", res)
	}
}

func TestServer_RejectsMissingHello(t *testing.T) {
	w := startWorld(t)
	srv := httptest.NewServer(NewServer(w, nil).Handler())
	defer srv.Close()
	conn := dial(t, srv)

	send(t, conn, `{"type":"BREAK","protocol_version":"1.0","id":"b","pos":[0,0,0]}`)
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) || ce.Code != websocket.ClosePolicyViolation {
		t.Fatalf("err=%v want policy violation close", err)
	}
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("%w: x", world.ErrUnknownStructure), protocol.ErrUnknownStructure},
		{world.ErrBlocked, protocol.ErrBlocked},
		{errors.Join(errors.New("part 1"), world.ErrOutOfBounds), protocol.ErrOutOfBounds},
		{context.DeadlineExceeded, protocol.ErrWorldBusy},
		{errors.New("structure x: part 9 out of range [0,2]"), protocol.ErrBadRequest},
	}
	for _, c := range cases {
		if got := ErrorCode(c.err); got != c.want {
			t.Fatalf("ErrorCode(%v)=%q want %q", c.err, got, c.want)
		}
		if !protocol.IsKnownCode(ErrorCode(c.err)) {
			t.Fatalf("code %q not known", ErrorCode(c.err))
		}
	}
}
