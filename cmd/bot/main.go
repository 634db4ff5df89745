package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"multipart.dev/internal/protocol"
)

var facings = []string{"NORTH", "EAST", "SOUTH", "WEST"}

// bot places random structures near the origin and breaks the previous one,
// exercising the command endpoint end to end.
func main() {
	var (
		url       = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name      = flag.String("name", "bot", "client name")
		structure = flag.String("structure", "double_door", "structure id to place")
		radius    = flag.Int("radius", 16, "placement radius around the origin")
		y         = flag.Int("y", 64, "placement height")
		every     = flag.Duration("every", 2*time.Second, "command interval")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.CommandMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	go readLoop(conn, logger)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	ticker := time.NewTicker(*every)
	defer ticker.Stop()

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	var last *[3]int
	n := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		n++
		if last != nil {
			_ = conn.WriteJSON(protocol.CommandMsg{
				Type:            protocol.TypeBreak,
				ProtocolVersion: protocol.Version,
				ID:              fmt.Sprintf("B%d", n),
				Pos:             last,
			})
		}
		pos := [3]int{r.Intn(2**radius+1) - *radius, *y, r.Intn(2**radius+1) - *radius}
		err := conn.WriteJSON(protocol.CommandMsg{
			Type:            protocol.TypePlace,
			ProtocolVersion: protocol.Version,
			ID:              fmt.Sprintf("P%d", n),
			Structure:       *structure,
			Pos:             &pos,
			Facing:          facings[r.Intn(len(facings))],
		})
		if err != nil {
			logger.Printf("send: %v", err)
			return
		}
		last = &pos
	}
}

func readLoop(conn *websocket.Conn, logger *log.Logger) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("read: %v", err)
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s world=%s tick_rate=%d structures=%d", w.SessionID, w.WorldID, w.WorldParams.TickRateHz, w.Catalogs.Structures.Count)
		case protocol.TypeResult:
			var res protocol.ResultMsg
			if err := json.Unmarshal(msg, &res); err != nil {
				continue
			}
			if res.OK {
				logger.Printf("%s ok tick=%d cells=%d", res.Ref, res.Tick, len(res.Cells))
			} else {
				logger.Printf("%s failed code=%s blocked=%d: %s", res.Ref, res.Code, len(res.Blocked), res.Message)
			}
		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err == nil {
				logger.Printf("ERROR %s: %s", e.Code, e.Message)
			}
		}
	}
}
