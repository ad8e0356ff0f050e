package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/websocket"

	"pyre.dev/internal/observerproto"
)

func main() {
	var (
		url      = flag.String("url", "ws://127.0.0.1:8788/admin/v1/observer/ws", "observer ws url")
		interval = flag.Int("interval", 30, "ticks between snapshots")
		worlds   = flag.String("worlds", "", "comma-separated world names to watch (default: all)")
		op       = flag.String("op", "", "send one command first: ACTIVATE | INACTIVATE | RESTORE")
		target   = flag.String("world", "", "world the command applies to")
		children = flag.Bool("children", false, "apply the command to the world's children too")
		count    = flag.Int("n", 0, "exit after this many snapshots (0 = run until interrupted)")
		raw      = flag.Bool("json", false, "print snapshots as raw JSON")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[inspect] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := observerproto.SubscribeMsg{
		Type:            "SUBSCRIBE",
		ProtocolVersion: observerproto.Version,
		IntervalTicks:   *interval,
	}
	if *worlds != "" {
		for _, w := range strings.Split(*worlds, ",") {
			if w = strings.TrimSpace(w); w != "" {
				sub.Worlds = append(sub.Worlds, w)
			}
		}
	}
	if err := conn.WriteJSON(sub); err != nil {
		logger.Fatalf("send SUBSCRIBE: %v", err)
	}
	if *op != "" {
		cmd := observerproto.CommandMsg{
			Type:            "COMMAND",
			ProtocolVersion: observerproto.Version,
			Op:              strings.ToUpper(*op),
			World:           *target,
			Children:        *children,
		}
		if err := conn.WriteJSON(cmd); err != nil {
			logger.Fatalf("send COMMAND: %v", err)
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	seen := 0
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &head); err != nil {
			continue
		}
		switch head.Type {
		case "COMMAND_ACK":
			var ack observerproto.CommandAckMsg
			if err := json.Unmarshal(msg, &ack); err != nil {
				continue
			}
			if ack.Queued {
				logger.Printf("queued %s %s", ack.Op, ack.World)
			} else {
				logger.Printf("refused %s %s: %s", ack.Op, ack.World, ack.Error)
			}
		case "SNAPSHOT":
			if *raw {
				fmt.Println(string(msg))
			} else {
				var snap observerproto.SnapshotMsg
				if err := json.Unmarshal(msg, &snap); err != nil {
					continue
				}
				printSnapshot(snap)
			}
			seen++
			if *count > 0 && seen >= *count {
				return
			}
		}
	}
}

func printSnapshot(s observerproto.SnapshotMsg) {
	fmt.Printf("tick %d  t=%.2fs\n", s.Tick, s.SimTime)
	for _, w := range s.Worlds {
		mark := " "
		if w.Active {
			mark = "*"
		}
		states := map[string]int{}
		for _, a := range w.Agents {
			key := a.Kind
			if a.State != "" {
				key = a.State
			}
			states[key]++
		}
		fmt.Printf("  %s %-16s agents=%d %v", mark, w.Name, len(w.Agents), states)
		for _, sw := range w.Switches {
			fmt.Printf("  [%s fired=%d]", sw.Name, sw.Fired)
		}
		fmt.Println()
	}
}
