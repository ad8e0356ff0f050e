package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"pyre.dev/internal/observerproto"
	"pyre.dev/internal/sim/engine"
)

// Engine is the slice of the engine the observer surface needs. Nothing here
// mutates the tree directly; commands are queued for the next tick.
type Engine interface {
	Bootstrap() observerproto.BootstrapResponse
	RequestSnapshot(ctx context.Context) (observerproto.SnapshotMsg, error)
	Enqueue(cmd engine.Command) error
	ObserverJoin() chan<- engine.ObserverJoinRequest
	ObserverSubscribe() chan<- engine.ObserverSubscribeRequest
	ObserverLeave() chan<- string
}

type Server struct {
	engine Engine
	log    *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	// QueueSize bounds the per-session outbound buffer.
	QueueSize int
	// IntervalTicks is used when SUBSCRIBE leaves interval_ticks unset.
	IntervalTicks int
}

func NewServer(e Engine, logger *log.Logger) *Server {
	return &Server{
		engine: e,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only anyway
		},
		QueueSize:     8,
		IntervalTicks: 1,
	}
}

// Routes mounts the observer endpoints on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/admin/v1/observer/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/admin/v1/observer/snapshot", s.SnapshotHandler())
	mux.HandleFunc("/admin/v1/observer/ws", s.WSHandler())
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		writeJSON(rw, s.engine.Bootstrap())
	}
}

func (s *Server) SnapshotHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		snap, err := s.engine.RequestSnapshot(ctx)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(rw, snap)
	}
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
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
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			closeWith(conn, websocket.ClosePolicyViolation, "bad subscribe")
			return
		}
		if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
			closeWith(conn, websocket.ClosePolicyViolation, "expected SUBSCRIBE")
			return
		}
		s.normalizeSubscribe(&sub)

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		queue := s.QueueSize
		if queue <= 0 {
			queue = 8
		}
		out := make(chan []byte, queue)
		// Acks share the writer with snapshots but are never dropped for them.
		acks := make(chan []byte, 16)

		select {
		case s.engine.ObserverJoin() <- engine.ObserverJoinRequest{
			SessionID:     sid,
			Out:           out,
			IntervalTicks: sub.IntervalTicks,
			Worlds:        sub.Worlds,
		}:
		default:
			closeWith(conn, websocket.CloseTryAgainLater, "server busy")
			return
		}
		defer func() {
			select {
			case s.engine.ObserverLeave() <- sid:
			default:
				// Engine loop is stopping; nothing else to do.
			}
		}()
		if s.log != nil {
			s.log.Printf("observer %s joined from %s", sid, r.RemoteAddr)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				var b []byte
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b = <-acks:
				case snap, ok := <-out:
					if !ok {
						writeErr <- nil
						return
					}
					b = snap
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					writeErr <- err
					return
				}
			}
		}()

		// Reader loop: SUBSCRIBE updates and COMMANDs.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var head struct {
				Type            string `json:"type"`
				ProtocolVersion string `json:"protocol_version"`
			}
			if err := json.Unmarshal(msg, &head); err != nil || head.ProtocolVersion != observerproto.Version {
				continue
			}
			switch head.Type {
			case "SUBSCRIBE":
				var sub observerproto.SubscribeMsg
				if err := json.Unmarshal(msg, &sub); err != nil {
					continue
				}
				s.normalizeSubscribe(&sub)
				select {
				case s.engine.ObserverSubscribe() <- engine.ObserverSubscribeRequest{
					SessionID:     sid,
					IntervalTicks: sub.IntervalTicks,
					Worlds:        sub.Worlds,
				}:
				default:
					// Drop updates under load; the client may resend.
				}
			case "COMMAND":
				var cmd observerproto.CommandMsg
				if err := json.Unmarshal(msg, &cmd); err != nil {
					continue
				}
				ack := s.command(cmd)
				b, _ := json.Marshal(ack)
				select {
				case acks <- b:
				default:
				}
			}
		}

		cancel()
		closeWith(conn, websocket.CloseNormalClosure, "bye")

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) command(cmd observerproto.CommandMsg) observerproto.CommandAckMsg {
	ack := observerproto.CommandAckMsg{
		Type:            "COMMAND_ACK",
		ProtocolVersion: observerproto.Version,
		Op:              cmd.Op,
		World:           cmd.World,
	}
	err := s.engine.Enqueue(engine.Command{
		Op:       strings.ToUpper(strings.TrimSpace(cmd.Op)),
		World:    cmd.World,
		Children: cmd.Children,
	})
	if err != nil {
		ack.Error = err.Error()
		return ack
	}
	ack.Queued = true
	if s.log != nil {
		s.log.Printf("queued %s %q children=%v", cmd.Op, cmd.World, cmd.Children)
	}
	return ack
}

func (s *Server) normalizeSubscribe(sub *observerproto.SubscribeMsg) {
	if sub.IntervalTicks <= 0 {
		sub.IntervalTicks = s.IntervalTicks
	}
	if sub.IntervalTicks > 3600 {
		sub.IntervalTicks = 3600
	}
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
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
