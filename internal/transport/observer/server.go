package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"tilecensus.ai/internal/census"
	"tilecensus.ai/internal/protocol"
)

// Runner triggers one census run.
type Runner interface {
	Run(ctx context.Context) (*census.Report, error)
	Busy() bool
}

// History looks up past runs.
type History interface {
	LatestRun(ctx context.Context) (*census.Report, error)
}

// Server exposes census runs over HTTP and streams finished reports to
// websocket subscribers. It is also a census.Sink.
type Server struct {
	history History
	log     *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu     sync.Mutex
	subs   map[string]chan []byte
	latest *census.Report
}

func NewServer(history History, logger *log.Logger) *Server {
	return &Server{
		history: history,
		log:     logger,
		subs:    map[string]chan []byte{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only anyway
		},
	}
}

// Handler routes the census API for runner.
func (s *Server) Handler(runner Runner) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/census", s.TriggerHandler(runner))
	mux.HandleFunc("/v1/census/latest", s.LatestHandler())
	mux.HandleFunc("/v1/ws", s.WSHandler())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "busy": runner.Busy()})
	})
	return mux
}

// Consume broadcasts r to every subscriber. Slow subscribers miss reports
// rather than stalling the run.
func (s *Server) Consume(_ context.Context, r *census.Report) error {
	b, err := json.Marshal(protocol.NewReportMsg(r))
	if err != nil {
		return err
	}
	cp := *r
	s.mu.Lock()
	s.latest = &cp
	for sid, ch := range s.subs {
		select {
		case ch <- b:
		default:
			s.logf("subscriber %s lagging; dropped report %s", sid, r.ID)
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *Server) TriggerHandler(runner Runner) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rep, err := runner.Run(r.Context())
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, census.ErrBusy) {
				status = http.StatusConflict
			}
			s.logf("census trigger: %v", err)
			writeJSON(rw, status, protocol.NewErrorMsg(err))
			return
		}
		writeJSON(rw, http.StatusOK, protocol.NewReportMsg(rep))
	}
}

func (s *Server) LatestHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rep, err := s.latestReport(r.Context())
		if err != nil {
			writeJSON(rw, http.StatusInternalServerError, protocol.NewErrorMsg(err))
			return
		}
		if rep == nil {
			writeJSON(rw, http.StatusNotFound, protocol.ErrorMsg{
				Type:            protocol.TypeError,
				ProtocolVersion: protocol.Version,
				Code:            protocol.ErrNotFound,
				Message:         "no census runs yet",
			})
			return
		}
		writeJSON(rw, http.StatusOK, protocol.NewReportMsg(rep))
	}
}

func (s *Server) latestReport(ctx context.Context) (*census.Report, error) {
	s.mu.Lock()
	rep := s.latest
	s.mu.Unlock()
	if rep != nil || s.history == nil {
		return rep, nil
	}
	rep, err := s.history.LatestRun(ctx)
	if err != nil {
		// An empty history is not a failure.
		if errors.Is(err, census.ErrNoReports) {
			return nil, nil
		}
		return nil, err
	}
	return rep, nil
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
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			closePolicy(conn, "bad subscribe")
			return
		}
		if base.Type != protocol.TypeSubscribe || base.ProtocolVersion != protocol.Version {
			closePolicy(conn, "expected SUBSCRIBE")
			return
		}
		var sub protocol.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			closePolicy(conn, "bad subscribe")
			return
		}

		sid := fmt.Sprintf("S%d", s.nextID.Add(1))
		out := make(chan []byte, 8)
		if sub.SendLatest {
			if rep, err := s.latestReport(r.Context()); err == nil && rep != nil {
				if b, err := json.Marshal(protocol.NewReportMsg(rep)); err == nil {
					out <- b
				}
			}
		}
		s.mu.Lock()
		s.subs[sid] = out
		s.mu.Unlock()
		s.logf("subscriber %s joined", sid)
		defer func() {
			s.mu.Lock()
			delete(s.subs, sid)
			s.mu.Unlock()
			s.logf("subscriber %s left", sid)
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: only used to notice the client going away.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// Subscribers reports the number of connected websocket clients.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
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

func closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}
