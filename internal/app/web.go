package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/balancer/internal/monitoring"
	"github.com/relabs-tech/balancer/internal/telemetry"
	"github.com/relabs-tech/balancer/internal/tuning"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WebServer exposes telemetry, the tuning console and the IMU register
// debugger over HTTP and websockets.
type WebServer struct {
	rec      *telemetry.Recorder
	deps     tuning.Deps
	regs     RegisterDevice
	interval time.Duration
	mux      *http.ServeMux
}

// NewWebServer wires the routes. regs may be nil, which disables the
// register debugger.
func NewWebServer(rec *telemetry.Recorder, deps tuning.Deps, regs RegisterDevice, interval time.Duration) *WebServer {
	s := &WebServer{rec: rec, deps: deps, regs: regs, interval: interval, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("/ws/telemetry", s.handleTelemetryWS)
	s.mux.HandleFunc("/ws/console", s.handleConsoleWS)
	if regs != nil {
		s.mux.HandleFunc("/ws/registers", s.handleRegistersWS)
	}
	return s
}

// Handler returns the route multiplexer.
func (s *WebServer) Handler() http.Handler { return s.mux }

// Run serves on addr until ctx is cancelled.
func (s *WebServer) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	monitoring.Logf("web server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *WebServer) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.rec.Snapshot()); err != nil {
		monitoring.Logf("json encode error: %v", err)
	}
}

func (s *WebServer) handleTelemetryWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("telemetry: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	// The client never sends; reading only detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := conn.WriteJSON(s.rec.Snapshot()); err != nil {
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}

func (s *WebServer) handleConsoleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("console: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	console := tuning.NewConsole(s.deps)
	monitoring.Logf("console: session opened from %s", r.RemoteAddr)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(tuning.Help)); err != nil {
		return
	}

	for !console.Done() {
		_, line, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				monitoring.Logf("console: websocket error: %v", err)
			}
			return
		}
		reply, err := console.Exec(string(line))
		if err != nil {
			reply = "error: " + err.Error()
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			return
		}
	}

	monitoring.Logf("console: session closed, operational mode")
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "operational mode"))
}

func (s *WebServer) handleRegistersWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("register debug: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	session := &RegisterDebugSession{Conn: conn, Device: s.regs}
	session.Serve()
}
