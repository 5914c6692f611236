// Package observer implements the controller's observer fan-out: a
// streaming-socket registry broadcasting every ingested payload to live
// peers, best-effort, pruning on first send failure.
package observer

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ghuser/xscontrol/pkg/logger"
)

const writeDeadline = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The telemetry stream has no same-origin requirement of its own, and
	// cmd/controller serves it outside the bearer-auth middleware.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// Hub owns the live observer set as a single actor: ingest's broadcast and
// the HTTP layer's add/remove both go through channels rather than a raw
// shared collection.
type Hub struct {
	log        logger.Logger
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan map[string]any
}

// NewHub returns a Hub; call Run in its own goroutine to start serving.
func NewHub(log logger.Logger) *Hub {
	return &Hub{
		log:        log,
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan map[string]any, 256),
	}
}

// Run is the Hub's single-owner loop; it owns the connection set exclusively
// and must run in exactly one goroutine.
func (h *Hub) Run(done <-chan struct{}) {
	conns := map[*websocket.Conn]struct{}{}
	for {
		select {
		case <-done:
			for c := range conns {
				c.Close()
			}
			return
		case c := <-h.register:
			conns[c] = struct{}{}
			h.log.Info("observer connected", "count", len(conns))
		case c := <-h.unregister:
			if _, ok := conns[c]; ok {
				delete(conns, c)
				c.Close()
				h.log.Info("observer disconnected", "count", len(conns))
			}
		case payload := <-h.broadcast:
			for c := range conns {
				c.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := c.WriteJSON(payload); err != nil {
					h.log.Warn("observer: send failed, dropping", "error", err)
					delete(conns, c)
					c.Close()
				}
			}
		}
	}
}

// Broadcast sends payload to every live observer. Satisfies
// controller/ingest.Broadcaster.
func (h *Hub) Broadcast(payload map[string]any) {
	h.broadcast <- payload
}

// ServeWS upgrades the request to a WebSocket, registers it as an observer
// for the connection's lifetime, and unregisters on close or read error —
// observers never send anything the hub expects a reply to; the read loop
// exists only to detect peer disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("observer: upgrade failed", "error", err)
		return
	}

	h.register <- conn
	defer func() { h.unregister <- conn }()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
