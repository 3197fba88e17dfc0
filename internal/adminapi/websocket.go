package adminapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"matchd/internal/metrics"
)

const (
	MaxWSConnectionsTotal = 500
	MaxWSConnectionsPerIP = 10
)

// OriginChecker reports whether an Origin header is allowed to open a
// WebSocket connection. NewHub wraps it with an always-allow-localhost rule.
type OriginChecker func(origin string) bool

func allowOrigin(allowed []string, checker OriginChecker) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return false
		}
		if strings.HasPrefix(origin, "http://localhost") || strings.HasPrefix(origin, "http://127.0.0.1") {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		if checker != nil && checker(origin) {
			return true
		}
		log.Printf("adminapi: websocket connection rejected from origin %q", origin)
		metrics.RecordConnectionRejected("origin")
		return false
	}
}

type wsClient struct {
	conn *websocket.Conn
	ip   string
}

// Hub manages admin/spectator WebSocket connections and fans out broadcast
// messages to all of them. Server uses it to push the periodic match
// snapshot to remote consoles; in-match announcements go through
// capability.World's Broadcast, not through the hub.
//
// Grounded directly on the teacher's internal/api/websocket.go WebSocketHub.
type Hub struct {
	upgrader websocket.Upgrader

	clients    map[*websocket.Conn]*wsClient
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *websocket.Conn
	mu         sync.RWMutex

	wsLimiter *WebSocketRateLimiter
}

func NewHub(allowedOrigins []string, checker OriginChecker) *Hub {
	h := &Hub{
		clients:    make(map[*websocket.Conn]*wsClient),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *websocket.Conn),
		wsLimiter:  NewWebSocketRateLimiter(MaxWSConnectionsPerIP),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     allowOrigin(allowedOrigins, checker),
	}
	return h
}

// Run drains the hub's channels; call it in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			h.mu.Unlock()
			metrics.SetWSConnections(h.ClientCount())

		case conn := <-h.unregister:
			h.mu.Lock()
			if client, ok := h.clients[conn]; ok {
				h.wsLimiter.Release(client.ip)
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()
			metrics.SetWSConnections(h.ClientCount())

		case message := <-h.broadcast:
			h.mu.RLock()
			var stale []*websocket.Conn
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					stale = append(stale, conn)
				}
			}
			h.mu.RUnlock()
			for _, conn := range stale {
				h.unregister <- conn
			}
			metrics.IncWSMessages()
		}
	}
}

// Broadcast sends a {event, data} envelope to every connected client.
func (h *Hub) Broadcast(event string, data interface{}) {
	msg := map[string]interface{}{"event": event, "data": data}
	jsonBytes, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- jsonBytes:
	default: // backpressure: drop rather than block the hub
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartSnapshotLoop periodically broadcasts the result of snapshot() —
// typically a summary of every active match — to connected clients.
func (h *Hub) StartSnapshotLoop(period time.Duration, snapshot func() interface{}) {
	ticker := time.NewTicker(period)
	go func() {
		for range ticker.C {
			if h.ClientCount() == 0 {
				continue
			}
			h.Broadcast("matches:snapshot", snapshot())
		}
	}()
}

// HandleWebSocket upgrades an HTTP request and registers the connection.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := ClientIP(r)

	h.mu.RLock()
	total := len(h.clients)
	h.mu.RUnlock()
	if total >= MaxWSConnectionsTotal {
		metrics.RecordConnectionRejected("ws_total_limit")
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}
	if !h.wsLimiter.Allow(ip) {
		metrics.RecordConnectionRejected("ws_ip_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.wsLimiter.Release(ip)
		return
	}

	client := &wsClient{conn: conn, ip: ip}
	h.register <- client

	go func() {
		defer func() { h.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}
