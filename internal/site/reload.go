package site

import (
	"log"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// checkOrigin validates WebSocket origin against allowed hosts
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // Allow connections without Origin header (non-browser clients)
	}

	u, err := url.Parse(origin)
	if err != nil {
		log.Printf("[WS] Rejected unparseable origin: %s", origin)
		return false
	}
	originHost := u.Hostname()

	// Allow localhost for development
	if originHost == "localhost" || originHost == "127.0.0.1" {
		return true
	}

	// Allow same-host connections, compared by exact hostname
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if originHost == host {
		return true
	}

	log.Printf("[WS] Rejected origin: %s (host: %s)", origin, r.Host)
	return false
}

// writeTimeout bounds a single broadcast write to one client
const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// Hub fans reload notifications out to connected browsers. There is one web
// root, so one hub serves the whole process.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a hub and starts its event loop
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

// run handles the hub's event loop
func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			// Shutdown: close all client connections
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			log.Println("[WS] Hub shutdown complete")
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("[WS] Client connected (%d total)", count)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("[WS] Client disconnected (%d remaining)", count)

		case message := <-h.broadcast:
			// The hub lock is never held across a client write
			h.mu.RLock()
			conns := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				conns = append(conns, conn)
			}
			h.mu.RUnlock()

			var failed []*websocket.Conn
			for _, conn := range conns {
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					failed = append(failed, conn)
				}
			}

			if len(failed) > 0 {
				h.mu.Lock()
				for _, conn := range failed {
					if _, ok := h.clients[conn]; ok {
						delete(h.clients, conn)
						conn.Close()
					}
				}
				h.mu.Unlock()
			}
		}
	}
}

// Stop signals the hub to shutdown
func (h *Hub) Stop() {
	close(h.done)
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(message string) {
	select {
	case h.broadcast <- []byte(message):
	default:
		// Channel full, drop message
		log.Println("[WS] Broadcast channel full, dropping message")
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades HTTP connections to WebSocket and joins them to the hub
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	// A hub that is already stopped no longer drains register/unregister
	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	// Read loop - detect disconnection; inbound messages are ignored
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
				conn.Close()
			}
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}
