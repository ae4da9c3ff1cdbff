package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rewired-gh/polyscan/internal/logger"
	"github.com/rewired-gh/polyscan/internal/models"
	"github.com/rewired-gh/polyscan/internal/scanner"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// tickMessage is what /ws clients receive after each tick.
type tickMessage struct {
	Type   string              `json:"type"`
	Tick   *scanner.TickResult `json:"tick,omitempty"`
	Status models.Status       `json:"status"`
}

// Hub fans tick results out to websocket clients. It implements
// scanner.Observer; slow clients are dropped rather than allowed to
// stall the scan loop.
type Hub struct {
	upgrader websocket.Upgrader
	status   func() models.Status

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

// NewHub creates a hub. status supplies the status sent with every
// message and on connect; it may be nil.
func NewHub(status func() models.Status) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		status:  status,
		clients: make(map[*wsClient]struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) currentStatus() models.Status {
	if h.status == nil {
		return models.Status{}
	}
	return h.status()
}

// OnTick broadcasts a tick result without blocking.
func (h *Hub) OnTick(result scanner.TickResult) {
	h.broadcast(tickMessage{Type: "tick", Tick: &result, Status: h.currentStatus()})
}

// OnTickError pushes the degraded status to clients.
func (h *Hub) OnTickError(error) {
	h.broadcast(tickMessage{Type: "status", Status: h.currentStatus()})
}

func (h *Hub) broadcast(msg tickMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("Failed to encode websocket message: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			logger.Warn("Dropping slow websocket client %s", c.conn.RemoteAddr())
			delete(h.clients, c)
			c.close()
		}
	}
}

// ServeWS upgrades the request and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Websocket upgrade failed: %v", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, sendBuffer)}
	if hello, err := json.Marshal(tickMessage{Type: "status", Status: h.currentStatus()}); err == nil {
		c.send <- hello
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close() //nolint:errcheck
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// readPump discards client messages and detects disconnects.
func (h *Hub) readPump(c *wsClient) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
