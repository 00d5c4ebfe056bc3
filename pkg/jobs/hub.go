package jobs

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"payscope/pkg/config"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// No Origin header = direct connection (non-browser clients like curl, testing tools)
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
	ReadBufferSize:  config.WSReadBufferSize,
	WriteBufferSize: config.WSWriteBufferSize,
}

// client is one progress subscriber. A client subscribed to a file ID only
// receives that file's events; an empty fileID receives everything. All
// writes to the connection go through send, so the connection has exactly
// one writer goroutine.
type client struct {
	conn   *websocket.Conn
	fileID string
	send   chan []byte
}

// writePump is the connection's single writer: it drains send and emits
// keepalive pings until send closes or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(config.WSPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// event pairs a serialized progress payload with the file it concerns, so
// the hub can route it to the matching subscribers.
type event struct {
	fileID  string
	payload []byte
}

// ProgressHub fans job progress events out to WebSocket subscribers.
type ProgressHub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan event

	// count mirrors len(clients) so HasClients can be answered from the
	// runner's scan loop without touching the map.
	mu    sync.RWMutex
	count int
}

// NewProgressHub creates a progress hub. Run must be started for it to
// deliver anything.
func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		clients:    make(map[*client]bool),
		register:   make(chan *client, config.WSChannelBuffer),
		unregister: make(chan *client, config.WSChannelBuffer),
		broadcast:  make(chan event, config.WSBroadcastBuffer),
	}
}

func (h *ProgressHub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// Run is the hub's main loop. The clients map is owned exclusively by this
// goroutine; register, unregister, and broadcast all funnel through it.
func (h *ProgressHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.setCount(0)
			return
		case c := <-h.register:
			h.clients[c] = true
			h.setCount(len(h.clients))
			log.Printf("Progress client connected (total: %d)", len(h.clients))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.setCount(len(h.clients))
			log.Printf("Progress client disconnected (total: %d)", len(h.clients))
		case ev := <-h.broadcast:
			for c := range h.clients {
				if c.fileID != "" && c.fileID != ev.fileID {
					continue
				}
				select {
				case c.send <- ev.payload:
				default:
					// Slow consumer: drop this event rather than stall
					// the scan that produced it.
					log.Printf("Progress client for file %q lagging, dropping event", c.fileID)
				}
			}
		}
	}
}

// Broadcast routes a progress event to the subscribers watching fileID
// (and to the all-files subscribers). Never blocks the caller.
func (h *ProgressHub) Broadcast(fileID string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- event{fileID: fileID, payload: payload}:
		return nil
	default:
		log.Printf("Broadcast channel full, dropping message")
		return nil
	}
}

// HasClients reports whether anyone is subscribed.
func (h *ProgressHub) HasClients() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count > 0
}
