package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sensorstack/core/internal/infrastructure/config"
	"github.com/sensorstack/core/internal/infrastructure/logging"
)

// sendBufferSize is the per-subscriber outbound queue. Subscribers that
// fall this far behind are disconnected rather than slowing the stream.
const sendBufferSize = 64

// Reading is one enriched sensor reading pushed to live subscribers.
type Reading struct {
	ClientID    string    `json:"client_id"`
	DeviceName  string    `json:"device_name,omitempty"`
	Measurement string    `json:"measurement"`
	Value       float64   `json:"value"`
	Timestamp   time.Time `json:"timestamp"`
}

// Hub fans enriched readings out to WebSocket subscribers.
//
// Run() owns the client set; register, unregister and broadcast all go
// through its channels, so no locking is needed.
type Hub struct {
	cfg config.WebSocketConfig
	log *logging.Logger

	clients    map[*wsClient]struct{}
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte

	upgrader websocket.Upgrader
}

// NewHub creates a hub. Start it with Run().
func NewHub(cfg config.WebSocketConfig, log *logging.Logger) *Hub {
	return &Hub{
		cfg:        cfg,
		log:        log,
		clients:    make(map[*wsClient]struct{}),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan []byte, sendBufferSize),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The stream is read-only public telemetry.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Run processes hub events until the context is cancelled, then closes
// every subscriber.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
			}
			h.clients = nil
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.log.Debug("websocket subscriber connected", "subscribers", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow subscriber; drop it.
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

// Broadcast queues a reading for all subscribers. Never blocks: when
// the hub is saturated the reading is dropped, InfluxDB still has it.
func (h *Hub) Broadcast(reading Reading) {
	payload, err := json.Marshal(reading)
	if err != nil {
		h.log.Error("encoding live reading", "error", err)
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		h.log.Warn("live stream saturated, dropping reading",
			"client_id", reading.ClientID)
	}
}

// ServeWS upgrades an HTTP request to a WebSocket subscription.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// wsClient is one WebSocket subscriber.
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// readPump discards inbound frames and detects disconnects. The stream
// is one way; clients only need to answer pings.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close() //nolint:errcheck // Best effort cleanup
	}()

	maxSize := int64(c.hub.cfg.MaxMessageSize)
	if maxSize <= 0 {
		maxSize = 8192
	}
	pongWait := time.Duration(c.hub.cfg.PingInterval+c.hub.cfg.PongTimeout) * time.Second

	c.conn.SetReadLimit(maxSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck // deadline on live conn
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump forwards queued readings and keeps the connection alive
// with pings.
func (c *wsClient) writePump() {
	pingInterval := time.Duration(c.hub.cfg.PingInterval) * time.Second
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	writeWait := time.Duration(c.hub.cfg.PongTimeout) * time.Second
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}

	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck // Best effort cleanup
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // deadline on live conn
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck // closing anyway
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // deadline on live conn
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
