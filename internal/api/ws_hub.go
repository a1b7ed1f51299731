package api

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fanshares/exchange-core/internal/event"
	"github.com/fanshares/exchange-core/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
)

// WSMessage is a JSON message sent to WebSocket clients.
type WSMessage struct {
	Type event.Kind  `json:"type"`
	At   time.Time   `json:"at"`
	Data event.Event `json:"data"`
}

type outbound struct {
	kind event.Kind
	data []byte
}

// WSHub fans committed events out to connected WebSocket clients. It
// implements event.Publisher and never blocks the publisher: when the hub
// buffer is full the event is dropped, and a client whose own buffer is
// full is disconnected.
type WSHub struct {
	clients      map[*wsClient]bool
	broadcast    chan outbound
	register     chan *wsClient
	unregister   chan *wsClient
	done         chan struct{}
	clientBuffer int
	count        atomic.Int64
	logger       *zap.Logger
}

// NewWSHub creates a hub. clientBuffer bounds each client's send queue.
func NewWSHub(clientBuffer int, logger *zap.Logger) *WSHub {
	if clientBuffer < 1 {
		clientBuffer = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHub{
		clients:      make(map[*wsClient]bool),
		broadcast:    make(chan outbound, 256),
		register:     make(chan *wsClient),
		unregister:   make(chan *wsClient),
		done:         make(chan struct{}),
		clientBuffer: clientBuffer,
		logger:       logger,
	}
}

// Run is the hub's event loop. It returns when ctx is cancelled, closing
// every client.
func (h *WSHub) Run(ctx context.Context) {
	defer func() {
		for c := range h.clients {
			h.drop(c)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = true
			h.count.Store(int64(len(h.clients)))
			metrics.WebSocketClients.Set(float64(len(h.clients)))
			h.logger.Info("ws client connected",
				zap.String("client_id", c.id),
				zap.Int("total", len(h.clients)))

		case c := <-h.unregister:
			if h.clients[c] {
				h.drop(c)
				h.logger.Info("ws client disconnected",
					zap.String("client_id", c.id),
					zap.Int("total", len(h.clients)))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				if !c.wants(msg.kind) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.drop(c)
					h.logger.Warn("ws client too slow, disconnected", zap.String("client_id", c.id))
				}
			}
		}
	}
}

func (h *WSHub) drop(c *wsClient) {
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int64(len(h.clients)))
	metrics.WebSocketClients.Set(float64(len(h.clients)))
}

// ClientCount returns the number of registered clients.
func (h *WSHub) ClientCount() int { return int(h.count.Load()) }

// Publish queues e for broadcast.
func (h *WSHub) Publish(e event.Event) {
	data, err := json.Marshal(WSMessage{Type: e.Kind(), At: e.OccurredAt(), Data: e})
	if err != nil {
		h.logger.Error("ws marshal failed", zap.String("type", string(e.Kind())), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- outbound{kind: e.Kind(), data: data}:
	default:
		h.logger.Warn("ws broadcast buffer full, event dropped", zap.String("type", string(e.Kind())))
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws. The
// optional kinds query parameter is a comma-separated list of event types
// the client wants; all events are sent when it is absent.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	c := &wsClient{
		id:    uuid.NewString(),
		conn:  conn,
		send:  make(chan []byte, h.clientBuffer),
		kinds: parseKinds(r.URL.Query().Get("kinds")),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump(h)
}

func parseKinds(raw string) map[event.Kind]bool {
	if raw == "" {
		return nil
	}
	kinds := make(map[event.Kind]bool)
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds[event.Kind(k)] = true
		}
	}
	return kinds
}

type wsClient struct {
	id    string
	conn  *websocket.Conn
	send  chan []byte
	kinds map[event.Kind]bool // nil means every kind
}

func (c *wsClient) wants(k event.Kind) bool {
	return c.kinds == nil || c.kinds[k]
}

// readPump keeps the connection alive and detects disconnects. Client
// messages are ignored.
func (c *wsClient) readPump(h *WSHub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer to the connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
