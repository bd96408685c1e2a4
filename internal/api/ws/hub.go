package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dataview-hq/dataview/internal/infrastructure/logging"
	"github.com/dataview-hq/dataview/internal/infrastructure/monitoring"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in dev
	},
}

// Event is one pushed gateway event. The view treats these as cache
// invalidations: it re-reads gateway state rather than trusting the
// payload alone.
type Event struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

const sendBuffer = 16

type connection struct {
	id   string
	sock *websocket.Conn
	send chan Event
}

// Hub fans gateway events out to connected clients.
type Hub struct {
	mu      sync.RWMutex
	conns   map[string]*connection
	metrics *monitoring.Metrics
	log     *logging.Logger
}

// NewHub creates a hub. metrics and log may be nil.
func NewHub(metrics *monitoring.Metrics, log *logging.Logger) *Hub {
	return &Hub{
		conns:   make(map[string]*connection),
		metrics: metrics,
		log:     log,
	}
}

// HandleConnection upgrades the request and serves the connection until
// the peer goes away.
func (h *Hub) HandleConnection(c *gin.Context) {
	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Warn("websocket upgrade failed", zap.Error(err))
		}
		return
	}

	conn := &connection{
		id:   uuid.NewString(),
		sock: sock,
		send: make(chan Event, sendBuffer),
	}
	h.register(conn)
	defer h.unregister(conn)

	conn.send <- Event{Type: "system", Payload: gin.H{"message": "connected"}, Timestamp: time.Now().Unix()}

	go h.writeLoop(conn)
	h.readLoop(conn)
}

// Publish pushes one event to every connected client. Slow clients drop
// events rather than blocking the publisher; the view re-syncs on its
// next read anyway.
func (h *Hub) Publish(event string, payload interface{}) {
	e := Event{Type: event, Payload: payload, Timestamp: time.Now().Unix()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conn := range h.conns {
		select {
		case conn.send <- e:
		default:
			if h.log != nil {
				h.log.Debug("dropping event for slow client",
					zap.String("conn_id", conn.id), zap.String("event", event))
			}
		}
	}
	if h.metrics != nil {
		h.metrics.RecordWSEvent(event)
	}
}

// Connections reports the number of connected clients.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) register(conn *connection) {
	h.mu.Lock()
	h.conns[conn.id] = conn
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.IncWSConnections()
	}
}

func (h *Hub) unregister(conn *connection) {
	h.mu.Lock()
	if _, ok := h.conns[conn.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, conn.id)
	h.mu.Unlock()

	close(conn.send)
	if h.metrics != nil {
		h.metrics.DecWSConnections()
	}
}

func (h *Hub) writeLoop(conn *connection) {
	for e := range conn.send {
		if err := conn.sock.WriteJSON(e); err != nil {
			break
		}
	}
	conn.sock.Close()
}

// readLoop drains the connection. Clients only ever send pings; any
// read error means the peer is gone.
func (h *Hub) readLoop(conn *connection) {
	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := conn.sock.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type == "ping" {
			select {
			case conn.send <- Event{Type: "pong", Timestamp: time.Now().Unix()}:
			default:
			}
		}
	}
}
