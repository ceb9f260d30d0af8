package ws

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/domain/restriction"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/monitoring"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Message types
const (
	TypeHello        = "hello"
	TypeLevelChanged = "level_changed"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeError        = "error"
)

// Message is the envelope of every frame on the stream
type Message struct {
	Type      string                   `json:"type"`
	ClientID  string                   `json:"client_id,omitempty"`
	Change    *restriction.LevelChange `json:"change,omitempty"`
	Error     string                   `json:"error,omitempty"`
	Timestamp int64                    `json:"timestamp"`
}

// Hub streams realized level changes to websocket clients. It is a
// restriction.Listener; register it with Controller.AddListener.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *logging.Logger
	metrics  *monitoring.Metrics

	mu      sync.RWMutex
	clients map[string]*client // Protected by mu
	closed  bool               // Protected by mu
}

var _ restriction.Listener = (*Hub)(nil)

// NewHub creates an empty hub
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger.Named("stream"),
		clients: make(map[string]*client),
	}
}

// WithMetrics enables connection metrics
func (h *Hub) WithMetrics(metrics *monitoring.Metrics) *Hub {
	h.metrics = metrics
	return h
}

// Len returns the number of connected clients
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OnRestrictionLevelChanged implements restriction.Listener. Clients whose
// buffer is full are disconnected rather than waited on.
func (h *Hub) OnRestrictionLevelChanged(change restriction.LevelChange) {
	data, err := encode(Message{Type: TypeLevelChanged, Change: &change})
	if err != nil {
		h.logger.Error("Failed to encode level change", zap.Error(err))
		return
	}

	h.mu.RLock()
	var slow []*client
	for _, cl := range h.clients {
		if !cl.wants(change.UID) {
			continue
		}
		if !cl.trySend(data) {
			slow = append(slow, cl)
		}
	}
	h.mu.RUnlock()

	for _, cl := range slow {
		h.logger.Warn("Dropping slow stream client", zap.String("client_id", cl.id))
		cl.close()
	}
}

// HandleConnection upgrades the request and streams level changes until
// the client goes away. ?uid= narrows the stream to one uid.
func (h *Hub) HandleConnection(c *gin.Context) {
	var filter *int
	if raw := c.Query("uid"); raw != "" {
		uid, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uid " + strconv.Quote(raw)})
			return
		}
		filter = &uid
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	cl := newClient(uuid.NewString(), filter)
	if !h.register(cl) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	defer h.unregister(cl)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(conn, cl)
	}()

	h.reply(cl, Message{Type: TypeHello, ClientID: cl.id})
	h.readPump(conn, cl)

	cl.close()
	<-done
}

// Close disconnects every client and refuses new ones
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, cl := range h.clients {
		clients = append(clients, cl)
	}
	h.mu.Unlock()

	for _, cl := range clients {
		cl.close()
	}
}

func (h *Hub) register(cl *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[cl.id] = cl
	h.metrics.IncWSConnections()
	h.logger.Debug("Stream client connected", zap.String("client_id", cl.id))
	return true
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl.id]; ok {
		delete(h.clients, cl.id)
		h.metrics.DecWSConnections()
		h.logger.Debug("Stream client disconnected", zap.String("client_id", cl.id))
	}
}

func (h *Hub) readPump(conn *websocket.Conn, cl *client) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket read error", zap.String("client_id", cl.id), zap.Error(err))
			}
			return
		}

		var msg Message
		if err := sonic.Unmarshal(data, &msg); err != nil {
			h.reply(cl, Message{Type: TypeError, Error: "invalid message"})
			continue
		}
		switch msg.Type {
		case TypePing:
			h.reply(cl, Message{Type: TypePong})
		default:
			h.reply(cl, Message{Type: TypeError, Error: "unknown message type"})
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case data, ok := <-cl.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) reply(cl *client, msg Message) {
	data, err := encode(msg)
	if err != nil {
		h.logger.Error("Failed to encode message", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	if !cl.trySend(data) {
		cl.close()
	}
}

func encode(msg Message) ([]byte, error) {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	return sonic.Marshal(msg)
}
