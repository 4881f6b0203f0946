package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-mixer/internal/broadcast"
	"github.com/nerrad567/gray-logic-mixer/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
)

// Shorthand request types. Each sets one fixed parameter of a channel.
const (
	WSTypeFader broadcast.EventType = "fader"
	WSTypeMute  broadcast.EventType = "mute"
	WSTypeSolo  broadcast.EventType = "solo"
	WSTypePan   broadcast.EventType = "pan"
)

const (
	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256

	// wsCommandTimeout bounds one parameter write from a client.
	wsCommandTimeout = 5 * time.Second
)

var (
	errSlowClient   = errors.New("api: websocket client send buffer full")
	errClientClosed = errors.New("api: websocket client closed")
)

// WSRequest is a message received from a WebSocket client.
type WSRequest struct {
	Type      broadcast.EventType     `json:"type"`
	ID        string                  `json:"id,omitempty"`
	DeviceID  string                  `json:"device_id,omitempty"`
	ChannelID string                  `json:"channel_id,omitempty"`
	Parameter string                  `json:"parameter,omitempty"`
	Value     any                     `json:"value,omitempty"`
	Changes   []mixer.ParameterChange `json:"changes,omitempty"`
	Channels  []string                `json:"channels,omitempty"`
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// hub tracks live WebSocket connections so Close can drop them. Event
// fan-out is the broadcaster's job.
type hub struct {
	logger  *logging.Logger
	mu      sync.RWMutex
	clients map[string]*wsClient
}

func newHub(logger *logging.Logger) *hub {
	return &hub{logger: logger, clients: make(map[string]*wsClient)}
}

func (h *hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "client", c.id, "clients", h.clientCount())
}

func (h *hub) unregister(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	h.logger.Debug("websocket client disconnected", "client", c.id, "clients", h.clientCount())
}

func (h *hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects every client. Their read pumps unregister them.
func (h *hub) closeAll() {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Close() //nolint:errcheck // Close never fails
		c.conn.Close()
	}
}

// wsClient is one WebSocket connection. It is a broadcast.Observer: Send
// queues the encoded event for the write pump without blocking.
type wsClient struct {
	id     string
	server *Server
	conn   *websocket.Conn
	send   chan []byte

	mu     sync.Mutex
	closed bool
}

var _ broadcast.Observer = (*wsClient)(nil)

// ID implements broadcast.Observer.
func (c *wsClient) ID() string { return c.id }

// Send implements broadcast.Observer. A full buffer fails the send so the
// broadcaster prunes the client.
func (c *wsClient) Send(ev broadcast.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", ev.Type, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSlowClient
	}
}

// Close stops the write pump, which then closes the connection. It is
// idempotent.
func (c *wsClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return nil
}

// reply sends a direct answer to this client.
func (c *wsClient) reply(ev broadcast.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := c.Send(ev); err != nil {
		c.server.logger.Debug("websocket reply dropped", "client", c.id, "error", err)
	}
}

// handleWebSocket upgrades the connection and registers the client as a
// broadcast observer. An optional comma separated "channels" query
// parameter sets the initial channel filter.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var channels []string
	if raw := r.URL.Query().Get("channels"); raw != "" {
		channels = strings.Split(raw, ",")
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		id:     uuid.NewString(),
		server: s,
		conn:   conn,
		send:   make(chan []byte, wsSendBufferSize),
	}

	go client.writePump()
	s.hub.register(client)
	if err := s.broadcaster.Connect(s.ctx, client, channels...); err != nil {
		s.logger.Warn("websocket observer rejected", "client", client.id, "error", err)
		s.hub.unregister(client)
		client.Close() //nolint:errcheck // Close never fails
		return
	}
	go client.readPump()
}

// readPump reads messages from the WebSocket connection.
func (c *wsClient) readPump() {
	defer func() {
		c.server.broadcaster.Disconnect(c.id)
		c.server.hub.unregister(c)
		c.Close() //nolint:errcheck // Close never fails
		c.conn.Close()
	}()

	cfg := c.server.wsCfg
	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Warn("websocket read error", "client", c.id, "error", err)
			} else {
				c.server.logger.Debug("websocket closed", "client", c.id, "error", err)
			}
			return
		}
		// Any client message resets the read deadline (keeps connection alive
		// even if browser doesn't respond to protocol-level pings).
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *wsClient) writePump() {
	cfg := c.server.wsCfg
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming WebSocket message.
func (c *wsClient) handleMessage(data []byte) {
	var req WSRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply(broadcast.ErrorEvent("", errors.New("invalid JSON message")))
		return
	}

	switch req.Type {
	case broadcast.EventPing:
		c.reply(broadcast.Event{Type: broadcast.EventPong, ID: req.ID})
	case broadcast.EventSubscribe:
		c.handleSubscription(req, c.server.broadcaster.Subscribe)
	case broadcast.EventUnsubscribe:
		c.handleSubscription(req, c.server.broadcaster.Unsubscribe)
	case broadcast.EventParameter:
		if req.Parameter == "" {
			c.reply(broadcast.ErrorEvent(req.ID, errors.New("parameter is required")))
			return
		}
		c.apply(req.ID, []mixer.ParameterChange{req.change(req.Parameter)})
	case WSTypeFader, WSTypeMute, WSTypeSolo, WSTypePan:
		c.apply(req.ID, []mixer.ParameterChange{req.change(string(req.Type))})
	case broadcast.EventBatch:
		c.apply(req.ID, req.Changes)
	default:
		c.reply(broadcast.ErrorEvent(req.ID, fmt.Errorf("unknown message type: %s", req.Type)))
	}
}

func (r WSRequest) change(parameter string) mixer.ParameterChange {
	return mixer.ParameterChange{
		DeviceID:  r.DeviceID,
		ChannelID: r.ChannelID,
		Parameter: parameter,
		Value:     r.Value,
	}
}

// handleSubscription applies a filter change and answers with the
// resulting filter.
func (c *wsClient) handleSubscription(req WSRequest, change func(string, ...string) error) {
	if err := change(c.id, req.Channels...); err != nil {
		c.reply(broadcast.ErrorEvent(req.ID, err))
		return
	}
	subs, err := c.server.broadcaster.Subscriptions(c.id)
	if err != nil {
		c.reply(broadcast.ErrorEvent(req.ID, err))
		return
	}
	c.reply(broadcast.Event{Type: req.Type, ID: req.ID, Channels: subs})
}

// apply submits changes on behalf of the client. The resulting broadcast
// skips this client; only failures are answered.
func (c *wsClient) apply(id string, changes []mixer.ParameterChange) {
	if len(changes) == 0 {
		c.reply(broadcast.ErrorEvent(id, errors.New("changes are required")))
		return
	}
	if len(changes) > maxBatchSize {
		c.reply(broadcast.ErrorEvent(id, errors.New("too many changes")))
		return
	}

	now := time.Now().UTC()
	for i := range changes {
		changes[i].Source = mixer.SourceWebSocket
		changes[i].Origin = c.id
		changes[i].Timestamp = now
	}

	ctx, cancel := context.WithTimeout(c.server.ctx, wsCommandTimeout)
	defer cancel()
	if _, err := c.server.manager.ApplyBatch(ctx, changes); err != nil {
		c.reply(broadcast.ErrorEvent(id, err))
	}
}
