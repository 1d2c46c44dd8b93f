package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fsgate/internal/domain/fsevent"
	"fsgate/internal/shared/logging"
	"fsgate/internal/shared/observability"
	id "fsgate/internal/shared/utils/id"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 << 20
)

var (
	// ErrNotConnected is returned when the addressed connection is gone.
	ErrNotConnected = errors.New("connection not found")
	// ErrSendBufferFull is returned when a slow client cannot keep up.
	ErrSendBufferFull = errors.New("connection send buffer full")
)

// Handler consumes inbound frames.
type Handler interface {
	HandleAgentMessage(ctx context.Context, agentID string, env fsevent.Envelope)
	HandleConfirmation(ctx context.Context, resp fsevent.ConfirmationResponse)
	HandleRemoteNotification(ctx context.Context, n fsevent.RemoteNotification)
}

// Options configures a Hub.
type Options struct {
	Logger     logging.Logger
	Metrics    *observability.MetricsCollector
	SendBuffer int
	// CheckOrigin overrides the upgrader origin check. Nil accepts all.
	CheckOrigin func(r *http.Request) bool
}

// ConnectionInfo describes one live connection.
type ConnectionInfo struct {
	ID          string        `json:"id"`
	Role        fsevent.Role  `json:"role"`
	ParentID    string        `json:"parentId,omitempty"`
	ConnectedAt time.Time     `json:"connectedAt"`
	Uptime      time.Duration `json:"uptime"`
}

// Hub is the connection registry for agent, app and tui clients.
type Hub struct {
	mu      sync.RWMutex
	conns   map[string]*conn
	handler Handler

	upgrader   websocket.Upgrader
	logger     logging.Logger
	metrics    *observability.MetricsCollector
	sendBuffer int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type conn struct {
	info ConnectionInfo
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// NewHub creates an empty hub. SetHandler must be called before serving.
func NewHub(opts Options) *Hub {
	buffer := opts.SendBuffer
	if buffer <= 0 {
		buffer = 64
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		conns: make(map[string]*conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger:     logging.OrNop(opts.Logger),
		metrics:    opts.Metrics,
		sendBuffer: buffer,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SetHandler installs the consumer of inbound frames.
func (h *Hub) SetHandler(handler Handler) {
	h.mu.Lock()
	h.handler = handler
	h.mu.Unlock()
}

// ServeWS upgrades the request. Query parameters: role (agent, app, tui),
// id (optional, generated when absent) and parentId (agents only).
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	role := fsevent.Role(strings.ToLower(strings.TrimSpace(query.Get("role"))))
	if !role.Valid() {
		http.Error(w, fmt.Sprintf("invalid role %q", role), http.StatusBadRequest)
		return
	}
	connID := strings.TrimSpace(query.Get("id"))
	if connID == "" {
		connID = id.NewConnectionID(string(role))
	}
	parentID := ""
	if role == fsevent.RoleAgent {
		parentID = strings.TrimSpace(query.Get("parentId"))
	}

	h.mu.RLock()
	_, taken := h.conns[connID]
	h.mu.RUnlock()
	if taken {
		http.Error(w, fmt.Sprintf("connection id %q already in use", connID), http.StatusConflict)
		return
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed: %v", err)
		return
	}

	c := &conn{
		info: ConnectionInfo{ID: connID, Role: role, ParentID: parentID, ConnectedAt: time.Now()},
		ws:   wsConn,
		send: make(chan []byte, h.sendBuffer),
		done: make(chan struct{}),
	}
	if err := h.register(c); err != nil {
		_ = wsConn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()), time.Now().Add(writeWait))
		_ = wsConn.Close()
		return
	}

	h.wg.Add(2)
	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) register(c *conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.conns[c.info.ID]; exists {
		return fmt.Errorf("connection id %q already in use", c.info.ID)
	}
	h.conns[c.info.ID] = c
	h.logger.Info("%s connected: %s (parent=%q)", c.info.Role, c.info.ID, c.info.ParentID)
	h.metrics.AddConnections(h.ctx, string(c.info.Role), 1)
	return nil
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	if current, ok := h.conns[c.info.ID]; ok && current == c {
		delete(h.conns, c.info.ID)
		h.metrics.AddConnections(h.ctx, string(c.info.Role), -1)
	}
	h.mu.Unlock()
	c.close()
	h.logger.Info("%s disconnected: %s", c.info.Role, c.info.ID)
}

func (h *Hub) readPump(c *conn) {
	defer h.wg.Done()
	defer h.unregister(c)

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("read from %s failed: %v", c.info.ID, err)
			}
			return
		}
		h.dispatch(c, data)
	}
}

// dispatch routes one frame. A panic while handling it is logged and the
// connection keeps serving.
func (h *Hub) dispatch(c *conn, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("recovered from panic handling frame from %s: %v", c.info.ID, r)
		}
	}()

	var env fsevent.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.replyError(c, "", fmt.Sprintf("malformed message: %v", err))
		return
	}

	h.mu.RLock()
	handler := h.handler
	h.mu.RUnlock()
	if handler == nil {
		h.replyError(c, env.RequestID, "server is not ready")
		return
	}

	switch {
	case env.Type == fsevent.TypeFSEvent && c.info.Role == fsevent.RoleAgent:
		handler.HandleAgentMessage(h.ctx, c.info.ID, env)
	case env.Type == fsevent.TypeConfirmationResponse && c.info.Role != fsevent.RoleAgent:
		handler.HandleConfirmation(h.ctx, fsevent.ConfirmationResponse{MessageID: env.MessageID, UserMessage: env.UserMessage, From: c.info.ID})
	case env.Type == fsevent.TypeRemoteNotification && c.info.Role != fsevent.RoleAgent:
		handler.HandleRemoteNotification(h.ctx, fsevent.RemoteNotification{MessageID: env.MessageID, State: env.State, Reason: env.Reason})
	default:
		h.replyError(c, env.RequestID, fmt.Sprintf("message type %q not accepted from %s", env.Type, c.info.Role))
	}
}

func (h *Hub) replyError(c *conn, requestID, message string) {
	h.logger.Warn("rejecting frame from %s: %s", c.info.ID, message)
	payload := map[string]string{"type": fsevent.TypeError, "error": message}
	if requestID != "" {
		payload["requestId"] = requestID
	}
	if err := h.enqueue(c, payload); err != nil {
		h.logger.Debug("error reply to %s dropped: %v", c.info.ID, err)
	}
}

func (h *Hub) writePump(c *conn) {
	defer h.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case <-c.done:
			return
		case <-h.ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(writeWait))
			return
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Warn("write to %s failed: %v", c.info.ID, err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) enqueue(c *conn, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrNotConnected
	default:
		return ErrSendBufferFull
	}
}

func (h *Hub) lookup(connID string) (*conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[connID]
	return c, ok
}

// ResolveParent returns the app or tui connection supervising agentID.
func (h *Hub) ResolveParent(agentID string) (*fsevent.TargetClient, bool) {
	agent, ok := h.lookup(agentID)
	if !ok || agent.info.ParentID == "" {
		return nil, false
	}
	parent, ok := h.lookup(agent.info.ParentID)
	if !ok || parent.info.Role == fsevent.RoleAgent {
		return nil, false
	}
	return &fsevent.TargetClient{ID: parent.info.ID, Type: parent.info.Role}, true
}

// SendToAgent delivers msg to the agent connection agentID.
func (h *Hub) SendToAgent(agentID string, msg any) error {
	c, ok := h.lookup(agentID)
	if !ok || c.info.Role != fsevent.RoleAgent {
		return fmt.Errorf("agent %s: %w", agentID, ErrNotConnected)
	}
	return h.enqueue(c, msg)
}

// SendToConnection delivers msg to any connection by id.
func (h *Hub) SendToConnection(connID string, msg any) error {
	c, ok := h.lookup(connID)
	if !ok {
		return fmt.Errorf("connection %s: %w", connID, ErrNotConnected)
	}
	return h.enqueue(c, msg)
}

// Connections returns a snapshot of live connections sorted by id.
func (h *Hub) Connections() []ConnectionInfo {
	h.mu.RLock()
	out := make([]ConnectionInfo, 0, len(h.conns))
	for _, c := range h.conns {
		info := c.info
		info.Uptime = time.Since(info.ConnectedAt).Round(time.Second)
		out = append(out, info)
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close disconnects every client and waits for their pumps to exit.
func (h *Hub) Close() {
	h.cancel()
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.close()
	}
	h.wg.Wait()
}
