// Package websocket streams hub records to browser clients. Each connection
// is one hub observer.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Asif90988/banking-dashboard-streaming/internal/metrics"
	"github.com/Asif90988/banking-dashboard-streaming/internal/service/hub"
)

// Message types sent to clients
const (
	MessageConnected = "connected"
	MessageRecord    = "record"
	MessageAlert     = "alert"
	MessagePong      = "pong"
)

// Message is the JSON frame written to clients
type Message struct {
	Type      string          `json:"type"`
	Category  hub.Category    `json:"category,omitempty"`
	Sequence  uint64          `json:"sequence,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// clientMessage is what clients may send
type clientMessage struct {
	Type       string   `json:"type"`
	Categories []string `json:"categories,omitempty"`
}

// Registrar is the slice of the hub the server needs
type Registrar interface {
	Register(name string, observer hub.Observer) func()
}

type Config struct {
	// BufferSize is the per-client outbound queue; a full queue drops
	BufferSize     int
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
}

func DefaultConfig() Config {
	return Config{
		BufferSize:     256,
		MaxMessageSize: 64 << 10,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
	}
}

// Server upgrades /ws requests and registers each connection with the hub
type Server struct {
	config   Config
	hub      Registrar
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
}

func NewServer(config Config, h Registrar, logger *zap.Logger) *Server {
	defaults := DefaultConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = defaults.MaxMessageSize
	}
	if config.WriteWait <= 0 {
		config.WriteWait = defaults.WriteWait
	}
	if config.PongWait <= 0 {
		config.PongWait = defaults.PongWait
	}
	if config.PingPeriod <= 0 || config.PingPeriod >= config.PongWait {
		config.PingPeriod = config.PongWait * 9 / 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		config: config,
		hub:    h,
		logger: logger.Named("websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// dashboard clients are served from other origins; no auth here
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[uuid.UUID]*Client),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade websocket connection",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err))
		return
	}

	c := &Client{
		ID:          uuid.New(),
		ConnectedAt: time.Now().UTC(),
		server:      s,
		conn:        conn,
		send:        make(chan []byte, s.config.BufferSize),
		done:        make(chan struct{}),
	}

	c.unregister = s.hub.Register("ws:"+c.ID.String(), c)

	s.mu.Lock()
	s.clients[c.ID] = c
	metrics.WebsocketClients.Set(float64(len(s.clients)))
	s.mu.Unlock()

	go c.writePump()
	go c.readPump()

	c.enqueue(Message{
		Type:      MessageConnected,
		Data:      mustJSON(map[string]string{"client_id": c.ID.String()}),
		Timestamp: time.Now().UTC(),
	})

	s.logger.Info("websocket client connected",
		zap.String("client_id", c.ID.String()),
		zap.String("remote_addr", r.RemoteAddr))
}

// ClientCount returns the number of open connections
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Close disconnects every client
func (s *Server) Close() {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}

func (s *Server) remove(c *Client) {
	s.mu.Lock()
	delete(s.clients, c.ID)
	metrics.WebsocketClients.Set(float64(len(s.clients)))
	s.mu.Unlock()
}

// Client is one websocket connection
type Client struct {
	ID          uuid.UUID
	ConnectedAt time.Time

	server     *Server
	conn       *websocket.Conn
	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	unregister func()

	filterMu sync.RWMutex
	filter   map[hub.Category]struct{}
}

// Notify implements hub.Observer. It never blocks: a client that cannot
// keep up loses the message and the hub logs the error.
func (c *Client) Notify(_ context.Context, n hub.Notification) error {
	if !c.wants(n.Category) {
		return nil
	}
	msgType := MessageRecord
	if n.Category == hub.CategoryAlerts {
		msgType = MessageAlert
	}
	if !c.enqueue(Message{
		Type:      msgType,
		Category:  n.Category,
		Sequence:  n.Sequence,
		Data:      n.Payload,
		Timestamp: n.Timestamp,
	}) {
		return fmt.Errorf("client %s send buffer full, message dropped", c.ID)
	}
	return nil
}

func (c *Client) wants(category hub.Category) bool {
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	if len(c.filter) == 0 {
		return true
	}
	_, ok := c.filter[category]
	return ok
}

func (c *Client) setFilter(names []string) {
	filter := make(map[hub.Category]struct{}, len(names))
	for _, name := range names {
		category, err := hub.ParseCategory(name)
		if err != nil {
			c.server.logger.Debug("ignoring unknown category filter",
				zap.String("client_id", c.ID.String()),
				zap.String("category", name))
			continue
		}
		filter[category] = struct{}{}
	}

	c.filterMu.Lock()
	c.filter = filter
	c.filterMu.Unlock()
}

// enqueue reports whether the message was queued
func (c *Client) enqueue(msg Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		c.server.logger.Error("failed to marshal websocket message", zap.Error(err))
		return false
	}

	select {
	case <-c.done:
		return true
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.unregister != nil {
			c.unregister()
		}
		c.server.remove(c)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(c.server.config.WriteWait))
		_ = c.conn.Close()
		c.server.logger.Info("websocket client disconnected", zap.String("client_id", c.ID.String()))
	})
}

func (c *Client) readPump() {
	defer c.close()

	cfg := c.server.config
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Warn("websocket read error",
					zap.String("client_id", c.ID.String()),
					zap.Error(err))
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.server.logger.Debug("ignoring malformed client message",
				zap.String("client_id", c.ID.String()),
				zap.Error(err))
			continue
		}

		switch msg.Type {
		case "subscribe":
			c.setFilter(msg.Categories)
		case "ping":
			c.enqueue(Message{Type: MessagePong, Timestamp: time.Now().UTC()})
		}
	}
}

func (c *Client) writePump() {
	cfg := c.server.config
	ticker := time.NewTicker(cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func mustJSON(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
