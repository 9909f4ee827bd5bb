// Package websocket pushes game lifecycle events to connected spectators.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"battlebots/internal/events"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingPeriod   = 10 * time.Second
	readDeadline = 60 * time.Second
	writeWait    = 5 * time.Second
	sendBuffer   = 16
)

// Client is one spectator connection. GameID zero follows every game.
type Client struct {
	Conn   *websocket.Conn
	UserID uint
	GameID uint

	mu   sync.Mutex
	send chan []byte
	once sync.Once
}

func (c *Client) following(gameID uint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.GameID == 0 || c.GameID == gameID
}

func (c *Client) follow(gameID uint) {
	c.mu.Lock()
	c.GameID = gameID
	c.mu.Unlock()
}

// Hub tracks spectators and implements events.Publisher.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

var _ events.Publisher = (*Hub)(nil)

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// HandleConnections upgrades the request and subscribes the spectator to the
// game given by the gameId query parameter (all games when absent).
func (h *Hub) HandleConnections(w http.ResponseWriter, r *http.Request, userID uint) {
	var gameID uint
	if v := r.URL.Query().Get("gameId"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			h.logger.Error("Invalid gameId format", zap.Error(err))
			http.Error(w, "Invalid gameId format", http.StatusBadRequest)
			return
		}
		gameID = uint(id)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client
		h.logger.Error("Error upgrading WebSocket", zap.Error(err))
		return
	}
	client := &Client{Conn: conn, UserID: userID, GameID: gameID, send: make(chan []byte, sendBuffer)}
	h.register(client)

	go h.writePump(client)
	go h.readPump(client)
}

// Publish sends e to every spectator following its game. Slow spectators are dropped.
func (h *Hub) Publish(_ context.Context, e events.Event) error {
	msg, err := e.Encode()
	if err != nil {
		return err
	}
	h.mu.RLock()
	var slow []*Client
	for c := range h.clients {
		if !c.following(e.GameID) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Dropping slow spectator", zap.Uint("user", c.UserID))
		h.unregister(c)
	}
	return nil
}

// Close disconnects every spectator.
func (h *Hub) Close() error {
	h.mu.RLock()
	all := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.unregister(c)
	}
	return nil
}

// Count is the number of connected spectators.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	h.logger.Info("Spectator connected", zap.Uint("user", c.UserID), zap.Uint("game", c.GameID))
}

func (h *Hub) unregister(c *Client) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		close(c.send)
		h.logger.Info("Spectator removed", zap.Uint("user", c.UserID))
	})
}

// writePump owns all writes to the connection, including pings.
func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Error("Failed to send event", zap.Uint("to", c.UserID), zap.Error(err))
				h.unregister(c)
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Error("Error sending ping", zap.Error(err))
				h.unregister(c)
				return
			}
		}
	}
}

// readPump keeps the read deadline alive and handles subscription changes.
func (h *Hub) readPump(c *Client) {
	defer h.unregister(c)

	c.Conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(readDeadline))
	})
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Error("WebSocket error", zap.Error(err))
			}
			return
		}

		var msg struct {
			Type   string `json:"type"`
			GameID uint   `json:"gameId"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			h.logger.Error("Error decoding message", zap.Error(err))
			continue
		}
		switch msg.Type {
		case "subscribe":
			c.follow(msg.GameID)
			h.logger.Info("Spectator switched game", zap.Uint("user", c.UserID), zap.Uint("game", msg.GameID))
		default:
			h.logger.Info("Received unknown message type", zap.String("type", msg.Type))
		}
	}
}
