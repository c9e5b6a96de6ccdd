package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/paeltech/savannaFx-sub000/internal/domain/models"
	drepo "github.com/paeltech/savannaFx-sub000/internal/domain/repository"
	"github.com/paeltech/savannaFx-sub000/pkg/logger"
)

const (
	pingPeriod  = 30 * time.Second
	pongWait    = 60 * time.Second
	writeWait   = 10 * time.Second
	sendBufSize = 64
)

// ErrOffline means the user has no open session; the mailbox entry is still stored.
var ErrOffline = errors.New("realtime: user offline")

// Hub pushes in-app notifications to a user's open websocket sessions.
type Hub struct {
	logger   *logger.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]map[*conn]struct{}
}

var _ drepo.NotificationPusher = (*Hub)(nil)

func NewHub(lgr *logger.Logger) *Hub {
	return &Hub{
		logger: lgr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]map[*conn]struct{}),
	}
}

type envelope struct {
	Type string               `json:"type"`
	Data *models.Notification `json:"data"`
}

// Push sends n to every session of n.UserID. Slow sessions drop the frame.
func (h *Hub) Push(_ context.Context, n *models.Notification) error {
	data, err := json.Marshal(envelope{Type: "notification", Data: n})
	if err != nil {
		return err
	}

	h.mu.RLock()
	targets := make([]*conn, 0, len(h.clients[n.UserID]))
	for c := range h.clients[n.UserID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return ErrOffline
	}
	for _, c := range targets {
		if !c.send(data) {
			h.logger.Debug("websocket buffer full, frame dropped", logger.UserID(n.UserID))
		}
	}
	return nil
}

// Sessions returns the number of open sessions for userID.
func (h *Hub) Sessions(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Serve upgrades the request and blocks until the session ends.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &conn{ws: ws, out: make(chan []byte, sendBufSize), done: make(chan struct{})}

	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*conn]struct{})
	}
	h.clients[userID][c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket session opened", logger.UserID(userID))

	defer func() {
		h.mu.Lock()
		delete(h.clients[userID], c)
		if len(h.clients[userID]) == 0 {
			delete(h.clients, userID)
		}
		h.mu.Unlock()
		c.close()
		h.logger.Debug("websocket session closed", logger.UserID(userID))
	}()

	go c.writePump()
	c.readPump()
	return nil
}

type conn struct {
	ws   *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (c *conn) send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- data:
		return true
	default:
		return false
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// readPump only services control frames; clients never send data.
func (c *conn) readPump() {
	c.ws.SetReadLimit(512)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
