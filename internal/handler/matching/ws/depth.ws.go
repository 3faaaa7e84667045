package ws

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/krobus00/matching-engine/internal/entity"
	"github.com/sirupsen/logrus"
)

const (
	clientBufferSize = 64
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	conn *websocket.Conn
	isin string // empty subscribes to every instrument
	send chan []byte
}

// DepthHub pushes depth snapshots to websocket subscribers. OnDepth never
// blocks; a client whose buffer is full is dropped.
type DepthHub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewDepthHub() *DepthHub {
	return &DepthHub{clients: make(map[*client]struct{})}
}

func (h *DepthHub) Register(r chi.Router) {
	r.Get("/matching-engine/v1/ws/depth", h.ServeWS)
}

func (h *DepthHub) OnDepth(snapshot entity.DepthSnapshot) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		logrus.WithError(err).Error("failed to marshal depth snapshot")
		return
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		if c.isin != "" && c.isin != snapshot.ISIN {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		logrus.WithField("isin", c.isin).Warn("dropping slow depth subscriber")
		h.remove(c)
	}
}

func (h *DepthHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *DepthHub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		close(c.send)
	}
}

func (h *DepthHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("failed to upgrade websocket connection")
		return
	}

	c := &client{
		conn: conn,
		isin: strings.TrimSpace(r.URL.Query().Get("isin")),
		send: make(chan []byte, clientBufferSize),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *DepthHub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// readLoop only drains control frames so pongs are processed.
func (h *DepthHub) readLoop(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *DepthHub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logrus.WithError(err).Debug("depth subscriber write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
