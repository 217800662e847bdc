package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"robogarage/internal/api/middleware"
	"robogarage/internal/metrics"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsSendBuffer = 32
)

// SlotEvent - уведомление клиента об изменении слота
type SlotEvent struct {
	Type   string `json:"type"`
	HashID string `json:"hash_id"`
}

type wsClient struct {
	hashID string
	conn   *websocket.Conn
	send   chan []byte
}

// wsHub раздает события слотов подключенным клиентам
type wsHub struct {
	upgrader websocket.Upgrader
	clients  map[*wsClient]struct{}
	mu       sync.RWMutex
	logger   *slog.Logger
}

func newWSHub(logger *slog.Logger) *wsHub {
	return &wsHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*wsClient]struct{}),
		logger:  logger,
	}
}

func (h *wsHub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WSClients.Set(float64(count))
}

func (h *wsHub) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WSClients.Set(float64(count))
}

// broadcast отправляет событие клиентам слота. Медленные клиенты отключаются.
func (h *wsHub) broadcast(hashID string) {
	message, err := json.Marshal(SlotEvent{Type: "slot_updated", HashID: hashID})
	if err != nil {
		return
	}

	var slow []*wsClient

	h.mu.RLock()
	for c := range h.clients {
		if c.hashID != hashID {
			continue
		}

		select {
		case c.send <- message:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Websocket client too slow, disconnecting")
		h.unregister(c)
	}
}

func (h *wsHub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	metrics.WSClients.Set(0)
}

func (h *wsHub) readPump(c *wsClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("Websocket read error", slog.Any("error", err))
			}

			return
		}
	}
}

func (h *wsHub) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleWebSocket подписывает клиента на события его слота
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	hashID, ok := middleware.GetHashID(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	conn, err := h.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", slog.Any("error", err))
		return
	}

	client := &wsClient{
		hashID: hashID,
		conn:   conn,
		send:   make(chan []byte, wsSendBuffer),
	}

	h.hub.register(client)

	go h.hub.writePump(client)
	go h.hub.readPump(client)
}

// SlotUpdated - подписчик гаража, рассылает событие клиентам слота
func (h *Handler) SlotUpdated(hashID string) {
	h.hub.broadcast(hashID)
}

// Close отключает всех websocket клиентов
func (h *Handler) Close() {
	h.hub.closeAll()
}
