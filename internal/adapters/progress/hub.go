package progress

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/athebyme/gomarket-platform/pricing-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/metrics"
	"github.com/athebyme/gomarket-platform/pricing-service/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// client — одно WebSocket-соединение, подписанное на канал прогресса
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub доставляет сообщения прогресса в адресованные каналы.
// Канал идентифицируется клиентским channel_id из запроса на прогон;
// бэк-офис открывает соединение до отправки прогона и получает проценты
// только своего прогона.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*client]struct{}
	logger   interfaces.LoggerPort
}

// NewHub создает Hub
func NewHub(logger interfaces.LoggerPort) *Hub {
	return &Hub{
		channels: make(map[string]map[*client]struct{}),
		logger:   logger,
	}
}

// Push отправляет сообщение всем соединениям канала.
// Возвращает false, если на канал никто не подписан.
// Соединение с переполненным буфером отключается: медленный клиент
// не должен тормозить прогон.
func (h *Hub) Push(channelID string, msg models.ProgressMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		return false
	}

	h.mu.RLock()
	clients := h.channels[channelID]
	if len(clients) == 0 {
		h.mu.RUnlock()
		return false
	}

	var stale []*client
	for c := range clients {
		select {
		case c.send <- data:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.detach(channelID, c)
	}
	return true
}

// HandleWS обслуживает запрос GET /ws/progress/{channel}
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channel")
	if channelID == "" {
		http.Error(w, "channel is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Ошибка обновления соединения до WebSocket",
			interfaces.LogField{Key: "error", Value: err.Error()})
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.attach(channelID, c)

	go h.writePump(channelID, c)
	go h.readPump(channelID, c)
}

func (h *Hub) attach(channelID string, c *client) {
	h.mu.Lock()
	if _, ok := h.channels[channelID]; !ok {
		h.channels[channelID] = make(map[*client]struct{})
	}
	h.channels[channelID][c] = struct{}{}
	h.mu.Unlock()

	metrics.ProgressClients.Inc()
	h.logger.Debug("Клиент прогресса подключен",
		interfaces.LogField{Key: "channel", Value: channelID})
}

func (h *Hub) detach(channelID string, c *client) {
	h.mu.Lock()
	clients, ok := h.channels[channelID]
	if ok {
		if _, present := clients[c]; present {
			delete(clients, c)
			close(c.send)
			c.conn.Close()
			metrics.ProgressClients.Dec()
		}
		if len(clients) == 0 {
			delete(h.channels, channelID)
		}
	}
	h.mu.Unlock()
}

// readPump удерживает соединение и обнаруживает разрыв
func (h *Hub) readPump(channelID string, c *client) {
	defer h.detach(channelID, c)

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

// writePump отправляет сообщения канала и периодические ping-и
func (h *Hub) writePump(channelID string, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.detach(channelID, c)
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
