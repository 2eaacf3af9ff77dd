// Package ws streams decisions to WebSocket subscribers.
package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"FinFusion/internal/domain/models"
	svcmetrics "FinFusion/internal/service/metrics"
	"FinFusion/internal/usecase"
	applogger "FinFusion/pkg/logger"
)

// Config tunes per-connection behaviour.
type Config struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	SendBuffer   int
}

func (c *Config) setDefaults() {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	symbols map[string]bool // empty means every symbol
	tf      string          // empty means every timeframe
	once    sync.Once
}

func (c *client) wants(d *models.WeightedConfidence) bool {
	if c.tf != "" && c.tf != d.Timeframe {
		return false
	}
	return len(c.symbols) == 0 || c.symbols[d.Symbol]
}

// Hub fans decisions out to connected clients. A client whose send buffer
// is full is disconnected rather than slowing the ingest path.
type Hub struct {
	cfg      Config
	log      *applogger.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

func NewHub(cfg Config, log *applogger.Logger) *Hub {
	cfg.setDefaults()
	if log == nil {
		log = applogger.Nop()
	}
	return &Hub{
		cfg: cfg,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/decisions", h.Serve)
}

// Serve upgrades the request. Optional query params: symbols (comma
// separated) and timeframe.
func (h *Hub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Warn("ws upgrade", applogger.Error(err))
		return nil
	}
	cl := &client{
		conn:    conn,
		send:    make(chan []byte, h.cfg.SendBuffer),
		symbols: map[string]bool{},
		tf:      c.QueryParam("timeframe"),
	}
	for _, s := range strings.Split(c.QueryParam("symbols"), ",") {
		if s = usecase.NormalizeSymbol(s); s != "" {
			cl.symbols[s] = true
		}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	svcmetrics.WSClients.Inc()

	go h.writePump(cl)
	h.readPump(cl)
	return nil
}

// Broadcast implements usecase.Broadcaster.
func (h *Hub) Broadcast(d *models.WeightedConfidence) {
	data, err := json.Marshal(d)
	if err != nil {
		h.log.Error("ws marshal decision", applogger.Error(err))
		return
	}
	h.mu.RLock()
	var slow []*client
	for cl := range h.clients {
		if !cl.wants(d) {
			continue
		}
		select {
		case cl.send <- data:
		default:
			slow = append(slow, cl)
		}
	}
	h.mu.RUnlock()
	for _, cl := range slow {
		h.log.Warn("ws client too slow, disconnecting", applogger.String("remote", cl.conn.RemoteAddr().String()))
		h.remove(cl)
	}
}

// Clients is the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	_, ok := h.clients[cl]
	delete(h.clients, cl)
	h.mu.Unlock()
	if ok {
		svcmetrics.WSClients.Dec()
	}
	cl.once.Do(func() { close(cl.send) })
}

// readPump only handles control frames; subscribers never send data.
func (h *Hub) readPump(cl *client) {
	defer func() {
		h.remove(cl)
		_ = cl.conn.Close()
	}()
	wait := 2 * h.cfg.PingInterval
	_ = cl.conn.SetReadDeadline(time.Now().Add(wait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(wait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for cl := range h.clients {
		clients = append(clients, cl)
	}
	h.mu.Unlock()
	for _, cl := range clients {
		h.remove(cl)
	}
}

var _ usecase.Broadcaster = (*Hub)(nil)
