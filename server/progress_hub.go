package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"smileslot/logger"
	"smileslot/model"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	sendBufferSize = 256
)

// 进度消息类型
const (
	MsgTypeFile  = "file"
	MsgTypeBatch = "batch"
)

// ProgressMessage is one event on /ws/progress.
type ProgressMessage struct {
	Type      string             `json:"type"`
	BatchID   string             `json:"batch_id"`
	File      *model.FileResult  `json:"file,omitempty"`
	Batch     *model.BatchResult `json:"batch,omitempty"`
	Timestamp int64              `json:"timestamp"`
}

type progressClient struct {
	hub  *ProgressHub
	conn *websocket.Conn
	send chan []byte
}

// ProgressHub fans pipeline events out to websocket subscribers. It satisfies
// pipeline.Observer.
type ProgressHub struct {
	upgrader websocket.Upgrader

	clients    map[*progressClient]bool
	register   chan *progressClient
	unregister chan *progressClient
	broadcast  chan []byte

	mu   sync.RWMutex
	done chan struct{}
	once sync.Once
}

// NewProgressHub 创建进度 Hub. Call Run in its own goroutine.
func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:    make(map[*progressClient]bool),
		register:   make(chan *progressClient),
		unregister: make(chan *progressClient),
		broadcast:  make(chan []byte, sendBufferSize),
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *ProgressHub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			logger.Debug("progress subscriber registered", logger.Int("subscribers", h.Clients()))

		case c := <-h.unregister:
			h.mu.Lock()
			h.remove(c)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// slow subscriber
					h.remove(c)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				h.remove(c)
			}
			h.mu.Unlock()
			return
		}
	}
}

// remove must be called with mu held.
func (h *ProgressHub) remove(c *progressClient) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Stop 停止 Hub
func (h *ProgressHub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// Clients returns the number of connected subscribers.
func (h *ProgressHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *ProgressHub) publish(msg ProgressMessage) {
	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Warn("failed to encode progress message", logger.ErrorField(err))
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	default:
		logger.Warn("progress broadcast queue full, message dropped", logger.String("batchId", msg.BatchID))
	}
}

// FileProcessed forwards one file outcome to every subscriber.
func (h *ProgressHub) FileProcessed(batchID string, result model.FileResult) {
	h.publish(ProgressMessage{Type: MsgTypeFile, BatchID: batchID, File: &result})
}

// BatchFinished forwards the batch summary without the per-file results
// already streamed.
func (h *ProgressHub) BatchFinished(result *model.BatchResult) {
	summary := *result
	summary.Results = nil
	h.publish(ProgressMessage{Type: MsgTypeBatch, BatchID: result.BatchID, Batch: &summary})
}

// ServeWS GET /ws/progress
func (h *ProgressHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	c := &progressClient{hub: h, conn: conn, send: make(chan []byte, sendBufferSize)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// readPump only drains control frames; subscribers never send data.
func (c *progressClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", logger.ErrorField(err))
			}
			return
		}
	}
}

// writePump 写入消息循环
func (c *progressClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
