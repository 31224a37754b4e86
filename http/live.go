package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType 实时消息类型
type MessageType string

const (
	AnnotationEvent MessageType = "annotation"
	ModelUpdated    MessageType = "model_updated"
	Heartbeat       MessageType = "heartbeat"
)

// LiveMessage 推送给标注客户端的消息
type LiveMessage struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type liveClient struct {
	conn *websocket.Conn
	send chan []byte
}

// LiveHub 向已连接的标注客户端广播队列变化
type LiveHub struct {
	clients    map[*liveClient]bool
	broadcast  chan []byte
	register   chan *liveClient
	unregister chan *liveClient
	done       chan struct{}
	upgrader   websocket.Upgrader
	logger     *zap.Logger
	mu         sync.RWMutex
}

var (
	liveHubMu sync.RWMutex
	liveHub   *LiveHub
)

// NewLiveHub 创建广播中心
func NewLiveHub(logger *zap.Logger) *LiveHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveHub{
		clients:    make(map[*liveClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *liveClient),
		unregister: make(chan *liveClient),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// SetLiveHub 安装全局广播中心
func SetLiveHub(hub *LiveHub) {
	liveHubMu.Lock()
	liveHub = hub
	liveHubMu.Unlock()
}

func currentHub() *LiveHub {
	liveHubMu.RLock()
	defer liveHubMu.RUnlock()
	return liveHub
}

// Run 运行广播循环，直到ctx取消
func (h *LiveHub) Run(ctx context.Context) {
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("labeling client connected", zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("labeling client disconnected", zap.Int("total", total))

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer; drop the message rather
					// than stall every other client.
				}
			}
			h.mu.RUnlock()

		case <-heartbeat.C:
			h.Broadcast(LiveMessage{Type: Heartbeat, Timestamp: time.Now()})

		case <-ctx.Done():
			// Release any goroutine parked on register/unregister
			// before tearing the clients down.
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				client.conn.Close()
			}
			h.clients = make(map[*liveClient]bool)
			h.mu.Unlock()
			return
		}
	}
}

// Broadcast 向所有客户端广播一条消息
func (h *LiveHub) Broadcast(msg LiveMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- payload:
	default:
	}
}

// ServeWS 处理websocket升级
func (h *LiveHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &liveClient{conn: conn, send: make(chan []byte, 64)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

func (c *liveClient) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *liveClient) readPump(h *LiveHub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func handleLiveQueue(w http.ResponseWriter, r *http.Request) {
	hub := currentHub()
	if hub == nil {
		http.Error(w, "live feed not available", http.StatusServiceUnavailable)
		return
	}
	hub.ServeWS(w, r)
}

// BroadcastAnnotation 通知客户端某文档已被标注，应从本地队列移除
func BroadcastAnnotation(docID string, label int) {
	hub := currentHub()
	if hub == nil {
		return
	}
	data, _ := json.Marshal(map[string]interface{}{"doc_id": docID, "label": label})
	hub.Broadcast(LiveMessage{Type: AnnotationEvent, Timestamp: time.Now(), Data: data})
}

// BroadcastModelUpdated 通知客户端模型已更新，队列排序已失效
func BroadcastModelUpdated() {
	hub := currentHub()
	if hub == nil {
		return
	}
	hub.Broadcast(LiveMessage{Type: ModelUpdated, Timestamp: time.Now()})
}
