package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 浏览器扩展的 Origin 为 chrome-extension://<id>，不做限制
		return true
	},
}

// Redis Pub/Sub channel 名称
const redisBroadcastChannel = "templates:changed"

const publishQueueSize = 256

// 单次 Publish 的超时
var publishTimeout = 3 * time.Second

// WSMessage WebSocket 消息格式
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// CollectionChangedEvent 集合变更事件
type CollectionChangedEvent struct {
	Key string `json:"key"`
	Op  string `json:"op"`
}

// BroadcastMessage 跨实例广播消息格式
type BroadcastMessage struct {
	PodID   string `json:"pod_id"` // 发送方实例 ID，用于去重
	Payload []byte `json:"payload"`
}

// Client WebSocket 客户端（一个扩展标签页）
type Client struct {
	ID     uuid.UUID
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *Hub
	mu     sync.Mutex
	closed bool // Send channel 是否已关闭
}

// Hub 管理所有订阅集合变更的连接
type Hub struct {
	clients map[uuid.UUID]*Client
	mu      sync.RWMutex

	// 可选：多实例部署时通过 Redis 转发变更事件
	rdb   *redis.Client
	podID string

	// 变更事件异步发布，调用方（持有服务写锁）不等待 Redis
	publishQueue chan []byte

	log        *zap.Logger
	stopPubSub chan struct{}
}

// NewHub 创建 Hub，rdb 为 nil 时只在本实例内推送
func NewHub(rdb *redis.Client, log *zap.Logger) *Hub {
	return &Hub{
		clients:      make(map[uuid.UUID]*Client),
		rdb:          rdb,
		podID:        uuid.New().String(),
		publishQueue: make(chan []byte, publishQueueSize),
		log:          log,
		stopPubSub:   make(chan struct{}),
	}
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	total := len(h.clients)
	h.mu.Unlock()

	h.log.Debug("websocket client connected", zap.String("client", client.ID.String()), zap.Int("total", total))
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	delete(h.clients, client.ID)
	h.mu.Unlock()

	// 安全关闭 Send channel
	client.mu.Lock()
	if !client.closed {
		close(client.Send)
		client.closed = true
	}
	client.mu.Unlock()
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// sendLocal 推送给本实例所有连接，返回成功投递的数量
func (h *Hub) sendLocal(message []byte) int {
	h.mu.RLock()
	clientsCopy := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clientsCopy = append(clientsCopy, client)
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range clientsCopy {
		client.mu.Lock()
		if client.closed {
			client.mu.Unlock()
			continue
		}
		select {
		case client.Send <- message:
			sent++
			client.mu.Unlock()
		default:
			client.mu.Unlock()
			// 发送通道满了，关闭该连接
			h.log.Warn("websocket send channel full, closing connection", zap.String("client", client.ID.String()))
			go h.Unregister(client)
		}
	}
	return sent
}

// CollectionChanged 实现 service.ChangeNotifier
func (h *Hub) CollectionChanged(key, op string) {
	message, err := json.Marshal(WSMessage{
		Type: "collection_changed",
		Data: CollectionChangedEvent{Key: key, Op: op},
	})
	if err != nil {
		h.log.Error("failed to marshal change event", zap.Error(err))
		return
	}

	h.sendLocal(message)

	if h.rdb == nil {
		return
	}
	msgBytes, err := json.Marshal(BroadcastMessage{PodID: h.podID, Payload: message})
	if err != nil {
		h.log.Error("failed to marshal broadcast message", zap.Error(err))
		return
	}
	select {
	case h.publishQueue <- msgBytes:
	default:
		h.log.Warn("publish queue full, dropping change event", zap.String("key", key), zap.String("op", op))
	}
}

// publishLoop 把排队的变更事件发布到 Redis
func (h *Hub) publishLoop() {
	for {
		select {
		case <-h.stopPubSub:
			return
		case msg := <-h.publishQueue:
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			if err := h.rdb.Publish(ctx, redisBroadcastChannel, msg).Err(); err != nil {
				h.log.Error("failed to publish change event", zap.Error(err))
			}
			cancel()
		}
	}
}

// StartPubSub 订阅其他实例的变更事件
func (h *Hub) StartPubSub() {
	if h.rdb == nil {
		return
	}
	go h.publishLoop()
	go func() {
		pubsub := h.rdb.Subscribe(context.Background(), redisBroadcastChannel)
		defer pubsub.Close()

		h.log.Info("redis pub/sub subscription started", zap.String("pod", h.podID[:8]))
		h.consume(pubsub.Channel())
	}()
}

// consume 转发其他实例的事件，channel 关闭或 StopPubSub 后返回
func (h *Hub) consume(ch <-chan *redis.Message) {
	for {
		select {
		case <-h.stopPubSub:
			return
		case msg, ok := <-ch:
			if !ok {
				h.log.Warn("redis pub/sub channel closed")
				return
			}
			h.handleBroadcastMessage([]byte(msg.Payload))
		}
	}
}

// StopPubSub 停止 Redis Pub/Sub 订阅
func (h *Hub) StopPubSub() {
	close(h.stopPubSub)
}

func (h *Hub) handleBroadcastMessage(data []byte) {
	var msg BroadcastMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.log.Error("failed to unmarshal broadcast message", zap.Error(err))
		return
	}
	// 忽略自己发的消息
	if msg.PodID == h.podID {
		return
	}
	h.sendLocal(msg.Payload)
}

// HandleWebSocket 处理 WebSocket 连接
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Error("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:   uuid.New(),
			Conn: conn,
			Send: make(chan []byte, 64),
			Hub:  hub,
		}
		hub.Register(client)

		go client.readPump()
		go client.writePump()
	}
}

// readPump 只处理心跳和关闭，客户端不通过 WebSocket 写数据
func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.Hub.log.Warn("websocket unexpected close", zap.Error(err))
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	}
}

// writePump 向 WebSocket 写入消息
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub 关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			// 发送 ping 保持连接
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
