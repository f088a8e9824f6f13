package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wfunc/duel-game/internal/config"
	"github.com/wfunc/duel-game/internal/duel"
	"go.uber.org/zap"
)

// Message WebSocket消息信封
type Message struct {
	Type      string          `json:"type"`           // 消息类型
	Data      json.RawMessage `json:"data,omitempty"` // 消息数据
	Timestamp int64           `json:"timestamp"`      // 毫秒时间戳
}

// 系统消息类型，对战事件直接使用 duel.EventType
const (
	MessageTypeConnected = "connected"
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
	MessageTypeError     = "error"
)

// Options 连接参数
type Options struct {
	ReadBufferSize    int
	WriteBufferSize   int
	MaxMessageSize    int64
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	SendBuffer        int
	EnableCompression bool
}

// DefaultOptions 默认连接参数
func DefaultOptions() Options {
	return Options{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		MaxMessageSize:  8192,
		PingInterval:    54 * time.Second,
		PongTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		SendBuffer:      256,
	}
}

// OptionsFromConfig 从配置构建连接参数
func OptionsFromConfig(cfg config.WebSocketConfig) Options {
	opts := DefaultOptions()
	if cfg.ReadBufferSize > 0 {
		opts.ReadBufferSize = cfg.ReadBufferSize
	}
	if cfg.WriteBufferSize > 0 {
		opts.WriteBufferSize = cfg.WriteBufferSize
	}
	if cfg.MaxMessageSize > 0 {
		opts.MaxMessageSize = cfg.MaxMessageSize
	}
	if cfg.PingInterval > 0 {
		opts.PingInterval = cfg.PingInterval
	}
	if cfg.PongTimeout > 0 {
		opts.PongTimeout = cfg.PongTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	opts.EnableCompression = cfg.EnableCompression
	// ping 周期必须小于 pong 超时
	if opts.PingInterval >= opts.PongTimeout {
		opts.PingInterval = opts.PongTimeout * 9 / 10
	}
	return opts
}

// Hub WebSocket连接管理中心，按玩家ID路由对战事件
type Hub struct {
	opts     Options
	upgrader websocket.Upgrader

	// 客户端连接池
	clients map[string]*Client
	// 玩家ID到客户端的映射，一个玩家可以有多个连接
	players map[string]map[string]*Client
	mu      sync.RWMutex

	// 注册/注销通道
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// 日志
	logger *zap.Logger
}

var _ duel.EventSink = (*Hub)(nil)

// NewHub 创建Hub
func NewHub(opts Options, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    opts.ReadBufferSize,
			WriteBufferSize:   opts.WriteBufferSize,
			EnableCompression: opts.EnableCompression,
			CheckOrigin: func(r *http.Request) bool {
				// 身份由令牌校验，不限制来源
				return true
			},
		},
		clients:    make(map[string]*Client),
		players:    make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run 运行Hub，ctx 取消后关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// ServeWS 升级HTTP连接并为玩家注册客户端
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, playerID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket升级失败",
			zap.String("player_id", playerID),
			zap.Error(err))
		return err
	}

	client := NewClient(h, conn, playerID)
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return ErrHubClosed
	}

	// 启动读写协程
	go client.WritePump()
	go client.ReadPump()
	return nil
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	set, ok := h.players[client.PlayerID]
	if !ok {
		set = make(map[string]*Client)
		h.players[client.PlayerID] = set
	}
	set[client.ID] = client
	h.mu.Unlock()

	h.logger.Info("WebSocket客户端连接",
		zap.String("client_id", client.ID),
		zap.String("player_id", client.PlayerID))

	// 发送连接成功消息
	data, _ := json.Marshal(map[string]string{"player_id": client.PlayerID})
	client.enqueue(h.encode(&Message{
		Type:      MessageTypeConnected,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}))
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		if set := h.players[client.PlayerID]; set != nil {
			delete(set, client.ID)
			if len(set) == 0 {
				delete(h.players, client.PlayerID)
			}
		}
		close(client.Send)
	}
	h.mu.Unlock()

	h.logger.Info("WebSocket客户端断开",
		zap.String("client_id", client.ID),
		zap.String("player_id", client.PlayerID))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		close(client.Send)
		delete(h.clients, id)
	}
	h.players = make(map[string]map[string]*Client)
}

// Publish 实现 duel.EventSink，把事件推送给所有接收方
func (h *Hub) Publish(event duel.Event) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		h.logger.Error("序列化事件失败",
			zap.String("type", string(event.Type)),
			zap.Error(err))
		return
	}
	payload := h.encode(&Message{
		Type:      string(event.Type),
		Data:      data,
		Timestamp: event.Timestamp.UnixMilli(),
	})
	if payload == nil {
		return
	}

	for _, playerID := range event.Recipients {
		if err := h.sendToPlayer(playerID, payload); err != nil {
			h.logger.Debug("事件未送达",
				zap.String("type", string(event.Type)),
				zap.String("player_id", playerID),
				zap.Error(err))
		}
	}
}

// SendToPlayer 发送消息给指定玩家的所有客户端
func (h *Hub) SendToPlayer(playerID string, message *Message) error {
	payload := h.encode(message)
	if payload == nil {
		return ErrInvalidMessage
	}
	return h.sendToPlayer(playerID, payload)
}

func (h *Hub) sendToPlayer(playerID string, payload []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.players[playerID]
	if len(set) == 0 {
		return ErrPlayerNotConnected
	}
	for _, client := range set {
		if !client.enqueue(payload) {
			h.logger.Warn("玩家客户端发送缓冲区满",
				zap.String("client_id", client.ID),
				zap.String("player_id", playerID))
		}
	}
	return nil
}

// sendToClient 发送给单个客户端，已注销的客户端直接忽略
func (h *Hub) sendToClient(client *Client, payload []byte) bool {
	if payload == nil {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client.ID]; !ok {
		return false
	}
	return client.enqueue(payload)
}

func (h *Hub) encode(message *Message) []byte {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.Error(err))
		return nil
	}
	return data
}

// IsOnline 玩家是否在线
func (h *Hub) IsOnline(playerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.players[playerID]) > 0
}

// GetOnlineCount 获取在线连接数
func (h *Hub) GetOnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetOnlinePlayers 获取在线玩家数
func (h *Hub) GetOnlinePlayers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.players)
}
