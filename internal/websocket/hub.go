package websocket

import (
	"context"

	"github.com/rs/zerolog/log"

	"trackd/internal/metrics"
)

// Message 是推送给浏览器的一帧。Data 通常是一个通知事件。
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// MessageTypeNotification marks a pushed notification frame.
const MessageTypeNotification = "notification"

type directMessage struct {
	userID  string
	payload []byte
}

// Hub maintains the set of active clients and pushes messages to them by user ID.
// 同一用户可以有多个连接（多个标签页），推送会发给该用户的全部连接。
type Hub struct {
	clients map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	direct     chan directMessage

	// count 请求当前连接数，只在 Run 循环内读取 clients
	count chan countRequest

	// done 在 Run 退出时关闭，之后注册/注销不再阻塞
	done chan struct{}
}

type countRequest struct {
	userID string
	reply  chan int
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		direct:     make(chan directMessage, 256),
		count:      make(chan countRequest),
		done:       make(chan struct{}),
	}
}

// Push 将消息异步投递给 userID 的所有连接。通道满时丢弃，避免阻塞 Kafka 消费者。
func (h *Hub) Push(userID string, payload []byte) {
	select {
	case h.direct <- directMessage{userID: userID, payload: payload}:
	default:
		log.Warn().Str("user_id", userID).Msg("Hub direct channel 已满，丢弃推送")
	}
}

// ConnectionCount returns the number of live connections for userID, or for all users
// when userID is empty.
func (h *Hub) ConnectionCount(ctx context.Context, userID string) int {
	reply := make(chan int, 1)
	select {
	case h.count <- countRequest{userID: userID, reply: reply}:
	case <-ctx.Done():
		return 0
	case <-h.done:
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-ctx.Done():
		return 0
	}
}

// Run starts the hub and listens for messages on its channels until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	log.Info().Msg("WebSocket Hub Run loop started.")
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, conns := range h.clients {
				for client := range conns {
					h.remove(client)
				}
			}
			log.Info().Msg("WebSocket Hub 已停止")
			return

		case client := <-h.register:
			conns, ok := h.clients[client.UserID]
			if !ok {
				conns = make(map[*Client]struct{})
				h.clients[client.UserID] = conns
			}
			conns[client] = struct{}{}
			metrics.WebSocketConnections.Inc()
			log.Debug().Str("user_id", client.UserID).Int("connections", len(conns)).Msg("客户端已注册")

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.direct:
			for client := range h.clients[msg.userID] {
				select {
				case client.send <- msg.payload:
				default:
					// 发送缓冲区已满，认为客户端过慢或已断开
					log.Warn().Str("user_id", msg.userID).Msg("客户端发送通道已满，移除客户端")
					h.remove(client)
				}
			}

		case req := <-h.count:
			if req.userID != "" {
				req.reply <- len(h.clients[req.userID])
				continue
			}
			total := 0
			for _, conns := range h.clients {
				total += len(conns)
			}
			req.reply <- total
		}
	}
}

// remove 注销客户端并关闭其发送通道。重复调用是安全的。
func (h *Hub) remove(client *Client) {
	conns, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(h.clients, client.UserID)
	}
	close(client.send)
	metrics.WebSocketConnections.Dec()
	log.Debug().Str("user_id", client.UserID).Msg("客户端已注销")
}
