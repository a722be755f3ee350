package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"trackd/internal/config" // 用于 WebSocketConfig
)

// Client is a middleman between the websocket connection and the hub.
// 通知通道是单向的：客户端发来的消息只用于保活，内容被丢弃。
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	// Authenticated User ID for this client.
	UserID string
}

func seconds(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

// readPump 读取并丢弃客户端消息，维持读超时，直到连接断开。
func (c *Client) readPump(wsCfg config.WebSocketConfig) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	pongWait := seconds(wsCfg.PongWaitSeconds, 60)
	if wsCfg.MaxMessageSizeBytes > 0 {
		c.conn.SetReadLimit(int64(wsCfg.MaxMessageSizeBytes))
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("user_id", c.UserID).Msg("WebSocket 异常关闭")
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump(wsCfg config.WebSocketConfig) {
	writeWait := seconds(wsCfg.WriteWaitSeconds, 10)
	ticker := time.NewTicker(seconds(wsCfg.PingPeriodSeconds, 54))
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了通道
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// 每条通知一帧，前端按帧解析 JSON
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

// ServeWs 将已认证的 HTTP 请求升级为 WebSocket 并注册到 hub。
func ServeWs(hub *Hub, userID string, w http.ResponseWriter, r *http.Request, wsCfg config.WebSocketConfig, checkOrigin func(r *http.Request) bool) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已经写出了错误响应
		log.Warn().Err(err).Str("user_id", userID).Msg("WebSocket Upgrade 失败")
		return
	}
	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		UserID: userID,
	}
	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump(wsCfg)
	go client.readPump(wsCfg)

	log.Info().Str("user_id", userID).Msg("客户端已连接")
}
