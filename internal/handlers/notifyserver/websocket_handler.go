package notifyserver

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"trackd/internal/auth"
	"trackd/internal/config"
	ws "trackd/internal/websocket"
)

// WebSocketHandler 负责处理通知 WebSocket 连接请求。
type WebSocketHandler struct {
	hub       *ws.Hub
	blacklist auth.TokenBlacklist // 可以为 nil
	cfg       config.Config       // 用于获取 WebSocket、Auth 和 CORS 配置
}

// NewWebSocketHandler 创建一个新的 WebSocketHandler 实例。
func NewWebSocketHandler(hub *ws.Hub, blacklist auth.TokenBlacklist, cfg config.Config) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, blacklist: blacklist, cfg: cfg}
}

// ServeWS 认证请求后把连接升级为 WebSocket。
// 令牌依次从 ?token=、会话 Cookie 和 Authorization 头读取；浏览器无法给 WebSocket 设置请求头。
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = auth.TokenFromRequest(r, h.cfg.Auth.CookieName)
	}
	if token == "" {
		writeUnauthorized(w)
		return
	}

	claims, err := auth.ValidateToken(r.Context(), token, h.cfg.Auth.JWTSecretKey, h.blacklist)
	if err != nil {
		log.Debug().Err(err).Msg("WebSocket 连接尝试失败：令牌无效")
		writeUnauthorized(w)
		return
	}

	ws.ServeWs(h.hub, claims.UserID, w, r, h.cfg.WebSocket, h.checkOrigin)
}

// checkOrigin 只允许 CORS 配置中的来源；配置为空或包含 "*" 时不限制。
func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	allowed := h.cfg.APIServer.CORS.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(strings.TrimRight(o, "/"), u.Scheme+"://"+u.Host) {
			return true
		}
	}
	return false
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   "Not authenticated",
	})
}
