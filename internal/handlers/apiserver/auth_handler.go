package apiserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"trackd/internal/auth"
	"trackd/internal/config"
	"trackd/internal/middleware"
	"trackd/internal/services"
)

const (
	stateCookieName = "trackd_oauth_state"
	stateCookieTTL  = 10 * time.Minute
)

// AuthHandler 封装了认证相关的 HTTP 处理器方法。
type AuthHandler struct {
	authService services.AuthService
	userService services.UserService
	provider    auth.IdentityProvider // 未配置 OIDC 时为 nil
	cfg         config.AuthConfig
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。provider 可以为 nil。
func NewAuthHandler(authService services.AuthService, userService services.UserService, provider auth.IdentityProvider, cfg config.AuthConfig) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		userService: userService,
		provider:    provider,
		cfg:         cfg,
	}
}

// LoginHandler handles GET /auth/login: 生成 state 并重定向到身份提供方。
func (h *AuthHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		writeJSONError(w, "Sign-in is not configured", http.StatusServiceUnavailable)
		return
	}

	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

// CallbackHandler handles GET /auth/callback.
func (h *AuthHandler) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		writeJSONError(w, "Sign-in is not configured", http.StatusServiceUnavailable)
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		writeJSONError(w, "Invalid state", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/auth", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		log.Warn().Str("error", errParam).Str("description", r.URL.Query().Get("error_description")).Msg("身份提供方拒绝了登录")
		writeJSONError(w, "Sign-in was cancelled", http.StatusUnauthorized)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSONError(w, "Missing code", http.StatusBadRequest)
		return
	}

	identity, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		log.Warn().Err(err).Msg("OIDC 授权码交换失败")
		writeJSONError(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	token, expiresAt, user, err := h.authService.SignIn(r.Context(), *identity)
	if errors.Is(err, services.ErrEmailNotVerified) {
		writeJSONError(w, err.Error(), http.StatusForbidden)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("subject", identity.Subject).Msg("登录失败")
		writeJSONError(w, "Sign-in failed", http.StatusInternalServerError)
		return
	}
	log.Info().Str("user_id", user.ID).Msg("用户已登录")

	auth.SetSessionCookie(w, h.cfg, token, expiresAt)
	redirect := h.cfg.PostLoginRedirect
	if redirect == "" {
		redirect = "/"
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

// LogoutHandler 处理用户登出请求，将当前 Token 加入黑名单并清除 Cookie。
func (h *AuthHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		writeJSONError(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	if err := h.authService.Logout(r.Context(), claims); err != nil {
		log.Error().Err(err).Str("user_id", claims.UserID).Msg("登出失败")
		writeJSONError(w, "Failed to sign out", http.StatusInternalServerError)
		return
	}
	auth.ClearSessionCookie(w, h.cfg)
	writeMessage(w, http.StatusOK, "Signed out")
}

// MeHandler handles GET /api/me.
func (h *AuthHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	user, err := h.userService.GetUserProfile(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err, "Failed to fetch profile")
		return
	}
	writeData(w, http.StatusOK, user)
}
