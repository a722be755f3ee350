package middleware

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"trackd/internal/auth"
	"trackd/internal/config"
)

// contextKey 是用于在 context.Context 中存储值的自定义类型，以避免键冲突。
type contextKey string

const (
	userIDKey contextKey = "userID"
	emailKey  contextKey = "email"
	claimsKey contextKey = "claims"
)

// AuthMiddleware 验证会话 JWT (Cookie 或 Bearer)，并将用户信息放入上下文。
// blacklist 可以为 nil（未配置 Redis）。
func AuthMiddleware(authCfg config.AuthConfig, blacklist auth.TokenBlacklist) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := auth.TokenFromRequest(r, authCfg.CookieName)
			if tokenString == "" {
				writeUnauthorized(w)
				return
			}

			claims, err := auth.ValidateToken(r.Context(), tokenString, authCfg.JWTSecretKey, blacklist)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("令牌无效")
				writeUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// WithClaims 把已验证的声明放入上下文。测试中也用它构造已登录的请求。
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, userIDKey, claims.UserID)
	ctx = context.WithValue(ctx, emailKey, claims.Email)
	return context.WithValue(ctx, claimsKey, claims)
}

// GetUserIDFromContext 从上下文中获取用户ID。
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

// GetEmailFromContext 从上下文中获取用户邮箱。
func GetEmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(emailKey).(string)
	return email, ok
}

// GetClaimsFromContext 返回完整的 JWT 声明，登出时需要其中的 JTI 和过期时间。
func GetClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   "Not authenticated",
	})
}
