package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"trackd/internal/config"
)

// ErrTokenRevoked 令牌的 JTI 已在黑名单中（用户已登出）。
var ErrTokenRevoked = errors.New("JWT 已被吊销")

const issuer = "trackd"

// Claims 是会话 JWT 中的自定义声明，嵌入了 jwt.RegisteredClaims。
// Subject 与 UserID 相同；Email 用于好友邀请的匹配，不必每次查库。
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// GenerateToken 为指定用户签发一个新的会话 JWT。
func GenerateToken(userID, email string, authCfg config.AuthConfig) (string, *Claims, error) {
	jwtID, err := uuid.NewRandom()
	if err != nil {
		return "", nil, fmt.Errorf("生成 JWT ID 失败: %w", err)
	}

	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(authCfg.JWTExpiry)),
			ID:        jwtID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(authCfg.JWTSecretKey))
	if err != nil {
		return "", nil, fmt.Errorf("生成 JWT 失败: %w", err)
	}
	return tokenString, claims, nil
}

// ValidateToken 验证 JWT 的签名和有效期，并在提供 blacklist 时检查是否已吊销。
func ValidateToken(ctx context.Context, tokenString string, jwtKey string, blacklist TokenBlacklist) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(jwtKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("解析或验证 JWT 失败: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("JWT 无效")
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("JWT 缺少用户 ID")
	}

	if blacklist != nil {
		if claims.ID == "" {
			return nil, fmt.Errorf("JWT 缺少 JTI (ID) 声明，无法检查黑名单")
		}
		isRevoked, err := blacklist.IsBlacklisted(ctx, claims.ID)
		if err != nil {
			// 黑名单不可用时拒绝
			return nil, fmt.Errorf("检查 Token 黑名单失败: %w", err)
		}
		if isRevoked {
			return nil, ErrTokenRevoked
		}
	}

	return claims, nil
}
