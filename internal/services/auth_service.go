package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"trackd/internal/auth"
	"trackd/internal/config"
	"trackd/internal/models"
	"trackd/internal/storage"
)

var (
	ErrIdentityMissingEmail = errors.New("identity provider did not return an email")
	// ErrEmailNotVerified 未验证的邮箱不能关联到已存在的账号。
	ErrEmailNotVerified = errors.New("Email address is not verified")
)

// AuthService 定义了用户认证服务的接口。
type AuthService interface {
	// SignIn upserts the user behind a verified OIDC identity, converts invitations
	// addressed to their email and issues a session token.
	SignIn(ctx context.Context, identity auth.Identity) (token string, expiresAt time.Time, user *models.User, err error)
	Logout(ctx context.Context, claims *auth.Claims) error
}

// authService 是 AuthService 的实现。
type authService struct {
	userRepo      storage.UserRepository
	friendService FriendService
	blacklist     auth.TokenBlacklist
	cfg           config.AuthConfig
}

// NewAuthService 创建一个新的 AuthService 实例。blacklist 可以为 nil。
func NewAuthService(userRepo storage.UserRepository, friendService FriendService, blacklist auth.TokenBlacklist, cfg config.AuthConfig) AuthService {
	return &authService{
		userRepo:      userRepo,
		friendService: friendService,
		blacklist:     blacklist,
		cfg:           cfg,
	}
}

func (s *authService) SignIn(ctx context.Context, identity auth.Identity) (string, time.Time, *models.User, error) {
	email := storage.NormalizeEmail(identity.Email)
	if email == "" {
		return "", time.Time{}, nil, ErrIdentityMissingEmail
	}

	user, err := s.upsertUser(ctx, identity, email)
	if err != nil {
		return "", time.Time{}, nil, err
	}

	if n, err := s.friendService.ConvertInvitations(ctx, user); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("登录时转换邀请失败")
	} else if n > 0 {
		log.Info().Str("user_id", user.ID).Int("count", n).Msg("登录时转换了好友邀请")
	}

	token, claims, err := auth.GenerateToken(user.ID, user.Email, s.cfg)
	if err != nil {
		return "", time.Time{}, nil, fmt.Errorf("生成令牌失败: %w", err)
	}
	return token, claims.ExpiresAt.Time, user, nil
}

// upsertUser finds the user by OIDC subject, then by email, and creates it otherwise.
// Only a verified email may be linked to an existing account or replace the stored one.
// Profile fields are refreshed from the identity on every sign-in.
func (s *authService) upsertUser(ctx context.Context, identity auth.Identity, email string) (*models.User, error) {
	user, err := s.userRepo.GetByOIDCSubject(ctx, identity.Subject)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user, err = s.userRepo.GetByEmail(ctx, email)
		if err == nil && !identity.EmailVerified {
			log.Warn().Str("subject", identity.Subject).Str("user_id", user.ID).Msg("拒绝以未验证的邮箱关联已有账号")
			return nil, ErrEmailNotVerified
		}
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		subject := identity.Subject
		user = &models.User{
			Name:          identity.Name,
			Email:         email,
			EmailVerified: identity.EmailVerified,
			Image:         identity.Picture,
			OIDCSubject:   &subject,
		}
		if user.Name == "" {
			user.Name = email
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("创建用户失败: %w", err)
		}
		log.Info().Str("user_id", user.ID).Msg("新用户通过 OIDC 注册")
		return user, nil
	case err != nil:
		return nil, fmt.Errorf("查找用户失败: %w", err)
	}

	subject := identity.Subject
	user.OIDCSubject = &subject
	if identity.EmailVerified {
		user.Email = email
		user.EmailVerified = true
	} else if email != user.Email {
		log.Warn().Str("user_id", user.ID).Msg("忽略未验证的邮箱变更")
	}
	if identity.Name != "" {
		user.Name = identity.Name
	}
	if identity.Picture != "" {
		user.Image = identity.Picture
	}
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("更新用户失败: %w", err)
	}
	return user, nil
}

// Logout revokes the token's JTI until it would have expired.
func (s *authService) Logout(ctx context.Context, claims *auth.Claims) error {
	if s.blacklist == nil || claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	if err := s.blacklist.Add(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("吊销令牌失败: %w", err)
	}
	return nil
}
