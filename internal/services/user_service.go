package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"trackd/internal/models"
	"trackd/internal/storage"
)

// UserService 定义了用户相关服务的接口。
type UserService interface {
	GetUserProfile(ctx context.Context, userID string) (*models.User, error)
}

// userService 是 UserService 的实现。
type userService struct {
	userRepo storage.UserRepository
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo storage.UserRepository) UserService {
	return &userService{userRepo: userRepo}
}

// GetUserProfile 获取当前用户的资料。
func (s *userService) GetUserProfile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("获取用户 %s 失败: %w", userID, err)
	}
	return user, nil
}
