package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"trackd/internal/models"
)

// FriendRepository defines the interface for friend relationship data operations.
type FriendRepository interface {
	Create(ctx context.Context, friend *models.Friend) error
	GetByID(ctx context.Context, id string) (*models.Friend, error)
	// FindBetween returns the row for the unordered pair, whatever its status, or nil.
	FindBetween(ctx context.Context, userID1, userID2 string) (*models.Friend, error)
	AreFriends(ctx context.Context, userID1, userID2 string) (bool, error)
	ListForUser(ctx context.Context, userID string) ([]models.Friend, error)
	AcceptPending(ctx context.Context, id, recipientID string) (bool, error)
	DeleteForParty(ctx context.Context, id, userID string) error
}

type gormFriendRepository struct {
	db *gorm.DB
}

func NewGormFriendRepository(db *gorm.DB) FriendRepository {
	return &gormFriendRepository{db: db}
}

func (r *gormFriendRepository) Create(ctx context.Context, friend *models.Friend) error {
	return r.db.WithContext(ctx).Create(friend).Error
}

func (r *gormFriendRepository) GetByID(ctx context.Context, id string) (*models.Friend, error) {
	var friend models.Friend
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&friend).Error
	if err != nil {
		return nil, err
	}
	return &friend, nil
}

func (r *gormFriendRepository) FindBetween(ctx context.Context, userID1, userID2 string) (*models.Friend, error) {
	var friend models.Friend
	err := r.db.WithContext(ctx).
		Where("(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)", userID1, userID2, userID2, userID1).
		First(&friend).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // 没有关系不算错误
		}
		return nil, err
	}
	return &friend, nil
}

func (r *gormFriendRepository) AreFriends(ctx context.Context, userID1, userID2 string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Friend{}).
		Where("(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)", userID1, userID2, userID2, userID1).
		Where("status = ?", models.FriendStatusAccepted).
		Count(&count).Error
	return count > 0, err
}

// ListForUser loads every row where userID is either party, with both users preloaded.
func (r *gormFriendRepository) ListForUser(ctx context.Context, userID string) ([]models.Friend, error) {
	var friends []models.Friend
	err := r.db.WithContext(ctx).
		Preload("Requester").
		Preload("Recipient").
		Where("user_id = ? OR friend_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&friends).Error
	return friends, err
}

// AcceptPending marks the request accepted only if recipientID is its pending recipient.
// The returned bool is false when no row matched.
func (r *gormFriendRepository) AcceptPending(ctx context.Context, id, recipientID string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Friend{}).
		Where("id = ? AND friend_id = ? AND status = ?", id, recipientID, models.FriendStatusPending).
		Updates(map[string]interface{}{
			"status":     models.FriendStatusAccepted,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *gormFriendRepository) DeleteForParty(ctx context.Context, id, userID string) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND (user_id = ? OR friend_id = ?)", id, userID, userID).
		Delete(&models.Friend{}).Error
}
