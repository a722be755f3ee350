package storage

import (
	"context"
	"time"

	"gorm.io/gorm"

	"trackd/internal/models"
)

// SuggestionRepository defines the interface for suggestion data operations.
type SuggestionRepository interface {
	Create(ctx context.Context, suggestion *models.Suggestion) error
	ListPendingForRecipient(ctx context.Context, userID string) ([]models.Suggestion, error)
	GetPendingForRecipient(ctx context.Context, id, userID string) (*models.Suggestion, error)
	UpdateStatus(ctx context.Context, id string, status models.SuggestionStatus) error
}

type gormSuggestionRepository struct {
	db *gorm.DB
}

func NewGormSuggestionRepository(db *gorm.DB) SuggestionRepository {
	return &gormSuggestionRepository{db: db}
}

func (r *gormSuggestionRepository) Create(ctx context.Context, suggestion *models.Suggestion) error {
	return r.db.WithContext(ctx).Create(suggestion).Error
}

// ListPendingForRecipient returns pending suggestions for userID with the sender preloaded, newest first.
func (r *gormSuggestionRepository) ListPendingForRecipient(ctx context.Context, userID string) ([]models.Suggestion, error) {
	var suggestions []models.Suggestion
	err := r.db.WithContext(ctx).
		Preload("Sender").
		Where("user_id = ? AND status = ?", userID, models.SuggestionStatusPending).
		Order("created_at DESC").
		Find(&suggestions).Error
	return suggestions, err
}

// GetPendingForRecipient returns gorm.ErrRecordNotFound unless the row is pending and addressed to userID.
func (r *gormSuggestionRepository) GetPendingForRecipient(ctx context.Context, id, userID string) (*models.Suggestion, error) {
	var suggestion models.Suggestion
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ? AND status = ?", id, userID, models.SuggestionStatusPending).
		First(&suggestion).Error
	if err != nil {
		return nil, err
	}
	return &suggestion, nil
}

func (r *gormSuggestionRepository) UpdateStatus(ctx context.Context, id string, status models.SuggestionStatus) error {
	return r.db.WithContext(ctx).Model(&models.Suggestion{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}
