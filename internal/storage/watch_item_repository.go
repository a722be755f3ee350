package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"trackd/internal/models"
)

// WatchItemRepository defines the interface for watchlist data operations.
// Every lookup is scoped by user, so one user can never touch another's rows.
type WatchItemRepository interface {
	Create(ctx context.Context, item *models.WatchItem) error
	ListByUser(ctx context.Context, userID string) ([]models.WatchItem, error)
	FindByUserAndTmdbID(ctx context.Context, userID, tmdbID string) (*models.WatchItem, error)
	UpdateByUserAndTmdbID(ctx context.Context, userID, tmdbID string, fields map[string]interface{}) (int64, error)
	DeleteByUserAndTmdbID(ctx context.Context, userID, tmdbID string) (int64, error)
}

type gormWatchItemRepository struct {
	db *gorm.DB
}

func NewGormWatchItemRepository(db *gorm.DB) WatchItemRepository {
	return &gormWatchItemRepository{db: db}
}

func (r *gormWatchItemRepository) Create(ctx context.Context, item *models.WatchItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *gormWatchItemRepository) ListByUser(ctx context.Context, userID string) ([]models.WatchItem, error) {
	items := []models.WatchItem{}
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&items).Error
	return items, err
}

func (r *gormWatchItemRepository) FindByUserAndTmdbID(ctx context.Context, userID, tmdbID string) (*models.WatchItem, error) {
	var item models.WatchItem
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND tmdb_id = ?", userID, tmdbID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// UpdateByUserAndTmdbID applies fields (column name → value; nil writes NULL) and reports rows affected.
func (r *gormWatchItemRepository) UpdateByUserAndTmdbID(ctx context.Context, userID, tmdbID string, fields map[string]interface{}) (int64, error) {
	fields["updated_at"] = time.Now()
	result := r.db.WithContext(ctx).Model(&models.WatchItem{}).
		Where("user_id = ? AND tmdb_id = ?", userID, tmdbID).
		Updates(fields)
	return result.RowsAffected, result.Error
}

func (r *gormWatchItemRepository) DeleteByUserAndTmdbID(ctx context.Context, userID, tmdbID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND tmdb_id = ?", userID, tmdbID).
		Delete(&models.WatchItem{})
	return result.RowsAffected, result.Error
}
