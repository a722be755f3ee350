package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"trackd/internal/models"
	"trackd/internal/storage"
)

var (
	ErrMissingTmdbID  = errors.New("Missing tmdbId")
	ErrMissingTitle   = errors.New("Missing title")
	ErrInvalidStatus  = errors.New("Invalid status")
	ErrInvalidRating  = errors.New("Rating must be between 0 and 5")
	ErrNothingToApply = errors.New("Nothing to update")
	ErrItemNotFound   = errors.New("Item not found")
)

// Watchlist messages.
const (
	MsgAddedToWatchlist   = "Added to watchlist"
	MsgAlreadyInWatchlist = "Already in watchlist"
)

// WatchItemInput is a TMDB search or detail result posted by the client.
// Movies carry title/release_date, TV shows name/first_air_date.
type WatchItemInput struct {
	ID           FlexString `json:"id"`
	MediaType    string     `json:"media_type"`
	Title        string     `json:"title"`
	Name         string     `json:"name"`
	ReleaseDate  string     `json:"release_date"`
	FirstAirDate string     `json:"first_air_date"`
	PosterPath   *string    `json:"poster_path"`
	Status       string     `json:"status"`
	Watched      *bool      `json:"watched"`
}

// WatchItemUpdate 修改观看状态或评分；两个字段至少提供一个。Rating 为 0 表示清除评分。
type WatchItemUpdate struct {
	TmdbID FlexString `json:"tmdbId"`
	Status *string    `json:"status"`
	Rating *int       `json:"rating"`
}

// WatchlistService defines the per-user watchlist operations.
type WatchlistService interface {
	List(ctx context.Context, userID string) ([]models.WatchItem, error)
	Add(ctx context.Context, userID string, in WatchItemInput) (item *models.WatchItem, created bool, err error)
	Update(ctx context.Context, userID string, in WatchItemUpdate) error
	Remove(ctx context.Context, userID, tmdbID string) error
}

type watchlistService struct {
	watchRepo storage.WatchItemRepository
}

// NewWatchlistService creates a new WatchlistService instance.
func NewWatchlistService(watchRepo storage.WatchItemRepository) WatchlistService {
	return &watchlistService{watchRepo: watchRepo}
}

func (s *watchlistService) List(ctx context.Context, userID string) ([]models.WatchItem, error) {
	items, err := s.watchRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取观看列表失败: %w", err)
	}
	if items == nil {
		items = []models.WatchItem{}
	}
	return items, nil
}

// Add inserts the title for userID. When the user already has the title, the
// existing row is returned unchanged and created is false.
func (s *watchlistService) Add(ctx context.Context, userID string, in WatchItemInput) (*models.WatchItem, bool, error) {
	tmdbID := in.ID.String()
	if tmdbID == "" {
		return nil, false, ErrMissingTmdbID
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = strings.TrimSpace(in.Name)
	}
	if title == "" {
		return nil, false, ErrMissingTitle
	}
	mediaType := models.MediaType(in.MediaType)
	if mediaType == "" {
		mediaType = models.MediaTypeMovie
	}
	if !mediaType.Valid() {
		return nil, false, ErrInvalidMediaType
	}

	status := models.WatchStatusWatchLater
	switch {
	case in.Status != "":
		status = models.WatchStatus(in.Status)
		if !status.Valid() {
			return nil, false, ErrInvalidStatus
		}
	case in.Watched != nil && *in.Watched:
		status = models.WatchStatusWatched
	}

	existing, err := s.watchRepo.FindByUserAndTmdbID(ctx, userID, tmdbID)
	if err != nil {
		return nil, false, fmt.Errorf("检查观看记录失败: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	date := in.ReleaseDate
	if date == "" {
		date = in.FirstAirDate
	}
	var poster *string
	if in.PosterPath != nil {
		poster = optional(*in.PosterPath)
	}

	item := &models.WatchItem{
		UserID:    userID,
		TmdbID:    tmdbID,
		MediaType: mediaType,
		Title:     title,
		Year:      yearOf(date),
		Poster:    poster,
		Status:    status,
	}
	if err := s.watchRepo.Create(ctx, item); err != nil {
		return nil, false, fmt.Errorf("添加观看记录失败: %w", err)
	}
	log.Debug().Str("user_id", userID).Str("tmdb_id", tmdbID).Str("status", string(status)).Msg("观看记录已添加")
	return item, true, nil
}

// Update changes status and/or rating of the caller's row for the given TMDB id.
func (s *watchlistService) Update(ctx context.Context, userID string, in WatchItemUpdate) error {
	tmdbID := in.TmdbID.String()
	if tmdbID == "" {
		return ErrMissingTmdbID
	}
	if in.Status == nil && in.Rating == nil {
		return ErrNothingToApply
	}

	fields := map[string]interface{}{}
	if in.Status != nil {
		status := models.WatchStatus(*in.Status)
		if !status.Valid() {
			return ErrInvalidStatus
		}
		fields["status"] = status
	}
	if in.Rating != nil {
		switch r := *in.Rating; {
		case r < 0 || r > 5:
			return ErrInvalidRating
		case r == 0:
			fields["rating"] = nil
		default:
			fields["rating"] = r
		}
	}

	n, err := s.watchRepo.UpdateByUserAndTmdbID(ctx, userID, tmdbID, fields)
	if err != nil {
		return fmt.Errorf("更新观看记录失败: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// Remove deletes the caller's rows for tmdbID. Removing an absent title is not an error.
func (s *watchlistService) Remove(ctx context.Context, userID, tmdbID string) error {
	tmdbID = strings.TrimSpace(tmdbID)
	if tmdbID == "" {
		return ErrMissingTmdbID
	}
	if _, err := s.watchRepo.DeleteByUserAndTmdbID(ctx, userID, tmdbID); err != nil {
		return fmt.Errorf("删除观看记录失败: %w", err)
	}
	return nil
}
