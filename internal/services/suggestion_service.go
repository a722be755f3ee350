package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"trackd/internal/models"
	"trackd/internal/notify"
	"trackd/internal/storage"
)

var (
	ErrMissingFields      = errors.New("Missing required fields")
	ErrInvalidMediaType   = errors.New("Invalid media type")
	ErrSuggestToSelf      = errors.New("Cannot suggest to yourself")
	ErrNotFriends         = errors.New("Not friends")
	ErrSuggestionNotFound = errors.New("Suggestion not found")
)

// MsgSuggestionSent is returned after a suggestion is created.
const MsgSuggestionSent = "Suggestion sent"

// SuggestionInput 创建推荐的请求体。
type SuggestionInput struct {
	FriendID  string     `json:"friendId" validate:"required"`
	TmdbID    FlexString `json:"tmdbId" validate:"required"`
	MediaType string     `json:"mediaType"`
	Title     string     `json:"title" validate:"required"`
	Year      FlexString `json:"year"`
	Poster    string     `json:"poster"`
}

// SuggestionUpdate 处理推荐的请求体。Watched 仅在接受时使用。
type SuggestionUpdate struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Watched bool   `json:"watched"`
}

// SuggestionService defines suggestion operations between friends.
type SuggestionService interface {
	List(ctx context.Context, userID string) ([]models.SuggestionEntry, error)
	Create(ctx context.Context, userID string, in SuggestionInput) (*models.Suggestion, error)
	Update(ctx context.Context, userID string, in SuggestionUpdate) error
}

type suggestionService struct {
	db             *gorm.DB // 接受推荐时需要事务
	userRepo       storage.UserRepository
	friendRepo     storage.FriendRepository
	suggestionRepo storage.SuggestionRepository
	notifier       notify.Notifier
}

// NewSuggestionService creates a new SuggestionService instance.
func NewSuggestionService(
	db *gorm.DB,
	userRepo storage.UserRepository,
	friendRepo storage.FriendRepository,
	suggestionRepo storage.SuggestionRepository,
	notifier notify.Notifier,
) SuggestionService {
	return &suggestionService{
		db:             db,
		userRepo:       userRepo,
		friendRepo:     friendRepo,
		suggestionRepo: suggestionRepo,
		notifier:       notifier,
	}
}

// List returns the caller's pending suggestions with sender details, newest first.
func (s *suggestionService) List(ctx context.Context, userID string) ([]models.SuggestionEntry, error) {
	rows, err := s.suggestionRepo.ListPendingForRecipient(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取推荐列表失败: %w", err)
	}
	entries := make([]models.SuggestionEntry, 0, len(rows))
	for _, row := range rows {
		sender := row.Sender.BasicInfo()
		entries = append(entries, models.SuggestionEntry{
			ID:           row.ID,
			FriendName:   sender.Name,
			FriendAvatar: sender.Image,
			FriendID:     row.FriendID,
			MovieTitle:   row.Title,
			MoviePoster:  row.Poster,
			TmdbID:       row.TmdbID,
			MediaType:    row.MediaType,
			Year:         row.Year,
			Timestamp:    row.CreatedAt,
			Status:       row.Status,
		})
	}
	return entries, nil
}

// Create sends a suggestion from userID to an accepted friend.
func (s *suggestionService) Create(ctx context.Context, userID string, in SuggestionInput) (*models.Suggestion, error) {
	if err := validate.Struct(in); err != nil {
		return nil, ErrMissingFields
	}
	mediaType := models.MediaType(in.MediaType)
	if mediaType == "" {
		mediaType = models.MediaTypeMovie
	}
	if !mediaType.Valid() {
		return nil, ErrInvalidMediaType
	}
	if in.FriendID == userID {
		return nil, ErrSuggestToSelf
	}

	friends, err := s.friendRepo.AreFriends(ctx, userID, in.FriendID)
	if err != nil {
		return nil, fmt.Errorf("检查好友关系时出错: %w", err)
	}
	if !friends {
		return nil, ErrNotFriends
	}

	suggestion := &models.Suggestion{
		UserID:    in.FriendID,
		FriendID:  userID,
		TmdbID:    in.TmdbID.String(),
		MediaType: mediaType,
		Title:     in.Title,
		Year:      optional(in.Year.String()),
		Poster:    optional(in.Poster),
		Status:    models.SuggestionStatusPending,
	}
	if err := s.suggestionRepo.Create(ctx, suggestion); err != nil {
		return nil, fmt.Errorf("创建推荐失败: %w", err)
	}
	log.Info().Str("from", userID).Str("to", in.FriendID).Str("tmdb_id", suggestion.TmdbID).Msg("推荐已创建")

	s.notifySuggestion(ctx, *suggestion)
	return suggestion, nil
}

func (s *suggestionService) notifySuggestion(ctx context.Context, suggestion models.Suggestion) {
	sender, err := s.userRepo.GetByID(ctx, suggestion.FriendID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", suggestion.FriendID).Msg("加载推荐发送者失败，跳过通知")
		return
	}
	recipient, err := s.userRepo.GetByID(ctx, suggestion.UserID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", suggestion.UserID).Msg("加载推荐接收者失败，跳过通知")
		return
	}
	s.notifier.Suggestion(ctx, *sender, *recipient, suggestion)
}

// Update accepts or dismisses a pending suggestion addressed to userID.
// Accepting adds the title to the watchlist in the same transaction.
func (s *suggestionService) Update(ctx context.Context, userID string, in SuggestionUpdate) error {
	status := models.SuggestionStatus(in.Status)
	if in.ID == "" || (status != models.SuggestionStatusAccepted && status != models.SuggestionStatusDismissed) {
		return ErrInvalidRequest
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txSuggestionRepo := storage.NewGormSuggestionRepository(tx)
		txWatchRepo := storage.NewGormWatchItemRepository(tx)

		suggestion, err := txSuggestionRepo.GetPendingForRecipient(ctx, in.ID, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSuggestionNotFound
			}
			return fmt.Errorf("检索推荐失败: %w", err)
		}

		if status == models.SuggestionStatusAccepted {
			if err := addSuggestionToWatchlist(ctx, txWatchRepo, suggestion, in.Watched); err != nil {
				return err
			}
		}

		if err := txSuggestionRepo.UpdateStatus(ctx, suggestion.ID, status); err != nil {
			return fmt.Errorf("更新推荐状态失败: %w", err)
		}
		return nil
	})
}

// addSuggestionToWatchlist creates the recipient's watch item. An existing row for the
// same title is kept; it is only promoted to watched when watched is set.
func addSuggestionToWatchlist(ctx context.Context, repo storage.WatchItemRepository, suggestion *models.Suggestion, watched bool) error {
	itemStatus := models.WatchStatusWatchLater
	if watched {
		itemStatus = models.WatchStatusWatched
	}

	existing, err := repo.FindByUserAndTmdbID(ctx, suggestion.UserID, suggestion.TmdbID)
	if err != nil {
		return fmt.Errorf("检查观看记录失败: %w", err)
	}
	if existing != nil {
		if watched && existing.Status != models.WatchStatusWatched {
			fields := map[string]interface{}{"status": models.WatchStatusWatched}
			if _, err := repo.UpdateByUserAndTmdbID(ctx, suggestion.UserID, suggestion.TmdbID, fields); err != nil {
				return fmt.Errorf("更新观看记录失败: %w", err)
			}
		}
		return nil
	}

	item := &models.WatchItem{
		UserID:    suggestion.UserID,
		TmdbID:    suggestion.TmdbID,
		MediaType: suggestion.MediaType,
		Title:     suggestion.Title,
		Year:      suggestion.Year,
		Poster:    suggestion.Poster,
		Status:    itemStatus,
	}
	if err := repo.Create(ctx, item); err != nil {
		return fmt.Errorf("创建观看记录失败: %w", err)
	}
	return nil
}
