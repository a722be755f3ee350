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
	ErrUserNotFound         = errors.New("User not found")
	ErrInvalidEmail         = errors.New("Invalid email")
	ErrCannotAddSelf        = errors.New("Cannot add yourself")
	ErrFriendshipExists     = errors.New("Friendship already exists")
	ErrInvitationExists     = errors.New("Invitation already sent")
	ErrInvalidRequest       = errors.New("Invalid request")
	ErrFriendRequestMissing = errors.New("Request not found")
	ErrMissingID            = errors.New("Missing ID")
)

// Success messages returned by SendRequest.
const (
	MsgRequestSent    = "Request sent"
	MsgInvitationSent = "Invitation sent"
)

// FriendService defines friend requests, invitations and the friend list.
type FriendService interface {
	List(ctx context.Context, userID string) (*models.FriendLists, error)
	SendRequest(ctx context.Context, userID, email string) (string, error)
	Accept(ctx context.Context, userID, requestID, action string) error
	Remove(ctx context.Context, userID, requestID string) error
	ConvertInvitations(ctx context.Context, user *models.User) (int, error)
}

type friendService struct {
	userRepo       storage.UserRepository
	friendRepo     storage.FriendRepository
	invitationRepo storage.InvitationRepository
	notifier       notify.Notifier
}

// NewFriendService creates a new FriendService instance.
func NewFriendService(
	userRepo storage.UserRepository,
	friendRepo storage.FriendRepository,
	invitationRepo storage.InvitationRepository,
	notifier notify.Notifier,
) FriendService {
	return &friendService{
		userRepo:       userRepo,
		friendRepo:     friendRepo,
		invitationRepo: invitationRepo,
		notifier:       notifier,
	}
}

func (s *friendService) getUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("获取用户 %s 失败: %w", userID, err)
	}
	return user, nil
}

// List converts pending invitations addressed to the caller, then returns every
// relationship involving the caller split into accepted, incoming and outgoing.
func (s *friendService) List(ctx context.Context, userID string) (*models.FriendLists, error) {
	me, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if _, err := s.ConvertInvitations(ctx, me); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("转换好友邀请失败，继续返回好友列表")
	}

	rows, err := s.friendRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取好友关系失败: %w", err)
	}

	lists := &models.FriendLists{
		Friends:      []models.FriendEntry{},
		Requests:     []models.FriendEntry{},
		SentRequests: []models.FriendEntry{},
	}
	for _, row := range rows {
		other := row.Counterpart(userID)
		info := other.BasicInfo()
		entry := models.FriendEntry{
			ID:          row.ID,
			FriendID:    info.ID,
			Name:        info.Name,
			Email:       info.Email,
			Image:       info.Image,
			Status:      row.Status,
			RequesterID: row.UserID,
		}
		switch {
		case row.Status == models.FriendStatusAccepted:
			lists.Friends = append(lists.Friends, entry)
		case row.FriendID == userID:
			lists.Requests = append(lists.Requests, entry)
		default:
			lists.SentRequests = append(lists.SentRequests, entry)
		}
	}
	return lists, nil
}

// ConvertInvitations turns pending invitations for user's email into pending friend
// requests from the inviter, then deletes them. Pairs that already have a row are skipped.
// Users whose email is not verified cannot claim invitations.
func (s *friendService) ConvertInvitations(ctx context.Context, user *models.User) (int, error) {
	if !user.EmailVerified {
		return 0, nil
	}
	invitations, err := s.invitationRepo.ListPendingByEmail(ctx, user.Email)
	if err != nil {
		return 0, fmt.Errorf("查询待处理邀请失败: %w", err)
	}

	created := 0
	for _, inv := range invitations {
		if inv.InviterID != user.ID {
			existing, err := s.friendRepo.FindBetween(ctx, inv.InviterID, user.ID)
			if err != nil {
				return created, fmt.Errorf("检查好友关系时出错: %w", err)
			}
			if existing == nil {
				request := &models.Friend{
					UserID:   inv.InviterID,
					FriendID: user.ID,
					Status:   models.FriendStatusPending,
				}
				if err := s.friendRepo.Create(ctx, request); err != nil {
					return created, fmt.Errorf("由邀请 %s 创建好友请求失败: %w", inv.ID, err)
				}
				created++
			}
		}
		if err := s.invitationRepo.Delete(ctx, inv.ID); err != nil {
			return created, fmt.Errorf("删除邀请 %s 失败: %w", inv.ID, err)
		}
	}
	if created > 0 {
		log.Info().Str("user_id", user.ID).Int("count", created).Msg("好友邀请已转换为好友请求")
	}
	return created, nil
}

// SendRequest sends a friend request to an existing user, or an email invitation otherwise.
func (s *friendService) SendRequest(ctx context.Context, userID, rawEmail string) (string, error) {
	email := storage.NormalizeEmail(rawEmail)
	if err := validate.Var(email, "required,email"); err != nil {
		return "", ErrInvalidEmail
	}

	me, err := s.getUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if email == me.Email {
		return "", ErrCannotAddSelf
	}

	target, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("按邮箱查找用户失败: %w", err)
	}

	if target == nil {
		return s.invite(ctx, me, email)
	}

	// 检查与创建之间没有事务，并发的互相请求可能产生两行
	existing, err := s.friendRepo.FindBetween(ctx, me.ID, target.ID)
	if err != nil {
		return "", fmt.Errorf("检查好友关系时出错: %w", err)
	}
	if existing != nil {
		return "", ErrFriendshipExists
	}

	request := &models.Friend{UserID: me.ID, FriendID: target.ID, Status: models.FriendStatusPending}
	if err := s.friendRepo.Create(ctx, request); err != nil {
		return "", fmt.Errorf("创建好友请求失败: %w", err)
	}
	log.Info().Str("from", me.ID).Str("to", target.ID).Str("request_id", request.ID).Msg("好友请求已创建")

	s.notifier.FriendRequest(ctx, *me, *target)
	return MsgRequestSent, nil
}

func (s *friendService) invite(ctx context.Context, me *models.User, email string) (string, error) {
	existing, err := s.invitationRepo.FindPending(ctx, me.ID, email)
	if err != nil {
		return "", fmt.Errorf("检查邀请时出错: %w", err)
	}
	if existing != nil {
		return "", ErrInvitationExists
	}

	invitation := &models.Invitation{InviterID: me.ID, Email: email, Status: models.InvitationStatusPending}
	if err := s.invitationRepo.Create(ctx, invitation); err != nil {
		return "", fmt.Errorf("创建邀请失败: %w", err)
	}
	log.Info().Str("from", me.ID).Str("invitation_id", invitation.ID).Msg("好友邀请已创建")

	s.notifier.Invitation(ctx, *me, email)
	return MsgInvitationSent, nil
}

// Accept accepts a pending request addressed to userID. A missing row, a row addressed
// to someone else and a row that is no longer pending are all reported the same way.
func (s *friendService) Accept(ctx context.Context, userID, requestID, action string) error {
	if requestID == "" || action != "accept" {
		return ErrInvalidRequest
	}

	ok, err := s.friendRepo.AcceptPending(ctx, requestID, userID)
	if err != nil {
		return fmt.Errorf("接受好友请求失败: %w", err)
	}
	if !ok {
		return ErrFriendRequestMissing
	}
	log.Info().Str("request_id", requestID).Str("user_id", userID).Msg("好友请求已接受")

	s.notifyAccepted(ctx, userID, requestID)
	return nil
}

func (s *friendService) notifyAccepted(ctx context.Context, userID, requestID string) {
	request, err := s.friendRepo.GetByID(ctx, requestID)
	if err != nil {
		log.Warn().Err(err).Str("request_id", requestID).Msg("加载好友请求失败，跳过通知")
		return
	}
	me, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("加载用户失败，跳过通知")
		return
	}
	requester, err := s.userRepo.GetByID(ctx, request.UserID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", request.UserID).Msg("加载请求者失败，跳过通知")
		return
	}
	s.notifier.FriendAccepted(ctx, *me, *requester)
}

// Remove deletes the relationship if userID is either party. It is idempotent.
func (s *friendService) Remove(ctx context.Context, userID, requestID string) error {
	if requestID == "" {
		return ErrMissingID
	}
	if err := s.friendRepo.DeleteForParty(ctx, requestID, userID); err != nil {
		return fmt.Errorf("删除好友关系失败: %w", err)
	}
	return nil
}
