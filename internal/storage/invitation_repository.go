package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"trackd/internal/models"
)

// InvitationRepository defines the interface for email invitation data operations.
type InvitationRepository interface {
	Create(ctx context.Context, invitation *models.Invitation) error
	FindPending(ctx context.Context, inviterID, email string) (*models.Invitation, error)
	ListPendingByEmail(ctx context.Context, email string) ([]models.Invitation, error)
	Delete(ctx context.Context, id string) error
}

type gormInvitationRepository struct {
	db *gorm.DB
}

func NewGormInvitationRepository(db *gorm.DB) InvitationRepository {
	return &gormInvitationRepository{db: db}
}

func (r *gormInvitationRepository) Create(ctx context.Context, invitation *models.Invitation) error {
	invitation.Email = NormalizeEmail(invitation.Email)
	if invitation.Status == "" {
		invitation.Status = models.InvitationStatusPending
	}
	return r.db.WithContext(ctx).Create(invitation).Error
}

func (r *gormInvitationRepository) FindPending(ctx context.Context, inviterID, email string) (*models.Invitation, error) {
	var invitation models.Invitation
	err := r.db.WithContext(ctx).
		Where("inviter_id = ? AND email = ? AND status = ?", inviterID, NormalizeEmail(email), models.InvitationStatusPending).
		First(&invitation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invitation, nil
}

func (r *gormInvitationRepository) ListPendingByEmail(ctx context.Context, email string) ([]models.Invitation, error) {
	var invitations []models.Invitation
	err := r.db.WithContext(ctx).
		Where("email = ? AND status = ?", NormalizeEmail(email), models.InvitationStatusPending).
		Order("created_at ASC").
		Find(&invitations).Error
	return invitations, err
}

func (r *gormInvitationRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Invitation{}).Error
}
