package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InvitationStatusPending 是邀请唯一持久化的状态；被转换后邀请直接删除。
const InvitationStatusPending = "pending"

// Invitation 是发给尚未注册邮箱的好友邀请。
type Invitation struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	InviterID string    `gorm:"type:varchar(36);not null;index" json:"inviterId"`
	Email     string    `gorm:"type:varchar(255);not null;index" json:"email"`
	Status    string    `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	CreatedAt time.Time `json:"createdAt"`

	Inviter User `gorm:"foreignKey:InviterID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName 指定 Invitation 模型的表名。
func (Invitation) TableName() string {
	return "invitations"
}

// BeforeCreate 在插入前补齐 ID。
func (i *Invitation) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}
