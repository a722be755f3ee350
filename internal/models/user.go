package models

// User 代表系统中的用户，首次通过 OIDC 登录时创建。
type User struct {
	BaseModel
	Name          string  `gorm:"type:varchar(255);not null" json:"name"`
	Email         string  `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"` // 始终以小写存储
	EmailVerified bool    `gorm:"default:false;not null" json:"emailVerified"`
	Image         string  `gorm:"type:text" json:"image,omitempty"`
	OIDCSubject   *string `gorm:"column:oidc_subject;type:varchar(255);uniqueIndex" json:"-"`
}

// TableName 指定 User 模型的表名。
func (User) TableName() string {
	return "users"
}

// UserBasicInfo holds minimal public information about a user.
type UserBasicInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"image,omitempty"`
}

// BasicInfo returns the public projection of the user.
func (u *User) BasicInfo() UserBasicInfo {
	return UserBasicInfo{ID: u.ID, Name: u.Name, Email: u.Email, Image: u.Image}
}
