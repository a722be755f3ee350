package models

import "time"

// SuggestionStatus 定义推荐的状态。
type SuggestionStatus string

const (
	SuggestionStatusPending   SuggestionStatus = "pending"
	SuggestionStatusAccepted  SuggestionStatus = "accepted"
	SuggestionStatusDismissed SuggestionStatus = "dismissed"
)

// Suggestion 是好友之间的一条影视推荐。
// 注意命名：UserID 是接收者，FriendID 是发送者。
type Suggestion struct {
	BaseModel
	UserID    string           `gorm:"type:varchar(36);not null;index" json:"userId"`
	FriendID  string           `gorm:"type:varchar(36);not null;index" json:"friendId"`
	TmdbID    string           `gorm:"column:tmdb_id;type:varchar(32);not null" json:"tmdbId"`
	MediaType MediaType        `gorm:"type:varchar(10);not null" json:"mediaType"`
	Title     string           `gorm:"type:text;not null" json:"title"`
	Year      *string          `gorm:"type:varchar(10)" json:"year"`
	Poster    *string          `gorm:"type:text" json:"poster"`
	Status    SuggestionStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`

	Recipient User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Sender    User `gorm:"foreignKey:FriendID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName 指定 Suggestion 模型的表名。
func (Suggestion) TableName() string {
	return "suggestions"
}

// SuggestionEntry 是推荐列表接口返回的一行，附带发送者资料。
type SuggestionEntry struct {
	ID           string           `json:"id"`
	FriendName   string           `json:"friendName"`
	FriendAvatar string           `json:"friendAvatar"`
	FriendID     string           `json:"friendId"`
	MovieTitle   string           `json:"movieTitle"`
	MoviePoster  *string          `json:"moviePoster"`
	TmdbID       string           `json:"tmdbId"`
	MediaType    MediaType        `json:"mediaType"`
	Year         *string          `json:"year"`
	Timestamp    time.Time        `json:"timestamp"`
	Status       SuggestionStatus `json:"status"`
}
