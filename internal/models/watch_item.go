package models

// MediaType 区分电影和剧集。
type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv"
)

// Valid reports whether m is one of the known media types.
func (m MediaType) Valid() bool {
	return m == MediaTypeMovie || m == MediaTypeTV
}

// WatchStatus 定义观看记录的状态。
type WatchStatus string

const (
	WatchStatusWatched    WatchStatus = "watched"
	WatchStatusWatchLater WatchStatus = "watch_later"
)

// Valid reports whether s is one of the known watch statuses.
func (s WatchStatus) Valid() bool {
	return s == WatchStatusWatched || s == WatchStatusWatchLater
}

// WatchItem 是用户对某部电影/剧集的记录。
// (user_id, tmdb_id) 上只有普通索引，唯一性由服务层检查保证。
type WatchItem struct {
	BaseModel
	UserID    string      `gorm:"type:varchar(36);not null;index;index:idx_watch_item_user_tmdb,priority:1" json:"userId"`
	TmdbID    string      `gorm:"column:tmdb_id;type:varchar(32);not null;index:idx_watch_item_user_tmdb,priority:2" json:"tmdbId"`
	MediaType MediaType   `gorm:"type:varchar(10);not null" json:"mediaType"`
	Title     string      `gorm:"type:text;not null" json:"title"`
	Year      *string     `gorm:"type:varchar(10)" json:"year"`
	Poster    *string     `gorm:"type:text" json:"poster"`
	Rating    *int        `json:"rating"` // 1-5, NULL 表示未评分
	Status    WatchStatus `gorm:"type:varchar(20);not null;default:'watch_later'" json:"status"`

	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName 指定 WatchItem 模型的表名。
func (WatchItem) TableName() string {
	return "watch_items"
}
