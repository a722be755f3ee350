package models

// FriendStatus 定义好友关系的状态
type FriendStatus string

const (
	FriendStatusPending  FriendStatus = "pending"
	FriendStatusAccepted FriendStatus = "accepted"
)

// Friend 是一条有向的好友请求记录，接受后在逻辑上变为双向关系。
// UserID 是请求发送者，FriendID 是接收者；查找两人之间的关系时必须同时检查两种顺序。
type Friend struct {
	BaseModel
	UserID   string       `gorm:"type:varchar(36);not null;index" json:"userId"`
	FriendID string       `gorm:"type:varchar(36);not null;index" json:"friendId"`
	Status   FriendStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`

	Requester User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Recipient User `gorm:"foreignKey:FriendID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName 指定 Friend 模型的表名。
func (Friend) TableName() string {
	return "friends"
}

// Counterpart returns the party of the relationship that is not userID.
// Requester 和 Recipient 需要已预加载。
func (f *Friend) Counterpart(userID string) User {
	if f.FriendID == userID {
		return f.Requester
	}
	return f.Recipient
}

// FriendEntry 是好友列表接口返回的一行：关系本身加上对方的公开资料。
type FriendEntry struct {
	ID          string       `json:"id"`       // 关系 ID
	FriendID    string       `json:"friendId"` // 对方用户 ID
	Name        string       `json:"name"`
	Email       string       `json:"email"`
	Image       string       `json:"image"`
	Status      FriendStatus `json:"status"`
	RequesterID string       `json:"requesterId"`
}

// FriendLists 按状态和方向划分的好友关系。
type FriendLists struct {
	Friends      []FriendEntry `json:"friends"`
	Requests     []FriendEntry `json:"requests"`
	SentRequests []FriendEntry `json:"sentRequests"`
}
