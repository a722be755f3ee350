// Package notify 负责好友请求、邀请和推荐等事件的通知投递（邮件 + 实时推送）。
package notify

import (
	"strings"
	"time"

	"trackd/internal/models"
)

// EventType 通知事件类型
type EventType string

const (
	EventFriendRequest  EventType = "friend_request"
	EventFriendAccepted EventType = "friend_accepted"
	EventInvitation     EventType = "invitation"
	EventSuggestion     EventType = "suggestion"
)

// Event 是通知的传输形式，既用于直接发送，也作为 Kafka 消息体。
// RecipientID 为空表示收件人尚未注册（邀请），只能发邮件。
type Event struct {
	Type           EventType `json:"type"`
	RecipientID    string    `json:"recipientId,omitempty"`
	RecipientEmail string    `json:"recipientEmail"`
	ActorID        string    `json:"actorId"`
	ActorName      string    `json:"actorName"`
	ActorImage     string    `json:"actorImage,omitempty"`
	Title          string    `json:"title,omitempty"`
	Poster         string    `json:"poster,omitempty"`
	MediaType      string    `json:"mediaType,omitempty"`
	Link           string    `json:"link"`
	Timestamp      time.Time `json:"timestamp"`
}

// PosterBaseURL is the TMDB image CDN prefix for poster paths.
const PosterBaseURL = "https://image.tmdb.org/t/p/w342"

// EventBuilder 根据前端地址构造各类事件的链接。
type EventBuilder struct {
	AppURL string
	now    func() time.Time
}

// NewEventBuilder creates a builder whose links point at appURL.
func NewEventBuilder(appURL string) EventBuilder {
	return EventBuilder{AppURL: strings.TrimRight(appURL, "/"), now: time.Now}
}

func (b EventBuilder) base(t EventType, actor models.User) Event {
	now := time.Now
	if b.now != nil {
		now = b.now
	}
	return Event{
		Type:       t,
		ActorID:    actor.ID,
		ActorName:  displayName(actor),
		ActorImage: actor.Image,
		Timestamp:  now().UTC(),
	}
}

func (b EventBuilder) FriendRequest(from, to models.User) Event {
	e := b.base(EventFriendRequest, from)
	e.RecipientID = to.ID
	e.RecipientEmail = to.Email
	e.Link = b.AppURL + "/friends"
	return e
}

func (b EventBuilder) FriendAccepted(by, requester models.User) Event {
	e := b.base(EventFriendAccepted, by)
	e.RecipientID = requester.ID
	e.RecipientEmail = requester.Email
	e.Link = b.AppURL + "/friends"
	return e
}

func (b EventBuilder) Invitation(inviter models.User, email string) Event {
	e := b.base(EventInvitation, inviter)
	e.RecipientEmail = email
	e.Link = b.AppURL + "/"
	return e
}

func (b EventBuilder) Suggestion(from, to models.User, s models.Suggestion) Event {
	e := b.base(EventSuggestion, from)
	e.RecipientID = to.ID
	e.RecipientEmail = to.Email
	e.Title = s.Title
	e.MediaType = string(s.MediaType)
	if s.Poster != nil && *s.Poster != "" {
		e.Poster = posterURL(*s.Poster)
	}
	e.Link = b.AppURL + "/suggestions"
	return e
}

func displayName(u models.User) string {
	if strings.TrimSpace(u.Name) != "" {
		return u.Name
	}
	return u.Email
}

func posterURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return PosterBaseURL + "/" + strings.TrimLeft(path, "/")
}
