package types

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusOnline  Status = "ONLINE"
	StatusAFK     Status = "AFK"
	StatusOffline Status = "OFFLINE"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusAFK, StatusOffline:
		return true
	}
	return false
}

type User struct {
	Id        int64  `json:"id"`
	Username  string `json:"username"`
	AvatarUrl string `json:"avatarUrl,omitempty"`
	About     string `json:"about,omitempty"`
	Status    Status `json:"status,omitempty"`
}

// Merge overlays the non-empty profile fields of p onto u. The id is never changed.
func (u User) Merge(p User) User {
	if p.Username != "" {
		u.Username = p.Username
	}
	if p.AvatarUrl != "" {
		u.AvatarUrl = p.AvatarUrl
	}
	if p.About != "" {
		u.About = p.About
	}
	if p.Status != "" {
		u.Status = p.Status
	}
	return u
}

// Identity is the authenticated local user together with the credential it was
// decoded from.
type Identity struct {
	User
	Token string `json:"-"`
}

type Participant struct {
	User User `json:"user"`
}

type Message struct {
	Id          int64     `json:"id" validate:"gt=0"`
	ChatId      int64     `json:"chatId,omitempty"`
	SenderId    int64     `json:"senderId" validate:"required,gt=0"`
	RecipientId int64     `json:"recipientId,omitempty"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
	Sender      *User     `json:"sender,omitempty"`
}

// IsPlaceholder reports whether m was created locally and not yet confirmed.
func (m Message) IsPlaceholder() bool {
	return m.Id < 0
}

// ConversationId resolves the conversation m belongs to from the point of view of
// selfId. Chat messages carry their chat id; direct messages are keyed by the
// partner's user id.
func (m Message) ConversationId(selfId int64) int64 {
	if m.ChatId != 0 {
		return m.ChatId
	}
	if m.SenderId == selfId {
		return m.RecipientId
	}
	return m.SenderId
}

// Preview is the short text shown in conversation lists.
func (m Message) Preview() string {
	const maxPreview = 80
	r := []rune(m.Content)
	if len(r) <= maxPreview {
		return m.Content
	}
	return string(r[:maxPreview-1]) + "…"
}

type Conversation struct {
	Id          int64 `json:"id"`
	Chat        Chat  `json:"chat"`
	UnreadCount int   `json:"unreadCount"`
	// Partial is set on entries created from an event for a conversation the
	// index has not seen yet.
	Partial bool `json:"partial,omitempty"`
}

func (c Conversation) String() string {
	return fmt.Sprintf("%d(%s, unread=%d)", c.Id, c.Chat.Kind, c.UnreadCount)
}

// Protocol selects between the two server dialects: chat-centric (conversations are
// chats, DM or group) and direct (conversations are keyed by partner user id).
type Protocol string

const (
	ProtocolChat   Protocol = "chat"
	ProtocolDirect Protocol = "direct"
)
