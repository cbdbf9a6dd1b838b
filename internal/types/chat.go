package types

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

type ChatKind string

const (
	ChatDM    ChatKind = "DM"
	ChatGroup ChatKind = "GROUP"
)

var (
	ErrUnknownChatKind = errors.New("unknown chat kind")
	ErrInvalidChat     = errors.New("invalid chat")
)

// GroupInfo is only present on GROUP chats.
type GroupInfo struct {
	Name       string `json:"name"`
	OwnerId    int64  `json:"ownerId"`
	InviteCode string `json:"inviteCode,omitempty"`
}

type Chat struct {
	Id                 int64         `json:"id"`
	Kind               ChatKind      `json:"type"`
	AvatarUrl          string        `json:"avatarUrl,omitempty"`
	Participants       []Participant `json:"participants"`
	Group              *GroupInfo    `json:"-"`
	UpdatedAt          time.Time     `json:"updatedAt"`
	LastMessagePreview string        `json:"-"`
}

// wireChat is the server representation: group fields are flattened onto the chat
// and the preview is the content of the single embedded last message.
type wireChat struct {
	Id           int64         `json:"id"`
	Type         ChatKind      `json:"type"`
	Name         *string       `json:"name,omitempty"`
	AvatarUrl    *string       `json:"avatarUrl,omitempty"`
	Participants []Participant `json:"participants"`
	OwnerId      *int64        `json:"ownerId,omitempty"`
	InviteCode   *string       `json:"inviteCode,omitempty"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	Messages     []struct {
		Content string `json:"content"`
	} `json:"messages,omitempty"`
}

func (c *Chat) UnmarshalJSON(data []byte) error {
	var w wireChat
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	chat := Chat{
		Id:           w.Id,
		Kind:         w.Type,
		Participants: w.Participants,
		UpdatedAt:    w.UpdatedAt,
	}
	if w.AvatarUrl != nil {
		chat.AvatarUrl = *w.AvatarUrl
	}
	if len(w.Messages) > 0 {
		chat.LastMessagePreview = w.Messages[len(w.Messages)-1].Content
	}

	switch w.Type {
	case ChatDM:
	case ChatGroup:
		g := &GroupInfo{}
		if w.Name != nil {
			g.Name = *w.Name
		}
		if w.OwnerId != nil {
			g.OwnerId = *w.OwnerId
		}
		if w.InviteCode != nil {
			g.InviteCode = *w.InviteCode
		}
		chat.Group = g
	default:
		return errors.Wrapf(ErrUnknownChatKind, "chat %d: %q", w.Id, w.Type)
	}

	*c = chat
	return nil
}

func (c Chat) MarshalJSON() ([]byte, error) {
	w := wireChat{
		Id:           c.Id,
		Type:         c.Kind,
		Participants: c.Participants,
		UpdatedAt:    c.UpdatedAt,
	}
	if c.AvatarUrl != "" {
		w.AvatarUrl = &c.AvatarUrl
	}
	if c.LastMessagePreview != "" {
		w.Messages = append(w.Messages, struct {
			Content string `json:"content"`
		}{Content: c.LastMessagePreview})
	}
	if c.Kind == ChatGroup && c.Group != nil {
		w.Name = &c.Group.Name
		w.OwnerId = &c.Group.OwnerId
		if c.Group.InviteCode != "" {
			w.InviteCode = &c.Group.InviteCode
		}
	}
	return json.Marshal(w)
}

// Validate checks the per-kind shape invariants.
func (c Chat) Validate() error {
	switch c.Kind {
	case ChatDM:
		if len(c.Participants) != 2 {
			return errors.Wrapf(ErrInvalidChat, "dm %d has %d participants", c.Id, len(c.Participants))
		}
		if c.Group != nil {
			return errors.Wrapf(ErrInvalidChat, "dm %d carries group info", c.Id)
		}
		return nil
	case ChatGroup:
		if c.Group == nil || c.Group.Name == "" {
			return errors.Wrapf(ErrInvalidChat, "group %d has no name", c.Id)
		}
		if !c.HasParticipant(c.Group.OwnerId) {
			return errors.Wrapf(ErrInvalidChat, "group %d owner %d is not a participant", c.Id, c.Group.OwnerId)
		}
		return nil
	default:
		return errors.Wrapf(ErrUnknownChatKind, "chat %d: %q", c.Id, c.Kind)
	}
}

func (c Chat) HasParticipant(userId int64) bool {
	for _, p := range c.Participants {
		if p.User.Id == userId {
			return true
		}
	}
	return false
}

// Partner returns the other participant of a DM. Groups have no partner.
func (c Chat) Partner(selfId int64) (User, bool) {
	switch c.Kind {
	case ChatDM:
		for _, p := range c.Participants {
			if p.User.Id != selfId {
				return p.User, true
			}
		}
		return User{}, false
	case ChatGroup:
		return User{}, false
	default:
		return User{}, false
	}
}

// Title is the display name of the chat as seen by selfId.
func (c Chat) Title(selfId int64) string {
	switch c.Kind {
	case ChatGroup:
		if c.Group != nil && c.Group.Name != "" {
			return c.Group.Name
		}
		return "Group"
	case ChatDM:
		if u, ok := c.Partner(selfId); ok && u.Username != "" {
			return u.Username
		}
		return "Direct Message"
	default:
		return ""
	}
}

// Avatar is the avatar url displayed for the chat as seen by selfId.
func (c Chat) Avatar(selfId int64) string {
	switch c.Kind {
	case ChatGroup:
		return c.AvatarUrl
	case ChatDM:
		u, _ := c.Partner(selfId)
		return u.AvatarUrl
	default:
		return ""
	}
}

// UpdateUser merges p into every participant record with the same id and reports
// whether anything matched.
func (c *Chat) UpdateUser(p User) bool {
	found := false
	for i := range c.Participants {
		if c.Participants[i].User.Id == p.Id {
			c.Participants[i].User = c.Participants[i].User.Merge(p)
			found = true
		}
	}
	return found
}

// DirectChat builds the DM view used by the direct protocol, where a conversation
// is keyed by the partner and the server only sends the partner's profile.
func DirectChat(self, partner User) Chat {
	return Chat{
		Id:           partner.Id,
		Kind:         ChatDM,
		Participants: []Participant{{User: self}, {User: partner}},
	}
}

// Clone returns a copy of c that shares no mutable state with it.
func (c Chat) Clone() Chat {
	if c.Participants != nil {
		c.Participants = append([]Participant(nil), c.Participants...)
	}
	if c.Group != nil {
		g := *c.Group
		c.Group = &g
	}
	return c
}
