package engine

import (
	"github.com/rs/zerolog"

	"github.com/npezzotti/chatsync/internal/realtime"
	"github.com/npezzotti/chatsync/internal/stats"
	"github.com/npezzotti/chatsync/internal/types"
)

// UnknownChatPolicy decides what happens to a message for a conversation the
// index does not hold.
type UnknownChatPolicy string

const (
	// PolicyFetch inserts a partial entry and requests its details.
	PolicyFetch UnknownChatPolicy = "fetch"
	// PolicyDrop ignores the message for the index.
	PolicyDrop UnknownChatPolicy = "drop"
)

const recentIdsSize = 1024

// recentIds remembers the last message ids seen so redelivered messages are
// not counted twice.
type recentIds struct {
	ring []int64
	set  map[int64]struct{}
	next int
}

func newRecentIds(size int) *recentIds {
	return &recentIds{ring: make([]int64, size), set: make(map[int64]struct{}, size)}
}

// add records id and reports whether it was new.
func (r *recentIds) add(id int64) bool {
	if _, ok := r.set[id]; ok {
		return false
	}
	if old := r.ring[r.next]; old != 0 {
		delete(r.set, old)
	}
	r.ring[r.next] = id
	r.set[id] = struct{}{}
	r.next = (r.next + 1) % len(r.ring)
	return true
}

func (r *recentIds) reset() {
	clear(r.ring)
	clear(r.set)
	r.next = 0
}

// identity is the part of the session the dispatcher updates.
type identity interface {
	Identity() (types.Identity, bool)
	SetStatus(userId int64, status types.Status) bool
}

// EventDispatcher routes inbound events to the index and, when they concern the
// active conversation, to the timeline.
type EventDispatcher struct {
	index     *ConversationIndex
	timeline  *MessageTimeline
	sends     *OptimisticSendCoordinator
	session   identity
	protocol  types.Protocol
	policy    UnknownChatPolicy
	seen      *recentIds
	stats     stats.StatsProvider
	log       zerolog.Logger
	fetchChat func(id int64)
}

func (d *EventDispatcher) Dispatch(ev realtime.Event) {
	switch ev.Kind {
	case realtime.EventChatMessage, realtime.EventPrivateMessage:
		d.message(*ev.Message)
	case realtime.EventMessageDeleted:
		d.deleted(ev.Deleted.MessageId)
	case realtime.EventMessageConfirmed:
		d.confirmed(ev.Confirmed)
	case realtime.EventUserStatusChange:
		d.status(ev.Status)
	default:
		d.log.Debug().Str("event", string(ev.Kind)).Msg("ignoring event")
	}
}

func (d *EventDispatcher) self() types.User {
	ident, _ := d.session.Identity()
	return ident.User
}

func (d *EventDispatcher) message(m types.Message) {
	self := d.self()
	convId := m.ConversationId(self.Id)
	if convId <= 0 || m.Id <= 0 {
		d.log.Debug().Int64("message_id", m.Id).Msg("dropping message without conversation")
		return
	}
	if !d.seen.add(m.Id) {
		d.log.Debug().Int64("message_id", m.Id).Msg("dropping duplicate message")
		return
	}

	if d.timeline.ConversationId() == convId {
		d.timeline.AppendIncoming(m)
	}

	if !d.index.Has(convId) {
		switch d.policy {
		case PolicyDrop:
			d.log.Debug().Int64("conversation_id", convId).Msg("message for unknown conversation dropped")
			return
		case PolicyFetch:
			d.index.InsertFront(stubConversation(d.protocol, self, convId, m))
			if d.index.Seeded() {
				d.fetchChat(convId)
			}
		default:
			d.log.Error().Str("policy", string(d.policy)).Msg("unknown conversation policy")
			return
		}
	}

	d.index.BumpToFront(convId, Patch{Preview: m.Preview(), UpdatedAt: m.CreatedAt})
	if m.SenderId != self.Id {
		d.index.IncrementUnread(convId)
	}
}

func (d *EventDispatcher) deleted(id int64) {
	if id <= 0 {
		return
	}
	if d.timeline.RemoveById(id) {
		d.log.Debug().Int64("message_id", id).Msg("message removed")
	}
}

func (d *EventDispatcher) confirmed(c *realtime.MessageConfirmed) {
	token := c.Token()
	if _, ok := d.sends.Confirm(token); ok {
		d.stats.Decr(stats.PlaceholdersPending)
	}
	d.seen.add(c.Message.Id)

	if !d.timeline.Reconcile(token, c.Message) {
		d.stats.Incr(stats.ReconciliationMisses)
		d.log.Debug().
			Int64("token", token).
			Int64("message_id", c.Message.Id).
			Msg("no placeholder for confirmation")
	}
}

func (d *EventDispatcher) status(s *realtime.StatusChange) {
	n := d.index.UpdateUserStatus(s.UserId, s.Status)
	self := d.session.SetStatus(s.UserId, s.Status)
	d.log.Debug().
		Int64("user_id", s.UserId).
		Str("status", string(s.Status)).
		Int("conversations", n).
		Bool("self", self).
		Msg("status changed")
}

// stubConversation builds the entry for a conversation first seen through a
// message. Direct conversations are complete when the sender is the partner;
// chat stubs wait for the detail fetch.
func stubConversation(protocol types.Protocol, self types.User, convId int64, m types.Message) types.Conversation {
	switch protocol {
	case types.ProtocolDirect:
		partner := types.User{Id: convId}
		partial := true
		if m.Sender != nil && m.Sender.Id == convId {
			partner = *m.Sender
			partial = false
		}
		chat := types.DirectChat(self, partner)
		chat.UpdatedAt = m.CreatedAt
		return types.Conversation{Id: convId, Chat: chat, Partial: partial}
	default:
		return types.Conversation{
			Id:      convId,
			Chat:    types.Chat{Id: convId, UpdatedAt: m.CreatedAt},
			Partial: true,
		}
	}
}
