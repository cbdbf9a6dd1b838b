package engine

import (
	"slices"
	"time"

	"github.com/npezzotti/chatsync/internal/types"
)

// Patch carries the fields a new message changes on a conversation summary.
type Patch struct {
	Preview   string
	UpdatedAt time.Time
}

// ConversationIndex is the ordered conversation list, most recently active first.
// It is owned by the engine loop and is not safe for concurrent use.
type ConversationIndex struct {
	order   []int64
	entries map[int64]*types.Conversation
	active  int64
	// touched holds the ids bumped since the last BeginSnapshot.
	touched map[int64]struct{}
	seeded  bool
}

func NewConversationIndex() *ConversationIndex {
	return &ConversationIndex{
		entries: make(map[int64]*types.Conversation),
		touched: make(map[int64]struct{}),
	}
}

// BeginSnapshot marks the moment a snapshot is requested. Entries bumped after
// this point survive the following Seed.
func (ci *ConversationIndex) BeginSnapshot() {
	clear(ci.touched)
}

// Seed replaces the index with a server snapshot. Entries bumped since
// BeginSnapshot keep their head positions, their newer preview and the larger
// unread count. It returns the ids still marked partial.
func (ci *ConversationIndex) Seed(list []types.Conversation) []int64 {
	snap := make(map[int64]types.Conversation, len(list))
	for _, c := range list {
		if _, dup := snap[c.Id]; !dup {
			snap[c.Id] = c
		}
	}

	order := make([]int64, 0, len(list)+len(ci.touched))
	entries := make(map[int64]*types.Conversation, len(list)+len(ci.touched))

	for _, id := range ci.order {
		if _, ok := ci.touched[id]; !ok {
			continue
		}
		local := ci.entries[id]
		merged := *local
		if s, ok := snap[id]; ok {
			merged = s
			merged.Chat = s.Chat.Clone()
			if local.Chat.UpdatedAt.After(s.Chat.UpdatedAt) {
				merged.Chat.UpdatedAt = local.Chat.UpdatedAt
				merged.Chat.LastMessagePreview = local.Chat.LastMessagePreview
			}
			merged.UnreadCount = max(s.UnreadCount, local.UnreadCount)
			merged.Partial = false
		}
		order = append(order, id)
		entries[id] = &merged
	}

	for _, c := range list {
		if _, ok := entries[c.Id]; ok {
			continue
		}
		conv := c
		conv.Chat = c.Chat.Clone()
		conv.UnreadCount = max(conv.UnreadCount, 0)
		order = append(order, c.Id)
		entries[c.Id] = &conv
	}

	if a, ok := entries[ci.active]; ok {
		a.UnreadCount = 0
	}

	ci.order = order
	ci.entries = entries
	ci.seeded = true
	return ci.PartialIds()
}

func (ci *ConversationIndex) Seeded() bool {
	return ci.seeded
}

func (ci *ConversationIndex) Has(id int64) bool {
	_, ok := ci.entries[id]
	return ok
}

// BumpToFront moves an existing entry to the head and applies patch. It reports
// false when the entry does not exist.
func (ci *ConversationIndex) BumpToFront(id int64, patch Patch) bool {
	c, ok := ci.entries[id]
	if !ok {
		return false
	}
	if patch.Preview != "" {
		c.Chat.LastMessagePreview = patch.Preview
	}
	if patch.UpdatedAt.After(c.Chat.UpdatedAt) {
		c.Chat.UpdatedAt = patch.UpdatedAt
	}
	ci.moveToFront(id)
	ci.touched[id] = struct{}{}
	return true
}

// InsertFront places conv at the head, replacing any entry with the same id.
func (ci *ConversationIndex) InsertFront(conv types.Conversation) {
	conv.Chat = conv.Chat.Clone()
	conv.UnreadCount = max(conv.UnreadCount, 0)
	if conv.Id == ci.active {
		conv.UnreadCount = 0
	}
	if _, ok := ci.entries[conv.Id]; !ok {
		ci.order = append(ci.order, conv.Id)
	}
	ci.entries[conv.Id] = &conv
	ci.moveToFront(conv.Id)
	ci.touched[conv.Id] = struct{}{}
}

// Upsert replaces the chat of an existing entry in place, keeping its position
// and unread count, or inserts a new entry at the head.
func (ci *ConversationIndex) Upsert(chat types.Chat) {
	c, ok := ci.entries[chat.Id]
	if !ok {
		ci.InsertFront(types.Conversation{Id: chat.Id, Chat: chat})
		return
	}
	preview := c.Chat.LastMessagePreview
	updated := c.Chat.UpdatedAt
	c.Chat = chat.Clone()
	if c.Chat.LastMessagePreview == "" {
		c.Chat.LastMessagePreview = preview
	}
	if updated.After(c.Chat.UpdatedAt) {
		c.Chat.UpdatedAt = updated
	}
	c.Partial = false
}

func (ci *ConversationIndex) IncrementUnread(id int64) {
	if id == ci.active {
		return
	}
	if c, ok := ci.entries[id]; ok {
		c.UnreadCount++
		ci.touched[id] = struct{}{}
	}
}

func (ci *ConversationIndex) ResetUnread(id int64) {
	if c, ok := ci.entries[id]; ok {
		c.UnreadCount = 0
	}
}

// MarkActive sets the active pointer and resets its unread count. It reports
// whether the conversation is in the index.
func (ci *ConversationIndex) MarkActive(id int64) bool {
	ci.active = id
	c, ok := ci.entries[id]
	if ok {
		c.UnreadCount = 0
	}
	return ok
}

func (ci *ConversationIndex) ClearActive() {
	ci.active = 0
}

func (ci *ConversationIndex) Active() (int64, bool) {
	return ci.active, ci.active != 0
}

// Hide removes the entry locally and clears the active pointer if it pointed at
// it. It reports whether the active conversation was hidden.
func (ci *ConversationIndex) Hide(id int64) (wasActive bool) {
	if _, ok := ci.entries[id]; ok {
		delete(ci.entries, id)
		ci.order = slices.DeleteFunc(ci.order, func(v int64) bool { return v == id })
	}
	delete(ci.touched, id)
	if ci.active == id {
		ci.active = 0
		return true
	}
	return false
}

// UpdateUser merges profile into every participant record with the same id and
// returns the number of conversations changed.
func (ci *ConversationIndex) UpdateUser(profile types.User) int {
	n := 0
	for _, c := range ci.entries {
		if c.Chat.UpdateUser(profile) {
			n++
		}
	}
	return n
}

func (ci *ConversationIndex) UpdateUserStatus(userId int64, status types.Status) int {
	return ci.UpdateUser(types.User{Id: userId, Status: status})
}

func (ci *ConversationIndex) Get(id int64) (types.Conversation, bool) {
	c, ok := ci.entries[id]
	if !ok {
		return types.Conversation{}, false
	}
	conv := *c
	conv.Chat = c.Chat.Clone()
	return conv, true
}

// Snapshot returns a copy of the index in display order.
func (ci *ConversationIndex) Snapshot() []types.Conversation {
	out := make([]types.Conversation, 0, len(ci.order))
	for _, id := range ci.order {
		conv, _ := ci.Get(id)
		out = append(out, conv)
	}
	return out
}

func (ci *ConversationIndex) Len() int {
	return len(ci.order)
}

func (ci *ConversationIndex) PartialIds() []int64 {
	var ids []int64
	for _, id := range ci.order {
		if ci.entries[id].Partial {
			ids = append(ids, id)
		}
	}
	return ids
}

// Reset empties the index, e.g. on logout.
func (ci *ConversationIndex) Reset() {
	ci.order = nil
	ci.entries = make(map[int64]*types.Conversation)
	clear(ci.touched)
	ci.active = 0
	ci.seeded = false
}

func (ci *ConversationIndex) moveToFront(id int64) {
	i := slices.Index(ci.order, id)
	if i <= 0 {
		return
	}
	copy(ci.order[1:i+1], ci.order[:i])
	ci.order[0] = id
}
