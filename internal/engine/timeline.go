package engine

import (
	"slices"

	"github.com/npezzotti/chatsync/internal/types"
)

// MessageTimeline holds the messages of the active conversation in append
// order. Message ids are unique within it.
type MessageTimeline struct {
	conversationId int64
	generation     uint64
	messages       []types.Message
	loaded         bool
}

func NewMessageTimeline() *MessageTimeline {
	return &MessageTimeline{}
}

// Reset discards the timeline and binds it to conversationId (0 for none). The
// returned generation identifies this activation.
func (mt *MessageTimeline) Reset(conversationId int64) uint64 {
	mt.conversationId = conversationId
	mt.messages = nil
	mt.loaded = false
	mt.generation++
	return mt.generation
}

func (mt *MessageTimeline) ConversationId() int64 {
	return mt.conversationId
}

func (mt *MessageTimeline) Generation() uint64 {
	return mt.generation
}

func (mt *MessageTimeline) Loaded() bool {
	return mt.loaded
}

// Load replaces the list with history. Messages appended since the reset that
// the history does not contain are kept after it.
func (mt *MessageTimeline) Load(history []types.Message) {
	seen := make(map[int64]struct{}, len(history)+len(mt.messages))
	msgs := make([]types.Message, 0, len(history)+len(mt.messages))
	for _, m := range history {
		if _, dup := seen[m.Id]; dup {
			continue
		}
		seen[m.Id] = struct{}{}
		msgs = append(msgs, m)
	}
	for _, m := range mt.messages {
		if _, dup := seen[m.Id]; dup {
			continue
		}
		seen[m.Id] = struct{}{}
		msgs = append(msgs, m)
	}
	mt.messages = msgs
	mt.loaded = true
}

// AppendIncoming appends msg unless its id is already present.
func (mt *MessageTimeline) AppendIncoming(msg types.Message) bool {
	if mt.Contains(msg.Id) {
		return false
	}
	mt.messages = append(mt.messages, msg)
	return true
}

// Reconcile replaces the placeholder in place with the confirmed message. A
// copy of the confirmed message already in the list is dropped. It reports
// false when the placeholder is not present.
func (mt *MessageTimeline) Reconcile(placeholderId int64, msg types.Message) bool {
	i := mt.index(placeholderId)
	if i < 0 {
		return false
	}
	if j := mt.index(msg.Id); j >= 0 && j != i {
		mt.messages = slices.Delete(mt.messages, j, j+1)
		if j < i {
			i--
		}
	}
	mt.messages[i] = msg
	return true
}

func (mt *MessageTimeline) RemoveById(id int64) bool {
	i := mt.index(id)
	if i < 0 {
		return false
	}
	mt.messages = slices.Delete(mt.messages, i, i+1)
	return true
}

func (mt *MessageTimeline) Contains(id int64) bool {
	return mt.index(id) >= 0
}

func (mt *MessageTimeline) Len() int {
	return len(mt.messages)
}

// Messages returns a copy of the list.
func (mt *MessageTimeline) Messages() []types.Message {
	return slices.Clone(mt.messages)
}

func (mt *MessageTimeline) index(id int64) int {
	return slices.IndexFunc(mt.messages, func(m types.Message) bool { return m.Id == id })
}
