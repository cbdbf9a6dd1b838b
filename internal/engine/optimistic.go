package engine

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/npezzotti/chatsync/internal/types"
)

type pendingSend struct {
	conversationId int64
	placeholder    types.Message
}

// OptimisticSendCoordinator issues placeholder ids and tracks the sends that
// still await confirmation, keyed by their correlation token.
type OptimisticSendCoordinator struct {
	protocol types.Protocol
	last     int64
	pending  map[int64]pendingSend
}

func NewOptimisticSendCoordinator(protocol types.Protocol) *OptimisticSendCoordinator {
	return &OptimisticSendCoordinator{
		protocol: protocol,
		pending:  make(map[int64]pendingSend),
	}
}

// Begin builds the placeholder for a send to target and records it as pending.
// Placeholder ids are negative and never reused by the coordinator.
func (o *OptimisticSendCoordinator) Begin(self types.User, target int64, content string, now time.Time) (types.Message, error) {
	if strings.TrimSpace(content) == "" {
		return types.Message{}, ErrEmptyMessage
	}

	o.last--
	sender := self
	msg := types.Message{
		Id:        o.last,
		SenderId:  self.Id,
		Content:   content,
		CreatedAt: now,
		Sender:    &sender,
	}
	switch o.protocol {
	case types.ProtocolDirect:
		msg.RecipientId = target
	default:
		msg.ChatId = target
	}

	o.pending[msg.Id] = pendingSend{conversationId: target, placeholder: msg}
	return msg, nil
}

// Confirm removes the pending record for token. It reports false when the
// token is unknown or was already collected.
func (o *OptimisticSendCoordinator) Confirm(token int64) (pendingSend, bool) {
	p, ok := o.pending[token]
	if ok {
		delete(o.pending, token)
	}
	return p, ok
}

func (o *OptimisticSendCoordinator) Abort(token int64) {
	delete(o.pending, token)
}

// Collect drops every pending record except the ones for keep, returning how
// many were dropped. Called when the timeline is rebuilt.
func (o *OptimisticSendCoordinator) Collect(keep int64) int {
	n := 0
	for token, p := range o.pending {
		if p.conversationId != keep {
			delete(o.pending, token)
			n++
		}
	}
	return n
}

// PendingFor returns the unconfirmed placeholders for a conversation in send
// order.
func (o *OptimisticSendCoordinator) PendingFor(conversationId int64) []types.Message {
	var msgs []types.Message
	for _, p := range o.pending {
		if p.conversationId == conversationId {
			msgs = append(msgs, p.placeholder)
		}
	}
	// ids count down from -1
	slices.SortFunc(msgs, func(a, b types.Message) int { return cmp.Compare(b.Id, a.Id) })
	return msgs
}

func (o *OptimisticSendCoordinator) Pending() int {
	return len(o.pending)
}

// Reset drops all pending records. Issued ids stay unique across resets.
func (o *OptimisticSendCoordinator) Reset() int {
	n := len(o.pending)
	clear(o.pending)
	return n
}
