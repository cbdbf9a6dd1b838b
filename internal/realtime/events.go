package realtime

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/npezzotti/chatsync/internal/types"
)

type EventKind string

const (
	// EventConnected and EventDisconnected are produced locally by the channel.
	EventConnected    EventKind = "connect"
	EventDisconnected EventKind = "disconnect"

	EventChatMessage      EventKind = "chatMessage"
	EventPrivateMessage   EventKind = "privateMessage"
	EventMessageDeleted   EventKind = "messageDeleted"
	EventMessageConfirmed EventKind = "messageConfirmed"
	EventUserStatusChange EventKind = "userStatusChange"
)

var ErrUnknownEvent = errors.New("unknown event")

var validate = validator.New()

// Envelope is the frame exchanged over the socket in both directions.
type Envelope struct {
	Event EventKind       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type MessageDeleted struct {
	MessageId int64 `json:"messageId" validate:"required"`
}

type MessageConfirmed struct {
	TempId           int64         `json:"tempId,omitempty"`
	CorrelationToken int64         `json:"correlationToken,omitempty"`
	Message          types.Message `json:"message"`
}

// Token returns the correlation token the confirmation refers to; servers send
// it either as tempId or as correlationToken.
func (c MessageConfirmed) Token() int64 {
	if c.TempId != 0 {
		return c.TempId
	}
	return c.CorrelationToken
}

type StatusChange struct {
	UserId int64        `json:"userId" validate:"gt=0"`
	Status types.Status `json:"status" validate:"oneof=ONLINE AFK OFFLINE"`
}

// Event is one inbound occurrence on the channel. Exactly one payload is set,
// matching Kind; connect/disconnect carry none (disconnect may carry Err).
type Event struct {
	Kind      EventKind
	Message   *types.Message
	Deleted   *MessageDeleted
	Confirmed *MessageConfirmed
	Status    *StatusChange
	Err       error
	Received  time.Time
}

// DecodeEvent parses and validates an inbound frame.
func DecodeEvent(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, errors.Wrap(err, "decode envelope")
	}

	ev := Event{Kind: env.Event, Received: Now()}
	var payload any
	switch env.Event {
	case EventChatMessage, EventPrivateMessage:
		ev.Message = &types.Message{}
		payload = ev.Message
	case EventMessageDeleted:
		ev.Deleted = &MessageDeleted{}
		payload = ev.Deleted
	case EventMessageConfirmed:
		ev.Confirmed = &MessageConfirmed{}
		payload = ev.Confirmed
	case EventUserStatusChange:
		ev.Status = &StatusChange{}
		payload = ev.Status
	default:
		return Event{}, errors.Wrapf(ErrUnknownEvent, "%q", env.Event)
	}

	if err := json.Unmarshal(env.Data, payload); err != nil {
		return Event{}, errors.Wrapf(err, "decode %s", env.Event)
	}
	if err := validate.Struct(payload); err != nil {
		return Event{}, errors.Wrapf(err, "validate %s", env.Event)
	}
	if ev.Confirmed != nil && ev.Confirmed.Token() >= 0 {
		return Event{}, errors.Errorf("validate %s: correlation token must be negative", env.Event)
	}
	return ev, nil
}

// Outbound is a send request for one conversation, correlated by TempId.
type Outbound struct {
	Target  int64
	Content string
	TempId  int64
}

type chatMessageOut struct {
	ChatId  int64  `json:"chatId"`
	Content string `json:"content"`
	TempId  int64  `json:"tempId"`
}

type privateMessageOut struct {
	RecipientId int64  `json:"recipientId"`
	Content     string `json:"content"`
	TempId      int64  `json:"tempId"`
}

// EncodeOutbound renders out in the dialect of protocol.
func EncodeOutbound(protocol types.Protocol, out Outbound) ([]byte, error) {
	var (
		kind EventKind
		data any
	)
	switch protocol {
	case types.ProtocolChat:
		kind = EventChatMessage
		data = chatMessageOut{ChatId: out.Target, Content: out.Content, TempId: out.TempId}
	case types.ProtocolDirect:
		kind = EventPrivateMessage
		data = privateMessageOut{RecipientId: out.Target, Content: out.Content, TempId: out.TempId}
	default:
		return nil, errors.Errorf("unknown protocol %q", protocol)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: kind, Data: raw})
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
