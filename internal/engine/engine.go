package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/npezzotti/chatsync/internal/realtime"
	"github.com/npezzotti/chatsync/internal/rest"
	"github.com/npezzotti/chatsync/internal/stats"
	"github.com/npezzotti/chatsync/internal/types"
)

var (
	ErrNotConnected         = realtime.ErrNotConnected
	ErrEmptyMessage         = errors.New("message is empty")
	ErrNoActiveConversation = errors.New("no active conversation")
	ErrUnauthenticated      = errors.New("not authenticated")
	ErrPlaceholder          = errors.New("message is not confirmed yet")
	ErrStopped              = errors.New("engine stopped")
)

// API is the REST surface the engine consumes.
type API interface {
	Conversations(ctx context.Context, self types.User) ([]types.Conversation, error)
	Chat(ctx context.Context, id int64) (types.Chat, error)
	History(ctx context.Context, conversationId int64) ([]types.Message, error)
	MarkRead(ctx context.Context, conversationId int64) error
	Hide(ctx context.Context, conversationId int64) error
	DeleteMessage(ctx context.Context, messageId int64) error
	CreateDM(ctx context.Context, partnerUsername string) (types.Chat, error)
	CreateGroup(ctx context.Context, name string, participants []string) (types.Chat, error)
	JoinGroup(ctx context.Context, inviteCode string) (types.Chat, error)
	UpdateGroup(ctx context.Context, chatId int64, settings rest.GroupSettings) (types.Chat, error)
	UpdateProfile(ctx context.Context, p rest.ProfileUpdate) (types.User, string, error)
}

// Channel is a live realtime connection.
type Channel interface {
	Subscribe(h realtime.Handler) realtime.Subscription
	Start() error
	Emit(out realtime.Outbound) error
	Connected() bool
	Close() error
}

// Opener dials a new channel authenticated with token.
type Opener func(ctx context.Context, token string) (Channel, error)

// DialWith adapts a realtime dialer to an Opener.
func DialWith(d *realtime.Dialer) Opener {
	return func(ctx context.Context, token string) (Channel, error) {
		ch, err := d.Dial(ctx, token)
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
}

// Session is the credential holder the engine is bound to.
type Session interface {
	Identity() (types.Identity, bool)
	Token() (string, bool)
	Replace(token string) (types.Identity, bool, error)
	UpdateProfile(p types.User) bool
	SetStatus(userId int64, status types.Status) bool
	Logout() error
}

type Options struct {
	Protocol          types.Protocol
	UnknownChatPolicy UnknownChatPolicy
	// DialTimeout bounds channel opens started by the engine itself.
	DialTimeout time.Duration
}

type State int

const (
	StateUnauthenticated State = iota
	StateConnecting
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a point-in-time view of the engine.
type Status struct {
	State         State       `json:"state"`
	User          *types.User `json:"user,omitempty"`
	ActiveId      int64       `json:"activeId,omitempty"`
	Seeded        bool        `json:"seeded"`
	Conversations int         `json:"conversations"`
	PendingSends  int         `json:"pendingSends"`
}

type TimelineView struct {
	ConversationId int64           `json:"conversationId"`
	Loaded         bool            `json:"loaded"`
	Messages       []types.Message `json:"messages"`
}

// Engine owns the conversation index, the active timeline and the pending sends.
// Every mutation runs on the goroutine executing Run; public methods and
// asynchronous completions are posted to it.
type Engine struct {
	ops      chan func()
	done     chan struct{}
	inflight sync.WaitGroup
	runCtx   context.Context

	api     API
	open    Opener
	session Session
	stats   stats.StatsProvider
	log     zerolog.Logger
	opts    Options

	// owned by the loop
	index       *ConversationIndex
	timeline    *MessageTimeline
	sends       *OptimisticSendCoordinator
	dispatcher  *EventDispatcher
	state       State
	epoch       uint64
	channel     Channel
	sub         realtime.Subscription
	chanStopped chan struct{}
	detailsBusy map[int64]struct{}
}

func New(api API, open Opener, session Session, st stats.StatsProvider, opts Options, logger zerolog.Logger) *Engine {
	if opts.UnknownChatPolicy == "" {
		opts.UnknownChatPolicy = PolicyFetch
	}
	if opts.Protocol == "" {
		opts.Protocol = types.ProtocolChat
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 15 * time.Second
	}

	e := &Engine{
		ops:         make(chan func(), 64),
		done:        make(chan struct{}),
		runCtx:      context.Background(),
		api:         api,
		open:        open,
		session:     session,
		stats:       st,
		log:         logger.With().Str("component", "engine").Logger(),
		opts:        opts,
		index:       NewConversationIndex(),
		timeline:    NewMessageTimeline(),
		sends:       NewOptimisticSendCoordinator(opts.Protocol),
		detailsBusy: make(map[int64]struct{}),
	}
	e.dispatcher = &EventDispatcher{
		index:     e.index,
		timeline:  e.timeline,
		sends:     e.sends,
		session:   session,
		protocol:  opts.Protocol,
		policy:    opts.UnknownChatPolicy,
		seen:      newRecentIds(recentIdsSize),
		stats:     st,
		log:       logger.With().Str("component", "dispatcher").Logger(),
		fetchChat: e.fetchChat,
	}

	for _, name := range []string{
		stats.EventsReceived,
		stats.StaleEventsDropped,
		stats.MessagesSent,
		stats.PlaceholdersPending,
		stats.ReconciliationMisses,
		stats.SnapshotFailures,
		stats.StaleHistoryDiscarded,
		stats.HistoryFailures,
		stats.ActionFailures,
		stats.ChannelsOpened,
	} {
		st.RegisterMetric(name)
	}
	return e
}

// Run executes posted operations until ctx is cancelled. On return the channel
// is closed and no request started by the engine is still running.
func (e *Engine) Run(ctx context.Context) error {
	e.runCtx = ctx
	e.log.Info().Msg("engine started")

	for {
		select {
		case op := <-e.ops:
			op()
		case <-ctx.Done():
			close(e.done)
			e.closeChannel()
			e.inflight.Wait()
			e.log.Info().Msg("engine stopped")
			return nil
		}
	}
}

// call runs fn on the loop and waits for it.
func (e *Engine) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case e.ops <- func() { fn(); close(finished) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-e.done:
		// the op may have run just before the loop exited
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	}
}

// post queues fn from a background goroutine. It is dropped once the loop exits.
func (e *Engine) post(fn func()) {
	select {
	case e.ops <- fn:
	case <-e.done:
	}
}

// spawn runs fn off the loop with the engine's context.
func (e *Engine) spawn(fn func(ctx context.Context)) {
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		fn(e.runCtx)
	}()
}

// Start opens the realtime channel for the current session, closing any
// previous one. It returns once the channel is dialled; the snapshot follows
// the connected transition.
func (e *Engine) Start(ctx context.Context) error {
	var (
		epoch uint64
		token string
		err   error
	)
	if cerr := e.call(ctx, func() {
		epoch, token, err = e.prepareOpen()
	}); cerr != nil {
		return cerr
	}
	if err != nil {
		return err
	}
	return e.dial(ctx, epoch, token)
}

// prepareOpen tears down the current channel and reserves a new epoch.
func (e *Engine) prepareOpen() (uint64, string, error) {
	token, ok := e.session.Token()
	if !ok {
		return 0, "", ErrUnauthenticated
	}
	e.closeChannel()
	e.epoch++
	e.state = StateConnecting
	return e.epoch, token, nil
}

func (e *Engine) dial(ctx context.Context, epoch uint64, token string) error {
	ch, err := e.open(ctx, token)
	if err != nil {
		e.post(func() {
			if epoch == e.epoch && e.state == StateConnecting {
				e.state = StateDisconnected
			}
			e.log.Warn().Err(err).Msg("could not open channel")
		})
		return errors.Wrap(err, "open channel")
	}

	attached := false
	if cerr := e.call(ctx, func() { attached = e.attach(epoch, ch) }); cerr != nil || !attached {
		ch.Close()
		if cerr != nil {
			return cerr
		}
		return errors.New("channel superseded")
	}
	return nil
}

// reopen is the loop-side variant of Start used after an identity change.
func (e *Engine) reopen() {
	epoch, token, err := e.prepareOpen()
	if err != nil {
		e.log.Warn().Err(err).Msg("cannot reopen channel")
		return
	}
	e.spawn(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, e.opts.DialTimeout)
		defer cancel()
		e.dial(ctx, epoch, token)
	})
}

func (e *Engine) attach(epoch uint64, ch Channel) bool {
	if epoch != e.epoch || e.state == StateUnauthenticated {
		return false
	}

	stopped := make(chan struct{})
	e.sub = ch.Subscribe(func(ev realtime.Event) {
		select {
		case e.ops <- func() { e.handleEvent(epoch, ev) }:
		case <-stopped:
		case <-e.done:
		}
	})
	e.channel = ch
	e.chanStopped = stopped
	e.stats.Incr(stats.ChannelsOpened)

	if err := ch.Start(); err != nil {
		e.log.Error().Err(err).Msg("start channel")
		e.closeChannel()
		return false
	}
	return true
}

// closeChannel releases the subscription and closes the channel. Events still
// queued from it are dropped by the epoch check.
func (e *Engine) closeChannel() {
	if e.channel == nil {
		return
	}
	close(e.chanStopped)
	e.sub.Unsubscribe()
	if err := e.channel.Close(); err != nil {
		e.log.Debug().Err(err).Msg("close channel")
	}
	e.channel, e.sub, e.chanStopped = nil, nil, nil
	e.epoch++
	if e.state != StateUnauthenticated {
		e.state = StateDisconnected
	}
}

func (e *Engine) handleEvent(epoch uint64, ev realtime.Event) {
	if epoch != e.epoch {
		e.stats.Incr(stats.StaleEventsDropped)
		e.log.Debug().Str("event", string(ev.Kind)).Msg("dropping event from closed channel")
		return
	}
	e.stats.Incr(stats.EventsReceived)

	switch ev.Kind {
	case realtime.EventConnected:
		e.state = StateConnected
		e.log.Info().Msg("channel connected, fetching conversations")
		e.fetchSnapshot(epoch)
	case realtime.EventDisconnected:
		e.state = StateDisconnected
		e.log.Warn().Err(ev.Err).Msg("channel disconnected")
	default:
		e.dispatcher.Dispatch(ev)
	}
}

func (e *Engine) fetchSnapshot(epoch uint64) {
	ident, ok := e.session.Identity()
	if !ok {
		return
	}
	e.index.BeginSnapshot()
	e.spawn(func(ctx context.Context) {
		convs, err := e.api.Conversations(ctx, ident.User)
		e.post(func() { e.seed(epoch, convs, err) })
	})
}

func (e *Engine) seed(epoch uint64, convs []types.Conversation, err error) {
	if epoch != e.epoch {
		e.log.Debug().Msg("discarding snapshot for closed channel")
		return
	}
	if err != nil {
		if rest.IsUnauthorized(err) {
			e.forceLogout(err)
			return
		}
		e.stats.Incr(stats.SnapshotFailures)
		e.log.Warn().Err(err).Msg("fetch conversations")
		return
	}

	partial := e.index.Seed(convs)
	e.log.Info().Int("conversations", e.index.Len()).Int("partial", len(partial)).Msg("index seeded")
	for _, id := range partial {
		e.fetchChat(id)
	}
}

// fetchChat fills in a partial entry from the chat detail endpoint.
func (e *Engine) fetchChat(id int64) {
	if e.opts.Protocol != types.ProtocolChat || e.opts.UnknownChatPolicy != PolicyFetch {
		return
	}
	if _, busy := e.detailsBusy[id]; busy {
		return
	}
	e.detailsBusy[id] = struct{}{}
	epoch := e.epoch

	e.spawn(func(ctx context.Context) {
		chat, err := e.api.Chat(ctx, id)
		e.post(func() {
			delete(e.detailsBusy, id)
			if epoch != e.epoch {
				return
			}
			if err != nil {
				e.log.Debug().Err(err).Int64("conversation_id", id).Msg("fetch chat details")
				return
			}
			if c, ok := e.index.Get(id); ok && c.Partial {
				e.index.Upsert(chat)
			}
		})
	})
}

// Activate makes id the active conversation: its unread count is reset, the
// read receipt is sent and its history is loaded in the background.
func (e *Engine) Activate(ctx context.Context, id int64) error {
	var err error
	cerr := e.call(ctx, func() {
		if _, ok := e.session.Identity(); !ok {
			err = ErrUnauthenticated
			return
		}
		e.activate(id)
	})
	if cerr != nil {
		return cerr
	}
	return err
}

func (e *Engine) activate(id int64) {
	e.index.MarkActive(id)
	gen := e.resetTimeline(id)
	e.markRead(id)

	e.spawn(func(ctx context.Context) {
		msgs, err := e.api.History(ctx, id)
		e.post(func() { e.loadHistory(gen, id, msgs, err) })
	})
}

func (e *Engine) resetTimeline(id int64) uint64 {
	gen := e.timeline.Reset(id)
	for range e.sends.Collect(id) {
		e.stats.Decr(stats.PlaceholdersPending)
	}
	for _, p := range e.sends.PendingFor(id) {
		e.timeline.AppendIncoming(p)
	}
	return gen
}

func (e *Engine) loadHistory(gen uint64, id int64, msgs []types.Message, err error) {
	if gen != e.timeline.Generation() {
		e.stats.Incr(stats.StaleHistoryDiscarded)
		e.log.Debug().Int64("conversation_id", id).Msg("discarding stale history")
		return
	}
	if err != nil {
		if rest.IsUnauthorized(err) {
			e.forceLogout(err)
			return
		}
		e.stats.Incr(stats.HistoryFailures)
		e.log.Warn().Err(err).Int64("conversation_id", id).Msg("fetch history")
		return
	}
	e.timeline.Load(msgs)
}

// Deactivate clears the active conversation.
func (e *Engine) Deactivate(ctx context.Context) error {
	return e.call(ctx, func() {
		e.index.ClearActive()
		e.resetTimeline(0)
	})
}

// Send appends a placeholder for content, bumps the conversation and emits the
// message. The returned id is the placeholder's.
func (e *Engine) Send(ctx context.Context, target int64, content string) (int64, error) {
	var (
		id  int64
		err error
	)
	if cerr := e.call(ctx, func() { id, err = e.send(target, content) }); cerr != nil {
		return 0, cerr
	}
	return id, err
}

// SendActive sends to the active conversation.
func (e *Engine) SendActive(ctx context.Context, content string) (int64, error) {
	var (
		id  int64
		err error
	)
	if cerr := e.call(ctx, func() {
		active, ok := e.index.Active()
		if !ok {
			err = ErrNoActiveConversation
			return
		}
		id, err = e.send(active, content)
	}); cerr != nil {
		return 0, cerr
	}
	return id, err
}

func (e *Engine) send(target int64, content string) (int64, error) {
	ident, ok := e.session.Identity()
	if !ok {
		return 0, ErrUnauthenticated
	}
	if strings.TrimSpace(content) == "" {
		return 0, ErrEmptyMessage
	}
	if e.channel == nil || e.state != StateConnected || !e.channel.Connected() {
		return 0, ErrNotConnected
	}

	msg, err := e.sends.Begin(ident.User, target, content, realtime.Now())
	if err != nil {
		return 0, err
	}
	if e.timeline.ConversationId() == target {
		e.timeline.AppendIncoming(msg)
	}
	if !e.index.Has(target) {
		e.index.InsertFront(stubConversation(e.opts.Protocol, ident.User, target, msg))
		if e.index.Seeded() {
			e.fetchChat(target)
		}
	}
	e.index.BumpToFront(target, Patch{Preview: msg.Preview(), UpdatedAt: msg.CreatedAt})

	if err := e.channel.Emit(realtime.Outbound{Target: target, Content: content, TempId: msg.Id}); err != nil {
		e.timeline.RemoveById(msg.Id)
		e.sends.Abort(msg.Id)
		e.log.Warn().Err(err).Int64("conversation_id", target).Msg("emit message")
		return 0, err
	}

	e.stats.Incr(stats.MessagesSent)
	e.stats.Incr(stats.PlaceholdersPending)
	return msg.Id, nil
}

// MarkRead resets the unread count and sends the read receipt without waiting.
func (e *Engine) MarkRead(ctx context.Context, id int64) error {
	return e.call(ctx, func() {
		e.index.ResetUnread(id)
		e.markRead(id)
	})
}

func (e *Engine) markRead(id int64) {
	e.fire("mark read", id, func(ctx context.Context) error { return e.api.MarkRead(ctx, id) })
}

// Hide removes the conversation from the list and asks the server to hide it.
// A failed request is not rolled back.
func (e *Engine) Hide(ctx context.Context, id int64) error {
	return e.call(ctx, func() {
		if e.index.Hide(id) || e.timeline.ConversationId() == id {
			e.resetTimeline(0)
		}
		e.fire("hide conversation", id, func(ctx context.Context) error { return e.api.Hide(ctx, id) })
	})
}

// DeleteMessage removes a confirmed message from the timeline and asks the
// server to delete it. Placeholders cannot be deleted.
func (e *Engine) DeleteMessage(ctx context.Context, messageId int64) error {
	if messageId <= 0 {
		return ErrPlaceholder
	}
	return e.call(ctx, func() {
		e.timeline.RemoveById(messageId)
		e.fire("delete message", messageId, func(ctx context.Context) error { return e.api.DeleteMessage(ctx, messageId) })
	})
}

// fire runs a server action in the background; failures are logged and counted.
func (e *Engine) fire(action string, id int64, fn func(ctx context.Context) error) {
	e.spawn(func(ctx context.Context) {
		err := fn(ctx)
		if err == nil {
			return
		}
		e.post(func() {
			e.stats.Incr(stats.ActionFailures)
			e.log.Warn().Err(err).Str("action", action).Int64("id", id).Msg("action failed")
		})
	})
}

// CreateDM starts a direct conversation with the named user and activates it.
func (e *Engine) CreateDM(ctx context.Context, partnerUsername string) (types.Conversation, error) {
	return e.startChat(ctx, func(ctx context.Context) (types.Chat, error) {
		return e.api.CreateDM(ctx, partnerUsername)
	})
}

func (e *Engine) CreateGroup(ctx context.Context, name string, participants []string) (types.Conversation, error) {
	return e.startChat(ctx, func(ctx context.Context) (types.Chat, error) {
		return e.api.CreateGroup(ctx, name, participants)
	})
}

func (e *Engine) JoinGroup(ctx context.Context, inviteCode string) (types.Conversation, error) {
	return e.startChat(ctx, func(ctx context.Context) (types.Chat, error) {
		return e.api.JoinGroup(ctx, inviteCode)
	})
}

func (e *Engine) startChat(ctx context.Context, create func(ctx context.Context) (types.Chat, error)) (types.Conversation, error) {
	ident, ok := e.session.Identity()
	if !ok {
		return types.Conversation{}, ErrUnauthenticated
	}
	chat, err := create(ctx)
	if err != nil {
		return types.Conversation{}, err
	}
	chat = e.localChat(ident.User, chat)

	var conv types.Conversation
	cerr := e.call(ctx, func() {
		if existing, ok := e.index.Get(chat.Id); ok {
			conv = existing
			conv.Chat = chat
		} else {
			conv = types.Conversation{Id: chat.Id, Chat: chat}
		}
		e.index.InsertFront(conv)
		e.activate(chat.Id)
		conv, _ = e.index.Get(chat.Id)
	})
	return conv, cerr
}

// localChat keys a chat the way the index does. Direct conversations are keyed
// by the partner's id.
func (e *Engine) localChat(self types.User, chat types.Chat) types.Chat {
	if e.opts.Protocol != types.ProtocolDirect {
		return chat
	}
	partner, ok := chat.Partner(self.Id)
	if !ok {
		return chat
	}
	dm := types.DirectChat(self, partner)
	dm.UpdatedAt = chat.UpdatedAt
	dm.LastMessagePreview = chat.LastMessagePreview
	return dm
}

// UpdateGroup changes a group's settings and replaces the entry in place. Fields
// left empty in settings keep their current values.
func (e *Engine) UpdateGroup(ctx context.Context, id int64, settings rest.GroupSettings) (types.Conversation, error) {
	var (
		current types.Conversation
		known   bool
	)
	if cerr := e.call(ctx, func() { current, known = e.index.Get(id) }); cerr != nil {
		return types.Conversation{}, cerr
	}
	if known {
		settings = groupRequest(settings, current.Chat)
	}

	chat, err := e.api.UpdateGroup(ctx, id, settings)
	if err != nil {
		return types.Conversation{}, err
	}
	var conv types.Conversation
	cerr := e.call(ctx, func() {
		e.index.Upsert(chat)
		conv, _ = e.index.Get(chat.Id)
	})
	return conv, cerr
}

// UpdateProfile saves the profile and installs the reissued token. Fields left
// empty in p keep their current values. A token for a different user restarts
// the engine state and the channel.
func (e *Engine) UpdateProfile(ctx context.Context, p rest.ProfileUpdate) (types.Identity, error) {
	current, ok := e.session.Identity()
	if !ok {
		return types.Identity{}, ErrUnauthenticated
	}

	user, token, err := e.api.UpdateProfile(ctx, profileRequest(p, current.User))
	if err != nil {
		return types.Identity{}, err
	}

	var ident types.Identity
	cerr := e.call(ctx, func() {
		var changed bool
		ident, changed, err = e.session.Replace(token)
		if err != nil {
			e.resetState()
			return
		}
		if changed {
			e.log.Info().Int64("user_id", ident.Id).Msg("identity changed, restarting")
			e.resetState()
			e.reopen()
			return
		}
		e.session.UpdateProfile(user)
		e.index.UpdateUser(user)
		ident, _ = e.session.Identity()
	})
	if cerr != nil {
		return types.Identity{}, cerr
	}
	return ident, err
}

// profileRequest fills the fields p leaves empty from u. The server replaces the
// whole profile on update.
func profileRequest(p rest.ProfileUpdate, u types.User) rest.ProfileUpdate {
	if p.Username == "" {
		p.Username = u.Username
	}
	if p.AvatarUrl == "" {
		p.AvatarUrl = u.AvatarUrl
	}
	if p.About == "" {
		p.About = u.About
	}
	if p.Status == "" {
		p.Status = u.Status
	}
	return p
}

// groupRequest fills the settings s leaves empty from chat.
func groupRequest(s rest.GroupSettings, chat types.Chat) rest.GroupSettings {
	if s.Name == "" && chat.Group != nil {
		s.Name = chat.Group.Name
	}
	if s.AvatarUrl == "" {
		s.AvatarUrl = chat.AvatarUrl
	}
	return s
}

// Logout closes the channel, clears all state and the stored credential.
func (e *Engine) Logout(ctx context.Context) error {
	var err error
	if cerr := e.call(ctx, func() {
		e.resetState()
		err = e.session.Logout()
	}); cerr != nil {
		return cerr
	}
	return err
}

func (e *Engine) forceLogout(cause error) {
	e.log.Warn().Err(cause).Msg("credential rejected, logging out")
	e.resetState()
	if err := e.session.Logout(); err != nil {
		e.log.Error().Err(err).Msg("logout")
	}
}

func (e *Engine) resetState() {
	e.closeChannel()
	e.state = StateUnauthenticated
	e.index.Reset()
	e.timeline.Reset(0)
	for range e.sends.Reset() {
		e.stats.Decr(stats.PlaceholdersPending)
	}
	e.dispatcher.seen.reset()
	clear(e.detailsBusy)
}

// Conversations returns a copy of the index in display order.
func (e *Engine) Conversations(ctx context.Context) ([]types.Conversation, error) {
	var convs []types.Conversation
	err := e.call(ctx, func() { convs = e.index.Snapshot() })
	return convs, err
}

func (e *Engine) Conversation(ctx context.Context, id int64) (types.Conversation, bool, error) {
	var (
		conv types.Conversation
		ok   bool
	)
	err := e.call(ctx, func() { conv, ok = e.index.Get(id) })
	return conv, ok, err
}

// Timeline returns a copy of the active timeline.
func (e *Engine) Timeline(ctx context.Context) (TimelineView, error) {
	var view TimelineView
	err := e.call(ctx, func() {
		view = TimelineView{
			ConversationId: e.timeline.ConversationId(),
			Loaded:         e.timeline.Loaded(),
			Messages:       e.timeline.Messages(),
		}
	})
	return view, err
}

func (e *Engine) Status(ctx context.Context) (Status, error) {
	var st Status
	err := e.call(ctx, func() {
		active, _ := e.index.Active()
		st = Status{
			State:         e.state,
			ActiveId:      active,
			Seeded:        e.index.Seeded(),
			Conversations: e.index.Len(),
			PendingSends:  e.sends.Pending(),
		}
		if ident, ok := e.session.Identity(); ok {
			u := ident.User
			st.User = &u
		}
	})
	return st, err
}
