package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/npezzotti/chatsync/internal/types"
)

const maxErrorBody = 4096

// TokenSource yields the bearer credential for each request.
type TokenSource interface {
	Token() (string, bool)
}

// Client speaks the REST side of the chat service. Both protocols share most
// endpoints; the ones that differ are resolved from the configured protocol.
type Client struct {
	baseURL  string
	protocol types.Protocol
	tokens   TokenSource
	http     *http.Client
	log      zerolog.Logger
}

func NewClient(baseURL string, protocol types.Protocol, tokens TokenSource, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		protocol: protocol,
		tokens:   tokens,
		http:     &http.Client{Timeout: timeout},
		log:      logger.With().Str("component", "rest").Logger(),
	}
}

func (c *Client) Protocol() types.Protocol {
	return c.protocol
}

type chatSummary struct {
	UnreadCount int `json:"unreadCount"`
}

type directSummary struct {
	types.User
	UnreadCount int `json:"unreadCount"`
}

// Conversations fetches the snapshot of the user's conversation list in server
// order, most recent first.
func (c *Client) Conversations(ctx context.Context, self types.User) ([]types.Conversation, error) {
	switch c.protocol {
	case types.ProtocolChat:
		var raw []json.RawMessage
		if err := c.do(ctx, http.MethodGet, "/chats", nil, &raw); err != nil {
			return nil, err
		}
		convs := make([]types.Conversation, 0, len(raw))
		for _, r := range raw {
			var chat types.Chat
			if err := json.Unmarshal(r, &chat); err != nil {
				// one bad entry should not cost the whole list
				c.log.Warn().Err(err).Msg("skipping undecodable chat")
				continue
			}
			var s chatSummary
			json.Unmarshal(r, &s)
			convs = append(convs, types.Conversation{Id: chat.Id, Chat: chat, UnreadCount: max(s.UnreadCount, 0)})
		}
		return convs, nil
	case types.ProtocolDirect:
		var list []directSummary
		if err := c.do(ctx, http.MethodGet, "/users/conversations", nil, &list); err != nil {
			return nil, err
		}
		convs := make([]types.Conversation, 0, len(list))
		for _, s := range list {
			convs = append(convs, types.Conversation{
				Id:          s.Id,
				Chat:        types.DirectChat(self, s.User),
				UnreadCount: max(s.UnreadCount, 0),
			})
		}
		return convs, nil
	default:
		return nil, errors.Errorf("unknown protocol %q", c.protocol)
	}
}

// Chat fetches one chat. Only the chat protocol has a detail endpoint.
func (c *Client) Chat(ctx context.Context, id int64) (types.Chat, error) {
	if c.protocol != types.ProtocolChat {
		return types.Chat{}, errors.Errorf("chat detail not supported by %s protocol", c.protocol)
	}
	var chat types.Chat
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/chats/%d", id), nil, &chat)
	return chat, err
}

func (c *Client) History(ctx context.Context, conversationId int64) ([]types.Message, error) {
	path := fmt.Sprintf("/messages/%d", conversationId)
	if c.protocol == types.ProtocolDirect {
		path = fmt.Sprintf("/messages/conversation/%d", conversationId)
	}
	var msgs []types.Message
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *Client) MarkRead(ctx context.Context, conversationId int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/messages/conversation/%d/read", conversationId), nil, nil)
}

// Hide removes the conversation from the user's list. It does not delete it.
func (c *Client) Hide(ctx context.Context, conversationId int64) error {
	path := fmt.Sprintf("/chats/%d", conversationId)
	if c.protocol == types.ProtocolDirect {
		path = fmt.Sprintf("/users/conversations/%d", conversationId)
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) DeleteMessage(ctx context.Context, messageId int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/messages/%d", messageId), nil, nil)
}

func (c *Client) CreateDM(ctx context.Context, partnerUsername string) (types.Chat, error) {
	var chat types.Chat
	err := c.do(ctx, http.MethodPost, "/chats/dm", map[string]any{"partnerUsername": partnerUsername}, &chat)
	return chat, err
}

func (c *Client) CreateGroup(ctx context.Context, name string, participants []string) (types.Chat, error) {
	var chat types.Chat
	err := c.do(ctx, http.MethodPost, "/chats/groups", map[string]any{"name": name, "participants": participants}, &chat)
	return chat, err
}

func (c *Client) JoinGroup(ctx context.Context, inviteCode string) (types.Chat, error) {
	var chat types.Chat
	err := c.do(ctx, http.MethodPost, "/chats/join", map[string]any{"inviteCode": inviteCode}, &chat)
	return chat, err
}

type GroupSettings struct {
	Name      string `json:"name"`
	AvatarUrl string `json:"avatarUrl"`
}

func (c *Client) UpdateGroup(ctx context.Context, chatId int64, settings GroupSettings) (types.Chat, error) {
	var chat types.Chat
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/chats/groups/%d", chatId), settings, &chat)
	return chat, err
}

type ProfileUpdate struct {
	Username  string       `json:"username"`
	AvatarUrl string       `json:"avatarUrl"`
	About     string       `json:"about"`
	Status    types.Status `json:"status"`
}

// UpdateProfile returns the updated profile and the token reissued for it.
func (c *Client) UpdateProfile(ctx context.Context, p ProfileUpdate) (types.User, string, error) {
	var resp struct {
		User  types.User `json:"user"`
		Token string     `json:"token"`
	}
	if err := c.do(ctx, http.MethodPatch, "/users/me", p, &resp); err != nil {
		return types.User{}, "", err
	}
	if resp.Token == "" {
		return types.User{}, "", errors.Wrap(ErrNetwork, "profile update returned no token")
	}
	return resp.User, resp.Token, nil
}

// Login exchanges credentials for a token. It is the only unauthenticated call.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.send(ctx, http.MethodPost, "/users/login", "", body, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", errors.Wrap(ErrNetwork, "login returned no token")
	}
	return resp.Token, nil
}

func (c *Client) Register(ctx context.Context, username, email, password string) error {
	body := map[string]string{"username": username, "email": email, "password": password}
	return c.send(ctx, http.MethodPost, "/users/register", "", body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	token, ok := c.tokens.Token()
	if !ok {
		return ErrUnauthenticated
	}
	return c.send(ctx, method, path, token, body, out)
}

func (c *Client) send(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method != http.MethodGet {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		return errors.Wrapf(ErrNetwork, "%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		json.Unmarshal(raw, &e)
		return newApiError(resp.StatusCode, e.Message)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(ErrNetwork, "%s %s: decode response: %v", method, path, err)
	}
	return nil
}
