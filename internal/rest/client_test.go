package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/npezzotti/chatsync/internal/testutil"
	"github.com/npezzotti/chatsync/internal/types"
)

type staticToken string

func (s staticToken) Token() (string, bool) {
	return string(s), s != ""
}

type recorded struct {
	method string
	path   string
	auth   string
	idem   string
	body   string
}

func newTestClient(t *testing.T, protocol types.Protocol, status int, response string) (*Client, chan recorded) {
	t.Helper()
	reqs := make(chan recorded, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		reqs <- recorded{
			method: r.Method,
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
			idem:   r.Header.Get("Idempotency-Key"),
			body:   string(body),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api", protocol, staticToken("tok"), 2*time.Second, testutil.TestLogger(t)), reqs
}

func TestClient_Endpoints(t *testing.T) {
	ctx := context.Background()

	tcases := []struct {
		name     string
		protocol types.Protocol
		response string
		call     func(c *Client) error
		method   string
		path     string
		body     string
	}{
		{
			name:     "chat history",
			protocol: types.ProtocolChat,
			response: `[]`,
			call:     func(c *Client) error { _, err := c.History(ctx, 2); return err },
			method:   http.MethodGet,
			path:     "/api/messages/2",
		},
		{
			name:     "direct history",
			protocol: types.ProtocolDirect,
			response: `[]`,
			call:     func(c *Client) error { _, err := c.History(ctx, 2); return err },
			method:   http.MethodGet,
			path:     "/api/messages/conversation/2",
		},
		{
			name:     "mark read",
			protocol: types.ProtocolChat,
			call:     func(c *Client) error { return c.MarkRead(ctx, 7) },
			method:   http.MethodPost,
			path:     "/api/messages/conversation/7/read",
		},
		{
			name:     "chat hide",
			protocol: types.ProtocolChat,
			call:     func(c *Client) error { return c.Hide(ctx, 7) },
			method:   http.MethodDelete,
			path:     "/api/chats/7",
		},
		{
			name:     "direct hide",
			protocol: types.ProtocolDirect,
			call:     func(c *Client) error { return c.Hide(ctx, 7) },
			method:   http.MethodDelete,
			path:     "/api/users/conversations/7",
		},
		{
			name:     "delete message",
			protocol: types.ProtocolChat,
			call:     func(c *Client) error { return c.DeleteMessage(ctx, 501) },
			method:   http.MethodDelete,
			path:     "/api/messages/501",
		},
		{
			name:     "create dm",
			protocol: types.ProtocolChat,
			response: `{"id":9,"type":"DM","participants":[{"user":{"id":1}},{"user":{"id":2}}]}`,
			call:     func(c *Client) error { _, err := c.CreateDM(ctx, "bob"); return err },
			method:   http.MethodPost,
			path:     "/api/chats/dm",
			body:     `{"partnerUsername":"bob"}`,
		},
		{
			name:     "create group",
			protocol: types.ProtocolChat,
			response: `{"id":9,"type":"GROUP","name":"g","ownerId":1,"participants":[{"user":{"id":1}}]}`,
			call:     func(c *Client) error { _, err := c.CreateGroup(ctx, "g", []string{"bob", "eve"}); return err },
			method:   http.MethodPost,
			path:     "/api/chats/groups",
			body:     `{"name":"g","participants":["bob","eve"]}`,
		},
		{
			name:     "join group",
			protocol: types.ProtocolChat,
			response: `{"id":9,"type":"GROUP","name":"g","ownerId":1,"participants":[{"user":{"id":1}}]}`,
			call:     func(c *Client) error { _, err := c.JoinGroup(ctx, "abc"); return err },
			method:   http.MethodPost,
			path:     "/api/chats/join",
			body:     `{"inviteCode":"abc"}`,
		},
		{
			name:     "update group",
			protocol: types.ProtocolChat,
			response: `{"id":9,"type":"GROUP","name":"h","ownerId":1,"participants":[{"user":{"id":1}}]}`,
			call: func(c *Client) error {
				_, err := c.UpdateGroup(ctx, 9, GroupSettings{Name: "h", AvatarUrl: "a.png"})
				return err
			},
			method: http.MethodPatch,
			path:   "/api/chats/groups/9",
			body:   `{"name":"h","avatarUrl":"a.png"}`,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			response := tc.response
			if response == "" {
				response = `{}`
			}
			c, reqs := newTestClient(t, tc.protocol, http.StatusOK, response)
			require.NoError(t, tc.call(c))

			req := <-reqs
			assert.Equal(t, tc.method, req.method)
			assert.Equal(t, tc.path, req.path)
			assert.Equal(t, "Bearer tok", req.auth, "expected bearer credential")
			if tc.method == http.MethodGet {
				assert.Empty(t, req.idem, "expected reads to carry no idempotency key")
			} else {
				assert.NotEmpty(t, req.idem, "expected mutation to carry an idempotency key")
			}
			if tc.body != "" {
				assert.JSONEq(t, tc.body, req.body)
			}
		})
	}
}

func TestClient_Conversations(t *testing.T) {
	self := types.User{Id: 1, Username: "alice"}

	t.Run("chat protocol", func(t *testing.T) {
		c, reqs := newTestClient(t, types.ProtocolChat, http.StatusOK, `[
			{"id":2,"type":"DM","participants":[{"user":{"id":1}},{"user":{"id":3,"username":"bob"}}],"messages":[{"content":"hey"}]},
			{"id":4,"type":"CHANNEL","participants":[]},
			{"id":5,"type":"GROUP","name":"g","ownerId":1,"participants":[{"user":{"id":1}}],"unreadCount":3}
		]`)
		convs, err := c.Conversations(context.Background(), self)
		require.NoError(t, err)
		assert.Equal(t, "/api/chats", (<-reqs).path)

		require.Len(t, convs, 2, "expected undecodable entry to be skipped")
		assert.Equal(t, int64(2), convs[0].Id)
		assert.Equal(t, "hey", convs[0].Chat.LastMessagePreview)
		assert.Equal(t, "bob", convs[0].Chat.Title(self.Id))
		assert.Equal(t, 3, convs[1].UnreadCount)
	})

	t.Run("direct protocol", func(t *testing.T) {
		c, reqs := newTestClient(t, types.ProtocolDirect, http.StatusOK,
			`[{"id":3,"username":"bob","status":"ONLINE","unreadCount":2}]`)
		convs, err := c.Conversations(context.Background(), self)
		require.NoError(t, err)
		assert.Equal(t, "/api/users/conversations", (<-reqs).path)

		require.Len(t, convs, 1)
		assert.Equal(t, int64(3), convs[0].Id)
		assert.Equal(t, 2, convs[0].UnreadCount)
		assert.Equal(t, types.ChatDM, convs[0].Chat.Kind)
		assert.NoError(t, convs[0].Chat.Validate(), "expected a well formed dm view")
		assert.Equal(t, "bob", convs[0].Chat.Title(self.Id))
	})
}

func TestClient_Errors(t *testing.T) {
	t.Run("api error message", func(t *testing.T) {
		c, _ := newTestClient(t, types.ProtocolChat, http.StatusNotFound, `{"message":"user not found"}`)
		_, err := c.CreateDM(context.Background(), "nobody")

		var apiErr *ApiError
		require.True(t, errors.As(err, &apiErr), "expected an ApiError")
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		assert.Equal(t, "user not found", apiErr.Message)
		assert.False(t, IsUnauthorized(err))
	})

	t.Run("status text fallback", func(t *testing.T) {
		c, _ := newTestClient(t, types.ProtocolChat, http.StatusUnauthorized, ``)
		err := c.MarkRead(context.Background(), 1)
		assert.EqualError(t, err, "unauthorized")
		assert.True(t, IsUnauthorized(err))
	})

	t.Run("bad body", func(t *testing.T) {
		c, _ := newTestClient(t, types.ProtocolChat, http.StatusOK, `not json`)
		_, err := c.History(context.Background(), 1)
		assert.ErrorIs(t, err, ErrNetwork)
	})

	t.Run("unreachable", func(t *testing.T) {
		c := NewClient("http://127.0.0.1:1/api", types.ProtocolChat, staticToken("tok"), time.Second, testutil.TestLogger(t))
		_, err := c.History(context.Background(), 1)
		assert.ErrorIs(t, err, ErrNetwork)
	})

	t.Run("no credential", func(t *testing.T) {
		c := NewClient("http://127.0.0.1:1/api", types.ProtocolChat, staticToken(""), time.Second, testutil.TestLogger(t))
		assert.ErrorIs(t, c.MarkRead(context.Background(), 1), ErrUnauthenticated)
	})

	t.Run("no detail endpoint in direct protocol", func(t *testing.T) {
		c := NewClient("http://127.0.0.1:1/api", types.ProtocolDirect, staticToken("tok"), time.Second, testutil.TestLogger(t))
		_, err := c.Chat(context.Background(), 1)
		assert.Error(t, err)
	})
}

func TestClient_Login(t *testing.T) {
	c, reqs := newTestClient(t, types.ProtocolChat, http.StatusOK, `{"token":"fresh"}`)
	c.tokens = staticToken("")

	token, err := c.Login(context.Background(), "a@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)

	req := <-reqs
	assert.Equal(t, "/api/users/login", req.path)
	assert.Empty(t, req.auth, "expected login to be unauthenticated")
	assert.JSONEq(t, `{"email":"a@example.com","password":"pw"}`, req.body)
}

func TestClient_UpdateProfile(t *testing.T) {
	c, reqs := newTestClient(t, types.ProtocolChat, http.StatusOK,
		`{"user":{"id":1,"username":"alice2","status":"AFK"},"token":"new"}`)

	u, token, err := c.UpdateProfile(context.Background(), ProfileUpdate{Username: "alice2", Status: types.StatusAFK})
	require.NoError(t, err)
	assert.Equal(t, "alice2", u.Username)
	assert.Equal(t, "new", token)

	req := <-reqs
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(req.body), &body))
	assert.Equal(t, "AFK", body["status"])
	assert.Equal(t, http.MethodPatch, req.method)
}
