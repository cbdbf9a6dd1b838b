package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/npezzotti/chatsync/internal/types"
)

var epoch0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func dmConv(id int64, unread int) types.Conversation {
	return types.Conversation{
		Id: id,
		Chat: types.Chat{
			Id:   id,
			Kind: types.ChatDM,
			Participants: []types.Participant{
				{User: types.User{Id: 1, Username: "alice"}},
				{User: types.User{Id: 100 + id, Username: "user"}},
			},
			UpdatedAt: epoch0,
		},
		UnreadCount: unread,
	}
}

func ids(convs []types.Conversation) []int64 {
	out := make([]int64, 0, len(convs))
	for _, c := range convs {
		out = append(out, c.Id)
	}
	return out
}

func TestConversationIndex_BumpToFront(t *testing.T) {
	ci := NewConversationIndex()
	ci.Seed([]types.Conversation{dmConv(1, 0), dmConv(2, 0), dmConv(3, 0)})

	assert.True(t, ci.BumpToFront(3, Patch{Preview: "hey", UpdatedAt: epoch0.Add(time.Minute)}))
	once := ids(ci.Snapshot())
	assert.True(t, ci.BumpToFront(3, Patch{}))
	assert.Equal(t, once, ids(ci.Snapshot()), "expected a second bump to not change the order")
	assert.Equal(t, []int64{3, 1, 2}, once)

	c, _ := ci.Get(3)
	assert.Equal(t, "hey", c.Chat.LastMessagePreview)
	assert.Equal(t, epoch0.Add(time.Minute), c.Chat.UpdatedAt)

	assert.False(t, ci.BumpToFront(42, Patch{}), "expected unknown id to not be inserted")
	assert.Equal(t, 3, ci.Len())
}

func TestConversationIndex_Unread(t *testing.T) {
	ci := NewConversationIndex()
	ci.Seed([]types.Conversation{dmConv(7, 0), dmConv(8, 0)})

	ci.IncrementUnread(7)
	ci.IncrementUnread(7)
	c, _ := ci.Get(7)
	assert.Equal(t, 2, c.UnreadCount)

	assert.True(t, ci.MarkActive(7))
	c, _ = ci.Get(7)
	assert.Equal(t, 0, c.UnreadCount, "expected activation to reset unread")

	ci.IncrementUnread(7)
	c, _ = ci.Get(7)
	assert.Equal(t, 0, c.UnreadCount, "expected active conversation to stay at zero")

	ci.IncrementUnread(8)
	ci.ResetUnread(8)
	c, _ = ci.Get(8)
	assert.Equal(t, 0, c.UnreadCount)
}

func TestConversationIndex_Hide(t *testing.T) {
	ci := NewConversationIndex()
	ci.Seed([]types.Conversation{dmConv(7, 0), dmConv(8, 0)})
	ci.MarkActive(7)

	assert.True(t, ci.Hide(7), "expected hiding the active conversation to report it")
	_, ok := ci.Active()
	assert.False(t, ok, "expected active pointer to be cleared")
	assert.Equal(t, []int64{8}, ids(ci.Snapshot()))

	assert.False(t, ci.Hide(99), "expected hiding an unknown id to be a no-op")
}

func TestConversationIndex_Seed(t *testing.T) {
	t.Run("snapshot order", func(t *testing.T) {
		ci := NewConversationIndex()
		ci.BeginSnapshot()
		partial := ci.Seed([]types.Conversation{dmConv(1, 2), dmConv(2, -1), dmConv(1, 5)})
		assert.Empty(t, partial)
		assert.Equal(t, []int64{1, 2}, ids(ci.Snapshot()), "expected duplicates to be collapsed")
		c, _ := ci.Get(2)
		assert.Equal(t, 0, c.UnreadCount, "expected negative unread to be clamped")
		assert.True(t, ci.Seeded())
	})

	t.Run("bumps since the request survive", func(t *testing.T) {
		ci := NewConversationIndex()
		ci.BeginSnapshot()

		stub := types.Conversation{Id: 9, Chat: types.Chat{Id: 9, UpdatedAt: epoch0.Add(time.Hour)}, Partial: true}
		ci.InsertFront(stub)
		ci.IncrementUnread(9)

		ci.InsertFront(types.Conversation{Id: 2, Chat: types.Chat{Id: 2, UpdatedAt: epoch0.Add(time.Hour)}, Partial: true})
		ci.BumpToFront(2, Patch{Preview: "newer", UpdatedAt: epoch0.Add(time.Hour)})
		ci.IncrementUnread(2)

		snap2 := dmConv(2, 0)
		snap2.Chat.LastMessagePreview = "older"
		partial := ci.Seed([]types.Conversation{dmConv(3, 1), snap2})

		assert.Equal(t, []int64{2, 9, 3}, ids(ci.Snapshot()))
		assert.Equal(t, []int64{9}, partial, "expected only the stub missing from the snapshot to stay partial")

		c, _ := ci.Get(2)
		assert.False(t, c.Partial)
		assert.Equal(t, types.ChatDM, c.Chat.Kind, "expected snapshot chat details")
		assert.Equal(t, "newer", c.Chat.LastMessagePreview, "expected newer local preview to win")
		assert.Equal(t, 1, c.UnreadCount)

		c, _ = ci.Get(9)
		assert.Equal(t, 1, c.UnreadCount)
	})

	t.Run("entries not bumped are replaced", func(t *testing.T) {
		ci := NewConversationIndex()
		ci.Seed([]types.Conversation{dmConv(1, 0), dmConv(2, 0)})
		ci.BumpToFront(2, Patch{})

		ci.BeginSnapshot()
		ci.Seed([]types.Conversation{dmConv(1, 4)})
		assert.Equal(t, []int64{1}, ids(ci.Snapshot()), "expected snapshot to be authoritative for untouched entries")
	})

	t.Run("unread takes the larger of snapshot and local", func(t *testing.T) {
		tcases := []struct {
			name     string
			snapshot int
			raced    int
			want     int
		}{
			// the snapshot may already count the raced messages, so counts are not summed
			{name: "snapshot ahead", snapshot: 5, raced: 2, want: 5},
			{name: "local ahead", snapshot: 1, raced: 3, want: 3},
			{name: "snapshot read", snapshot: 0, raced: 2, want: 2},
		}

		for _, tc := range tcases {
			t.Run(tc.name, func(t *testing.T) {
				ci := NewConversationIndex()
				ci.Seed([]types.Conversation{dmConv(2, 0)})

				ci.BeginSnapshot()
				for i := 0; i < tc.raced; i++ {
					ci.BumpToFront(2, Patch{Preview: "raced", UpdatedAt: epoch0.Add(time.Minute)})
					ci.IncrementUnread(2)
				}
				ci.Seed([]types.Conversation{dmConv(2, tc.snapshot)})

				c, ok := ci.Get(2)
				require.True(t, ok)
				assert.Equal(t, tc.want, c.UnreadCount)
			})
		}
	})

	t.Run("active conversation reads zero", func(t *testing.T) {
		ci := NewConversationIndex()
		ci.MarkActive(1)
		ci.BeginSnapshot()
		ci.Seed([]types.Conversation{dmConv(1, 4)})
		c, _ := ci.Get(1)
		assert.Equal(t, 0, c.UnreadCount)
	})
}

func TestConversationIndex_Upsert(t *testing.T) {
	ci := NewConversationIndex()
	ci.Seed([]types.Conversation{dmConv(1, 0), dmConv(2, 3)})
	ci.InsertFront(types.Conversation{Id: 5, Chat: types.Chat{Id: 5}, Partial: true})

	group := types.Chat{
		Id:           5,
		Kind:         types.ChatGroup,
		Group:        &types.GroupInfo{Name: "team", OwnerId: 1},
		Participants: []types.Participant{{User: types.User{Id: 1}}},
	}
	ci.Upsert(group)
	c, _ := ci.Get(5)
	assert.False(t, c.Partial, "expected details to complete the stub")
	assert.Equal(t, "team", c.Chat.Title(1))

	renamed := dmConv(2, 0).Chat
	renamed.AvatarUrl = "new.png"
	ci.Upsert(renamed)
	assert.Equal(t, []int64{5, 1, 2}, ids(ci.Snapshot()), "expected update to keep position")
	c, _ = ci.Get(2)
	assert.Equal(t, 3, c.UnreadCount, "expected update to keep unread")

	ci.Upsert(types.Chat{Id: 6, Kind: types.ChatDM})
	assert.Equal(t, int64(6), ci.Snapshot()[0].Id, "expected a new chat at the head")
}

func TestConversationIndex_UpdateUser(t *testing.T) {
	ci := NewConversationIndex()
	ci.Seed([]types.Conversation{dmConv(1, 0), dmConv(2, 0)})

	assert.Equal(t, 2, ci.UpdateUserStatus(1, types.StatusAFK))
	assert.Equal(t, 1, ci.UpdateUser(types.User{Id: 102, Username: "renamed"}))

	c, _ := ci.Get(2)
	assert.Equal(t, "renamed", c.Chat.Title(1))
	assert.Equal(t, types.StatusAFK, c.Chat.Participants[0].User.Status)
}

func TestConversationIndex_SnapshotIsCopy(t *testing.T) {
	ci := NewConversationIndex()
	ci.Seed([]types.Conversation{dmConv(1, 0)})

	snap := ci.Snapshot()
	require.Len(t, snap, 1)
	snap[0].Chat.Participants[0].User.Username = "mutated"
	snap[0].UnreadCount = 9

	c, _ := ci.Get(1)
	assert.Equal(t, "alice", c.Chat.Participants[0].User.Username)
	assert.Equal(t, 0, c.UnreadCount)
}
