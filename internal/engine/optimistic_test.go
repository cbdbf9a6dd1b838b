package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/npezzotti/chatsync/internal/types"
)

func TestOptimisticSendCoordinator_Begin(t *testing.T) {
	self := types.User{Id: 1, Username: "alice"}

	t.Run("chat protocol", func(t *testing.T) {
		o := NewOptimisticSendCoordinator(types.ProtocolChat)
		m, err := o.Begin(self, 2, "hi", epoch0)
		require.NoError(t, err)
		assert.Equal(t, int64(-1), m.Id)
		assert.True(t, m.IsPlaceholder())
		assert.Equal(t, int64(2), m.ChatId)
		assert.Equal(t, int64(2), m.ConversationId(self.Id))
		assert.Equal(t, "alice", m.Sender.Username)
		assert.Equal(t, epoch0, m.CreatedAt)
	})

	t.Run("direct protocol", func(t *testing.T) {
		o := NewOptimisticSendCoordinator(types.ProtocolDirect)
		m, err := o.Begin(self, 3, "hi", epoch0)
		require.NoError(t, err)
		assert.Zero(t, m.ChatId)
		assert.Equal(t, int64(3), m.ConversationId(self.Id))
	})

	t.Run("ids are never reused", func(t *testing.T) {
		o := NewOptimisticSendCoordinator(types.ProtocolChat)
		seen := map[int64]bool{}
		for i := 0; i < 5; i++ {
			m, err := o.Begin(self, 2, "x", epoch0)
			require.NoError(t, err)
			assert.False(t, seen[m.Id], "expected a fresh id")
			seen[m.Id] = true
			if i == 2 {
				o.Reset()
			}
		}
		m, _ := o.Begin(self, 2, "x", epoch0)
		assert.Equal(t, int64(-6), m.Id)
	})

	t.Run("empty content", func(t *testing.T) {
		o := NewOptimisticSendCoordinator(types.ProtocolChat)
		for _, content := range []string{"", "   ", "\n\t"} {
			_, err := o.Begin(self, 2, content, epoch0)
			assert.ErrorIs(t, err, ErrEmptyMessage)
		}
		assert.Equal(t, 0, o.Pending())
	})
}

func TestOptimisticSendCoordinator_Pending(t *testing.T) {
	self := types.User{Id: 1}
	o := NewOptimisticSendCoordinator(types.ProtocolChat)

	a, _ := o.Begin(self, 2, "a", epoch0)
	b, _ := o.Begin(self, 2, "b", epoch0.Add(time.Second))
	c, _ := o.Begin(self, 3, "c", epoch0)
	assert.Equal(t, 3, o.Pending())

	pending := o.PendingFor(2)
	assert.Equal(t, []int64{a.Id, b.Id}, msgIds(pending), "expected send order")

	_, ok := o.Confirm(a.Id)
	assert.True(t, ok)
	_, ok = o.Confirm(a.Id)
	assert.False(t, ok, "expected a token to confirm once")

	assert.Equal(t, 1, o.Collect(2), "expected other conversations to be collected")
	_, ok = o.Confirm(c.Id)
	assert.False(t, ok)

	o.Abort(b.Id)
	assert.Equal(t, 0, o.Pending())
}
