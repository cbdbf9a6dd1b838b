package rest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/npezzotti/chatsync/internal/types"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) Conversations(ctx context.Context, self types.User) ([]types.Conversation, error) {
	args := m.Called(ctx, self)
	if convs, ok := args.Get(0).([]types.Conversation); ok {
		return convs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockClient) Chat(ctx context.Context, id int64) (types.Chat, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(types.Chat), args.Error(1)
}
func (m *MockClient) History(ctx context.Context, conversationId int64) ([]types.Message, error) {
	args := m.Called(ctx, conversationId)
	if msgs, ok := args.Get(0).([]types.Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockClient) MarkRead(ctx context.Context, conversationId int64) error {
	args := m.Called(ctx, conversationId)
	return args.Error(0)
}
func (m *MockClient) Hide(ctx context.Context, conversationId int64) error {
	args := m.Called(ctx, conversationId)
	return args.Error(0)
}
func (m *MockClient) DeleteMessage(ctx context.Context, messageId int64) error {
	args := m.Called(ctx, messageId)
	return args.Error(0)
}
func (m *MockClient) CreateDM(ctx context.Context, partnerUsername string) (types.Chat, error) {
	args := m.Called(ctx, partnerUsername)
	return args.Get(0).(types.Chat), args.Error(1)
}
func (m *MockClient) CreateGroup(ctx context.Context, name string, participants []string) (types.Chat, error) {
	args := m.Called(ctx, name, participants)
	return args.Get(0).(types.Chat), args.Error(1)
}
func (m *MockClient) JoinGroup(ctx context.Context, inviteCode string) (types.Chat, error) {
	args := m.Called(ctx, inviteCode)
	return args.Get(0).(types.Chat), args.Error(1)
}
func (m *MockClient) UpdateGroup(ctx context.Context, chatId int64, settings GroupSettings) (types.Chat, error) {
	args := m.Called(ctx, chatId, settings)
	return args.Get(0).(types.Chat), args.Error(1)
}
func (m *MockClient) UpdateProfile(ctx context.Context, p ProfileUpdate) (types.User, string, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(types.User), args.String(1), args.Error(2)
}
