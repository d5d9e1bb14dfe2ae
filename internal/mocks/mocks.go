package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"courtside-chat/internal/directory"
	"courtside-chat/internal/identity"
	"courtside-chat/internal/models"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) FindDirectByMembers(ctx context.Context, a, b identity.ChatIdentity) (models.Conversation, error) {
	args := m.Called(ctx, a, b)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) CreateDirect(ctx context.Context, a, b identity.ChatIdentity, userNames models.UserNames) (models.Conversation, error) {
	args := m.Called(ctx, a, b, userNames)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) CreateGroup(ctx context.Context, name string, members []identity.ChatIdentity, userNames models.UserNames) (models.Conversation, error) {
	args := m.Called(ctx, name, members, userNames)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) GetConversation(ctx context.Context, id uuid.UUID) (models.Conversation, error) {
	args := m.Called(ctx, id)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) ListForMember(ctx context.Context, member identity.ChatIdentity) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, member)
	var list []models.ConversationSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationSummary)
	}
	return list, args.Error(1)
}

func (m *ConversationRepositoryMock) MarkRead(ctx context.Context, conversationID uuid.UUID, member identity.ChatIdentity) error {
	args := m.Called(ctx, conversationID, member)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Append(ctx context.Context, conversationID uuid.UUID, senderID identity.ChatIdentity, senderName, text, avatar string) (models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, senderName, text, avatar)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	args := m.Called(ctx, conversationID)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

type ProfileRepositoryMock struct {
	mock.Mock
}

func (m *ProfileRepositoryMock) GetByIdentity(ctx context.Context, id identity.ChatIdentity) (models.Profile, error) {
	args := m.Called(ctx, id)
	var profile models.Profile
	if val := args.Get(0); val != nil {
		profile = val.(models.Profile)
	}
	return profile, args.Error(1)
}

func (m *ProfileRepositoryMock) Upsert(ctx context.Context, profile models.Profile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

func (m *ProfileRepositoryMock) EnsureProfile(ctx context.Context, profile models.Profile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

type UserSearcherMock struct {
	mock.Mock
}

func (m *UserSearcherMock) SearchUsers(ctx context.Context, query string) ([]directory.User, error) {
	args := m.Called(ctx, query)
	var users []directory.User
	if val := args.Get(0); val != nil {
		users = val.([]directory.User)
	}
	return users, args.Error(1)
}
