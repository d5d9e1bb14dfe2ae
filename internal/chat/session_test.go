package chat

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"courtside-chat/internal/identity"
	"courtside-chat/internal/mocks"
	"courtside-chat/internal/models"
	"courtside-chat/internal/store"
)

func waitDirectory(t *testing.T, ch <-chan models.DirectorySnapshot, accept func(models.DirectorySnapshot) bool) models.DirectorySnapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				t.Fatal("directory channel closed")
			}
			if accept == nil || accept(snap) {
				return snap
			}
		case <-deadline:
			t.Fatal("timed out waiting for directory snapshot")
		}
	}
}

func waitMessages(t *testing.T, ch <-chan models.MessageSnapshot, accept func(models.MessageSnapshot) bool) models.MessageSnapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				t.Fatal("messages channel closed")
			}
			if accept == nil || accept(snap) {
				return snap
			}
		case <-deadline:
			t.Fatal("timed out waiting for message snapshot")
		}
	}
}

func TestStartDirectoryDeliversAndFollowsChanges(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	svc, feed := newTestService(convRepo, new(mocks.MessageRepositoryMock), new(mocks.ProfileRepositoryMock))

	alice := identity.ToChatIdentity(1)
	conv := models.ConversationSummary{Conversation: models.Conversation{
		ID:        uuid.New(),
		Type:      models.ConversationGroup,
		Name:      "team",
		MemberIDs: []identity.ChatIdentity{alice, identity.ToChatIdentity(2)},
	}}
	convRepo.On("ListForMember", mock.Anything, alice).
		Return([]models.ConversationSummary{conv}, nil)

	session := NewSession(svc, alice, "Alice")
	defer session.Close()
	require.NoError(t, session.StartDirectory())

	snap := waitDirectory(t, session.Directory(), nil)
	require.Len(t, snap.Conversations, 1)
	assert.Equal(t, models.TypeDirectorySnapshot, snap.Type)

	// A relevant change triggers a fresh full delivery.
	feed.Publish(store.Change{
		Kind:           store.ChangeConversationCreated,
		ConversationID: uuid.New(),
		MemberIDs:      []identity.ChatIdentity{alice},
	})
	waitDirectory(t, session.Directory(), func(s models.DirectorySnapshot) bool {
		return len(s.Conversations) == 1
	})
}

func TestSetActiveConversationEmptyThenOrdered(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	svc, _ := newTestService(convRepo, msgRepo, new(mocks.ProfileRepositoryMock))

	alice := identity.ToChatIdentity(1)
	bob := identity.ToChatIdentity(2)
	conv := models.Conversation{
		ID:        uuid.New(),
		Type:      models.ConversationDirect,
		MemberIDs: []identity.ChatIdentity{alice, bob},
	}
	base := time.Now().Truncate(time.Second)
	later := models.Message{ID: uuid.New(), ConversationID: conv.ID, SenderID: bob, SenderName: "Bob", Text: "second", Seq: 2, CreatedAt: base.Add(time.Second)}
	earlier := models.Message{ID: uuid.New(), ConversationID: conv.ID, SenderID: alice, SenderName: "Alice", Text: "first", Seq: 1, CreatedAt: base}

	convRepo.On("GetConversation", mock.Anything, conv.ID).Return(conv, nil)
	convRepo.On("MarkRead", mock.Anything, conv.ID, alice).Return(nil)

	gate := make(chan struct{})
	msgRepo.On("ListByConversation", mock.Anything, conv.ID).
		Run(func(mock.Arguments) { <-gate }).
		Return([]models.Message{later, earlier}, nil)

	session := NewSession(svc, alice, "Alice")
	defer session.Close()
	require.NoError(t, session.SetActiveConversation(context.Background(), conv.ID))

	// While the stream loads, the held list is empty, not the previous
	// conversation's messages.
	empty := waitMessages(t, session.Messages(), nil)
	assert.Empty(t, empty.Messages)
	assert.Equal(t, conv.ID, empty.ConversationID)

	close(gate)
	full := waitMessages(t, session.Messages(), func(s models.MessageSnapshot) bool {
		return len(s.Messages) == 2
	})
	assert.Equal(t, "first", full.Messages[0].Text)
	assert.Equal(t, "second", full.Messages[1].Text)
}

func TestSessionSendTargetsActiveConversation(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	svc, _ := newTestService(convRepo, msgRepo, new(mocks.ProfileRepositoryMock))

	alice := identity.ToChatIdentity(1)
	conv := models.Conversation{
		ID:        uuid.New(),
		Type:      models.ConversationDirect,
		MemberIDs: []identity.ChatIdentity{alice, identity.ToChatIdentity(2)},
	}
	convRepo.On("GetConversation", mock.Anything, conv.ID).Return(conv, nil)
	convRepo.On("MarkRead", mock.Anything, conv.ID, alice).Return(nil)
	msgRepo.On("ListByConversation", mock.Anything, conv.ID).Return([]models.Message{}, nil)
	msgRepo.On("Append", mock.Anything, conv.ID, alice, "Alice", "hi", "").
		Return(models.Message{ID: uuid.New(), ConversationID: conv.ID, SenderID: alice, Text: "hi"}, nil).Once()

	session := NewSession(svc, alice, "Alice")
	defer session.Close()

	_, err := session.Send(context.Background(), "hi")
	require.ErrorIs(t, err, ErrNoActiveConversation)

	require.NoError(t, session.SetActiveConversation(context.Background(), conv.ID))
	msg, err := session.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, msg.ConversationID)
	msgRepo.AssertExpectations(t)
}

func TestSwitchIdentityClearsEverything(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	svc, _ := newTestService(convRepo, msgRepo, new(mocks.ProfileRepositoryMock))

	alice := identity.ToChatIdentity(1)
	bea := identity.ToChatIdentity(9)
	aliceConv := models.Conversation{
		ID:        uuid.New(),
		Type:      models.ConversationDirect,
		MemberIDs: []identity.ChatIdentity{alice, identity.ToChatIdentity(2)},
	}
	beaConv := models.ConversationSummary{Conversation: models.Conversation{
		ID:        uuid.New(),
		Type:      models.ConversationGroup,
		Name:      "bea's team",
		MemberIDs: []identity.ChatIdentity{bea, identity.ToChatIdentity(3)},
	}}

	convRepo.On("ListForMember", mock.Anything, alice).
		Return([]models.ConversationSummary{{Conversation: aliceConv}}, nil)
	convRepo.On("ListForMember", mock.Anything, bea).
		Return([]models.ConversationSummary{beaConv}, nil)
	convRepo.On("GetConversation", mock.Anything, aliceConv.ID).Return(aliceConv, nil)
	convRepo.On("MarkRead", mock.Anything, aliceConv.ID, alice).Return(nil)
	msgRepo.On("ListByConversation", mock.Anything, aliceConv.ID).Return([]models.Message{}, nil)

	session := NewSession(svc, alice, "Alice")
	defer session.Close()
	require.NoError(t, session.StartDirectory())
	require.NoError(t, session.SetActiveConversation(context.Background(), aliceConv.ID))
	waitDirectory(t, session.Directory(), nil)

	require.NoError(t, session.SwitchIdentity(bea, "Bea"))

	assert.Equal(t, bea, session.Identity())
	assert.Equal(t, uuid.Nil, session.ActiveConversation())

	// The held message list is emptied and the directory converges on the
	// new identity's conversations.
	empty := waitMessages(t, session.Messages(), func(s models.MessageSnapshot) bool {
		return s.ConversationID == uuid.Nil
	})
	assert.Empty(t, empty.Messages)
	snap := waitDirectory(t, session.Directory(), func(s models.DirectorySnapshot) bool {
		return len(s.Conversations) == 1 && s.Conversations[0].ID == beaConv.ID
	})
	assert.Equal(t, "bea's team", snap.Conversations[0].Name)
}

func TestSwitchIdentityToEmptyStopsDelivery(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	svc, _ := newTestService(convRepo, new(mocks.MessageRepositoryMock), new(mocks.ProfileRepositoryMock))

	alice := identity.ToChatIdentity(1)
	convRepo.On("ListForMember", mock.Anything, alice).
		Return([]models.ConversationSummary{}, nil)

	session := NewSession(svc, alice, "Alice")
	defer session.Close()
	require.NoError(t, session.StartDirectory())
	waitDirectory(t, session.Directory(), nil)

	require.NoError(t, session.SwitchIdentity("", ""))
	assert.Equal(t, identity.ChatIdentity(""), session.Identity())

	snap := waitDirectory(t, session.Directory(), nil)
	assert.Empty(t, snap.Conversations)
}

func TestCloseIsIdempotentAndClosesChannels(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	svc, feed := newTestService(convRepo, new(mocks.MessageRepositoryMock), new(mocks.ProfileRepositoryMock))

	alice := identity.ToChatIdentity(1)
	convRepo.On("ListForMember", mock.Anything, alice).
		Return([]models.ConversationSummary{}, nil)

	session := NewSession(svc, alice, "Alice")
	require.NoError(t, session.StartDirectory())
	waitDirectory(t, session.Directory(), nil)

	session.Close()
	session.Close()

	for range session.Directory() {
	}
	for range session.Messages() {
	}
	assert.Equal(t, 0, feed.SubscriberCount())
	require.ErrorIs(t, session.StartDirectory(), ErrSessionClosed)
}
