package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"courtside-chat/internal/chat"
	"courtside-chat/internal/identity"
	"courtside-chat/internal/mocks"
	"courtside-chat/internal/models"
	"courtside-chat/internal/repositories"
	"courtside-chat/internal/store"
)

func newHandlerService(convRepo *mocks.ConversationRepositoryMock, msgRepo *mocks.MessageRepositoryMock, profileRepo *mocks.ProfileRepositoryMock) *chat.Service {
	return chat.NewService(convRepo, msgRepo, profileRepo, store.NewFeed())
}

func setupConversationRouter(handler *ConversationHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", int64(1))
		c.Set("displayName", "Alice")
		c.Next()
	})
	r.GET("/conversations", handler.ListConversations)
	r.POST("/conversations/direct", handler.StartDirectChat)
	r.POST("/conversations/group", handler.CreateGroup)
	r.POST("/conversations/:conversation_id/read", handler.MarkRead)
	return r
}

func TestListConversationsSuccess(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	handler := NewConversationHandler(newHandlerService(convRepo, new(mocks.MessageRepositoryMock), new(mocks.ProfileRepositoryMock)), nil)
	router := setupConversationRouter(handler)

	alice := identity.ToChatIdentity(1)
	summary := models.ConversationSummary{Conversation: models.Conversation{
		ID:        uuid.New(),
		Type:      models.ConversationGroup,
		Name:      "team",
		MemberIDs: []identity.ChatIdentity{alice, identity.ToChatIdentity(2)},
	}}
	convRepo.On("ListForMember", mock.Anything, alice).
		Return([]models.ConversationSummary{summary}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.DirectorySnapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Groups, 1)
	convRepo.AssertExpectations(t)
}

func TestListConversationsRepoError(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	handler := NewConversationHandler(newHandlerService(convRepo, new(mocks.MessageRepositoryMock), new(mocks.ProfileRepositoryMock)), nil)
	router := setupConversationRouter(handler)

	convRepo.On("ListForMember", mock.Anything, identity.ToChatIdentity(1)).
		Return(([]models.ConversationSummary)(nil), assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	convRepo.AssertExpectations(t)
}

func TestStartDirectChatSuccess(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	profileRepo := new(mocks.ProfileRepositoryMock)
	handler := NewConversationHandler(newHandlerService(convRepo, new(mocks.MessageRepositoryMock), profileRepo), nil)
	router := setupConversationRouter(handler)

	alice := identity.ToChatIdentity(1)
	bob := identity.ToChatIdentity(2)
	conv := models.Conversation{ID: uuid.New(), Type: models.ConversationDirect, MemberIDs: []identity.ChatIdentity{alice, bob}}

	profileRepo.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	profileRepo.On("EnsureProfile", mock.Anything, mock.Anything).Return(nil)
	convRepo.On("FindDirectByMembers", mock.Anything, alice, bob).
		Return(models.Conversation{}, repositories.ErrConversationNotFound).Once()
	convRepo.On("CreateDirect", mock.Anything, alice, bob, mock.Anything).Return(conv, nil).Once()

	body := bytes.NewBufferString(`{"target_user_id":2,"target_display_name":"Bob"}`)
	req := httptest.NewRequest(http.MethodPost, "/conversations/direct", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, conv.ID.String(), resp["conversation_id"])
	convRepo.AssertExpectations(t)
}

func TestStartDirectChatRejectsSelf(t *testing.T) {
	handler := NewConversationHandler(newHandlerService(new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock), new(mocks.ProfileRepositoryMock)), nil)
	router := setupConversationRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/conversations/direct", bytes.NewBufferString(`{"target_user_id":1}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartDirectChatInvalidBody(t *testing.T) {
	handler := NewConversationHandler(newHandlerService(new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock), new(mocks.ProfileRepositoryMock)), nil)
	router := setupConversationRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/conversations/direct", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateGroupSuccess(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	profileRepo := new(mocks.ProfileRepositoryMock)
	handler := NewConversationHandler(newHandlerService(convRepo, new(mocks.MessageRepositoryMock), profileRepo), nil)
	router := setupConversationRouter(handler)

	members := []identity.ChatIdentity{identity.ToChatIdentity(1), identity.ToChatIdentity(2), identity.ToChatIdentity(3)}
	profileRepo.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	profileRepo.On("EnsureProfile", mock.Anything, mock.Anything).Return(nil)
	convRepo.On("CreateGroup", mock.Anything, "team", members, mock.Anything).
		Return(models.Conversation{ID: uuid.New(), Type: models.ConversationGroup, Name: "team", MemberIDs: members}, nil).Once()

	body := bytes.NewBufferString(`{"name":"team","member_user_ids":[2,3],"member_names":{"2":"Bob","3":"Cara"}}`)
	req := httptest.NewRequest(http.MethodPost, "/conversations/group", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	convRepo.AssertExpectations(t)
}

func TestCreateGroupDegenerateInput(t *testing.T) {
	handler := NewConversationHandler(newHandlerService(new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock), new(mocks.ProfileRepositoryMock)), nil)
	router := setupConversationRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/conversations/group", bytes.NewBufferString(`{"name":"team","member_user_ids":[1]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkReadSuccess(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	handler := NewConversationHandler(newHandlerService(convRepo, new(mocks.MessageRepositoryMock), new(mocks.ProfileRepositoryMock)), nil)
	router := setupConversationRouter(handler)

	alice := identity.ToChatIdentity(1)
	conv := models.Conversation{
		ID:        uuid.New(),
		Type:      models.ConversationDirect,
		MemberIDs: []identity.ChatIdentity{alice, identity.ToChatIdentity(2)},
	}
	convRepo.On("GetConversation", mock.Anything, conv.ID).Return(conv, nil).Once()
	convRepo.On("MarkRead", mock.Anything, conv.ID, alice).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/"+conv.ID.String()+"/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	convRepo.AssertExpectations(t)
}

func TestMarkReadNotMember(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	handler := NewConversationHandler(newHandlerService(convRepo, new(mocks.MessageRepositoryMock), new(mocks.ProfileRepositoryMock)), nil)
	router := setupConversationRouter(handler)

	conv := models.Conversation{
		ID:        uuid.New(),
		Type:      models.ConversationDirect,
		MemberIDs: []identity.ChatIdentity{identity.ToChatIdentity(2), identity.ToChatIdentity(3)},
	}
	convRepo.On("GetConversation", mock.Anything, conv.ID).Return(conv, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/"+conv.ID.String()+"/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	convRepo.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkReadInvalidID(t *testing.T) {
	handler := NewConversationHandler(newHandlerService(new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock), new(mocks.ProfileRepositoryMock)), nil)
	router := setupConversationRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/conversations/abc/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
