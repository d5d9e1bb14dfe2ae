package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"courtside-chat/internal/chat"
	"courtside-chat/internal/identity"
	"courtside-chat/internal/observability"
	"courtside-chat/internal/repositories"
	"courtside-chat/internal/telemetry"
)

// ConversationHandler manages the conversation directory and factory
// endpoints.
type ConversationHandler struct {
	svc   *chat.Service
	audit *telemetry.AuditEmitter
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(svc *chat.Service, audit *telemetry.AuditEmitter) *ConversationHandler {
	return &ConversationHandler{svc: svc, audit: audit}
}

func (h *ConversationHandler) emitAudit(c *gin.Context, level, text string) {
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

// ListConversations returns the one-shot directory snapshot for the
// authenticated identity, direct and group partitions included.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	self := identity.ToChatIdentity(c.GetInt64("userID"))

	snap, err := h.svc.DirectorySnapshot(c.Request.Context(), self)
	if err != nil {
		if errors.Is(err, chat.ErrNoIdentity) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "no active identity"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	c.JSON(http.StatusOK, snap)
}

// StartDirectChat creates or returns the existing direct conversation
// between the caller and the target user.
func (h *ConversationHandler) StartDirectChat(c *gin.Context) {
	var req struct {
		TargetUserID      int64  `json:"target_user_id" binding:"required"`
		TargetDisplayName string `json:"target_display_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt64("userID")
	conv, err := h.svc.StartDirectChat(c.Request.Context(), userID, c.GetString("displayName"), req.TargetUserID, req.TargetDisplayName)
	if err != nil {
		if errors.Is(err, chat.ErrSelfConversation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
			return
		}
		h.emitAudit(c, "ERROR", "direct chat creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start chat"})
		return
	}

	h.publishConversationEvent(c, "direct_chat_started", conv.ID)
	c.JSON(http.StatusOK, gin.H{"conversation_id": conv.ID})
}

// CreateGroup creates a new group conversation. Always new: repeated calls
// with the same name and members produce distinct groups.
func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	var req struct {
		Name          string           `json:"name" binding:"required"`
		MemberUserIDs []int64          `json:"member_user_ids" binding:"required"`
		MemberNames   map[int64]string `json:"member_names"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt64("userID")
	conv, err := h.svc.CreateGroup(c.Request.Context(), userID, c.GetString("displayName"), req.Name, req.MemberUserIDs, req.MemberNames)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyGroupName),
			errors.Is(err, chat.ErrNoMembers),
			errors.Is(err, chat.ErrGroupTooSmall):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.emitAudit(c, "ERROR", "group creation failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		}
		return
	}

	h.publishConversationEvent(c, "group_created", conv.ID)
	c.JSON(http.StatusCreated, gin.H{"conversation_id": conv.ID})
}

// MarkRead advances the caller's read watermark for a conversation.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	self := identity.ToChatIdentity(c.GetInt64("userID"))
	if err := h.svc.MarkRead(c.Request.Context(), self, conversationID); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, repositories.ErrConversationNotFound):
			status = http.StatusNotFound
		case errors.Is(err, chat.ErrNotMember):
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": "could not mark conversation read"})
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ConversationHandler) publishConversationEvent(c *gin.Context, name string, conversationID uuid.UUID) {
	headers := observability.BuildHeaders(requestIDFromContext(c), "")
	_ = observability.PublishEvent(c.Request.Context(), observability.RoutingConversations, observability.EventEnvelope{
		EventType: "chat_events",
		EventName: name,
		Payload: map[string]interface{}{
			"conversation_id": conversationID,
			"user_id":         c.GetInt64("userID"),
		},
	}, headers)
}
