package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"courtside-chat/internal/chat"
	"courtside-chat/internal/identity"
	"courtside-chat/internal/models"
	"courtside-chat/internal/observability"
	"courtside-chat/internal/repositories"
	"courtside-chat/internal/telemetry"
)

// MessageHandler manages one-shot message endpoints. Live delivery runs over
// the websocket subscriptions; these endpoints serve initial loads and sends.
type MessageHandler struct {
	svc      *chat.Service
	profiles repositories.ProfileRepository
	audit    *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(svc *chat.Service, profiles repositories.ProfileRepository, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{svc: svc, profiles: profiles, audit: audit}
}

// GetMessages returns the full ordered message list of a conversation the
// caller belongs to, sender names resolved.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	self := identity.ToChatIdentity(c.GetInt64("userID"))
	conv, msgs, err := h.svc.ListMessages(c.Request.Context(), self, conversationID)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, repositories.ErrConversationNotFound):
			status = http.StatusNotFound
		case errors.Is(err, chat.ErrNotMember):
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": "failed to load messages"})
		return
	}

	// Resolve sender names once per distinct sender: message-level name
	// first, then the conversation's seeded names, then the profile store,
	// placeholder last.
	names := map[identity.ChatIdentity]string{}
	views := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		name := m.SenderName
		if name == "" {
			name = conv.UserNames[m.SenderID]
		}
		if name == "" {
			if cached, ok := names[m.SenderID]; ok {
				name = cached
			} else {
				name = identity.PlaceholderName(m.SenderID)
				if profile, err := h.profiles.GetByIdentity(c.Request.Context(), m.SenderID); err == nil && profile.DisplayName != "" {
					name = profile.DisplayName
				}
				names[m.SenderID] = name
			}
		}
		views = append(views, models.MessageView{Message: m, SenderName: name})
	}

	c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID, "messages": views})
}

// PostMessage appends a message and lets the change feed push the new
// snapshot to live subscribers. A transport failure surfaces here; nothing
// retries on the caller's behalf.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	self := identity.ToChatIdentity(c.GetInt64("userID"))
	msg, err := h.svc.SendMessage(c.Request.Context(), self, c.GetString("displayName"), conversationID, req.Text)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrNoActiveConversation):
			status = http.StatusBadRequest
		case errors.Is(err, chat.ErrNotMember):
			status = http.StatusForbidden
		case errors.Is(err, repositories.ErrConversationNotFound):
			status = http.StatusNotFound
		default:
			h.audit.Emit(c.Request.Context(), "ERROR", "message send failed", requestIDFromContext(c), userIDFromContext(c))
		}
		c.JSON(status, gin.H{"error": "could not send message"})
		return
	}

	headers := observability.BuildHeaders(requestIDFromContext(c), "")
	_ = observability.PublishEvent(c.Request.Context(), observability.RoutingMessages, observability.EventEnvelope{
		EventType: "chat_events",
		EventName: "message_sent",
		Payload: map[string]interface{}{
			"conversation_id": conversationID,
			"message_id":      msg.ID,
			"sender_id":       msg.SenderID,
		},
	}, headers)

	c.JSON(http.StatusCreated, msg)
}
