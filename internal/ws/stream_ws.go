package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"courtside-chat/internal/chat"
	"courtside-chat/internal/identity"
	"courtside-chat/internal/middleware"
	"courtside-chat/internal/observability"
	"courtside-chat/internal/repositories"
)

// StreamWebSocketHandler serves the live message stream of one conversation.
// Each push is the full ordered message list; inbound frames may carry sends.
type StreamWebSocketHandler struct {
	svc       *chat.Service
	hub       *Hub
	jwtSecret string
}

// NewStreamWebSocketHandler constructs a StreamWebSocketHandler.
func NewStreamWebSocketHandler(svc *chat.Service, hub *Hub, jwtSecret string) *StreamWebSocketHandler {
	return &StreamWebSocketHandler{svc: svc, hub: hub, jwtSecret: jwtSecret}
}

type inboundFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// wsWriter serializes writes to one connection. Gorilla connections support
// only a single concurrent writer, and both the snapshot pusher and the read
// loop need to write frames.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) WriteJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

// Handle upgrades the connection, validates membership, and runs the stream
// subscription until the client goes away.
func (h *StreamWebSocketHandler) Handle(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	ctx, span := otel.Tracer("courtside-chat/ws").Start(c.Request.Context(), "ws.stream.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	claims, err := middleware.ParseToken(h.jwtSecret, bearerToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	self := identity.ToChatIdentity(claims.UserID)

	if _, err := h.svc.GetConversation(ctx, self, conversationID); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, repositories.ErrConversationNotFound):
			status = http.StatusNotFound
		case errors.Is(err, chat.ErrNotMember):
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": "not authorized for conversation"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	session := chat.NewSession(h.svc, self, claims.DisplayName)
	if err := session.SetActiveConversation(ctx, conversationID); err != nil {
		conn.Close()
		return
	}

	meta := observability.ClientMetaFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      claims.UserID,
		DeviceID:    meta.DeviceID,
		IP:          meta.IP,
		RequestID:   meta.RequestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.AddStreamClient(conversationID, conn, info)
	observability.IncWSActive("stream")
	publishWSEvent(ctx, "stream", conversationID.String(), "ws_connect", "", info, h.hub.StreamClients(conversationID))

	writer := &wsWriter{conn: conn}

	go func() {
		for snap := range session.Messages() {
			if err := writer.WriteJSON(snap); err != nil {
				conn.Close()
				return
			}
		}
	}()

	go func() {
		var closeReason string
		defer func() {
			session.Close()
			h.hub.RemoveStreamClient(conversationID, conn)
			observability.DecWSActive("stream")
			publishWSEvent(ctx, "stream", conversationID.String(), "ws_disconnect", closeReason, info, h.hub.StreamClients(conversationID))
			conn.Close()
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					publishWSEvent(ctx, "stream", conversationID.String(), "ws_error", closeReason, info, h.hub.StreamClients(conversationID))
				}
				return
			}

			var frame inboundFrame
			if err := json.Unmarshal(data, &frame); err != nil || frame.Type != "send" {
				continue
			}
			// The snapshot push acknowledges accepted sends; a rejected send
			// gets an error frame so the client is not left waiting on a
			// snapshot that will never come.
			sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_, sendErr := session.Send(sendCtx, frame.Text)
			cancel()
			if sendErr != nil {
				log.Printf("ws send rejected on conversation %s: %v", conversationID, sendErr)
				publishWSEvent(ctx, "stream", conversationID.String(), "ws_send_rejected", sendErr.Error(), info, h.hub.StreamClients(conversationID))
				if werr := writer.WriteJSON(errorFrame{Type: "error", Error: sendErr.Error()}); werr != nil {
					closeReason = werr.Error()
					return
				}
			}
		}
	}()
}
