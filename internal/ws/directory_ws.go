package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"courtside-chat/internal/chat"
	"courtside-chat/internal/identity"
	"courtside-chat/internal/middleware"
	"courtside-chat/internal/observability"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// DirectoryWebSocketHandler serves live directory subscriptions: on connect
// the full membership-filtered conversation set is pushed, then re-pushed on
// every relevant store change.
type DirectoryWebSocketHandler struct {
	svc       *chat.Service
	hub       *Hub
	jwtSecret string
}

// NewDirectoryWebSocketHandler constructs a DirectoryWebSocketHandler.
func NewDirectoryWebSocketHandler(svc *chat.Service, hub *Hub, jwtSecret string) *DirectoryWebSocketHandler {
	return &DirectoryWebSocketHandler{svc: svc, hub: hub, jwtSecret: jwtSecret}
}

// Handle upgrades the connection and runs the subscription until the client
// goes away.
func (h *DirectoryWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("courtside-chat/ws").Start(c.Request.Context(), "ws.directory.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	claims, err := middleware.ParseToken(h.jwtSecret, bearerToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	self := identity.ToChatIdentity(claims.UserID)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	session := chat.NewSession(h.svc, self, claims.DisplayName)
	if err := session.StartDirectory(); err != nil {
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
	h.hub.AddDirectoryClient(self, conn, info)
	observability.IncWSActive("directory")
	publishWSEvent(ctx, "directory", string(self), "ws_connect", "", info, h.hub.DirectoryClients(self))

	// Writer: each received snapshot is the complete current set.
	go func() {
		for snap := range session.Directory() {
			if err := conn.WriteJSON(snap); err != nil {
				conn.Close()
				return
			}
		}
	}()

	// Reader: directory subscriptions are one-way; frames are drained until
	// the peer closes, then everything tears down.
	go func() {
		var closeReason string
		defer func() {
			session.Close()
			h.hub.RemoveDirectoryClient(self, conn)
			observability.DecWSActive("directory")
			publishWSEvent(ctx, "directory", string(self), "ws_disconnect", closeReason, info, h.hub.DirectoryClients(self))
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					publishWSEvent(ctx, "directory", string(self), "ws_error", closeReason, info, h.hub.DirectoryClients(self))
				}
				return
			}
		}
	}()
}
