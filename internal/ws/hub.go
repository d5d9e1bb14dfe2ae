package ws

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"courtside-chat/internal/identity"
)

// Hub is the registry of live websocket subscriptions: directory
// subscriptions keyed by chat identity and message-stream subscriptions
// keyed by conversation id. Snapshot fanout happens through each session's
// own channels; the hub exists so the service knows what is connected.
type Hub struct {
	mu        sync.RWMutex
	directory map[identity.ChatIdentity]map[*websocket.Conn]ConnInfo
	streams   map[uuid.UUID]map[*websocket.Conn]ConnInfo
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		directory: make(map[identity.ChatIdentity]map[*websocket.Conn]ConnInfo),
		streams:   make(map[uuid.UUID]map[*websocket.Conn]ConnInfo),
	}
}

// AddDirectoryClient registers a directory subscription.
func (h *Hub) AddDirectoryClient(id identity.ChatIdentity, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.directory[id]; !ok {
		h.directory[id] = make(map[*websocket.Conn]ConnInfo)
	}
	h.directory[id][conn] = info
}

// RemoveDirectoryClient removes a directory subscription.
func (h *Hub) RemoveDirectoryClient(id identity.ChatIdentity, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.directory[id]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.directory, id)
		}
	}
}

// AddStreamClient registers a message-stream subscription.
func (h *Hub) AddStreamClient(conversationID uuid.UUID, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.streams[conversationID]; !ok {
		h.streams[conversationID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.streams[conversationID][conn] = info
}

// RemoveStreamClient removes a message-stream subscription.
func (h *Hub) RemoveStreamClient(conversationID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.streams[conversationID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.streams, conversationID)
		}
	}
}

// DirectoryClients reports how many directory subscriptions an identity has.
func (h *Hub) DirectoryClients(id identity.ChatIdentity) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.directory[id])
}

// StreamClients reports how many subscriptions a conversation stream has.
func (h *Hub) StreamClients(conversationID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams[conversationID])
}

// Totals reports the connection counts across all identities and streams.
func (h *Hub) Totals() (directory, streams int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conns := range h.directory {
		directory += len(conns)
	}
	for _, conns := range h.streams {
		streams += len(conns)
	}
	return directory, streams
}
