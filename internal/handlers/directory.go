package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"courtside-chat/internal/directory"
)

// UserSearcher is the slice of the external user directory the picker
// endpoints need.
type UserSearcher interface {
	SearchUsers(ctx context.Context, query string) ([]directory.User, error)
}

// DirectoryHandler proxies the external user-directory search used by the
// start-chat and create-group pickers.
type DirectoryHandler struct {
	users UserSearcher
}

// NewDirectoryHandler builds a DirectoryHandler.
func NewDirectoryHandler(users UserSearcher) *DirectoryHandler {
	return &DirectoryHandler{users: users}
}

// SearchUsers returns directory entries matching the q parameter.
func (h *DirectoryHandler) SearchUsers(c *gin.Context) {
	users, err := h.users.SearchUsers(c.Request.Context(), c.Query("q"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to search user directory"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}
