package models

import "courtside-chat/internal/identity"

// Profile is the point-lookup document the name resolver reads.
type Profile struct {
	Identity    identity.ChatIdentity `db:"identity" json:"identity"`
	DisplayName string                `db:"display_name" json:"display_name"`
	Avatar      string                `db:"avatar" json:"avatar,omitempty"`
}
