package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// ChatIdentity is the opaque key identifying a user inside the messaging
// subsystem. It is derived from the application user id and never used
// outside chat-related storage and transport.
type ChatIdentity string

const appPrefix = "uid-"

// ToChatIdentity derives the chat identity for an application user id.
// The mapping is pure and injective: distinct user ids never collide.
func ToChatIdentity(appUserID int64) ChatIdentity {
	return ChatIdentity(appPrefix + strconv.FormatInt(appUserID, 10))
}

// FromChatIdentity inverts ToChatIdentity. The second return value is false
// for identities that are not application-backed.
func FromChatIdentity(id ChatIdentity) (int64, bool) {
	raw, ok := strings.CutPrefix(string(id), appPrefix)
	if !ok {
		return 0, false
	}
	appUserID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return appUserID, true
}

// PlaceholderName returns a deterministic, non-empty display name for an
// identity whose real name is not yet known. App-backed identities render as
// a numbered user; anything else gets a short stable suffix so two unknown
// identities stay distinguishable.
func PlaceholderName(id ChatIdentity) string {
	if appUserID, ok := FromChatIdentity(id); ok {
		return fmt.Sprintf("User %d", appUserID)
	}
	sum := sha256.Sum256([]byte(id))
	return "User " + hex.EncodeToString(sum[:3])
}
