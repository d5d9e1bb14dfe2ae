package chat

import "errors"

var (
	ErrNoIdentity           = errors.New("no active identity")
	ErrSelfConversation     = errors.New("cannot start a conversation with yourself")
	ErrEmptyGroupName       = errors.New("group name is required")
	ErrNoMembers            = errors.New("at least one member is required")
	ErrGroupTooSmall        = errors.New("a group needs at least two distinct members")
	ErrEmptyMessage         = errors.New("message text is empty")
	ErrNoActiveConversation = errors.New("no active conversation")
	ErrNotMember            = errors.New("not a conversation member")
	ErrSessionClosed        = errors.New("session closed")
)
