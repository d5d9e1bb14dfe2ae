package chat

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"courtside-chat/internal/identity"
	"courtside-chat/internal/models"
	"courtside-chat/internal/observability"
	"courtside-chat/internal/repositories"
	"courtside-chat/internal/store"
)

// Service implements the conversation factory and the send/query operations
// the presentation layer calls. Writes signal the change feed so live
// subscriptions re-deliver their snapshots.
type Service struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	profiles      repositories.ProfileRepository
	feed          *store.Feed
}

// NewService wires the service.
func NewService(conversations repositories.ConversationRepository, messages repositories.MessageRepository, profiles repositories.ProfileRepository, feed *store.Feed) *Service {
	return &Service{
		conversations: conversations,
		messages:      messages,
		profiles:      profiles,
		feed:          feed,
	}
}

// Feed exposes the change feed for session subscriptions.
func (s *Service) Feed() *store.Feed {
	return s.feed
}

// StartDirectChat returns the direct conversation between the caller and the
// target, creating it only when absent. Repeated calls with the same pair
// converge on one conversation.
func (s *Service) StartDirectChat(ctx context.Context, selfAppUserID int64, selfName string, targetAppUserID int64, targetName string) (models.Conversation, error) {
	if selfAppUserID == targetAppUserID {
		return models.Conversation{}, ErrSelfConversation
	}

	self := identity.ToChatIdentity(selfAppUserID)
	target := identity.ToChatIdentity(targetAppUserID)

	// selfName comes from the caller's own authenticated claims and may
	// refresh the global profile. targetName is hearsay: it only fills an
	// absent profile and otherwise stays conversation-scoped in UserNames.
	s.seedSelfProfile(ctx, self, selfName)
	s.ensureProfile(ctx, target, targetName)

	conv, err := s.conversations.FindDirectByMembers(ctx, self, target)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, repositories.ErrConversationNotFound) {
		return models.Conversation{}, err
	}

	userNames := models.UserNames{}
	if name := strings.TrimSpace(selfName); name != "" {
		userNames[self] = name
	}
	if name := strings.TrimSpace(targetName); name != "" {
		userNames[target] = name
	}

	conv, err = s.conversations.CreateDirect(ctx, self, target, userNames)
	if err != nil {
		// A concurrent call may have created the pair first; the unique
		// member-pair index turns that race into a conflict we resolve by
		// re-reading.
		if isUniqueViolation(err) {
			return s.conversations.FindDirectByMembers(ctx, self, target)
		}
		return models.Conversation{}, err
	}

	observability.IncConversationCreated(string(models.ConversationDirect))
	s.feed.Publish(store.Change{
		Kind:           store.ChangeConversationCreated,
		ConversationID: conv.ID,
		MemberIDs:      conv.MemberIDs,
	})
	return conv, nil
}

// CreateGroup always creates a new group conversation. The caller is unioned
// into the membership and duplicates collapse; identical name and membership
// still yield a distinct group.
func (s *Service) CreateGroup(ctx context.Context, selfAppUserID int64, selfName, groupName string, memberAppUserIDs []int64, memberNames map[int64]string) (models.Conversation, error) {
	groupName = strings.TrimSpace(groupName)
	if groupName == "" {
		return models.Conversation{}, ErrEmptyGroupName
	}
	if len(memberAppUserIDs) == 0 {
		return models.Conversation{}, ErrNoMembers
	}

	self := identity.ToChatIdentity(selfAppUserID)
	members := []identity.ChatIdentity{self}
	seen := map[identity.ChatIdentity]bool{self: true}
	userNames := models.UserNames{}
	if name := strings.TrimSpace(selfName); name != "" {
		userNames[self] = name
		s.seedSelfProfile(ctx, self, name)
	}
	for _, appUserID := range memberAppUserIDs {
		member := identity.ToChatIdentity(appUserID)
		if seen[member] {
			continue
		}
		seen[member] = true
		members = append(members, member)
		if name := strings.TrimSpace(memberNames[appUserID]); name != "" {
			userNames[member] = name
			s.ensureProfile(ctx, member, name)
		}
	}

	if len(members) < 2 {
		return models.Conversation{}, ErrGroupTooSmall
	}

	conv, err := s.conversations.CreateGroup(ctx, groupName, members, userNames)
	if err != nil {
		return models.Conversation{}, err
	}

	observability.IncConversationCreated(string(models.ConversationGroup))
	s.feed.Publish(store.Change{
		Kind:           store.ChangeConversationCreated,
		ConversationID: conv.ID,
		MemberIDs:      conv.MemberIDs,
	})
	return conv, nil
}

// SendMessage appends a message to the conversation. Text is trimmed;
// empty text and a zero conversation id are rejected before any write.
// No retry on failure: the error surfaces to the caller.
func (s *Service) SendMessage(ctx context.Context, sender identity.ChatIdentity, senderName string, conversationID uuid.UUID, text string) (models.Message, error) {
	if sender == "" {
		return models.Message{}, ErrNoIdentity
	}
	if conversationID == uuid.Nil {
		return models.Message{}, ErrNoActiveConversation
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, ErrEmptyMessage
	}

	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return models.Message{}, err
	}
	if !conv.HasMember(sender) {
		return models.Message{}, ErrNotMember
	}

	msg, err := s.messages.Append(ctx, conversationID, sender, strings.TrimSpace(senderName), text, "")
	if err != nil {
		return models.Message{}, err
	}

	observability.IncMessageSent()
	s.feed.Publish(store.Change{
		Kind:           store.ChangeMessageAppended,
		ConversationID: conversationID,
		MemberIDs:      conv.MemberIDs,
	})
	return msg, nil
}

// GetConversation fetches a conversation, erroring when the identity is not
// a member. Used by transports to gate subscriptions.
func (s *Service) GetConversation(ctx context.Context, member identity.ChatIdentity, conversationID uuid.UUID) (models.Conversation, error) {
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	if !conv.HasMember(member) {
		return models.Conversation{}, ErrNotMember
	}
	return conv, nil
}

// ListMessages returns the full ordered message list of a conversation the
// member belongs to.
func (s *Service) ListMessages(ctx context.Context, member identity.ChatIdentity, conversationID uuid.UUID) (models.Conversation, []models.Message, error) {
	conv, err := s.GetConversation(ctx, member, conversationID)
	if err != nil {
		return models.Conversation{}, nil, err
	}
	msgs, err := s.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, nil, err
	}
	models.SortMessages(msgs)
	return conv, msgs, nil
}

// MarkRead advances the member's read watermark and signals the feed so the
// member's directory snapshot refreshes its unread counts.
func (s *Service) MarkRead(ctx context.Context, member identity.ChatIdentity, conversationID uuid.UUID) error {
	if _, err := s.GetConversation(ctx, member, conversationID); err != nil {
		return err
	}
	if err := s.conversations.MarkRead(ctx, conversationID, member); err != nil {
		return err
	}
	s.feed.Publish(store.Change{
		Kind:           store.ChangeMemberRead,
		ConversationID: conversationID,
		MemberIDs:      []identity.ChatIdentity{member},
	})
	return nil
}

// DirectorySnapshot builds the complete membership-filtered directory view
// for an identity, display names resolved synchronously: seeded user names
// first, then the profile store, then the deterministic placeholder.
func (s *Service) DirectorySnapshot(ctx context.Context, self identity.ChatIdentity) (models.DirectorySnapshot, error) {
	if self == "" {
		return models.DirectorySnapshot{}, ErrNoIdentity
	}
	convs, err := s.conversations.ListForMember(ctx, self)
	if err != nil {
		return models.DirectorySnapshot{}, err
	}
	convs = models.FilterByMember(convs, self)

	names := map[identity.ChatIdentity]string{}
	for i := range convs {
		conv := &convs[i]
		if conv.Conversation.Type == models.ConversationGroup {
			conv.DisplayName = conv.Name
			continue
		}
		other, ok := conv.OtherMember(self)
		if !ok {
			conv.DisplayName = identity.PlaceholderName(self)
			continue
		}
		if name := conv.UserNames[other]; name != "" {
			conv.DisplayName = name
			continue
		}
		if name, ok := names[other]; ok {
			conv.DisplayName = name
			continue
		}
		name := identity.PlaceholderName(other)
		if profile, err := s.profiles.GetByIdentity(ctx, other); err == nil && profile.DisplayName != "" {
			name = profile.DisplayName
		}
		names[other] = name
		conv.DisplayName = name
	}

	return models.NewDirectorySnapshot(convs), nil
}

// seedSelfProfile refreshes the caller's own profile from their
// authenticated display name. Best effort: a failed seed never blocks the
// operation that triggered it.
func (s *Service) seedSelfProfile(ctx context.Context, id identity.ChatIdentity, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if err := s.profiles.Upsert(ctx, models.Profile{Identity: id, DisplayName: name}); err != nil {
		log.Printf("profile seed failed for %s: %v", id, err)
	}
}

// ensureProfile records a caller-supplied name for another identity, but
// only when that identity has no profile yet. It never overwrites.
func (s *Service) ensureProfile(ctx context.Context, id identity.ChatIdentity, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if err := s.profiles.EnsureProfile(ctx, models.Profile{Identity: id, DisplayName: name}); err != nil {
		log.Printf("profile seed failed for %s: %v", id, err)
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
