package store

import (
	"sync"

	"github.com/google/uuid"

	"courtside-chat/internal/identity"
)

// Change describes a write to the backing store. Subscribers use it only to
// decide relevance; the data itself is always re-read, so a delivered signal
// carries no payload a consumer could render stale.
type Change struct {
	Kind           string
	ConversationID uuid.UUID
	MemberIDs      []identity.ChatIdentity
}

const (
	ChangeConversationCreated = "conversation_created"
	ChangeMessageAppended     = "message_appended"
	ChangeMemberRead          = "member_read"
)

// TouchesMember reports whether the change is relevant to the identity.
func (c Change) TouchesMember(id identity.ChatIdentity) bool {
	for _, m := range c.MemberIDs {
		if m == id {
			return true
		}
	}
	return false
}

// Subscription is a live interest registration. C fires (coalesced) whenever
// a matching change lands; the subscriber re-queries the full state. Close is
// part of the contract: an unclosed subscription leaks a live listener.
type Subscription struct {
	C      <-chan struct{}
	ch     chan struct{}
	cancel func()
	once   sync.Once
}

// Close removes the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

// Feed is the in-process change notifier live subscriptions hang off.
// Delivery is push-based and never blocks a publisher: each subscriber holds
// a single dirty slot, so bursts coalesce instead of queueing.
type Feed struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*feedSub
}

type feedSub struct {
	match func(Change) bool
	ch    chan struct{}
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]*feedSub)}
}

// Subscribe registers interest in changes accepted by match. A nil match
// accepts everything.
func (f *Feed) Subscribe(match func(Change) bool) *Subscription {
	if match == nil {
		match = func(Change) bool { return true }
	}

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	sub := &feedSub{match: match, ch: make(chan struct{}, 1)}
	f.subs[id] = sub
	f.mu.Unlock()

	return &Subscription{
		C:  sub.ch,
		ch: sub.ch,
		cancel: func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		},
	}
}

// Publish signals every matching subscriber. A subscriber that is already
// dirty is skipped; it will re-query anyway.
func (f *Feed) Publish(change Change) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		if !sub.match(change) {
			continue
		}
		select {
		case sub.ch <- struct{}{}:
		default:
		}
	}
}

// SubscriberCount reports active subscriptions, used by tests and metrics.
func (f *Feed) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
