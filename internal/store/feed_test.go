package store

import (
	"testing"

	"github.com/google/uuid"

	"courtside-chat/internal/identity"
)

func TestSubscribeAndPublish(t *testing.T) {
	feed := NewFeed()
	sub := feed.Subscribe(nil)
	defer sub.Close()

	feed.Publish(Change{Kind: ChangeMessageAppended})

	select {
	case <-sub.C:
	default:
		t.Fatalf("expected dirty signal")
	}
}

func TestPublishCoalesces(t *testing.T) {
	feed := NewFeed()
	sub := feed.Subscribe(nil)
	defer sub.Close()

	for i := 0; i < 10; i++ {
		feed.Publish(Change{Kind: ChangeMessageAppended})
	}

	<-sub.C
	select {
	case <-sub.C:
		t.Fatalf("expected a single coalesced signal")
	default:
	}
}

func TestMatchFilters(t *testing.T) {
	feed := NewFeed()
	me := identity.ToChatIdentity(1)
	sub := feed.Subscribe(func(c Change) bool { return c.TouchesMember(me) })
	defer sub.Close()

	feed.Publish(Change{
		Kind:      ChangeConversationCreated,
		MemberIDs: []identity.ChatIdentity{identity.ToChatIdentity(2), identity.ToChatIdentity(3)},
	})
	select {
	case <-sub.C:
		t.Fatalf("change for other members must not signal")
	default:
	}

	feed.Publish(Change{
		Kind:           ChangeMessageAppended,
		ConversationID: uuid.New(),
		MemberIDs:      []identity.ChatIdentity{me, identity.ToChatIdentity(2)},
	})
	select {
	case <-sub.C:
	default:
		t.Fatalf("expected dirty signal for own change")
	}
}

func TestCloseRemovesSubscriber(t *testing.T) {
	feed := NewFeed()
	sub := feed.Subscribe(nil)
	if feed.SubscriberCount() != 1 {
		t.Fatalf("expected one subscriber")
	}

	sub.Close()
	sub.Close() // idempotent
	if feed.SubscriberCount() != 0 {
		t.Fatalf("expected subscriber to be removed")
	}

	feed.Publish(Change{Kind: ChangeMessageAppended})
	select {
	case <-sub.C:
		t.Fatalf("closed subscription must not receive signals")
	default:
	}
}
