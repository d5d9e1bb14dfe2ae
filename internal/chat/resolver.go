package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"courtside-chat/internal/identity"
	"courtside-chat/internal/models"
	"courtside-chat/internal/observability"
	"courtside-chat/internal/repositories"
)

// Resolver produces display names for message senders without ever blocking
// snapshot delivery. Resolution order: the message's own sender name, the
// conversation's seeded user names, the session cache, then a deterministic
// placeholder while a single deduplicated lookup runs in the background.
//
// The cache is owned by one session: entries are written once per identity
// and the whole cache is dropped on identity switch. A failed lookup pins
// the placeholder for the rest of the session.
type Resolver struct {
	profiles      repositories.ProfileRepository
	epoch         func() int64
	lookupTimeout time.Duration

	mu       sync.Mutex
	cache    map[identity.ChatIdentity]string
	pending  map[identity.ChatIdentity]bool
	inflight singleflight.Group
}

// NewResolver constructs a resolver. epoch supplies the owning session's
// current subscription epoch; results from a stale epoch are discarded.
func NewResolver(profiles repositories.ProfileRepository, epoch func() int64) *Resolver {
	return &Resolver{
		profiles:      profiles,
		epoch:         epoch,
		lookupTimeout: 5 * time.Second,
		cache:         make(map[identity.ChatIdentity]string),
		pending:       make(map[identity.ChatIdentity]bool),
	}
}

// Resolve returns the display name for a message sender. Never empty and
// never blocking: unknown senders get a placeholder now and a notify call
// later if the background lookup lands.
func (r *Resolver) Resolve(conv models.Conversation, senderID identity.ChatIdentity, senderName string, notify func()) string {
	if name := strings.TrimSpace(senderName); name != "" {
		return name
	}
	return r.DisplayName(conv, senderID, notify)
}

// DisplayName resolves an identity without a message-level name, walking the
// remaining tiers.
func (r *Resolver) DisplayName(conv models.Conversation, id identity.ChatIdentity, notify func()) string {
	if name := strings.TrimSpace(conv.UserNames[id]); name != "" {
		return name
	}

	r.mu.Lock()
	if name, ok := r.cache[id]; ok {
		r.mu.Unlock()
		return name
	}
	if !r.pending[id] {
		r.pending[id] = true
		go r.lookup(id, r.epoch(), notify)
	}
	r.mu.Unlock()

	return identity.PlaceholderName(id)
}

// Reset drops the cache and forgets in-flight lookups. Called on identity
// switch; any result still in flight fails the epoch check and is discarded.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.cache = make(map[identity.ChatIdentity]string)
	r.pending = make(map[identity.ChatIdentity]bool)
	r.mu.Unlock()
}

func (r *Resolver) lookup(id identity.ChatIdentity, epochAtLaunch int64, notify func()) {
	ctx, cancel := context.WithTimeout(context.Background(), r.lookupTimeout)
	defer cancel()

	value, err, _ := r.inflight.Do(string(id), func() (interface{}, error) {
		return r.profiles.GetByIdentity(ctx, id)
	})

	name := identity.PlaceholderName(id)
	outcome := "error"
	if err == nil {
		if profile, ok := value.(models.Profile); ok && strings.TrimSpace(profile.DisplayName) != "" {
			name = profile.DisplayName
			outcome = "resolved"
		} else {
			outcome = "not_found"
		}
	} else if errors.Is(err, repositories.ErrProfileNotFound) {
		outcome = "not_found"
	}
	observability.IncNameLookup(outcome)

	r.mu.Lock()
	if r.epoch() != epochAtLaunch {
		// The owning session moved on; do not touch its state.
		delete(r.pending, id)
		r.mu.Unlock()
		return
	}
	r.cache[id] = name
	delete(r.pending, id)
	r.mu.Unlock()

	if notify != nil {
		notify()
	}
}
