package chat

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"courtside-chat/internal/identity"
	"courtside-chat/internal/models"
	"courtside-chat/internal/observability"
	"courtside-chat/internal/store"
)

const snapshotQueryTimeout = 10 * time.Second

// Session is the long-lived controller owning one user's live view: the
// directory subscription, at most one active message stream, and the name
// cache. It is constructed on login and closed on logout; switching identity
// hard-resets everything it holds before any data for the new identity flows.
//
// Snapshots are delivered on single-slot channels with latest-wins semantics:
// a slow consumer only ever skips intermediate snapshots, never sees stale
// ones out of order.
type Session struct {
	svc  *Service
	feed *store.Feed

	// epoch increments on every identity or conversation switch. Work
	// started under an older epoch checks it before publishing anything.
	epoch atomic.Int64

	mu       sync.Mutex
	self     identity.ChatIdentity
	selfName string
	resolver *Resolver
	dirLoop  *liveLoop
	stream   *liveLoop
	streamID uuid.UUID
	closed   bool

	directoryOut chan models.DirectorySnapshot
	messagesOut  chan models.MessageSnapshot
}

// NewSession builds a session for an identity. No subscription is open until
// StartDirectory or SetActiveConversation is called.
func NewSession(svc *Service, self identity.ChatIdentity, selfName string) *Session {
	s := &Session{
		svc:          svc,
		feed:         svc.Feed(),
		self:         self,
		selfName:     selfName,
		directoryOut: make(chan models.DirectorySnapshot, 1),
		messagesOut:  make(chan models.MessageSnapshot, 1),
	}
	s.resolver = NewResolver(svc.profiles, s.epoch.Load)
	return s
}

// Directory delivers directory snapshots. Closed when the session closes.
func (s *Session) Directory() <-chan models.DirectorySnapshot {
	return s.directoryOut
}

// Messages delivers message snapshots for the active conversation.
func (s *Session) Messages() <-chan models.MessageSnapshot {
	return s.messagesOut
}

// Identity returns the session's current identity.
func (s *Session) Identity() identity.ChatIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

// ActiveConversation returns the id of the active stream, or uuid.Nil.
func (s *Session) ActiveConversation() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamID
}

// StartDirectory opens the live directory subscription. The first snapshot
// is delivered immediately; afterwards every relevant store change triggers
// a fresh full delivery. Idempotent while a subscription is live.
func (s *Session) StartDirectory() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.self == "" {
		s.mu.Unlock()
		return ErrNoIdentity
	}
	if s.dirLoop != nil {
		s.mu.Unlock()
		return nil
	}
	self := s.self
	sub := s.feed.Subscribe(func(c store.Change) bool { return c.TouchesMember(self) })
	loop := newLiveLoop(sub)
	s.dirLoop = loop
	epoch := s.epoch.Load()
	s.mu.Unlock()

	go s.runDirectory(loop, epoch, self)
	return nil
}

// SetActiveConversation switches the message stream to one conversation,
// tearing down the previous subscription first. The empty message list
// pushed in between is the correct transient state while the new stream
// loads. Subscribing also advances the member's read watermark.
func (s *Session) SetActiveConversation(ctx context.Context, conversationID uuid.UUID) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	self := s.self
	s.mu.Unlock()
	if self == "" {
		return ErrNoIdentity
	}
	if conversationID == uuid.Nil {
		return ErrNoActiveConversation
	}

	conv, err := s.svc.GetConversation(ctx, self, conversationID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.stream
	s.stream = nil
	s.streamID = uuid.Nil
	s.mu.Unlock()
	epoch := s.epoch.Add(1)
	if old != nil {
		old.halt()
	}
	s.offerMessages(emptyMessageSnapshot(conversationID))

	if err := s.svc.MarkRead(ctx, self, conversationID); err != nil {
		log.Printf("mark read failed for conversation %s: %v", conversationID, err)
	}

	sub := s.feed.Subscribe(func(c store.Change) bool {
		return c.Kind == store.ChangeMessageAppended && c.ConversationID == conversationID
	})
	loop := newLiveLoop(sub)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Close()
		return ErrSessionClosed
	}
	s.stream = loop
	s.streamID = conversationID
	s.mu.Unlock()

	go s.runStream(loop, epoch, self, conv)
	return nil
}

// Send appends a message to the active conversation as the session's
// identity. Rejected when no conversation is active or the text is empty;
// a transport failure surfaces to the caller, never retried here.
func (s *Session) Send(ctx context.Context, text string) (models.Message, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return models.Message{}, ErrSessionClosed
	}
	self, selfName, conversationID := s.self, s.selfName, s.streamID
	s.mu.Unlock()
	return s.svc.SendMessage(ctx, self, selfName, conversationID, text)
}

// ClearActiveConversation tears down the stream subscription and clears the
// held message list.
func (s *Session) ClearActiveConversation() {
	s.epoch.Add(1)
	s.mu.Lock()
	old := s.stream
	s.stream = nil
	s.streamID = uuid.Nil
	s.mu.Unlock()
	if old != nil {
		old.halt()
	}
	s.offerMessages(emptyMessageSnapshot(uuid.Nil))
}

// SwitchIdentity discards every piece of state belonging to the previous
// identity before anything for the new one flows: both subscriptions are
// torn down, the name cache is emptied, in-flight lookups are invalidated,
// and empty snapshots overwrite whatever a consumer might still be holding.
func (s *Session) SwitchIdentity(self identity.ChatIdentity, selfName string) error {
	s.epoch.Add(1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	oldDir := s.dirLoop
	oldStream := s.stream
	s.dirLoop = nil
	s.stream = nil
	s.streamID = uuid.Nil
	s.self = self
	s.selfName = selfName
	s.resolver.Reset()
	s.mu.Unlock()

	if oldStream != nil {
		oldStream.halt()
	}
	if oldDir != nil {
		oldDir.halt()
	}

	s.offerDirectory(models.NewDirectorySnapshot(nil))
	s.offerMessages(emptyMessageSnapshot(uuid.Nil))

	if self == "" {
		return nil
	}
	return s.StartDirectory()
}

// Close tears down both subscriptions and closes the snapshot channels.
// Safe to call more than once.
func (s *Session) Close() {
	s.epoch.Add(1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	oldDir := s.dirLoop
	oldStream := s.stream
	s.dirLoop = nil
	s.stream = nil
	s.streamID = uuid.Nil
	s.mu.Unlock()

	if oldStream != nil {
		oldStream.halt()
	}
	if oldDir != nil {
		oldDir.halt()
	}

	s.mu.Lock()
	close(s.directoryOut)
	close(s.messagesOut)
	s.mu.Unlock()
}

func (s *Session) runDirectory(loop *liveLoop, epoch int64, self identity.ChatIdentity) {
	defer close(loop.done)
	s.pushDirectory(epoch, self)
	for {
		select {
		case <-loop.stop:
			return
		case <-loop.sub.C:
			s.pushDirectory(epoch, self)
		}
	}
}

func (s *Session) pushDirectory(epoch int64, self identity.ChatIdentity) {
	if s.epoch.Load() != epoch {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), snapshotQueryTimeout)
	defer cancel()

	snap, err := s.svc.DirectorySnapshot(ctx, self)
	if err != nil {
		log.Printf("directory snapshot failed for %s: %v", self, err)
		return
	}
	if s.epoch.Load() != epoch {
		return
	}
	s.offerDirectory(snap)
	observability.IncSnapshotPushed("directory")
}

func (s *Session) runStream(loop *liveLoop, epoch int64, self identity.ChatIdentity, conv models.Conversation) {
	defer close(loop.done)
	notify := func() {
		select {
		case loop.poke <- struct{}{}:
		default:
		}
	}
	s.pushMessages(epoch, self, conv, notify)
	for {
		select {
		case <-loop.stop:
			return
		case <-loop.sub.C:
			s.pushMessages(epoch, self, conv, notify)
		case <-loop.poke:
			s.pushMessages(epoch, self, conv, notify)
		}
	}
}

func (s *Session) pushMessages(epoch int64, self identity.ChatIdentity, conv models.Conversation, notify func()) {
	if s.epoch.Load() != epoch {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), snapshotQueryTimeout)
	defer cancel()

	_, msgs, err := s.svc.ListMessages(ctx, self, conv.ID)
	if err != nil {
		log.Printf("message snapshot failed for conversation %s: %v", conv.ID, err)
		return
	}

	views := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, models.MessageView{
			Message:    m,
			SenderName: s.resolver.Resolve(conv, m.SenderID, m.SenderName, notify),
		})
	}

	if s.epoch.Load() != epoch {
		return
	}
	s.offerMessages(models.MessageSnapshot{
		Type:           models.TypeMessageSnapshot,
		ConversationID: conv.ID,
		Messages:       views,
	})
	observability.IncSnapshotPushed("stream")
}

// offerDirectory replaces the pending directory snapshot, latest wins.
func (s *Session) offerDirectory(snap models.DirectorySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.directoryOut <- snap:
			return
		default:
			select {
			case <-s.directoryOut:
			default:
			}
		}
	}
}

func (s *Session) offerMessages(snap models.MessageSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.messagesOut <- snap:
			return
		default:
			select {
			case <-s.messagesOut:
			default:
			}
		}
	}
}

func emptyMessageSnapshot(conversationID uuid.UUID) models.MessageSnapshot {
	return models.MessageSnapshot{
		Type:           models.TypeMessageSnapshot,
		ConversationID: conversationID,
		Messages:       []models.MessageView{},
	}
}

// liveLoop pairs a feed subscription with the channels that stop its
// goroutine and, for streams, re-trigger a push when a name resolves.
type liveLoop struct {
	sub  *store.Subscription
	poke chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newLiveLoop(sub *store.Subscription) *liveLoop {
	return &liveLoop{
		sub:  sub,
		poke: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// halt stops the loop and waits for it to exit. Callers take ownership of
// the loop before halting, so halt runs at most once per loop.
func (l *liveLoop) halt() {
	close(l.stop)
	l.sub.Close()
	<-l.done
}
