// Package conversation owns every conversation and is the only writer of
// turns. History is append-only: starting a new conversation retires the
// previous one without touching its turns.
package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"talkback/internal/domain"
	apperrors "talkback/internal/errors"
	"talkback/internal/ids"
	"talkback/internal/ports"
)

// Notifier receives outbound conversation signals.
type Notifier interface {
	ConversationStarted(conversationID string)
	ConversationSelected(conversationID string)
	TurnAppended(conversationID string, turn domain.ConversationTurn)
}

// Option customizes a Store.
type Option func(*Store)

// WithIDs overrides identifier generation.
func WithIDs(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store keeps conversations in memory and writes through to the repository.
type Store struct {
	repo   ports.ConversationRepository
	notify Notifier
	newID  func() string
	now    func() time.Time

	mu            sync.RWMutex
	conversations []*domain.Conversation
	index         map[string]int
	activeID      string
}

// NewStore builds a store. A nil repo keeps history in memory only.
func NewStore(repo ports.ConversationRepository, notify Notifier, opts ...Option) *Store {
	s := &Store{
		repo:   repo,
		notify: notify,
		newID:  ids.New,
		now:    time.Now,
		index:  map[string]int{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load restores history and the active conversation from the repository.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	conversations, err := s.repo.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}
	activeID, err := s.repo.ActiveConversation(ctx)
	if err != nil {
		return fmt.Errorf("load active conversation: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = s.conversations[:0]
	s.index = map[string]int{}
	for i := range conversations {
		conv := clone(conversations[i])
		s.index[conv.ID] = len(s.conversations)
		s.conversations = append(s.conversations, &conv)
	}
	s.activeID = ""
	if _, ok := s.index[activeID]; ok {
		s.activeID = activeID
	}
	return nil
}

// StartNewConversation creates an empty conversation and makes it current.
func (s *Store) StartNewConversation(ctx context.Context) (domain.Conversation, error) {
	s.mu.Lock()
	conv, err := s.startLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return domain.Conversation{}, err
	}
	if s.notify != nil {
		s.notify.ConversationStarted(conv.ID)
	}
	return conv, nil
}

func (s *Store) startLocked(ctx context.Context) (domain.Conversation, error) {
	conv := domain.Conversation{ID: s.newID(), CreatedAt: s.now().UTC()}
	if s.repo != nil {
		if err := s.repo.CreateConversation(ctx, conv); err != nil {
			return domain.Conversation{}, fmt.Errorf("create conversation: %w", err)
		}
		if err := s.repo.SetActiveConversation(ctx, conv.ID); err != nil {
			return domain.Conversation{}, fmt.Errorf("activate conversation: %w", err)
		}
	}
	s.index[conv.ID] = len(s.conversations)
	s.conversations = append(s.conversations, &conv)
	s.activeID = conv.ID
	return clone(conv), nil
}

// AppendTurn adds turn to the active conversation, creating one first when
// none is active. Missing IDs and timestamps are filled in.
func (s *Store) AppendTurn(ctx context.Context, turn domain.ConversationTurn) (domain.ConversationTurn, error) {
	s.mu.Lock()
	started := ""
	if s.activeID == "" {
		conv, err := s.startLocked(ctx)
		if err != nil {
			s.mu.Unlock()
			return domain.ConversationTurn{}, err
		}
		started = conv.ID
	}

	if turn.ID == "" {
		turn.ID = s.newID()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.now().UTC()
	}

	convID := s.activeID
	if s.repo != nil {
		if err := s.repo.AppendTurn(ctx, convID, turn); err != nil {
			s.mu.Unlock()
			return domain.ConversationTurn{}, fmt.Errorf("append turn: %w", err)
		}
	}
	conv := s.conversations[s.index[convID]]
	conv.Turns = append(conv.Turns, turn)
	s.mu.Unlock()

	if s.notify != nil {
		if started != "" {
			s.notify.ConversationStarted(started)
		}
		s.notify.TurnAppended(convID, turn)
	}
	return turn, nil
}

// Active returns a copy of the current conversation, or the zero value.
func (s *Store) Active() domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activeID == "" {
		return domain.Conversation{}
	}
	return clone(*s.conversations[s.index[s.activeID]])
}

// ActiveID returns the current conversation identifier.
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// List returns every conversation in creation order.
func (s *Store) List() []domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, clone(*conv))
	}
	return out
}

// Get returns one conversation.
func (s *Store) Get(id string) (domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return domain.Conversation{}, apperrors.NewNotFound("conversation", id)
	}
	return clone(*s.conversations[i]), nil
}

// Select announces that a conversation was opened for browsing. It does not
// make a retired conversation writable again.
func (s *Store) Select(_ context.Context, id string) (domain.Conversation, error) {
	conv, err := s.Get(id)
	if err != nil {
		return domain.Conversation{}, err
	}
	if s.notify != nil {
		s.notify.ConversationSelected(id)
	}
	return conv, nil
}

func clone(conv domain.Conversation) domain.Conversation {
	turns := make([]domain.ConversationTurn, len(conv.Turns))
	copy(turns, conv.Turns)
	conv.Turns = turns
	return conv
}
