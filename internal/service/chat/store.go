package chat

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
)

var (
	ErrDuplicateMessage = errors.New("message id already exists")
	ErrMessageNotFound  = errors.New("message not found")
)

// Store is the ordered, append-only transcript of the conversation.
//
// The transcript grows without bound for the lifetime of the process; there
// is no eviction because a conversation lives only as long as the session.
type Store struct {
	mu       sync.RWMutex
	messages []chat.Message
	index    map[string]int
}

// NewStore returns an empty transcript.
func NewStore() *Store {
	return &Store{
		messages: make([]chat.Message, 0, 16),
		index:    make(map[string]int),
	}
}

// Append validates msg and adds it to the end of the transcript, returning the
// full ordered sequence. A timestamp earlier than the last stored one is
// raised to it so insertion order and chronological order never disagree.
func (s *Store) Append(msg chat.Message) ([]chat.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	msg = msg.Clone()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[msg.ID]; ok {
		return nil, fmt.Errorf("append message %s: %w", msg.ID, ErrDuplicateMessage)
	}

	if n := len(s.messages); n > 0 {
		if last := s.messages[n-1].CreatedAt; msg.CreatedAt.Before(last) {
			msg.CreatedAt = last
		}
	}

	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
	return s.snapshotLocked(), nil
}

// Messages returns a copy of the transcript in insertion order.
func (s *Store) Messages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Find looks up a message by id.
func (s *Store) Find(id string) (chat.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return chat.Message{}, false
	}
	return s.messages[i].Clone(), true
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *Store) snapshotLocked() []chat.Message {
	copied := make([]chat.Message, len(s.messages))
	for i, msg := range s.messages {
		copied[i] = msg.Clone()
	}
	return copied
}
