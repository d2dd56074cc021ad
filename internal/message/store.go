package message

import "sync"

// History is the interface for room message history backends.
type History interface {
	Append(msg *Message)
	Recent(room string, n int) []*Message
	Count(room string) int
}

// Store keeps recent messages per room in memory.
type Store struct {
	mu      sync.RWMutex
	rooms   map[string][]*Message
	maxSize int
}

// NewStore creates a message store that retains up to maxSize messages per room.
func NewStore(maxSize int) *Store {
	return &Store{
		rooms:   make(map[string][]*Message),
		maxSize: maxSize,
	}
}

// Append adds a message to the room's history, evicting the oldest
// messages beyond the store's capacity.
func (s *Store) Append(msg *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.rooms[msg.Room]
	msgs = append(msgs, msg)
	if len(msgs) > s.maxSize {
		msgs = msgs[len(msgs)-s.maxSize:]
	}
	s.rooms[msg.Room] = msgs
}

// Recent returns the last n messages for a room in insertion order,
// oldest first.
func (s *Store) Recent(room string, n int) []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.rooms[room]
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	if len(msgs) == 0 {
		return nil
	}
	result := make([]*Message, len(msgs))
	copy(result, msgs)
	return result
}

// Count returns the number of stored messages for a room.
func (s *Store) Count(room string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[room])
}
