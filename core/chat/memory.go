package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store in memory for testing and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	threads  map[string]Thread
	messages map[string][]Message    // room id -> messages in creation order
	reads    map[string]map[string]struct{} // message id -> reader ids
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads:  make(map[string]Thread),
		messages: make(map[string][]Message),
		reads:    make(map[string]map[string]struct{}),
	}
}

// CreateMessage implements Store.
func (s *MemoryStore) CreateMessage(ctx context.Context, roomID, senderID, content string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	if content == "" {
		return Message{}, ErrEmptyContent
	}

	msg := Message{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[roomID] = append(s.messages[roomID], msg)
	return msg, nil
}

// ListMessages implements Store. Pages are ordered oldest first.
func (s *MemoryStore) ListMessages(ctx context.Context, roomID string, limit, offset int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[roomID]
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}

	page := make([]Message, end-offset)
	copy(page, all[offset:end])
	return page, nil
}

// MarkRead implements Store.
func (s *MemoryStore) MarkRead(ctx context.Context, messageID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for _, msgs := range s.messages {
		for _, m := range msgs {
			if m.ID == messageID {
				found = true
				break
			}
		}
	}
	if !found {
		return ErrMessageNotFound
	}

	if s.reads[messageID] == nil {
		s.reads[messageID] = make(map[string]struct{})
	}
	s.reads[messageID][userID] = struct{}{}
	return nil
}

// CreateThread implements Store.
func (s *MemoryStore) CreateThread(ctx context.Context, title, creatorID string) (Thread, error) {
	if err := ctx.Err(); err != nil {
		return Thread{}, err
	}
	if title == "" {
		return Thread{}, ErrEmptyTitle
	}

	th := Thread{
		ID:        uuid.NewString(),
		Title:     title,
		CreatorID: creatorID,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[th.ID] = th
	return th, nil
}

// ReadBy reports whether userID has marked the message read. Test helper.
func (s *MemoryStore) ReadBy(messageID, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.reads[messageID][userID]
	return ok
}
