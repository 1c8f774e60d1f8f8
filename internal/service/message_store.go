package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
	"github.com/clippy-oss/homie/chat-sync/internal/encryption"
	"github.com/clippy-oss/homie/chat-sync/internal/repository"
)

// MessageStore holds the in-memory view of each open room and writes every
// applied snapshot through to the local cache.
type MessageStore struct {
	cache     repository.MessageCacheRepository
	previews  repository.PreviewRepository
	cipher    encryption.Cipher
	retention int
	log       zerolog.Logger

	mu    sync.RWMutex
	rooms map[domain.RoomID][]*domain.Message
}

func NewMessageStore(
	cache repository.MessageCacheRepository,
	previews repository.PreviewRepository,
	cipher encryption.Cipher,
	retention int,
	log zerolog.Logger,
) *MessageStore {
	return &MessageStore{
		cache:     cache,
		previews:  previews,
		cipher:    cipher,
		retention: retention,
		log:       log,
		rooms:     make(map[domain.RoomID][]*domain.Message),
	}
}

// LoadCached returns the last persisted snapshot of a room, decrypted, in
// key order. It never touches the realtime store.
func (s *MessageStore) LoadCached(ctx context.Context, roomID domain.RoomID) ([]*domain.Message, error) {
	msgs, err := s.cache.GetByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cached messages: %w", err)
	}
	for _, m := range msgs {
		decryptMessage(m, s.cipher, s.log)
	}
	return msgs, nil
}

// ApplySnapshot replaces the in-memory view of a room with msgs and persists
// it. The in-memory view is updated even when persisting fails.
func (s *MessageStore) ApplySnapshot(ctx context.Context, roomID domain.RoomID, msgs []*domain.Message) error {
	s.mu.Lock()
	s.rooms[roomID] = msgs
	s.mu.Unlock()

	if err := s.cache.ReplaceRoom(ctx, roomID, msgs, s.retention); err != nil {
		return fmt.Errorf("failed to cache room %s: %w", roomID, err)
	}

	if len(msgs) == 0 {
		if err := s.previews.Delete(ctx, roomID); err != nil {
			return fmt.Errorf("failed to clear preview of %s: %w", roomID, err)
		}
		return nil
	}
	return s.SavePreview(ctx, roomID, msgs[len(msgs)-1])
}

// SavePreview records msg as the last message of a room.
func (s *MessageStore) SavePreview(ctx context.Context, roomID domain.RoomID, msg *domain.Message) error {
	err := s.previews.Upsert(ctx, &domain.Preview{
		RoomID:     roomID,
		Key:        msg.Key,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Type:       msg.Type,
		Text:       msg.Text,
		Timestamp:  msg.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to save preview of %s: %w", roomID, err)
	}
	return nil
}

// Preview returns the cached last-message record of a room with its text
// decrypted, or nil when none is cached.
func (s *MessageStore) Preview(ctx context.Context, roomID domain.RoomID) (*domain.Preview, error) {
	p, err := s.previews.GetByRoom(ctx, roomID)
	if err != nil || p == nil {
		return nil, err
	}
	msg := domain.Message{Key: p.Key, Type: p.Type, Text: p.Text}
	decryptMessage(&msg, s.cipher, s.log)
	p.Text = msg.Preview()
	return p, nil
}

func (s *MessageStore) Latest(roomID domain.RoomID) (*domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.rooms[roomID]
	if len(msgs) == 0 {
		return nil, false
	}
	return msgs[len(msgs)-1], true
}

// Drop releases the in-memory view of a room. The durable cache is kept.
func (s *MessageStore) Drop(roomID domain.RoomID) {
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()
}
