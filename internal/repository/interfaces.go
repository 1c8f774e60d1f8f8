package repository

import (
	"context"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
)

// MessageCacheRepository persists the last known snapshot of each room.
// Message bodies are stored as received (ciphertext).
type MessageCacheRepository interface {
	// ReplaceRoom swaps the cached snapshot of a room for msgs, keeping the
	// newest retention messages by key. retention <= 0 keeps everything.
	ReplaceRoom(ctx context.Context, roomID domain.RoomID, msgs []*domain.Message, retention int) error
	GetByRoom(ctx context.Context, roomID domain.RoomID) ([]*domain.Message, error)
	CountByRoom(ctx context.Context, roomID domain.RoomID) (int64, error)
}

type PreviewRepository interface {
	Upsert(ctx context.Context, preview *domain.Preview) error
	GetByRoom(ctx context.Context, roomID domain.RoomID) (*domain.Preview, error)
	Delete(ctx context.Context, roomID domain.RoomID) error
}
