package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func makeMessages(n int) []*domain.Message {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	msgs := make([]*domain.Message, n)
	for i := range msgs {
		msgs[i] = &domain.Message{
			Key:        fmt.Sprintf("k%03d", i),
			MessageID:  fmt.Sprintf("m%03d", i),
			SenderID:   "alice",
			ReceiverID: "bob",
			Type:       domain.MessageTypeText,
			Text:       fmt.Sprintf("cipher-%d", i),
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		}
	}
	return msgs
}

func TestMessageCache_ReplaceAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageCacheRepository(openTestDB(t))
	room := domain.PrivateRoomID("alice", "bob")

	msgs := makeMessages(3)
	// stored out of order; reads come back by key
	if err := repo.ReplaceRoom(ctx, room, []*domain.Message{msgs[2], msgs[0], msgs[1]}, 0); err != nil {
		t.Fatalf("ReplaceRoom() error = %v", err)
	}

	got, err := repo.GetByRoom(ctx, room)
	if err != nil {
		t.Fatalf("GetByRoom() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	for i, m := range got {
		if m.Key != msgs[i].Key || m.Text != msgs[i].Text {
			t.Errorf("message %d = %+v", i, m)
		}
	}

	msgs[0].Delivered = true
	if err := repo.ReplaceRoom(ctx, room, msgs[:1], 0); err != nil {
		t.Fatalf("ReplaceRoom() error = %v", err)
	}
	got, _ = repo.GetByRoom(ctx, room)
	if len(got) != 1 || !got[0].Delivered {
		t.Errorf("after replace: %+v", got)
	}
}

func TestMessageCache_Retention(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageCacheRepository(openTestDB(t))
	room := domain.GroupRoomID("g1")

	if err := repo.ReplaceRoom(ctx, room, makeMessages(10), 4); err != nil {
		t.Fatalf("ReplaceRoom() error = %v", err)
	}
	got, _ := repo.GetByRoom(ctx, room)
	if len(got) != 4 {
		t.Fatalf("got %d messages, want 4", len(got))
	}
	if got[0].Key != "k006" || got[3].Key != "k009" {
		t.Errorf("kept %s..%s, want newest", got[0].Key, got[3].Key)
	}
}

func TestMessageCache_RoomsAreIsolated(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageCacheRepository(openTestDB(t))
	a := domain.PrivateRoomID("alice", "bob")
	b := domain.PrivateRoomID("alice", "carol")

	_ = repo.ReplaceRoom(ctx, a, makeMessages(2), 0)
	_ = repo.ReplaceRoom(ctx, b, makeMessages(5), 0)
	if err := repo.ReplaceRoom(ctx, a, nil, 0); err != nil {
		t.Fatalf("ReplaceRoom(empty) error = %v", err)
	}

	if n, _ := repo.CountByRoom(ctx, a); n != 0 {
		t.Errorf("room a count = %d, want 0", n)
	}
	if n, _ := repo.CountByRoom(ctx, b); n != 5 {
		t.Errorf("room b count = %d, want 5", n)
	}
}

func TestPreviewRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPreviewRepository(openTestDB(t))
	room := domain.PrivateRoomID("alice", "bob")

	if p, err := repo.GetByRoom(ctx, room); err != nil || p != nil {
		t.Fatalf("GetByRoom(missing) = %v, %v", p, err)
	}

	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := repo.Upsert(ctx, &domain.Preview{RoomID: room, Key: "k1", Text: "a", Timestamp: ts}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := repo.Upsert(ctx, &domain.Preview{RoomID: room, Key: "k2", Text: "b", Timestamp: ts.Add(time.Minute)}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	p, err := repo.GetByRoom(ctx, room)
	if err != nil || p == nil {
		t.Fatalf("GetByRoom() = %v, %v", p, err)
	}
	if p.Key != "k2" || p.Text != "b" {
		t.Errorf("preview = %+v", p)
	}

	_ = repo.Delete(ctx, room)
	if p, _ := repo.GetByRoom(ctx, room); p != nil {
		t.Errorf("preview still present after Delete")
	}
}
