package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
	"github.com/clippy-oss/homie/chat-sync/internal/repository"
)

func TestMessageStoreSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	cipher := testCipher(t)
	db := openCacheDB(t, filepath.Join(t.TempDir(), "cache.db"))
	store := NewMessageStore(
		repository.NewMessageCacheRepository(db),
		repository.NewPreviewRepository(db),
		cipher,
		2,
		zerolog.Nop(),
	)

	alice := domain.Identity{UserID: "alice", Name: "Alice"}
	bob := &domain.User{ID: "bob", Name: "Bob"}
	room := domain.PrivateRoomID("alice", "bob")

	if _, ok := store.Latest(room); ok {
		t.Fatalf("Latest() on empty room reported a message")
	}

	var msgs []*domain.Message
	for i, text := range []string{"one", "two", "three"} {
		ct, err := cipher.Encrypt(text)
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		m := domain.NewTextMessage(fmt.Sprintf("id-%d", i), alice, bob, ct, testNow)
		m.Key = fmt.Sprintf("k%d", i)
		msgs = append(msgs, m)
	}

	if err := store.ApplySnapshot(ctx, room, msgs); err != nil {
		t.Fatalf("ApplySnapshot() error = %v", err)
	}

	last, ok := store.Latest(room)
	if !ok || last.Key != "k2" {
		t.Fatalf("Latest() = %v, %v; want k2", last, ok)
	}

	cached, err := store.LoadCached(ctx, room)
	if err != nil {
		t.Fatalf("LoadCached() error = %v", err)
	}
	if len(cached) != 2 {
		t.Fatalf("LoadCached() len = %d, want 2 after retention", len(cached))
	}
	if cached[0].Key != "k1" || cached[1].Plaintext != "three" {
		t.Fatalf("LoadCached() = [%s %q], want [k1 ... three]", cached[0].Key, cached[1].Plaintext)
	}

	p, err := store.Preview(ctx, room)
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if p == nil || p.Text != "three" || p.Key != "k2" {
		t.Fatalf("Preview() = %+v, want decrypted last message", p)
	}

	store.Drop(room)
	if _, ok := store.Latest(room); ok {
		t.Fatalf("Latest() after Drop reported a message")
	}

	if err := store.ApplySnapshot(ctx, room, nil); err != nil {
		t.Fatalf("ApplySnapshot(empty) error = %v", err)
	}
	if p, err := store.Preview(ctx, room); err != nil || p != nil {
		t.Fatalf("Preview() after empty snapshot = %+v, %v; want nil", p, err)
	}
}
