package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
)

type published struct {
	key  string
	body Envelope
}

type fakePublisher struct {
	mu      sync.Mutex
	sent    []published
	failKey string
}

func (f *fakePublisher) Publish(ctx context.Context, routingKey string, body interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if routingKey == f.failKey {
		return errors.New("channel closed")
	}
	f.sent = append(f.sent, published{key: routingKey, body: body.(Envelope)})
	return nil
}

func TestNotifier_PublishesRoomAndUsers(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	n := NewNotifier(pub, zerolog.Nop())

	msg := &domain.Message{Key: "k1", MessageID: "m1", SenderID: "U1", Type: domain.MessageTypeText, Text: "secret", Timestamp: time.Now()}
	if err := n.RoomMessageCreated(ctx, "g1", msg); err != nil {
		t.Fatalf("RoomMessageCreated() error = %v", err)
	}
	for _, r := range []string{"U2", "U3"} {
		if err := n.UserMessageCreated(ctx, "g1", msg, r); err != nil {
			t.Fatalf("UserMessageCreated(%s) error = %v", r, err)
		}
	}

	if len(pub.sent) != 3 {
		t.Fatalf("published %d notifications, want 3", len(pub.sent))
	}
	wantKeys := []string{"room.g1", "user.U2", "user.U3"}
	for i, p := range pub.sent {
		if p.key != wantKeys[i] {
			t.Errorf("routing key %d = %q, want %q", i, p.key, wantKeys[i])
		}
		if p.body.Type != EventTypeMessageCreated || p.body.Payload.Key != "k1" {
			t.Errorf("envelope %d = %+v", i, p.body)
		}
	}
	if got := pub.sent[0].body.Payload.Recipient; got != "" {
		t.Errorf("room recipient = %q, want empty", got)
	}
	if got := pub.sent[1].body.Payload.Recipient; got != "U2" {
		t.Errorf("recipient = %q, want U2", got)
	}
}

func TestNotifier_UserFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{failKey: "user.U3"}
	n := NewNotifier(pub, zerolog.Nop())
	msg := &domain.Message{Key: "k1"}

	if err := n.UserMessageCreated(ctx, "g1", msg, "U3"); err == nil {
		t.Fatal("UserMessageCreated(U3) succeeded on a failing key")
	}
	if err := n.UserMessageCreated(ctx, "g1", msg, "U2"); err != nil {
		t.Fatalf("UserMessageCreated(U2) error = %v", err)
	}
	if len(pub.sent) != 1 || pub.sent[0].key != "user.U2" {
		t.Errorf("sent = %+v, want only user.U2", pub.sent)
	}
}
