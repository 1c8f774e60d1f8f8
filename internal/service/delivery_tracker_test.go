package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
	"github.com/clippy-oss/homie/chat-sync/internal/realtime"
)

func newTrackerFixture(t *testing.T) (*countingStore, *DeliveryTracker, *domain.Message) {
	t.Helper()
	ctx := context.Background()
	mem := realtime.NewMemoryStore()
	t.Cleanup(func() { mem.Close() })
	store := &countingStore{Store: mem}

	msg := domain.NewTextMessage("m1", domain.Identity{UserID: "U1"}, &domain.User{ID: "U2"}, "ct", testNow)
	key, err := mem.Append(ctx, roomPath("U1_U2"), msg)
	if err != nil {
		t.Fatal(err)
	}
	msg.Key = key
	return store, NewDeliveryTracker(store, domain.NewEventBus(), zerolog.Nop()), msg
}

func storedFlags(t *testing.T, store realtime.Store, key string) (delivered, read bool) {
	t.Helper()
	snap, err := store.Get(context.Background(), messagePath("U1_U2", key))
	if err != nil {
		t.Fatal(err)
	}
	var m domain.Message
	if err := snap.Decode(&m); err != nil {
		t.Fatal(err)
	}
	return m.Delivered, m.Read
}

func TestDeliveryTracker_MarkDeliveredOnce(t *testing.T) {
	ctx := context.Background()
	store, tracker, msg := newTrackerFixture(t)

	// msg is a stale copy: its Delivered flag stays false between calls
	for i := 0; i < 3; i++ {
		if _, err := tracker.MarkDelivered(ctx, "U1_U2", msg, "U2", nil); err != nil {
			t.Fatalf("MarkDelivered() error = %v", err)
		}
	}
	if got := store.Updates(); got != 1 {
		t.Errorf("writes = %d, want 1", got)
	}
	if d, _ := storedFlags(t, store, msg.Key); !d {
		t.Error("delivered = false after MarkDelivered")
	}
}

func TestDeliveryTracker_OnlyRecipients(t *testing.T) {
	ctx := context.Background()
	store, tracker, msg := newTrackerFixture(t)

	for _, viewer := range []string{"U1", "U3", ""} {
		issued, err := tracker.MarkDelivered(ctx, "U1_U2", msg, viewer, nil)
		if err != nil || issued {
			t.Errorf("MarkDelivered(viewer=%q) = %v, %v", viewer, issued, err)
		}
		if issued, _ := tracker.MarkRead(ctx, "U1_U2", msg, viewer, nil); issued {
			t.Errorf("MarkRead(viewer=%q) issued a write", viewer)
		}
	}
	if store.Updates() != 0 {
		t.Errorf("writes = %d, want 0", store.Updates())
	}
}

func TestDeliveryTracker_ReadImpliesDelivered(t *testing.T) {
	ctx := context.Background()
	store, tracker, msg := newTrackerFixture(t)

	issued, err := tracker.MarkRead(ctx, "U1_U2", msg, "U2", nil)
	if err != nil || !issued {
		t.Fatalf("MarkRead() = %v, %v", issued, err)
	}
	if d, r := storedFlags(t, store, msg.Key); !d || !r {
		t.Fatalf("delivered=%v read=%v, want both true", d, r)
	}

	// nothing moves a message back, or re-issues a lower state
	if issued, _ := tracker.MarkDelivered(ctx, "U1_U2", msg, "U2", nil); issued {
		t.Error("MarkDelivered() after read issued a write")
	}
	if issued, _ := tracker.MarkRead(ctx, "U1_U2", msg, "U2", nil); issued {
		t.Error("second MarkRead() issued a write")
	}
	if d, r := storedFlags(t, store, msg.Key); !d || !r {
		t.Errorf("flags regressed: delivered=%v read=%v", d, r)
	}
	if store.Updates() != 1 {
		t.Errorf("writes = %d, want 1", store.Updates())
	}
}

func TestDeliveryTracker_FailureIsRetriedLater(t *testing.T) {
	ctx := context.Background()
	store, tracker, msg := newTrackerFixture(t)
	store.failNext = 1

	_, err := tracker.MarkDelivered(ctx, "U1_U2", msg, "U2", nil)
	if !errors.Is(err, ErrDeliveryWrite) {
		t.Fatalf("MarkDelivered() error = %v, want ErrDeliveryWrite", err)
	}

	issued, err := tracker.MarkDelivered(ctx, "U1_U2", msg, "U2", nil)
	if err != nil || !issued {
		t.Fatalf("retry MarkDelivered() = %v, %v", issued, err)
	}
	if store.Updates() != 2 {
		t.Errorf("writes = %d, want 2", store.Updates())
	}
}

func TestDeliveryTracker_GroupMembership(t *testing.T) {
	ctx := context.Background()
	mem := realtime.NewMemoryStore()
	defer mem.Close()
	tracker := NewDeliveryTracker(mem, domain.NewEventBus(), zerolog.Nop())

	msg := domain.NewTextMessage("m1", domain.Identity{UserID: "U1"}, nil, "ct", testNow)
	key, _ := mem.Append(ctx, roomPath("g1"), msg)
	msg.Key = key
	members := map[string]domain.Member{"U1": {}, "U2": {}}

	if issued, _ := tracker.MarkDelivered(ctx, "g1", msg, "U3", members); issued {
		t.Error("non-member marked delivered")
	}
	if issued, err := tracker.MarkDelivered(ctx, "g1", msg, "U2", members); err != nil || !issued {
		t.Errorf("member MarkDelivered() = %v, %v", issued, err)
	}
}

func TestDeliveryTracker_Forget(t *testing.T) {
	ctx := context.Background()
	store, tracker, msg := newTrackerFixture(t)

	tracker.MarkDelivered(ctx, "U1_U2", msg, "U2", nil)
	tracker.Forget("U1_U2")
	// with memory gone the stale copy is evaluated again
	tracker.MarkDelivered(ctx, "U1_U2", msg, "U2", nil)
	if store.Updates() != 2 {
		t.Errorf("writes = %d, want 2", store.Updates())
	}
}
