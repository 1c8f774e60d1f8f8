package wire

import (
	"testing"
	"time"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
)

func TestEventFromDomain(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 4, 0, 0, time.UTC)

	ev, ok := EventFromDomain(domain.UnreadChangedEvent{RoomID: "A_B", UserID: "B", Count: 0, EventTime: now})
	if !ok {
		t.Fatal("unread event not converted")
	}
	if ev.Type != domain.EventTypeUnreadChanged || ev.RoomID != "A_B" || ev.Count == nil || *ev.Count != 0 {
		t.Fatalf("unexpected event %+v", ev)
	}

	ev, ok = EventFromDomain(domain.DeliveryStateEvent{RoomID: "A_B", MessageKey: "k1", State: domain.StateRead, EventTime: now})
	if !ok || ev.Type != domain.EventTypeMessageRead || ev.MessageKey != "k1" {
		t.Fatalf("unexpected event %+v", ev)
	}

	msg := &domain.Message{Key: "k2", SenderID: "A", Text: "ciphertext", Plaintext: "hi", Delivered: true}
	ev, _ = EventFromDomain(domain.MessageReceivedEvent{RoomID: "A_B", Message: msg, EventTime: now})
	if ev.Message == nil || ev.Message.Text != "hi" || ev.Message.State != domain.StateDelivered {
		t.Fatalf("unexpected message %+v", ev.Message)
	}
}

func TestChatFromDomainOmitsZeroTime(t *testing.T) {
	c := ChatFromDomain(domain.ChatListEntry{RoomID: "A_B", Name: "Bob"})
	if c.LastMessageTime != nil {
		t.Fatalf("LastMessageTime = %v, want nil", c.LastMessageTime)
	}
}

func TestParseEventTypes(t *testing.T) {
	got := ParseEventTypes([]string{"message.received", "bogus", "unread.changed"})
	if len(got) != 2 || got[0] != domain.EventTypeMessageReceived || got[1] != domain.EventTypeUnreadChanged {
		t.Fatalf("ParseEventTypes() = %v", got)
	}
	if ParseEventTypes(nil) != nil {
		t.Fatal("empty input should subscribe to everything")
	}
}
