package domain

import "testing"

func TestMessageAddressedTo(t *testing.T) {
	members := map[string]Member{"U1": {}, "U2": {}, "U3": {}}

	private := &Message{SenderID: "U1", ReceiverID: "U2"}
	if !private.AddressedTo("U2", nil) {
		t.Fatalf("receiver should be addressed")
	}
	if private.AddressedTo("U1", nil) {
		t.Fatalf("sender must not be addressed by its own message")
	}
	if private.AddressedTo("U3", members) {
		t.Fatalf("private message must ignore group membership")
	}

	group := &Message{SenderID: "U1"}
	if !group.AddressedTo("U3", members) {
		t.Fatalf("group member should be addressed")
	}
	if group.AddressedTo("U1", members) {
		t.Fatalf("group sender must not be addressed")
	}
	if group.AddressedTo("U9", members) {
		t.Fatalf("non-member must not be addressed")
	}
}

func TestMessageState(t *testing.T) {
	m := &Message{}
	if m.State() != StateSent {
		t.Fatalf("expected sent, got %s", m.State())
	}
	m.Delivered = true
	if m.State() != StateDelivered {
		t.Fatalf("expected delivered, got %s", m.State())
	}
	m.Read = true
	if m.State() != StateRead {
		t.Fatalf("expected read, got %s", m.State())
	}
}

func TestEventBusFiltersByType(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe([]EventType{EventTypeMessageSent})
	defer bus.Unsubscribe(ch)

	bus.Publish(RoomUpdatedEvent{RoomID: "r"})
	bus.Publish(MessageSentEvent{RoomID: "r"})

	select {
	case evt := <-ch:
		if evt.Type() != EventTypeMessageSent {
			t.Fatalf("unexpected event %s", evt.Type())
		}
	default:
		t.Fatalf("expected a message.sent event")
	}
	select {
	case evt := <-ch:
		t.Fatalf("unexpected extra event %s", evt.Type())
	default:
	}
}
