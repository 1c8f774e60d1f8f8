package domain

import (
	"sync"
	"time"
)

type EventType string

const (
	EventTypeMessageReceived  EventType = "message.received"
	EventTypeMessageSent      EventType = "message.sent"
	EventTypeMessageDelivered EventType = "message.delivered"
	EventTypeMessageRead      EventType = "message.read"
	EventTypeRoomUpdated      EventType = "room.updated"
	EventTypeUnreadChanged    EventType = "unread.changed"
	EventTypeRosterUpdated    EventType = "roster.updated"
	EventTypeFanoutFailed     EventType = "fanout.failed"
)

type Event interface {
	Type() EventType
	Timestamp() time.Time
}

type MessageReceivedEvent struct {
	RoomID    RoomID
	Message   *Message
	EventTime time.Time
}

func (e MessageReceivedEvent) Type() EventType      { return EventTypeMessageReceived }
func (e MessageReceivedEvent) Timestamp() time.Time { return e.EventTime }

type MessageSentEvent struct {
	RoomID    RoomID
	Message   *Message
	EventTime time.Time
}

func (e MessageSentEvent) Type() EventType      { return EventTypeMessageSent }
func (e MessageSentEvent) Timestamp() time.Time { return e.EventTime }

// DeliveryStateEvent reports a delivery-state write issued by this client.
type DeliveryStateEvent struct {
	RoomID     RoomID
	MessageKey string
	State      DeliveryState
	EventTime  time.Time
}

func (e DeliveryStateEvent) Type() EventType {
	if e.State == StateRead {
		return EventTypeMessageRead
	}
	return EventTypeMessageDelivered
}
func (e DeliveryStateEvent) Timestamp() time.Time { return e.EventTime }

type RoomUpdatedEvent struct {
	RoomID       RoomID
	MessageCount int
	FromCache    bool
	EventTime    time.Time
}

func (e RoomUpdatedEvent) Type() EventType      { return EventTypeRoomUpdated }
func (e RoomUpdatedEvent) Timestamp() time.Time { return e.EventTime }

type UnreadChangedEvent struct {
	RoomID    RoomID
	UserID    string
	Count     int
	EventTime time.Time
}

func (e UnreadChangedEvent) Type() EventType      { return EventTypeUnreadChanged }
func (e UnreadChangedEvent) Timestamp() time.Time { return e.EventTime }

type RosterUpdatedEvent struct {
	Entry     ChatListEntry
	EventTime time.Time
}

func (e RosterUpdatedEvent) Type() EventType      { return EventTypeRosterUpdated }
func (e RosterUpdatedEvent) Timestamp() time.Time { return e.EventTime }

// FanoutFailedEvent reports a background fan-out task that gave up.
type FanoutFailedEvent struct {
	RoomID    RoomID
	UserID    string
	Err       string
	EventTime time.Time
}

func (e FanoutFailedEvent) Type() EventType      { return EventTypeFanoutFailed }
func (e FanoutFailedEvent) Timestamp() time.Time { return e.EventTime }

// EventBus provides pub/sub for domain events
type EventBus interface {
	Publish(event Event)
	Subscribe(eventTypes []EventType) <-chan Event
	Unsubscribe(ch <-chan Event)
}

// SimpleEventBus is an in-memory EventBus. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type SimpleEventBus struct {
	mu          sync.RWMutex
	subscribers map[<-chan Event]subscription
	buffer      int
}

type subscription struct {
	ch         chan Event
	eventTypes map[EventType]bool
}

func NewEventBus() *SimpleEventBus {
	return &SimpleEventBus{
		subscribers: make(map[<-chan Event]subscription),
		buffer:      256,
	}
}

func (b *SimpleEventBus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if len(sub.eventTypes) > 0 && !sub.eventTypes[event.Type()] {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// Subscribe returns a channel receiving events of the given types, or of all
// types when eventTypes is empty.
func (b *SimpleEventBus) Subscribe(eventTypes []EventType) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	typeMap := make(map[EventType]bool, len(eventTypes))
	for _, t := range eventTypes {
		typeMap[t] = true
	}

	b.subscribers[ch] = subscription{ch: ch, eventTypes: typeMap}
	return ch
}

func (b *SimpleEventBus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[ch]; ok {
		close(sub.ch)
		delete(b.subscribers, ch)
	}
}
