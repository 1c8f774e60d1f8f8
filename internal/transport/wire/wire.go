// Package wire holds the JSON shapes shared by the gRPC, MCP and WebSocket
// surfaces.
package wire

import (
	"time"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
)

type Chat struct {
	RoomID          domain.RoomID   `json:"room_id"`
	Type            domain.ChatType `json:"type"`
	PeerID          string          `json:"peer_id,omitempty"`
	PeerPhone       string          `json:"peer_phone,omitempty"`
	Name            string          `json:"name"`
	LastMessageText string          `json:"last_message_text,omitempty"`
	LastMessageTime *time.Time      `json:"last_message_time,omitempty"`
	TimeLabel       string          `json:"time_label,omitempty"`
	UnreadCount     int             `json:"unread_count"`
}

func ChatFromDomain(e domain.ChatListEntry) Chat {
	c := Chat{
		RoomID:          e.RoomID,
		Type:            e.Type,
		PeerID:          e.PeerID,
		PeerPhone:       e.PeerPhone,
		Name:            e.Name,
		LastMessageText: e.LastMessageText,
		TimeLabel:       e.TimeLabel,
		UnreadCount:     e.UnreadCount,
	}
	if !e.LastMessageTime.IsZero() {
		t := e.LastMessageTime
		c.LastMessageTime = &t
	}
	return c
}

func ChatsFromDomain(entries []domain.ChatListEntry) []Chat {
	out := make([]Chat, len(entries))
	for i, e := range entries {
		out[i] = ChatFromDomain(e)
	}
	return out
}

// Message is a message with its body already decrypted or masked.
type Message struct {
	Key        string               `json:"key"`
	MessageID  string               `json:"message_id"`
	SenderID   string               `json:"sender_id"`
	SenderName string               `json:"sender_name"`
	ReceiverID string               `json:"receiver_id,omitempty"`
	Type       domain.MessageType   `json:"type"`
	Text       string               `json:"text,omitempty"`
	URL        string               `json:"url,omitempty"`
	State      domain.DeliveryState `json:"state"`
	Timestamp  time.Time            `json:"timestamp"`
}

func MessageFromDomain(m *domain.Message) *Message {
	if m == nil {
		return nil
	}
	return &Message{
		Key:        m.Key,
		MessageID:  m.MessageID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		ReceiverID: m.ReceiverID,
		Type:       m.Type,
		Text:       m.Plaintext,
		URL:        m.URL,
		State:      m.State(),
		Timestamp:  m.Timestamp,
	}
}

// Event is a domain event as streamed to clients.
type Event struct {
	Type       domain.EventType     `json:"type"`
	Timestamp  time.Time            `json:"timestamp"`
	RoomID     domain.RoomID        `json:"room_id,omitempty"`
	UserID     string               `json:"user_id,omitempty"`
	Message    *Message             `json:"message,omitempty"`
	MessageKey string               `json:"message_key,omitempty"`
	State      domain.DeliveryState `json:"state,omitempty"`
	Count      *int                 `json:"count,omitempty"`
	FromCache  bool                 `json:"from_cache,omitempty"`
	Chat       *Chat                `json:"chat,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// EventFromDomain converts a bus event. ok is false for unknown events.
func EventFromDomain(event domain.Event) (ev Event, ok bool) {
	ev = Event{Type: event.Type(), Timestamp: event.Timestamp()}
	switch e := event.(type) {
	case domain.MessageReceivedEvent:
		ev.RoomID = e.RoomID
		ev.Message = MessageFromDomain(e.Message)
	case domain.MessageSentEvent:
		ev.RoomID = e.RoomID
		ev.Message = MessageFromDomain(e.Message)
	case domain.DeliveryStateEvent:
		ev.RoomID = e.RoomID
		ev.MessageKey = e.MessageKey
		ev.State = e.State
	case domain.RoomUpdatedEvent:
		ev.RoomID = e.RoomID
		n := e.MessageCount
		ev.Count = &n
		ev.FromCache = e.FromCache
	case domain.UnreadChangedEvent:
		ev.RoomID = e.RoomID
		ev.UserID = e.UserID
		n := e.Count
		ev.Count = &n
	case domain.RosterUpdatedEvent:
		c := ChatFromDomain(e.Entry)
		ev.RoomID = e.Entry.RoomID
		ev.Chat = &c
	case domain.FanoutFailedEvent:
		ev.RoomID = e.RoomID
		ev.UserID = e.UserID
		ev.Error = e.Err
	default:
		return Event{}, false
	}
	return ev, true
}

// ParseEventTypes maps names such as "message.received" to event types,
// skipping unknown names. An empty result subscribes to everything.
func ParseEventTypes(names []string) []domain.EventType {
	var types []domain.EventType
	for _, n := range names {
		t := domain.EventType(n)
		switch t {
		case domain.EventTypeMessageReceived, domain.EventTypeMessageSent,
			domain.EventTypeMessageDelivered, domain.EventTypeMessageRead,
			domain.EventTypeRoomUpdated, domain.EventTypeUnreadChanged,
			domain.EventTypeRosterUpdated, domain.EventTypeFanoutFailed:
			types = append(types, t)
		}
	}
	return types
}
