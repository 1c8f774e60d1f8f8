package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
)

const EventTypeMessageCreated = "MESSAGE_CREATED"

// Envelope is the body of every notification on the topic exchange.
type Envelope struct {
	Type    string         `json:"type"`
	Payload MessagePayload `json:"payload"`
}

// MessagePayload describes a new message without its body, which stays
// encrypted in the realtime store.
type MessagePayload struct {
	RoomID     domain.RoomID      `json:"room_id"`
	Key        string             `json:"key"`
	MessageID  string             `json:"message_id"`
	SenderID   string             `json:"sender_id"`
	SenderName string             `json:"sender_name"`
	Type       domain.MessageType `json:"type"`
	Recipient  string             `json:"recipient"`
	Timestamp  time.Time          `json:"timestamp"`
}

func UserRoutingKey(userID string) string {
	return "user." + userID
}

func RoomRoutingKey(roomID domain.RoomID) string {
	return "room." + roomID.String()
}

// Notifier announces sent messages on the topic exchange: once on
// room.{id} and once per recipient on user.{id}. Each publish is a separate
// call so a failed one can be retried alone.
type Notifier struct {
	pub Publisher
	log zerolog.Logger
}

func NewNotifier(pub Publisher, log zerolog.Logger) *Notifier {
	return &Notifier{pub: pub, log: log}
}

func newPayload(roomID domain.RoomID, msg *domain.Message) MessagePayload {
	return MessagePayload{
		RoomID:     roomID,
		Key:        msg.Key,
		MessageID:  msg.MessageID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Type:       msg.Type,
		Timestamp:  msg.Timestamp,
	}
}

// RoomMessageCreated publishes the room-wide announcement.
func (n *Notifier) RoomMessageCreated(ctx context.Context, roomID domain.RoomID, msg *domain.Message) error {
	env := Envelope{Type: EventTypeMessageCreated, Payload: newPayload(roomID, msg)}
	if err := n.pub.Publish(ctx, RoomRoutingKey(roomID), env); err != nil {
		return fmt.Errorf("failed to publish notification for room %s: %w", roomID, err)
	}
	n.log.Debug().Str("room", roomID.String()).Str("key", msg.Key).Msg("Room notification published")
	return nil
}

// UserMessageCreated publishes the notification for one recipient. Expired
// ones end up on the push exchange.
func (n *Notifier) UserMessageCreated(ctx context.Context, roomID domain.RoomID, msg *domain.Message, recipient string) error {
	payload := newPayload(roomID, msg)
	payload.Recipient = recipient
	env := Envelope{Type: EventTypeMessageCreated, Payload: payload}
	if err := n.pub.Publish(ctx, UserRoutingKey(recipient), env); err != nil {
		return fmt.Errorf("failed to publish notification for %s: %w", recipient, err)
	}
	n.log.Debug().Str("room", roomID.String()).Str("user", recipient).Msg("User notification published")
	return nil
}
