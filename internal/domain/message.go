package domain

import "time"

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeAudio MessageType = "audio"
	MessageTypeVideo MessageType = "video"
	MessageTypeImage MessageType = "image"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeAudio, MessageTypeVideo, MessageTypeImage:
		return true
	}
	return false
}

// DeliveryState is the position of a message in the sent → delivered → read
// progression.
type DeliveryState string

const (
	StateSent      DeliveryState = "sent"
	StateDelivered DeliveryState = "delivered"
	StateRead      DeliveryState = "read"
)

// Message is a chat message as stored in a room's append log. Key is the
// store-assigned child key and is never part of the stored value.
type Message struct {
	Key           string      `json:"-"`
	MessageID     string      `json:"message_id"`
	SenderID      string      `json:"sender_id"`
	SenderPhone   string      `json:"sender_phone"`
	SenderName    string      `json:"sender_name"`
	ReceiverID    string      `json:"receiver_id,omitempty"`
	ReceiverPhone string      `json:"receiver_phone,omitempty"`
	Type          MessageType `json:"type"`
	Text          string      `json:"text,omitempty"`
	URL           string      `json:"url,omitempty"`
	Delivered     bool        `json:"delivered"`
	Read          bool        `json:"read"`
	Timestamp     time.Time   `json:"timestamp"`

	// Plaintext is the decrypted text for display. It is never stored.
	Plaintext string `json:"-"`
}

func (m *Message) State() DeliveryState {
	switch {
	case m.Read:
		return StateRead
	case m.Delivered:
		return StateDelivered
	}
	return StateSent
}

// IsPrivate reports whether the message was addressed to a single receiver.
func (m *Message) IsPrivate() bool {
	return m.ReceiverID != ""
}

// AddressedTo reports whether viewer is among the message's receivers. For
// group messages members lists the group's members; it is ignored for
// private messages. A sender is never a receiver of its own message.
func (m *Message) AddressedTo(viewer string, members map[string]Member) bool {
	if viewer == "" || m.SenderID == viewer {
		return false
	}
	if m.IsPrivate() {
		return m.ReceiverID == viewer
	}
	_, ok := members[viewer]
	return ok
}

// Preview is the short text shown for a message in chat lists.
func (m *Message) Preview() string {
	if m.Type == MessageTypeText || m.Type == "" {
		return m.Plaintext
	}
	return "[" + string(m.Type) + "]"
}

func NewTextMessage(id string, sender Identity, receiver *User, ciphertext string, timestamp time.Time) *Message {
	msg := &Message{
		MessageID:   id,
		SenderID:    sender.UserID,
		SenderPhone: sender.Phone,
		SenderName:  sender.Name,
		Type:        MessageTypeText,
		Text:        ciphertext,
		Timestamp:   timestamp,
	}
	msg.setReceiver(receiver)
	return msg
}

func NewMediaMessage(id string, sender Identity, receiver *User, msgType MessageType, url string, timestamp time.Time) *Message {
	msg := &Message{
		MessageID:   id,
		SenderID:    sender.UserID,
		SenderPhone: sender.Phone,
		SenderName:  sender.Name,
		Type:        msgType,
		URL:         url,
		Timestamp:   timestamp,
	}
	msg.setReceiver(receiver)
	return msg
}

func (m *Message) setReceiver(receiver *User) {
	if receiver == nil {
		return
	}
	m.ReceiverID = receiver.ID
	m.ReceiverPhone = receiver.PhoneNumber
}
