package domain

import "time"

type ChatType string

const (
	ChatTypePrivate ChatType = "private"
	ChatTypeGroup   ChatType = "group"
)

// ChatListEntry is the roster projection of one room: who it is with, the
// latest message and the current unread count. It is recomputed from live
// feeds and is never the source of truth.
type ChatListEntry struct {
	RoomID          RoomID
	Type            ChatType
	PeerID          string
	PeerPhone       string
	Name            string
	LastMessageText string
	LastMessageTime time.Time
	TimeLabel       string
	UnreadCount     int
}

func (c *ChatListEntry) Unread() bool {
	return c.UnreadCount > 0
}

func (c *ChatListEntry) IsGroup() bool {
	return c.Type == ChatTypeGroup
}

// Preview is the locally cached last-message record of a room, used to
// render chat lists before live feeds resolve.
type Preview struct {
	RoomID     RoomID
	Key        string
	SenderID   string
	SenderName string
	Type       MessageType
	Text       string
	Timestamp  time.Time
}
