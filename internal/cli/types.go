package cli

import (
	"time"

	"github.com/clippy-oss/homie/chat-sync/internal/service"
	"github.com/clippy-oss/homie/chat-sync/internal/transport/wire"
)

// Mode represents the CLI operation mode
type Mode string

const (
	ModeInteractive Mode = "interactive"
	ModeHeadless    Mode = "headless"
)

// Request represents a JSON request in headless mode
type Request struct {
	ID      string                 `json:"id,omitempty"`
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Response represents a JSON response in headless mode
type Response struct {
	ID      string      `json:"id,omitempty"`
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Event represents a real-time event in headless mode
type Event struct {
	Type      string     `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	Data      wire.Event `json:"data"`
}

type IdentityInfo struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Phone  string `json:"phone,omitempty"`
	// QRCode renders the user identifier for scanning by another client.
	QRCode string `json:"qr_code,omitempty"`
}

type ChatList struct {
	Chats       []wire.Chat `json:"chats"`
	Count       int         `json:"count"`
	TotalUnread int         `json:"total_unread"`
}

type MarkResult struct {
	Room   string `json:"room"`
	Marked int    `json:"marked"`
}

type OlderResult struct {
	Loaded int              `json:"loaded"`
	Room   service.RoomView `json:"room"`
}

type GroupInfo struct {
	GroupID string   `json:"group_id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

type Message struct {
	Message string `json:"message"`
}
