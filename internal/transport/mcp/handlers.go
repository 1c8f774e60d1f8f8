package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
	"github.com/clippy-oss/homie/chat-sync/internal/service"
)

func (s *Server) handleListChats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter, err := service.ParseFilter(request.GetString("filter", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	chats, err := s.chat.ListChats(ctx, filter, request.GetString("search", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list chats: %v", err)), nil
	}

	if len(chats) == 0 {
		return mcp.NewToolResultText("No chats found."), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Found %d chat(s), %d unread message(s) in total:\n\n", len(chats), s.chat.TotalUnread()))

	for i, chat := range chats {
		chatType := "Private"
		if chat.IsGroup() {
			chatType = "Group"
		}

		result.WriteString(fmt.Sprintf("%d. %s (%s)\n", i+1, chat.Name, chatType))
		result.WriteString(fmt.Sprintf("   Room: %s\n", chat.RoomID))

		if chat.Unread() {
			result.WriteString(fmt.Sprintf("   Unread: %d message(s)\n", chat.UnreadCount))
		}

		if chat.LastMessageText != "" {
			preview := chat.LastMessageText
			if len(preview) > 60 {
				preview = preview[:60] + "..."
			}
			result.WriteString(fmt.Sprintf("   Last: %s\n", preview))
			if chat.TimeLabel != "" {
				result.WriteString(fmt.Sprintf("   Time: %s\n", chat.TimeLabel))
			}
		}
		result.WriteString("\n")
	}

	return mcp.NewToolResultText(result.String()), nil
}

func (s *Server) handleOpenRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target := service.Target{
		PeerID:  request.GetString("peer_id", ""),
		GroupID: request.GetString("group_id", ""),
	}

	view, err := s.chat.OpenChat(ctx, target)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to open chat: %v", err)), nil
	}

	source := "live"
	if view.FromCache {
		source = "cache"
	}
	return mcp.NewToolResultText(fmt.Sprintf("Opened %s (%s)\nRoom: %s\nMessages: %d (from %s)",
		view.Name, view.Type, view.RoomID, view.MessageCount, source)), nil
}

func (s *Server) handleGetMessages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	room := request.GetString("room", "")
	if room == "" {
		return mcp.NewToolResultError("room is required"), nil
	}

	view, err := s.chat.GetMessages(room)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get messages: %v", err)), nil
	}

	return mcp.NewToolResultText(formatView(view, s.chat.Identity().UserID)), nil
}

func (s *Server) handleLoadOlder(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	room := request.GetString("room", "")
	if room == "" {
		return mcp.NewToolResultError("room is required"), nil
	}

	view, n, err := s.chat.LoadOlder(ctx, room)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load history: %v", err)), nil
	}
	if n == 0 {
		return mcp.NewToolResultText("No older messages."), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Loaded %d older message(s).\n\n%s", n, formatView(view, s.chat.Identity().UserID))), nil
}

func (s *Server) handleSendMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	room := request.GetString("room", "")
	if room == "" {
		return mcp.NewToolResultError("room is required"), nil
	}

	text := request.GetString("text", "")
	if text == "" {
		return mcp.NewToolResultError("text is required"), nil
	}

	msg, err := s.chat.SendMessage(ctx, room, text)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to send message: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Message sent successfully!\nKey: %s\nTimestamp: %s\nTo: %s",
		msg.Key, msg.Timestamp.Format("2006-01-02 15:04:05"), room)), nil
}

func (s *Server) handleMarkRead(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	room := request.GetString("room", "")
	if room == "" {
		return mcp.NewToolResultError("room is required"), nil
	}

	var (
		n   int
		err error
	)
	if keys := splitList(request.GetString("keys", "")); len(keys) > 0 {
		n, err = s.chat.MarkVisible(ctx, room, keys)
	} else {
		n, err = s.chat.MarkAllVisible(ctx, room)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to mark as read: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Marked %d message(s) as read in %s", n, room)), nil
}

func (s *Server) handleCloseRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	room := request.GetString("room", "")
	if room == "" {
		return mcp.NewToolResultError("room is required"), nil
	}
	if err := s.chat.CloseRoom(room); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to close chat: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Closed %s", room)), nil
}

func (s *Server) handleCreateGroup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := request.GetString("name", "")
	members := splitList(request.GetString("members", ""))
	if len(members) == 0 {
		return mcp.NewToolResultError("members is required"), nil
	}

	g, err := s.chat.CreateGroup(ctx, name, members)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create group: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Created group %s\nGroup ID: %s\nMembers: %d",
		g.Name, g.GroupID, len(g.Members))), nil
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := s.chat.Status()

	open := "none"
	if len(st.OpenRooms) > 0 {
		ids := make([]string, len(st.OpenRooms))
		for i, id := range st.OpenRooms {
			ids[i] = id.String()
		}
		open = strings.Join(ids, ", ")
	}

	return mcp.NewToolResultText(fmt.Sprintf("Signed in as: %s (%s)\nChats: %d\nUnread: %d\nOpen rooms: %s",
		st.Name, st.UserID, st.Chats, st.TotalUnread, open)), nil
}

func formatView(view service.RoomView, self string) string {
	if view.MessageCount == 0 {
		return fmt.Sprintf("No messages in %s", view.Name)
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Messages in %s (%d):\n", view.Name, view.MessageCount))

	for _, group := range view.Groups {
		result.WriteString(fmt.Sprintf("\n-- %s --\n", group.Label))
		for _, msg := range group.Messages {
			sender := msg.SenderName
			if msg.SenderID == self {
				sender = "Me"
			}
			result.WriteString(fmt.Sprintf("[%s] %s", msg.TimeLabel, sender))
			if msg.Outgoing {
				result.WriteString(fmt.Sprintf(" (%s)", msg.State))
			}
			result.WriteString(":\n")

			if msg.Type == domain.MessageTypeText {
				result.WriteString(fmt.Sprintf("  %s\n", msg.Text))
			} else {
				result.WriteString(fmt.Sprintf("  [%s] %s\n", msg.Type, msg.URL))
			}
			result.WriteString(fmt.Sprintf("  Key: %s\n", msg.Key))
		}
	}
	if view.HasMore {
		result.WriteString("\nOlder messages available.\n")
	}
	return result.String()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
