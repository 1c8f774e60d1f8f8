package mcp

import (
	"context"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/chat-sync/internal/service"
)

type ServerConfig struct {
	Address string
}

type Server struct {
	mcpServer  *server.MCPServer
	sseServer  *server.SSEServer
	httpServer *http.Server
	chat       *service.ChatService
	config     ServerConfig
	log        zerolog.Logger
}

func NewServer(chat *service.ChatService, config ServerConfig, log zerolog.Logger) *Server {
	s := &Server{
		chat:   chat,
		config: config,
		log:    log,
	}

	s.mcpServer = server.NewMCPServer(
		"chat-sync",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools()

	s.sseServer = server.NewSSEServer(s.mcpServer,
		server.WithKeepAliveInterval(30*time.Second),
	)

	return s
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("chat_list_chats",
			mcp.WithDescription("List chats, unread first, with their last message and unread count"),
			mcp.WithString("filter",
				mcp.Description("One of: all, read, unread, groups (default all)"),
			),
			mcp.WithString("search",
				mcp.Description("Case-insensitive match on the chat name or last message"),
			),
		),
		s.handleListChats,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("chat_open_room",
			mcp.WithDescription("Open a private chat with a user or a group chat and start syncing it. Opening resets your unread count."),
			mcp.WithString("peer_id",
				mcp.Description("User identifier for a private chat"),
			),
			mcp.WithString("group_id",
				mcp.Description("Group identifier for a group chat"),
			),
		),
		s.handleOpenRoom,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("chat_get_messages",
			mcp.WithDescription("Get the messages currently shown in an open chat, grouped by day"),
			mcp.WithString("room",
				mcp.Required(),
				mcp.Description("Room identifier, or the peer's user identifier for a private chat"),
			),
		),
		s.handleGetMessages,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("chat_load_older",
			mcp.WithDescription("Load the previous page of history into an open chat"),
			mcp.WithString("room",
				mcp.Required(),
				mcp.Description("Room identifier or peer user identifier"),
			),
		),
		s.handleLoadOlder,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("chat_send_message",
			mcp.WithDescription("Send an encrypted text message to an open chat"),
			mcp.WithString("room",
				mcp.Required(),
				mcp.Description("Room identifier or peer user identifier"),
			),
			mcp.WithString("text",
				mcp.Required(),
				mcp.Description("Message text to send"),
			),
		),
		s.handleSendMessage,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("chat_mark_read",
			mcp.WithDescription("Mark messages of an open chat as read"),
			mcp.WithString("room",
				mcp.Required(),
				mcp.Description("Room identifier or peer user identifier"),
			),
			mcp.WithString("keys",
				mcp.Description("Comma-separated message keys. Omit to mark every shown message."),
			),
		),
		s.handleMarkRead,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("chat_close_room",
			mcp.WithDescription("Stop syncing an open chat"),
			mcp.WithString("room",
				mcp.Required(),
				mcp.Description("Room identifier or peer user identifier"),
			),
		),
		s.handleCloseRoom,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("chat_create_group",
			mcp.WithDescription("Create a group chat with you and the given users"),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("Group name"),
			),
			mcp.WithString("members",
				mcp.Required(),
				mcp.Description("Comma-separated user identifiers"),
			),
		),
		s.handleCreateGroup,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("chat_status",
			mcp.WithDescription("Show the signed-in user, the number of chats, total unread and open rooms"),
		),
		s.handleStatus,
	)
}

func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.Handle("/sse", s.sseServer.SSEHandler())
	mux.Handle("/message", s.sseServer.MessageHandler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	s.httpServer = &http.Server{
		Addr:    s.config.Address,
		Handler: mux,
	}

	s.log.Info().Str("address", s.config.Address).Msg("MCP SSE server listening")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
