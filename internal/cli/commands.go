package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/skip2/go-qrcode"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
	"github.com/clippy-oss/homie/chat-sync/internal/service"
	"github.com/clippy-oss/homie/chat-sync/internal/transport/wire"
)

// errQuit is returned by Execute for /quit.
var errQuit = fmt.Errorf("quit")

// CommandHandler handles CLI commands
type CommandHandler struct {
	chat *service.ChatService
}

func NewCommandHandler(chat *service.ChatService) *CommandHandler {
	return &CommandHandler{chat: chat}
}

// Command represents a parsed command
type Command struct {
	Name string
	Args []string
}

// ParseCommand parses a command string (e.g., "/send bob Hello")
func ParseCommand(input string) (*Command, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("empty command")
	}

	if !strings.HasPrefix(input, "/") {
		return nil, fmt.Errorf("commands must start with /")
	}

	parts := strings.Fields(input)
	name := strings.TrimPrefix(parts[0], "/")
	if name == "" {
		return nil, fmt.Errorf("empty command")
	}

	return &Command{Name: name, Args: parts[1:]}, nil
}

// Execute executes a command and returns the result
func (h *CommandHandler) Execute(ctx context.Context, cmd *Command) (interface{}, error) {
	switch cmd.Name {
	case "help", "h":
		return h.cmdHelp()
	case "status", "s":
		return h.chat.Status(), nil
	case "whoami":
		return h.cmdWhoami()
	case "chats", "ls":
		return h.cmdChats(ctx, cmd.Args)
	case "open", "o":
		return h.cmdOpen(ctx, cmd.Args)
	case "opengroup", "og":
		return h.cmdOpenGroup(ctx, cmd.Args)
	case "close":
		return h.cmdClose(cmd.Args)
	case "messages", "msg":
		return h.cmdMessages(cmd.Args)
	case "send":
		return h.cmdSend(ctx, cmd.Args)
	case "seen", "read":
		return h.cmdSeen(ctx, cmd.Args)
	case "older":
		return h.cmdOlder(ctx, cmd.Args)
	case "group":
		return h.cmdGroup(ctx, cmd.Args)
	case "quit", "exit", "q":
		return nil, errQuit
	default:
		return nil, fmt.Errorf("unknown command: %s. Type /help for available commands", cmd.Name)
	}
}

func (h *CommandHandler) cmdHelp() (interface{}, error) {
	help := `Available commands:

Account:
  /status, /s              Show user, chat count, unread total and open rooms
  /whoami                  Show your user id as a QR code

Chats:
  /chats, /ls [filter] [search]  List chats (filter: all, read, unread, groups)
  /open, /o <user>         Open a private chat
  /opengroup, /og <group>  Open a group chat
  /close <room>            Close an open chat
  /group <name> <user...>  Create a group with the given users

Messages (room is a room id or, for private chats, the user id):
  /messages, /msg <room>   Show the messages of an open chat
  /send <room> <text>      Send a text message
  /seen, /read <room> [key...]  Mark messages read (all shown when no keys)
  /older <room>            Load older messages

Other:
  /help, /h                Show this help
  /quit, /exit, /q         Exit the CLI`

	return Message{Message: help}, nil
}

func (h *CommandHandler) cmdWhoami() (interface{}, error) {
	id := h.chat.Identity()
	info := IdentityInfo{UserID: id.UserID, Name: id.Name, Phone: id.Phone}

	qr, err := qrcode.New(id.UserID, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR code: %w", err)
	}
	info.QRCode = qr.ToSmallString(false)
	return info, nil
}

func (h *CommandHandler) cmdChats(ctx context.Context, args []string) (interface{}, error) {
	filter := service.FilterAll
	if len(args) > 0 {
		if f, err := service.ParseFilter(args[0]); err == nil {
			filter = f
			args = args[1:]
		}
	}
	search := strings.Join(args, " ")

	chats, err := h.chat.ListChats(ctx, filter, search)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}

	return ChatList{
		Chats:       wire.ChatsFromDomain(chats),
		Count:       len(chats),
		TotalUnread: h.chat.TotalUnread(),
	}, nil
}

func (h *CommandHandler) cmdOpen(ctx context.Context, args []string) (interface{}, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("usage: /open <user>")
	}
	view, err := h.chat.OpenPrivate(ctx, args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to open chat: %w", err)
	}
	return view, nil
}

func (h *CommandHandler) cmdOpenGroup(ctx context.Context, args []string) (interface{}, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("usage: /opengroup <group>")
	}
	view, err := h.chat.OpenGroup(ctx, args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to open group: %w", err)
	}
	return view, nil
}

func (h *CommandHandler) cmdClose(args []string) (interface{}, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("usage: /close <room>")
	}
	if err := h.chat.CloseRoom(args[0]); err != nil {
		return nil, err
	}
	return Message{Message: "Closed " + args[0]}, nil
}

func (h *CommandHandler) cmdMessages(args []string) (interface{}, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("usage: /messages <room>")
	}
	return h.chat.GetMessages(args[0])
}

func (h *CommandHandler) cmdSend(ctx context.Context, args []string) (interface{}, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("usage: /send <room> <text>")
	}

	msg, err := h.chat.SendMessage(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	return wire.MessageFromDomain(msg), nil
}

func (h *CommandHandler) cmdSeen(ctx context.Context, args []string) (interface{}, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("usage: /seen <room> [key...]")
	}

	var (
		n   int
		err error
	)
	if len(args) > 1 {
		n, err = h.chat.MarkVisible(ctx, args[0], args[1:])
	} else {
		n, err = h.chat.MarkAllVisible(ctx, args[0])
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark as read: %w", err)
	}
	return MarkResult{Room: args[0], Marked: n}, nil
}

func (h *CommandHandler) cmdOlder(ctx context.Context, args []string) (interface{}, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("usage: /older <room>")
	}
	view, n, err := h.chat.LoadOlder(ctx, args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to load older messages: %w", err)
	}
	return OlderResult{Loaded: n, Room: view}, nil
}

func (h *CommandHandler) cmdGroup(ctx context.Context, args []string) (interface{}, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("usage: /group <name> <user...>")
	}

	g, err := h.chat.CreateGroup(ctx, args[0], args[1:])
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	members := g.MemberIDs()
	sort.Strings(members)
	return GroupInfo{GroupID: g.GroupID, Name: g.Name, Members: members}, nil
}

// SubscribeEvents streams bus events until the returned cancel is called.
// An empty eventTypes subscribes to everything.
func (h *CommandHandler) SubscribeEvents(eventTypes []domain.EventType) (<-chan Event, func()) {
	bus := h.chat.EventBus()
	domainChan := bus.Subscribe(eventTypes)

	resultChan := make(chan Event)
	done := make(chan struct{})

	go func() {
		defer close(resultChan)
		for {
			select {
			case <-done:
				return
			case evt, ok := <-domainChan:
				if !ok {
					return
				}
				ev, ok := wire.EventFromDomain(evt)
				if !ok {
					continue
				}
				select {
				case resultChan <- Event{Type: string(ev.Type), Timestamp: ev.Timestamp, Data: ev}:
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	return resultChan, func() {
		once.Do(func() {
			close(done)
			bus.Unsubscribe(domainChan)
		})
	}
}
