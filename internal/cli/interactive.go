package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
	"github.com/clippy-oss/homie/chat-sync/internal/service"
	"github.com/clippy-oss/homie/chat-sync/internal/transport/wire"
)

// InteractiveCLI handles interactive command-line interface
type InteractiveCLI struct {
	handler *CommandHandler
	reader  *bufio.Reader
	writer  io.Writer
	mu      sync.Mutex
}

func NewInteractiveCLI(handler *CommandHandler, in io.Reader, out io.Writer) *InteractiveCLI {
	return &InteractiveCLI{
		handler: handler,
		reader:  bufio.NewReader(in),
		writer:  out,
	}
}

// Run starts the interactive CLI loop
func (cli *InteractiveCLI) Run(ctx context.Context) error {
	cli.printWelcome()

	eventChan, unsubscribe := cli.handler.SubscribeEvents([]domain.EventType{
		domain.EventTypeMessageReceived,
		domain.EventTypeFanoutFailed,
	})
	defer unsubscribe()
	go cli.handleEvents(eventChan)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			cli.print("\n> ")
			line, err := cli.reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}

			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			if err := cli.processCommand(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					cli.println("Goodbye!")
					return nil
				}
				cli.printf("Error: %s\n", err)
			}
		}
	}
}

func (cli *InteractiveCLI) printWelcome() {
	cli.println("===========================================")
	cli.println("  Chat Sync CLI")
	cli.println("===========================================")
	cli.println("Type /help for available commands")
	cli.println("")

	st := cli.handler.chat.Status()
	cli.printf("Signed in as %s (%s), %d unread\n", st.Name, st.UserID, st.TotalUnread)
}

func (cli *InteractiveCLI) processCommand(ctx context.Context, input string) error {
	cmd, err := ParseCommand(input)
	if err != nil {
		return err
	}

	result, err := cli.handler.Execute(ctx, cmd)
	if err != nil {
		return err
	}

	cli.displayResult(result)
	return nil
}

func (cli *InteractiveCLI) displayResult(result interface{}) {
	switch r := result.(type) {
	case Message:
		cli.println(r.Message)

	case service.Status:
		cli.printf("User: %s (%s)\n", r.Name, r.UserID)
		if r.Phone != "" {
			cli.printf("  Phone: %s\n", r.Phone)
		}
		cli.printf("  Chats: %d\n", r.Chats)
		cli.printf("  Unread: %d\n", r.TotalUnread)
		cli.printf("  Open rooms: %d\n", len(r.OpenRooms))
		for _, id := range r.OpenRooms {
			cli.printf("    %s\n", id)
		}

	case IdentityInfo:
		cli.printf("%s (%s)\n", r.Name, r.UserID)
		cli.println(r.QRCode)

	case ChatList:
		cli.printf("Found %d chat(s), %d unread:\n\n", r.Count, r.TotalUnread)
		for i, chat := range r.Chats {
			unread := ""
			if chat.UnreadCount > 0 {
				unread = fmt.Sprintf(" [%d unread]", chat.UnreadCount)
			}
			cli.printf("%d. %s (%s)%s\n", i+1, chat.Name, chat.Type, unread)
			cli.printf("   Room: %s\n", chat.RoomID)
			if chat.LastMessageText != "" {
				preview := chat.LastMessageText
				if len(preview) > 50 {
					preview = preview[:50] + "..."
				}
				cli.printf("   Last: %s  %s\n", preview, chat.TimeLabel)
			}
		}

	case service.RoomView:
		cli.displayView(r)

	case OlderResult:
		cli.printf("Loaded %d older message(s)\n", r.Loaded)
		cli.displayView(r.Room)

	case *wire.Message:
		cli.printf("Message sent!\n")
		cli.printf("  Key: %s\n", r.Key)
		cli.printf("  Time: %s\n", r.Timestamp.Format("2006-01-02 15:04:05"))

	case MarkResult:
		cli.printf("Marked %d message(s) read in %s\n", r.Marked, r.Room)

	case GroupInfo:
		cli.printf("Created group %s\n", r.Name)
		cli.printf("  ID: %s\n", r.GroupID)
		cli.printf("  Members: %s\n", strings.Join(r.Members, ", "))

	default:
		data, _ := json.MarshalIndent(result, "", "  ")
		cli.println(string(data))
	}
}

func (cli *InteractiveCLI) displayView(v service.RoomView) {
	source := ""
	if v.FromCache {
		source = " (cached)"
	}
	cli.printf("%s [%s]%s\n", v.Name, v.RoomID, source)
	if v.HasMore {
		cli.println("  ... /older for earlier messages")
	}
	if v.MessageCount == 0 {
		cli.println("  No messages yet.")
		return
	}
	for _, group := range v.Groups {
		cli.printf("\n--- %s ---\n", group.Label)
		for _, msg := range group.Messages {
			sender := msg.SenderName
			state := ""
			if msg.Outgoing {
				sender = "Me"
				state = " " + stateMark(msg.State)
			}
			body := msg.Text
			if msg.Type != domain.MessageTypeText {
				body = fmt.Sprintf("[%s] %s", msg.Type, msg.URL)
			}
			cli.printf("[%s] %s: %s%s\n", msg.TimeLabel, sender, body, state)
		}
	}
}

func stateMark(s domain.DeliveryState) string {
	switch s {
	case domain.StateRead:
		return "(read)"
	case domain.StateDelivered:
		return "(delivered)"
	}
	return "(sent)"
}

func (cli *InteractiveCLI) handleEvents(eventChan <-chan Event) {
	for event := range eventChan {
		ev := event.Data
		switch ev.Type {
		case domain.EventTypeMessageReceived:
			if ev.Message == nil {
				continue
			}
			cli.printf("\n[New Message] %s from %s:\n", ev.RoomID, ev.Message.SenderName)
			if ev.Message.Type == domain.MessageTypeText {
				cli.printf("  %s\n", ev.Message.Text)
			} else {
				cli.printf("  [%s]\n", ev.Message.Type)
			}
			cli.print("> ")
		case domain.EventTypeFanoutFailed:
			cli.printf("\n[Warning] could not update %s for %s: %s\n", ev.RoomID, ev.UserID, ev.Error)
			cli.print("> ")
		}
	}
}

func (cli *InteractiveCLI) print(s string) {
	cli.mu.Lock()
	defer cli.mu.Unlock()
	fmt.Fprint(cli.writer, s)
}

func (cli *InteractiveCLI) println(s string) {
	cli.mu.Lock()
	defer cli.mu.Unlock()
	fmt.Fprintln(cli.writer, s)
}

func (cli *InteractiveCLI) printf(format string, args ...interface{}) {
	cli.mu.Lock()
	defer cli.mu.Unlock()
	fmt.Fprintf(cli.writer, format, args...)
}
