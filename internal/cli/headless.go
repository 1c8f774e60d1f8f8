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
)

// HeadlessCLI handles JSON-based headless operation: one request per input
// line, one response per output line, with events interleaved.
type HeadlessCLI struct {
	handler *CommandHandler
	reader  *bufio.Reader
	writer  io.Writer
	mu      sync.Mutex
}

func NewHeadlessCLI(handler *CommandHandler, in io.Reader, out io.Writer) *HeadlessCLI {
	return &HeadlessCLI{
		handler: handler,
		reader:  bufio.NewReader(in),
		writer:  out,
	}
}

// Run processes requests until EOF, a quit command or ctx is done.
func (cli *HeadlessCLI) Run(ctx context.Context) error {
	cli.sendResponse(Response{
		Success: true,
		Data:    map[string]string{"status": "ready", "mode": string(ModeHeadless)},
	})

	eventChan, unsubscribe := cli.handler.SubscribeEvents(nil)
	defer unsubscribe()
	go cli.streamEvents(eventChan)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			line, err := cli.reader.ReadString('\n')
			if strings.TrimSpace(line) != "" {
				if quit := cli.processRequest(ctx, line); quit {
					return nil
				}
			}
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return fmt.Errorf("read error: %w", err)
			}
		}
	}
}

func (cli *HeadlessCLI) processRequest(ctx context.Context, line string) (quit bool) {
	var req Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		cli.sendError("", fmt.Sprintf("invalid JSON: %v", err))
		return false
	}

	if req.Command == "" {
		cli.sendError(req.ID, "missing command field")
		return false
	}

	if req.Command == "subscribe" {
		cli.sendResponse(Response{
			ID:      req.ID,
			Success: true,
			Data:    Message{Message: "subscribed to events"},
		})
		return false
	}

	cmd := &Command{Name: req.Command, Args: paramsToArgs(req.Command, req.Params)}
	result, err := cli.handler.Execute(ctx, cmd)
	if errors.Is(err, errQuit) {
		cli.sendResponse(Response{ID: req.ID, Success: true, Data: Message{Message: "goodbye"}})
		return true
	}
	if err != nil {
		cli.sendError(req.ID, err.Error())
		return false
	}

	cli.sendResponse(Response{
		ID:      req.ID,
		Success: true,
		Data:    result,
	})
	return false
}

func paramsToArgs(command string, params map[string]interface{}) []string {
	if params == nil {
		return nil
	}

	var args []string
	str := func(key string) {
		if v, ok := params[key].(string); ok && v != "" {
			args = append(args, v)
		}
	}
	list := func(key string) {
		switch v := params[key].(type) {
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					args = append(args, s)
				}
			}
		case string:
			args = append(args, strings.Fields(strings.ReplaceAll(v, ",", " "))...)
		}
	}

	switch command {
	case "chats", "ls":
		str("filter")
		str("search")
	case "open", "o":
		str("user")
	case "opengroup", "og":
		str("group")
	case "close", "messages", "msg", "older":
		str("room")
	case "send":
		str("room")
		str("text")
	case "seen", "read":
		str("room")
		list("keys")
	case "group":
		str("name")
		list("members")
	}

	return args
}

func (cli *HeadlessCLI) streamEvents(eventChan <-chan Event) {
	for event := range eventChan {
		cli.sendEvent(event)
	}
}

func (cli *HeadlessCLI) sendResponse(resp Response) {
	cli.mu.Lock()
	defer cli.mu.Unlock()

	data, _ := json.Marshal(resp)
	fmt.Fprintln(cli.writer, string(data))
}

func (cli *HeadlessCLI) sendError(id, message string) {
	cli.sendResponse(Response{
		ID:      id,
		Success: false,
		Error:   message,
	})
}

func (cli *HeadlessCLI) sendEvent(event Event) {
	cli.mu.Lock()
	defer cli.mu.Unlock()

	data, _ := json.Marshal(map[string]interface{}{
		"type":      "event",
		"event":     event.Type,
		"timestamp": event.Timestamp,
		"data":      event.Data,
	})
	fmt.Fprintln(cli.writer, string(data))
}
