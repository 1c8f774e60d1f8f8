package grpc

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
	"github.com/clippy-oss/homie/chat-sync/internal/realtime"
	"github.com/clippy-oss/homie/chat-sync/internal/service"
	"github.com/clippy-oss/homie/chat-sync/internal/transport/wire"
)

type Handler struct {
	chat *service.ChatService
	log  zerolog.Logger
}

func NewHandler(chat *service.ChatService, log zerolog.Logger) *Handler {
	return &Handler{chat: chat, log: log}
}

func (h *Handler) ListChats(ctx context.Context, req *ListChatsRequest) (*ListChatsResponse, error) {
	filter, err := service.ParseFilter(req.Filter)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	chats, err := h.chat.ListChats(ctx, filter, req.Search)
	if err != nil {
		return nil, toStatus(err, "failed to list chats")
	}
	return &ListChatsResponse{
		Chats:       wire.ChatsFromDomain(chats),
		TotalUnread: h.chat.TotalUnread(),
	}, nil
}

func (h *Handler) OpenRoom(ctx context.Context, req *OpenRoomRequest) (*RoomResponse, error) {
	view, err := h.chat.OpenChat(ctx, service.Target{PeerID: req.PeerID, GroupID: req.GroupID})
	if err != nil {
		return nil, toStatus(err, "failed to open room")
	}
	return &RoomResponse{Room: view}, nil
}

func (h *Handler) GetMessages(ctx context.Context, req *RoomRequest) (*RoomResponse, error) {
	view, err := h.chat.GetMessages(req.Room)
	if err != nil {
		return nil, toStatus(err, "failed to get messages")
	}
	return &RoomResponse{Room: view}, nil
}

func (h *Handler) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	var (
		msg *domain.Message
		err error
	)
	msgType := domain.MessageType(req.Type)
	if msgType == "" || msgType == domain.MessageTypeText {
		msg, err = h.chat.SendMessage(ctx, req.Room, req.Text)
	} else {
		msg, err = h.chat.SendMedia(ctx, req.Room, msgType, req.URL)
	}
	if err != nil {
		return nil, toStatus(err, "failed to send message")
	}
	return &SendMessageResponse{Message: wire.MessageFromDomain(msg)}, nil
}

func (h *Handler) MarkVisible(ctx context.Context, req *MarkVisibleRequest) (*MarkVisibleResponse, error) {
	var (
		n   int
		err error
	)
	if len(req.Keys) == 0 {
		n, err = h.chat.MarkAllVisible(ctx, req.Room)
	} else {
		n, err = h.chat.MarkVisible(ctx, req.Room, req.Keys)
	}
	if err != nil {
		return nil, toStatus(err, "failed to mark messages read")
	}
	return &MarkVisibleResponse{Marked: n}, nil
}

func (h *Handler) CloseRoom(ctx context.Context, req *RoomRequest) (*CloseRoomResponse, error) {
	if err := h.chat.CloseRoom(req.Room); err != nil {
		return nil, toStatus(err, "failed to close room")
	}
	return &CloseRoomResponse{}, nil
}

func (h *Handler) StreamEvents(req *StreamEventsRequest, stream EventStream) error {
	bus := h.chat.EventBus()
	eventCh := bus.Subscribe(wire.ParseEventTypes(req.Types))
	defer bus.Unsubscribe(eventCh)

	if err := stream.SendHeader(metadata.MD{}); err != nil {
		return err
	}

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case event, ok := <-eventCh:
			if !ok {
				return nil
			}
			ev, ok := wire.EventFromDomain(event)
			if !ok {
				continue
			}
			if err := stream.Send(&ev); err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
		}
	}
}

// toStatus maps service errors to gRPC status codes.
func toStatus(err error, msg string) error {
	code := codes.Internal
	switch {
	case errors.Is(err, service.ErrInvalidIdentifier),
		errors.Is(err, service.ErrInvalidTarget),
		errors.Is(err, service.ErrEmptyMessage):
		code = codes.InvalidArgument
	case errors.Is(err, service.ErrRoomNotOpen), errors.Is(err, service.ErrGroupNotFound):
		code = codes.NotFound
	case errors.Is(err, service.ErrRoomClosed):
		code = codes.FailedPrecondition
	case realtime.IsTransient(err), errors.Is(err, service.ErrDeliveryWrite):
		code = codes.Unavailable
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	return status.Errorf(code, "%s: %v", msg, err)
}
