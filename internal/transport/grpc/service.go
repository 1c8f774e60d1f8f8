package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/clippy-oss/homie/chat-sync/internal/service"
	"github.com/clippy-oss/homie/chat-sync/internal/transport/wire"
)

const ServiceName = "chatsync.v1.ChatSync"

type ListChatsRequest struct {
	Filter string `json:"filter,omitempty"`
	Search string `json:"search,omitempty"`
}

type ListChatsResponse struct {
	Chats       []wire.Chat `json:"chats"`
	TotalUnread int         `json:"total_unread"`
}

// OpenRoomRequest names exactly one of a peer or a group.
type OpenRoomRequest struct {
	PeerID  string `json:"peer_id,omitempty"`
	GroupID string `json:"group_id,omitempty"`
}

type RoomRequest struct {
	Room string `json:"room"`
}

type RoomResponse struct {
	Room service.RoomView `json:"room"`
}

type SendMessageRequest struct {
	Room string `json:"room"`
	Text string `json:"text,omitempty"`
	Type string `json:"type,omitempty"`
	URL  string `json:"url,omitempty"`
}

type SendMessageResponse struct {
	Message *wire.Message `json:"message"`
}

// MarkVisibleRequest marks Keys, or every shown message when Keys is empty.
type MarkVisibleRequest struct {
	Room string   `json:"room"`
	Keys []string `json:"keys,omitempty"`
}

type MarkVisibleResponse struct {
	Marked int `json:"marked"`
}

type CloseRoomResponse struct{}

type StreamEventsRequest struct {
	Types []string `json:"types,omitempty"`
}

// ChatSyncServer is implemented by Handler.
type ChatSyncServer interface {
	ListChats(context.Context, *ListChatsRequest) (*ListChatsResponse, error)
	OpenRoom(context.Context, *OpenRoomRequest) (*RoomResponse, error)
	GetMessages(context.Context, *RoomRequest) (*RoomResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	MarkVisible(context.Context, *MarkVisibleRequest) (*MarkVisibleResponse, error)
	CloseRoom(context.Context, *RoomRequest) (*CloseRoomResponse, error)
	StreamEvents(*StreamEventsRequest, EventStream) error
}

// EventStream is the server side of StreamEvents.
type EventStream interface {
	Send(*wire.Event) error
	SendHeader(metadata.MD) error
	Context() context.Context
}

type eventStream struct {
	grpc.ServerStream
}

func (s eventStream) Send(ev *wire.Event) error {
	return s.ServerStream.SendMsg(ev)
}

func RegisterChatSyncServer(s grpc.ServiceRegistrar, srv ChatSyncServer) {
	s.RegisterService(&serviceDesc, srv)
}

func unaryHandler[Req any, Resp any](method string, call func(ChatSyncServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ChatSyncServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(ChatSyncServer), ctx, req.(*Req))
			})
		},
	}
}

func streamEventsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(StreamEventsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChatSyncServer).StreamEvents(in, eventStream{stream})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatSyncServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("ListChats", ChatSyncServer.ListChats),
		unaryHandler("OpenRoom", ChatSyncServer.OpenRoom),
		unaryHandler("GetMessages", ChatSyncServer.GetMessages),
		unaryHandler("SendMessage", ChatSyncServer.SendMessage),
		unaryHandler("MarkVisible", ChatSyncServer.MarkVisible),
		unaryHandler("CloseRoom", ChatSyncServer.CloseRoom),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamEvents",
			Handler:       streamEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "chatsync/v1/chat_sync",
}

// Client calls a ChatSync server using the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in, out interface{}) error {
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, grpc.CallContentSubtype(CodecName))
}

func (c *Client) ListChats(ctx context.Context, in *ListChatsRequest) (*ListChatsResponse, error) {
	out := new(ListChatsResponse)
	return out, c.invoke(ctx, "ListChats", in, out)
}

func (c *Client) OpenRoom(ctx context.Context, in *OpenRoomRequest) (*RoomResponse, error) {
	out := new(RoomResponse)
	return out, c.invoke(ctx, "OpenRoom", in, out)
}

func (c *Client) GetMessages(ctx context.Context, in *RoomRequest) (*RoomResponse, error) {
	out := new(RoomResponse)
	return out, c.invoke(ctx, "GetMessages", in, out)
}

func (c *Client) SendMessage(ctx context.Context, in *SendMessageRequest) (*SendMessageResponse, error) {
	out := new(SendMessageResponse)
	return out, c.invoke(ctx, "SendMessage", in, out)
}

func (c *Client) MarkVisible(ctx context.Context, in *MarkVisibleRequest) (*MarkVisibleResponse, error) {
	out := new(MarkVisibleResponse)
	return out, c.invoke(ctx, "MarkVisible", in, out)
}

func (c *Client) CloseRoom(ctx context.Context, in *RoomRequest) (*CloseRoomResponse, error) {
	out := new(CloseRoomResponse)
	return out, c.invoke(ctx, "CloseRoom", in, out)
}

// EventReceiver is the client side of StreamEvents.
type EventReceiver struct {
	stream grpc.ClientStream
}

func (r *EventReceiver) Recv() (*wire.Event, error) {
	ev := new(wire.Event)
	if err := r.stream.RecvMsg(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// StreamEvents returns once the server has subscribed to the event bus.
func (c *Client) StreamEvents(ctx context.Context, in *StreamEventsRequest) (*EventReceiver, error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], "/"+ServiceName+"/StreamEvents", grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	if _, err := stream.Header(); err != nil {
		return nil, err
	}
	return &EventReceiver{stream: stream}, nil
}
