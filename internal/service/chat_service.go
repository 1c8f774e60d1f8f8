package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
)

// ChatService is the entry point shared by the CLI and the transports.
type ChatService struct {
	identity  domain.Identity
	engine    *Engine
	roster    *Roster
	groups    *GroupService
	directory *Directory
	bus       domain.EventBus
	log       zerolog.Logger
}

func NewChatService(
	engine *Engine,
	roster *Roster,
	groups *GroupService,
	directory *Directory,
	bus domain.EventBus,
	log zerolog.Logger,
) *ChatService {
	return &ChatService{
		identity:  engine.Identity(),
		engine:    engine,
		roster:    roster,
		groups:    groups,
		directory: directory,
		bus:       bus,
		log:       log,
	}
}

type Status struct {
	UserID      string          `json:"user_id"`
	Name        string          `json:"name"`
	Phone       string          `json:"phone"`
	Chats       int             `json:"chats"`
	TotalUnread int             `json:"total_unread"`
	OpenRooms   []domain.RoomID `json:"open_rooms"`
}

func (s *ChatService) Identity() domain.Identity { return s.identity }

func (s *ChatService) EventBus() domain.EventBus { return s.bus }

func (s *ChatService) Status() Status {
	open := s.engine.OpenRooms()
	sort.Slice(open, func(i, j int) bool { return open[i] < open[j] })
	return Status{
		UserID:      s.identity.UserID,
		Name:        s.identity.Name,
		Phone:       s.identity.Phone,
		Chats:       len(s.roster.Entries(FilterAll, "")),
		TotalUnread: s.roster.TotalUnread(),
		OpenRooms:   open,
	}
}

// ListChats refreshes the roster and returns the matching entries.
func (s *ChatService) ListChats(ctx context.Context, filter Filter, search string) ([]domain.ChatListEntry, error) {
	if err := s.roster.Refresh(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to refresh chat list")
	}
	return s.roster.Entries(filter, search), nil
}

func (s *ChatService) TotalUnread() int {
	return s.roster.TotalUnread()
}

func (s *ChatService) Users(ctx context.Context) ([]domain.User, error) {
	return s.directory.Users(ctx)
}

// OpenChat opens a room and returns its current view.
func (s *ChatService) OpenChat(ctx context.Context, target Target) (RoomView, error) {
	room, err := s.engine.OpenRoom(ctx, target)
	if err != nil {
		return RoomView{}, err
	}
	return room.View(), nil
}

func (s *ChatService) OpenPrivate(ctx context.Context, peerID string) (RoomView, error) {
	return s.OpenChat(ctx, PrivateTarget(peerID))
}

func (s *ChatService) OpenGroup(ctx context.Context, groupID string) (RoomView, error) {
	return s.OpenChat(ctx, GroupTarget(groupID))
}

// Room resolves ref to an open room. ref is a room identifier or, for
// private rooms, the peer's identifier.
func (s *ChatService) Room(ref string) (*Room, error) {
	if room, ok := s.engine.Room(domain.RoomID(ref)); ok {
		return room, nil
	}
	if domain.ValidIdentifier(ref) {
		if room, ok := s.engine.Room(domain.PrivateRoomID(s.identity.UserID, ref)); ok {
			return room, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRoomNotOpen, ref)
}

func (s *ChatService) GetMessages(ref string) (RoomView, error) {
	room, err := s.Room(ref)
	if err != nil {
		return RoomView{}, err
	}
	return room.View(), nil
}

func (s *ChatService) SendMessage(ctx context.Context, ref, text string) (*domain.Message, error) {
	room, err := s.Room(ref)
	if err != nil {
		return nil, err
	}
	return room.Send(ctx, text)
}

func (s *ChatService) SendMedia(ctx context.Context, ref string, msgType domain.MessageType, url string) (*domain.Message, error) {
	room, err := s.Room(ref)
	if err != nil {
		return nil, err
	}
	return room.SendMedia(ctx, msgType, url)
}

// MarkVisible marks the given messages of an open room as read.
func (s *ChatService) MarkVisible(ctx context.Context, ref string, keys []string) (int, error) {
	room, err := s.Room(ref)
	if err != nil {
		return 0, err
	}
	return room.MarkVisible(ctx, keys...)
}

// MarkAllVisible marks every message currently shown in a room as read.
func (s *ChatService) MarkAllVisible(ctx context.Context, ref string) (int, error) {
	room, err := s.Room(ref)
	if err != nil {
		return 0, err
	}
	msgs := room.Messages()
	keys := make([]string, len(msgs))
	for i, m := range msgs {
		keys[i] = m.Key
	}
	return room.MarkVisible(ctx, keys...)
}

func (s *ChatService) LoadOlder(ctx context.Context, ref string) (RoomView, int, error) {
	room, err := s.Room(ref)
	if err != nil {
		return RoomView{}, 0, err
	}
	n, err := room.LoadOlder(ctx)
	if err != nil {
		return RoomView{}, 0, err
	}
	return room.View(), n, nil
}

func (s *ChatService) CloseRoom(ref string) error {
	room, err := s.Room(ref)
	if err != nil {
		return err
	}
	room.Close()
	return nil
}

// CreateGroup creates a group with the current user and the given members,
// taking names and phone numbers from the directory.
func (s *ChatService) CreateGroup(ctx context.Context, name string, memberIDs []string) (*domain.Group, error) {
	members := map[string]domain.Member{
		s.identity.UserID: {Name: s.identity.Name, PhoneNumber: s.identity.Phone},
	}
	for _, id := range memberIDs {
		if !domain.ValidIdentifier(id) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
		}
		u, err := s.directory.User(ctx, id)
		if err != nil {
			return nil, err
		}
		m := domain.Member{}
		if u != nil {
			m.Name = u.Name
			m.PhoneNumber = u.PhoneNumber
		}
		members[id] = m
	}

	g, err := s.groups.Create(ctx, name, members)
	if err != nil {
		return nil, err
	}
	if err := s.roster.Refresh(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to refresh chat list")
	}
	return g, nil
}

// Close closes every room and the roster.
func (s *ChatService) Close() {
	s.engine.Close()
	s.roster.Close()
}
