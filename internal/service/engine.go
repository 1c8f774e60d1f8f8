package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
	"github.com/clippy-oss/homie/chat-sync/internal/encryption"
	"github.com/clippy-oss/homie/chat-sync/internal/realtime"
)

const defaultPageSize = 50

// Notifier is told about every message this client sends. Implementations
// forward it to out-of-band channels such as push notifications.
type Notifier interface {
	RoomMessageCreated(ctx context.Context, roomID domain.RoomID, msg *domain.Message) error
	UserMessageCreated(ctx context.Context, roomID domain.RoomID, msg *domain.Message, recipient string) error
}

type EngineConfig struct {
	Identity domain.Identity
	// PageSize windows the live subscription of a room to its newest
	// messages and sizes history pages. 0 disables the window.
	PageSize int
	Location *time.Location
	Clock    func() time.Time
}

// Engine opens rooms: it resets the opener's unread count, shows the cached
// snapshot, subscribes to the room and keeps delivery state moving.
type Engine struct {
	cfg EngineConfig

	store      realtime.Store
	cipher     encryption.Cipher
	messages   *MessageStore
	tracker    *DeliveryTracker
	counter    *UnreadCounter
	directory  *Directory
	groups     *GroupService
	dispatcher *Dispatcher
	notifier   Notifier
	bus        domain.EventBus
	log        zerolog.Logger

	mu    sync.Mutex
	rooms map[domain.RoomID]*Room
}

type EngineDeps struct {
	Store      realtime.Store
	Cipher     encryption.Cipher
	Messages   *MessageStore
	Tracker    *DeliveryTracker
	Counter    *UnreadCounter
	Directory  *Directory
	Groups     *GroupService
	Dispatcher *Dispatcher
	// Notifier is optional.
	Notifier Notifier
	Bus      domain.EventBus
	Log      zerolog.Logger
}

func NewEngine(cfg EngineConfig, deps EngineDeps) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Engine{
		cfg:        cfg,
		store:      deps.Store,
		cipher:     deps.Cipher,
		messages:   deps.Messages,
		tracker:    deps.Tracker,
		counter:    deps.Counter,
		directory:  deps.Directory,
		groups:     deps.Groups,
		dispatcher: deps.Dispatcher,
		notifier:   deps.Notifier,
		bus:        deps.Bus,
		log:        deps.Log,
		rooms:      make(map[domain.RoomID]*Room),
	}
}

func (e *Engine) Identity() domain.Identity { return e.cfg.Identity }

// Target names the conversation to open: a peer for a private room or a
// group identifier.
type Target struct {
	PeerID  string
	GroupID string
}

func PrivateTarget(peerID string) Target { return Target{PeerID: peerID} }

func GroupTarget(groupID string) Target { return Target{GroupID: groupID} }

// RoomID resolves the target for the given viewer.
func (t Target) RoomID(self string) (domain.RoomID, error) {
	switch {
	case t.PeerID != "" && t.GroupID != "", t.PeerID == "" && t.GroupID == "":
		return "", ErrInvalidTarget
	case t.PeerID != "":
		if !domain.ValidIdentifier(t.PeerID) {
			return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, t.PeerID)
		}
		return domain.PrivateRoomID(self, t.PeerID), nil
	}
	return domain.GroupRoomID(t.GroupID), nil
}

// OpenRoom opens the room for target, or returns it if it is already open.
// ctx bounds the opening steps only; the room lives until Close.
func (e *Engine) OpenRoom(ctx context.Context, target Target) (*Room, error) {
	self := e.cfg.Identity.UserID
	roomID, err := target.RoomID(self)
	if err != nil {
		return nil, err
	}
	log := e.log.With().Str("room", roomID.String()).Logger()

	e.mu.Lock()
	existing := e.rooms[roomID]
	e.mu.Unlock()
	if existing != nil {
		e.resetUnread(ctx, roomID, log)
		return existing, nil
	}

	info := roomInfo{id: roomID}
	if target.GroupID != "" {
		g, err := e.groups.Get(ctx, target.GroupID)
		if err != nil {
			return nil, err
		}
		if !g.IsMember(self) {
			log.Warn().Msg("Opening group the current user is not a member of")
		}
		info.kind = domain.ChatTypeGroup
		info.group = g
		info.name = g.Name
		if info.name == "" {
			info.name = DefaultGroupName
		}
	} else {
		peer, err := e.directory.User(ctx, target.PeerID)
		if err != nil {
			return nil, err
		}
		if peer == nil {
			peer = &domain.User{ID: target.PeerID}
		}
		info.kind = domain.ChatTypePrivate
		info.peer = peer
		info.name = peer.DisplayName()
	}

	e.resetUnread(ctx, roomID, log)

	cached, err := e.messages.LoadCached(ctx, roomID)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load cached messages")
	}

	room := newRoom(e, info, log)
	room.seed(cached)

	var opts []realtime.SubscribeOption
	if e.cfg.PageSize > 0 {
		opts = append(opts, realtime.LimitToLast(e.cfg.PageSize))
	}
	sub, err := e.store.Subscribe(room.ctx, roomPath(roomID), opts...)
	if err != nil {
		room.cancel()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", roomID, err)
	}

	e.mu.Lock()
	if other := e.rooms[roomID]; other != nil {
		e.mu.Unlock()
		sub.Cancel()
		room.cancel()
		return other, nil
	}
	e.rooms[roomID] = room
	e.mu.Unlock()

	room.start(sub)
	log.Info().Str("name", info.name).Int("cached", len(cached)).Msg("Room opened")
	return room, nil
}

func (e *Engine) resetUnread(ctx context.Context, roomID domain.RoomID, log zerolog.Logger) {
	if err := e.counter.Reset(ctx, roomID, e.cfg.Identity.UserID); err != nil {
		log.Warn().Err(err).Msg("Failed to reset unread count")
	}
}

// Room returns an open room.
func (e *Engine) Room(roomID domain.RoomID) (*Room, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rooms[roomID]
	return r, ok
}

// OpenRooms lists the identifiers of every open room.
func (e *Engine) OpenRooms() []domain.RoomID {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]domain.RoomID, 0, len(e.rooms))
	for id := range e.rooms {
		ids = append(ids, id)
	}
	return ids
}

func (e *Engine) forget(r *Room) {
	e.mu.Lock()
	if e.rooms[r.info.id] == r {
		delete(e.rooms, r.info.id)
	}
	e.mu.Unlock()
	e.tracker.Forget(r.info.id)
	e.messages.Drop(r.info.id)
}

// Close closes every open room.
func (e *Engine) Close() {
	e.mu.Lock()
	rooms := make([]*Room, 0, len(e.rooms))
	for _, r := range e.rooms {
		rooms = append(rooms, r)
	}
	e.mu.Unlock()

	for _, r := range rooms {
		r.Close()
	}
}

// fanout increments the receivers' unread counters and notifies the broker
// in the background. It never blocks the sender.
func (e *Engine) fanout(info roomInfo, msg *domain.Message) {
	sender := msg.SenderID

	if info.kind == domain.ChatTypePrivate {
		if info.peer.ID != sender {
			e.increment(info.id, info.peer.ID)
		}
		e.notify(info.id, msg, []string{info.peer.ID})
		return
	}

	groupID := info.group.GroupID
	e.dispatcher.Go(Task{
		Name:   "resolve-members",
		RoomID: info.id,
		Run: func(ctx context.Context) error {
			members, err := e.groups.Members(ctx, groupID)
			if err != nil {
				return err
			}
			recipients := make([]string, 0, len(members))
			for id := range members {
				if id == sender {
					continue
				}
				recipients = append(recipients, id)
				e.increment(info.id, id)
			}
			e.notify(info.id, msg, recipients)
			return nil
		},
	})
}

func (e *Engine) increment(roomID domain.RoomID, userID string) {
	e.dispatcher.Go(Task{
		Name:   "increment-unread",
		RoomID: roomID,
		UserID: userID,
		Run: func(ctx context.Context) error {
			_, err := e.counter.Increment(ctx, roomID, userID)
			return err
		},
	})
}

// notify publishes the room announcement and each recipient's notification.
// Every publish is its own task and is retried alone.
func (e *Engine) notify(roomID domain.RoomID, msg *domain.Message, recipients []string) {
	if e.notifier == nil {
		return
	}
	e.dispatcher.Go(Task{
		Name:   "notify-room",
		RoomID: roomID,
		Run: func(ctx context.Context) error {
			return e.notifier.RoomMessageCreated(ctx, roomID, msg)
		},
	})
	for _, userID := range recipients {
		userID := userID
		e.dispatcher.Go(Task{
			Name:   "notify-user",
			RoomID: roomID,
			UserID: userID,
			Run: func(ctx context.Context) error {
				return e.notifier.UserMessageCreated(ctx, roomID, msg, userID)
			},
		})
	}
}
