package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
	"github.com/clippy-oss/homie/chat-sync/internal/realtime"
)

type roomInfo struct {
	id    domain.RoomID
	kind  domain.ChatType
	name  string
	peer  *domain.User
	group *domain.Group
}

// RoomView is the rendered state of a room.
type RoomView struct {
	RoomID       domain.RoomID   `json:"room_id"`
	Type         domain.ChatType `json:"type"`
	Name         string          `json:"name"`
	Groups       []DateGroup     `json:"groups"`
	MessageCount int             `json:"message_count"`
	HasMore      bool            `json:"has_more"`
	FromCache    bool            `json:"from_cache"`
}

// Room is an open conversation. A single goroutine applies the room's
// snapshots in the order the store emitted them; other goroutines only read
// copies of its state.
type Room struct {
	engine *Engine
	info   roomInfo
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	sub    *realtime.Subscription

	cmds      chan func()
	updates   chan RoomView
	actorDone chan struct{}
	closeOnce sync.Once

	mu        sync.RWMutex
	live      []*domain.Message
	history   []*domain.Message
	hasMore   bool
	fromCache bool
	seenLive  bool
	known     map[string]struct{}
	view      RoomView
}

func newRoom(e *Engine, info roomInfo, log zerolog.Logger) *Room {
	ctx, cancel := context.WithCancel(context.Background())
	return &Room{
		engine:    e,
		info:      info,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		cmds:      make(chan func()),
		updates:   make(chan RoomView, 1),
		actorDone: make(chan struct{}),
		known:     make(map[string]struct{}),
	}
}

func (r *Room) ID() domain.RoomID     { return r.info.id }
func (r *Room) Name() string          { return r.info.name }
func (r *Room) Type() domain.ChatType { return r.info.kind }

// View returns the latest rendered state.
func (r *Room) View() RoomView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view
}

// Updates emits each newly rendered view. Only the latest view is kept for
// slow readers. The channel is closed when the room closes.
func (r *Room) Updates() <-chan RoomView { return r.updates }

// Messages returns the messages currently shown, oldest first.
func (r *Room) Messages() []*domain.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.combinedLocked()
}

func (r *Room) HasMore() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hasMore
}

func (r *Room) Closed() bool {
	return r.ctx.Err() != nil
}

// seed shows the cached snapshot before the live subscription starts.
func (r *Room) seed(cached []*domain.Message) {
	r.mu.Lock()
	r.live = cached
	r.fromCache = true
	for _, m := range cached {
		r.known[m.Key] = struct{}{}
	}
	r.hasMore = r.windowFullLocked()
	view := r.renderLocked()
	r.mu.Unlock()

	r.publish(view)
}

func (r *Room) start(sub *realtime.Subscription) {
	r.sub = sub
	go r.run()
}

func (r *Room) run() {
	defer close(r.actorDone)
	defer close(r.updates)

	for {
		select {
		case snap, ok := <-r.sub.Updates():
			if !ok {
				return
			}
			r.applySnapshot(snap)
		case cmd := <-r.cmds:
			cmd()
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Room) applySnapshot(snap realtime.Snapshot) {
	e := r.engine
	self := e.cfg.Identity.UserID
	msgs := decodeMessages(snap.Children(), e.cipher, r.log)

	members := r.members()
	for _, m := range msgs {
		// failures are logged by the tracker and retried on the next snapshot
		_, _ = e.tracker.MarkDelivered(r.ctx, r.info.id, m, self, members)
	}

	if err := e.messages.ApplySnapshot(r.ctx, r.info.id, msgs); err != nil {
		r.log.Warn().Err(err).Msg("Failed to persist room snapshot")
	}

	r.mu.Lock()
	var arrived []*domain.Message
	for _, m := range msgs {
		if _, ok := r.known[m.Key]; !ok {
			r.known[m.Key] = struct{}{}
			if r.seenLive && m.SenderID != self {
				arrived = append(arrived, m)
			}
		}
	}
	r.seenLive = true
	if len(r.history) > 0 && len(msgs) > 0 {
		// keep messages that slid out of the window between history and live
		first := msgs[0].Key
		for _, m := range r.live {
			if m.Key < first {
				r.history = append(r.history, m)
			}
		}
	}
	r.live = msgs
	r.fromCache = false
	if len(r.history) == 0 {
		r.hasMore = r.windowFullLocked()
	}
	view := r.renderLocked()
	r.mu.Unlock()

	now := e.cfg.Clock()
	for _, m := range arrived {
		e.bus.Publish(domain.MessageReceivedEvent{RoomID: r.info.id, Message: m, EventTime: now})
	}
	r.publish(view)
}

func (r *Room) windowFullLocked() bool {
	size := r.engine.cfg.PageSize
	return size > 0 && len(r.live) >= size
}

// combinedLocked merges loaded history ahead of the live window. History
// entries the live window already covers are dropped.
func (r *Room) combinedLocked() []*domain.Message {
	out := make([]*domain.Message, 0, len(r.history)+len(r.live))
	if len(r.live) == 0 {
		out = append(out, r.history...)
		return out
	}
	first := r.live[0].Key
	for _, h := range r.history {
		if h.Key < first {
			out = append(out, h)
		}
	}
	return append(out, r.live...)
}

func (r *Room) renderLocked() RoomView {
	e := r.engine
	combined := r.combinedLocked()
	r.view = RoomView{
		RoomID:       r.info.id,
		Type:         r.info.kind,
		Name:         r.info.name,
		Groups:       GroupByDate(combined, e.cfg.Identity.UserID, e.cfg.Clock(), e.cfg.Location),
		MessageCount: len(combined),
		HasMore:      r.hasMore,
		FromCache:    r.fromCache,
	}
	return r.view
}

func (r *Room) publish(view RoomView) {
	select {
	case r.updates <- view:
	default:
		select {
		case <-r.updates:
		default:
		}
		select {
		case r.updates <- view:
		default:
		}
	}

	r.engine.bus.Publish(domain.RoomUpdatedEvent{
		RoomID:       r.info.id,
		MessageCount: view.MessageCount,
		FromCache:    view.FromCache,
		EventTime:    r.engine.cfg.Clock(),
	})
}

func (r *Room) members() map[string]domain.Member {
	if r.info.group == nil {
		return nil
	}
	return r.info.group.Members
}

func (r *Room) receiver() *domain.User {
	if r.info.peer == nil {
		return nil
	}
	u := *r.info.peer
	return &u
}

// submit runs fn on the room goroutine and waits for it.
func (r *Room) submit(fn func()) error {
	done := make(chan struct{})
	select {
	case r.cmds <- func() { fn(); close(done) }:
	case <-r.ctx.Done():
		return ErrRoomClosed
	}
	<-done
	return nil
}

// Send encrypts and appends a text message, then fans out unread counter
// increments in the background.
func (r *Room) Send(ctx context.Context, text string) (*domain.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	if r.Closed() {
		return nil, ErrRoomClosed
	}
	e := r.engine
	ciphertext, err := e.cipher.Encrypt(text)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt message: %w", err)
	}
	msg := domain.NewTextMessage(uuid.NewString(), e.cfg.Identity, r.receiver(), ciphertext, e.cfg.Clock().UTC())
	msg.Plaintext = text
	return r.append(ctx, msg)
}

// SendMedia appends a media message referring to url.
func (r *Room) SendMedia(ctx context.Context, msgType domain.MessageType, url string) (*domain.Message, error) {
	if !msgType.Valid() || msgType == domain.MessageTypeText {
		return nil, fmt.Errorf("unsupported media type %q", msgType)
	}
	if strings.TrimSpace(url) == "" {
		return nil, ErrEmptyMessage
	}
	if r.Closed() {
		return nil, ErrRoomClosed
	}
	e := r.engine
	msg := domain.NewMediaMessage(uuid.NewString(), e.cfg.Identity, r.receiver(), msgType, url, e.cfg.Clock().UTC())
	return r.append(ctx, msg)
}

func (r *Room) append(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	e := r.engine
	key, err := e.store.Append(ctx, roomPath(r.info.id), msg)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	msg.Key = key

	e.fanout(r.info, msg)
	e.bus.Publish(domain.MessageSentEvent{RoomID: r.info.id, Message: msg, EventTime: e.cfg.Clock()})
	r.log.Debug().Str("key", key).Str("type", string(msg.Type)).Msg("Message sent")
	return msg, nil
}

// MarkVisible records that the messages with the given keys were shown to
// the current user. Only messages addressed to the user are marked read.
// It returns the number of read writes issued.
func (r *Room) MarkVisible(ctx context.Context, keys ...string) (int, error) {
	if r.Closed() {
		return 0, ErrRoomClosed
	}
	r.mu.RLock()
	idx := indexByKey(r.combinedLocked())
	r.mu.RUnlock()

	self := r.engine.cfg.Identity.UserID
	members := r.members()
	var errs []error
	n := 0
	for _, key := range keys {
		m, ok := idx[key]
		if !ok {
			continue
		}
		issued, err := r.engine.tracker.MarkRead(ctx, r.info.id, m, self, members)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if issued {
			n++
		}
	}
	return n, errors.Join(errs...)
}

// LoadOlder fetches the page of messages preceding the oldest one shown and
// returns how many were added.
func (r *Room) LoadOlder(ctx context.Context) (int, error) {
	if r.Closed() {
		return 0, ErrRoomClosed
	}
	e := r.engine
	pager, ok := e.store.(realtime.Pager)
	if !ok {
		return 0, r.submit(func() {
			r.mu.Lock()
			r.hasMore = false
			r.mu.Unlock()
		})
	}

	r.mu.RLock()
	combined := r.combinedLocked()
	r.mu.RUnlock()
	if len(combined) == 0 {
		return 0, nil
	}
	before := combined[0].Key

	limit := e.cfg.PageSize
	if limit <= 0 {
		limit = defaultPageSize
	}
	children, err := pager.Page(ctx, roomPath(r.info.id), before, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to load older messages: %w", err)
	}
	older := decodeMessages(children, e.cipher, r.log)

	self := e.cfg.Identity.UserID
	members := r.members()
	for _, m := range older {
		_, _ = e.tracker.MarkDelivered(ctx, r.info.id, m, self, members)
	}

	added := 0
	err = r.submit(func() {
		r.mu.Lock()
		oldest := before
		if cur := r.combinedLocked(); len(cur) > 0 {
			oldest = cur[0].Key
		}
		page := make([]*domain.Message, 0, len(older))
		for _, m := range older {
			if m.Key < oldest {
				page = append(page, m)
				r.known[m.Key] = struct{}{}
			}
		}
		added = len(page)
		r.history = append(page, r.history...)
		r.hasMore = len(children) == limit
		view := r.renderLocked()
		r.mu.Unlock()
		r.publish(view)
	})
	return added, err
}

// Close stops the room's subscription and goroutine. It is idempotent and
// leaves other rooms untouched.
func (r *Room) Close() {
	r.closeOnce.Do(func() {
		r.cancel()
		r.sub.Cancel()
		<-r.actorDone
		r.engine.forget(r)
		r.log.Info().Msg("Room closed")
	})
}
