package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
	"github.com/clippy-oss/homie/chat-sync/internal/encryption"
	"github.com/clippy-oss/homie/chat-sync/internal/realtime"
)

type Filter string

const (
	FilterAll    Filter = "all"
	FilterRead   Filter = "read"
	FilterUnread Filter = "unread"
	FilterGroups Filter = "groups"
)

func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterRead, FilterUnread, FilterGroups:
		return f, nil
	}
	return "", fmt.Errorf("unknown filter %q (want all, read, unread or groups)", s)
}

func (f Filter) match(e *domain.ChatListEntry) bool {
	switch f {
	case FilterRead:
		return !e.Unread() && !e.IsGroup()
	case FilterUnread:
		return e.Unread() && !e.IsGroup()
	case FilterGroups:
		return e.IsGroup()
	}
	return true
}

type RosterDeps struct {
	Store     realtime.Store
	Cipher    encryption.Cipher
	Messages  *MessageStore
	Tracker   *DeliveryTracker
	Counter   *UnreadCounter
	Directory *Directory
	Groups    *GroupService
	Bus       domain.EventBus
	Log       zerolog.Logger
}

type rosterEntry struct {
	entry   domain.ChatListEntry
	members map[string]domain.Member
	latest  *realtime.Subscription
	unread  *CounterStream
}

// Roster keeps the chat list: one entry per directory user and per group
// the current user belongs to, each fed by a latest-message subscription and
// an unread counter stream.
type Roster struct {
	self  domain.Identity
	deps  RosterDeps
	clock func() time.Time
	loc   *time.Location

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	mu      sync.RWMutex
	entries []*rosterEntry
	index   map[domain.RoomID]*rosterEntry
	updates chan struct{}
}

func NewRoster(self domain.Identity, deps RosterDeps, clock func() time.Time, loc *time.Location) *Roster {
	if clock == nil {
		clock = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Roster{
		self:    self,
		deps:    deps,
		clock:   clock,
		loc:     loc,
		ctx:     ctx,
		cancel:  cancel,
		index:   make(map[domain.RoomID]*rosterEntry),
		updates: make(chan struct{}, 1),
	}
}

// Start builds the initial chat list.
func (r *Roster) Start(ctx context.Context) error {
	return r.Refresh(ctx)
}

// Refresh adds entries for users and groups that appeared since the last
// call. Existing entries keep their subscriptions.
func (r *Roster) Refresh(ctx context.Context) error {
	if r.ctx.Err() != nil {
		return fmt.Errorf("roster closed")
	}

	users, err := r.deps.Directory.Users(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.ID == r.self.UserID || !domain.ValidIdentifier(u.ID) {
			continue
		}
		r.add(ctx, domain.ChatListEntry{
			RoomID:    domain.PrivateRoomID(r.self.UserID, u.ID),
			Type:      domain.ChatTypePrivate,
			PeerID:    u.ID,
			PeerPhone: u.PhoneNumber,
			Name:      u.DisplayName(),
		}, nil)
	}

	groups, err := r.deps.Groups.ForUser(ctx, r.self.UserID)
	if err != nil {
		return err
	}
	for _, g := range groups {
		name := g.Name
		if name == "" {
			name = DefaultGroupName
		}
		r.add(ctx, domain.ChatListEntry{
			RoomID: g.RoomID(),
			Type:   domain.ChatTypeGroup,
			PeerID: g.GroupID,
			Name:   name,
		}, g.Members)
	}
	return nil
}

func (r *Roster) add(ctx context.Context, entry domain.ChatListEntry, members map[string]domain.Member) {
	r.mu.RLock()
	_, exists := r.index[entry.RoomID]
	r.mu.RUnlock()
	if exists {
		return
	}
	log := r.deps.Log.With().Str("room", entry.RoomID.String()).Logger()

	// an open room's live view is fresher than the cached preview
	if m, ok := r.deps.Messages.Latest(entry.RoomID); ok {
		entry.LastMessageText = m.Preview()
		entry.LastMessageTime = m.Timestamp
	} else if p, err := r.deps.Messages.Preview(ctx, entry.RoomID); err != nil {
		log.Warn().Err(err).Msg("Failed to load cached preview")
	} else if p != nil {
		entry.LastMessageText = p.Text
		entry.LastMessageTime = p.Timestamp
	}

	if n, err := r.deps.Counter.Get(ctx, entry.RoomID, r.self.UserID); err != nil {
		log.Debug().Err(err).Msg("Failed to read unread count")
	} else {
		entry.UnreadCount = n
	}

	latest, err := r.deps.Store.Subscribe(r.ctx, roomPath(entry.RoomID), realtime.LimitToLast(1))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to subscribe to latest message")
		return
	}
	unread, err := r.deps.Counter.Subscribe(r.ctx, entry.RoomID, r.self.UserID)
	if err != nil {
		latest.Cancel()
		log.Warn().Err(err).Msg("Failed to subscribe to unread count")
		return
	}

	re := &rosterEntry{entry: entry, members: members, latest: latest, unread: unread}

	r.mu.Lock()
	if _, raced := r.index[entry.RoomID]; raced {
		r.mu.Unlock()
		latest.Cancel()
		unread.Cancel()
		return
	}
	r.index[entry.RoomID] = re
	r.entries = append(r.entries, re)
	r.mu.Unlock()

	r.wg.Add(2)
	go r.watchLatest(re, log)
	go r.watchUnread(re)
	r.changed(re)
}

func (r *Roster) watchLatest(re *rosterEntry, log zerolog.Logger) {
	defer r.wg.Done()
	roomID := re.entry.RoomID

	for snap := range re.latest.Updates() {
		msgs := decodeMessages(snap.Children(), r.deps.Cipher, log)
		if len(msgs) == 0 {
			continue
		}
		last := msgs[len(msgs)-1]

		_, _ = r.deps.Tracker.MarkDelivered(r.ctx, roomID, last, r.self.UserID, re.members)
		if err := r.deps.Messages.SavePreview(r.ctx, roomID, last); err != nil {
			log.Debug().Err(err).Msg("Failed to cache preview")
		}

		r.mu.Lock()
		re.entry.LastMessageText = last.Preview()
		re.entry.LastMessageTime = last.Timestamp
		r.mu.Unlock()
		r.changed(re)
	}
}

func (r *Roster) watchUnread(re *rosterEntry) {
	defer r.wg.Done()

	for n := range re.unread.Counts() {
		r.mu.Lock()
		prev := re.entry.UnreadCount
		re.entry.UnreadCount = n
		r.mu.Unlock()
		if prev == n {
			continue
		}

		r.deps.Bus.Publish(domain.UnreadChangedEvent{
			RoomID:    re.entry.RoomID,
			UserID:    r.self.UserID,
			Count:     n,
			EventTime: r.clock(),
		})
		r.changed(re)
	}
}

func (r *Roster) changed(re *rosterEntry) {
	select {
	case r.updates <- struct{}{}:
	default:
	}

	r.mu.RLock()
	entry := r.labelled(re.entry)
	r.mu.RUnlock()
	r.deps.Bus.Publish(domain.RosterUpdatedEvent{Entry: entry, EventTime: r.clock()})
}

func (r *Roster) labelled(e domain.ChatListEntry) domain.ChatListEntry {
	e.TimeLabel = PreviewTimeLabel(e.LastMessageTime, r.clock(), r.loc)
	return e
}

// Entries returns the chat list matching filter and search, highest unread
// count first. Entries with equal counts keep the order they were added in.
func (r *Roster) Entries(filter Filter, search string) []domain.ChatListEntry {
	search = strings.ToLower(strings.TrimSpace(search))

	r.mu.RLock()
	out := make([]domain.ChatListEntry, 0, len(r.entries))
	for _, re := range r.entries {
		e := re.entry
		if !filter.match(&e) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(e.Name), search) &&
			!strings.Contains(strings.ToLower(e.LastMessageText), search) {
			continue
		}
		out = append(out, r.labelled(e))
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UnreadCount > out[j].UnreadCount
	})
	return out
}

// Entry returns the current entry of one room.
func (r *Roster) Entry(roomID domain.RoomID) (domain.ChatListEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	re, ok := r.index[roomID]
	if !ok {
		return domain.ChatListEntry{}, false
	}
	return r.labelled(re.entry), true
}

func (r *Roster) TotalUnread() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, re := range r.entries {
		total += re.entry.UnreadCount
	}
	return total
}

// Updates signals that some entry changed. Signals are coalesced.
func (r *Roster) Updates() <-chan struct{} { return r.updates }

// Close cancels the roster's own subscriptions. Open rooms are unaffected.
func (r *Roster) Close() {
	r.once.Do(func() {
		r.cancel()
		r.mu.RLock()
		for _, re := range r.entries {
			re.latest.Cancel()
			re.unread.Cancel()
		}
		r.mu.RUnlock()
		r.wg.Wait()
	})
}
