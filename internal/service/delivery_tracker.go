package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
	"github.com/clippy-oss/homie/chat-sync/internal/realtime"
)

type issuedKey struct {
	room domain.RoomID
	key  string
}

// DeliveryTracker advances messages through sent → delivered → read on the
// receiver side. It remembers which writes it has already issued so a
// message is marked at most once per state even while the store still
// reports the old flags.
type DeliveryTracker struct {
	store realtime.Store
	bus   domain.EventBus
	log   zerolog.Logger
	now   func() time.Time

	mu     sync.Mutex
	issued map[issuedKey]domain.DeliveryState
}

func NewDeliveryTracker(store realtime.Store, bus domain.EventBus, log zerolog.Logger) *DeliveryTracker {
	return &DeliveryTracker{
		store:  store,
		bus:    bus,
		log:    log,
		now:    time.Now,
		issued: make(map[issuedKey]domain.DeliveryState),
	}
}

// MarkDelivered flags msg as delivered when viewer is one of its receivers
// and it is not delivered yet. It reports whether a write was issued.
func (t *DeliveryTracker) MarkDelivered(ctx context.Context, roomID domain.RoomID, msg *domain.Message, viewer string, members map[string]domain.Member) (bool, error) {
	if msg == nil || msg.Key == "" || !msg.AddressedTo(viewer, members) {
		return false, nil
	}
	if msg.Delivered || msg.Read {
		return false, nil
	}
	return t.issue(ctx, roomID, msg.Key, domain.StateDelivered, map[string]any{"delivered": true})
}

// MarkRead flags msg as read when viewer is one of its receivers. Callers
// must only invoke it once the message was actually shown.
func (t *DeliveryTracker) MarkRead(ctx context.Context, roomID domain.RoomID, msg *domain.Message, viewer string, members map[string]domain.Member) (bool, error) {
	if msg == nil || msg.Key == "" || !msg.AddressedTo(viewer, members) {
		return false, nil
	}
	if msg.Read {
		return false, nil
	}
	fields := map[string]any{"read": true}
	if !msg.Delivered {
		fields["delivered"] = true
	}
	return t.issue(ctx, roomID, msg.Key, domain.StateRead, fields)
}

func (t *DeliveryTracker) issue(ctx context.Context, roomID domain.RoomID, key string, state domain.DeliveryState, fields map[string]any) (bool, error) {
	ik := issuedKey{room: roomID, key: key}

	t.mu.Lock()
	prev, seen := t.issued[ik]
	if seen && stateRank(prev) >= stateRank(state) {
		t.mu.Unlock()
		return false, nil
	}
	t.issued[ik] = state
	t.mu.Unlock()

	if err := t.store.Update(ctx, messagePath(roomID, key), fields); err != nil {
		t.mu.Lock()
		if t.issued[ik] == state {
			if seen {
				t.issued[ik] = prev
			} else {
				delete(t.issued, ik)
			}
		}
		t.mu.Unlock()

		t.log.Warn().Err(err).
			Str("room", roomID.String()).
			Str("key", key).
			Str("state", string(state)).
			Msg("Failed to write delivery state")
		return false, fmt.Errorf("%w: %s %s/%s: %v", ErrDeliveryWrite, state, roomID, key, err)
	}

	t.bus.Publish(domain.DeliveryStateEvent{
		RoomID:     roomID,
		MessageKey: key,
		State:      state,
		EventTime:  t.now(),
	})
	return true, nil
}

// Forget drops the issued-write memory of a room.
func (t *DeliveryTracker) Forget(roomID domain.RoomID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for ik := range t.issued {
		if ik.room == roomID {
			delete(t.issued, ik)
		}
	}
}

func stateRank(s domain.DeliveryState) int {
	switch s {
	case domain.StateRead:
		return 2
	case domain.StateDelivered:
		return 1
	}
	return 0
}
