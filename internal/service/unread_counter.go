package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
	"github.com/clippy-oss/homie/chat-sync/internal/realtime"
)

// UnreadCounter maintains unreadCounts/{room}/{user}. Increments go through
// store transactions so concurrent senders never lose an update.
type UnreadCounter struct {
	store realtime.Store
	log   zerolog.Logger
}

func NewUnreadCounter(store realtime.Store, log zerolog.Logger) *UnreadCounter {
	return &UnreadCounter{store: store, log: log}
}

func counterPath(roomID domain.RoomID, userID string) string {
	return realtime.Join(realtime.UnreadRoot, roomID.String(), userID)
}

func counterValue(v any) int {
	n := realtime.Snapshot{Value: v}.Int()
	if n < 0 {
		return 0
	}
	return n
}

// Increment adds one to the counter, creating it on first use, and returns
// the committed value.
func (c *UnreadCounter) Increment(ctx context.Context, roomID domain.RoomID, userID string) (int, error) {
	snap, err := c.store.Transact(ctx, counterPath(roomID, userID), func(current any) (any, error) {
		return counterValue(current) + 1, nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment unread count of %s in %s: %w", userID, roomID, err)
	}
	return snap.Int(), nil
}

// Reset sets the counter to zero unconditionally.
func (c *UnreadCounter) Reset(ctx context.Context, roomID domain.RoomID, userID string) error {
	if err := c.store.Set(ctx, counterPath(roomID, userID), 0); err != nil {
		return fmt.Errorf("failed to reset unread count of %s in %s: %w", userID, roomID, err)
	}
	return nil
}

func (c *UnreadCounter) Get(ctx context.Context, roomID domain.RoomID, userID string) (int, error) {
	snap, err := c.store.Get(ctx, counterPath(roomID, userID))
	if err != nil {
		return 0, err
	}
	return counterValue(snap.Value), nil
}

// Subscribe streams the counter's value, 0 while it does not exist.
func (c *UnreadCounter) Subscribe(ctx context.Context, roomID domain.RoomID, userID string) (*CounterStream, error) {
	sub, err := c.store.Subscribe(ctx, counterPath(roomID, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to unread count: %w", err)
	}
	cs := &CounterStream{sub: sub, out: make(chan int)}
	go cs.forward()
	return cs, nil
}

// CounterStream is an ordered stream of counter values.
type CounterStream struct {
	sub  *realtime.Subscription
	out  chan int
	once sync.Once
}

// Counts is closed after Cancel.
func (s *CounterStream) Counts() <-chan int { return s.out }

// Cancel stops the stream. It is safe to call more than once.
func (s *CounterStream) Cancel() {
	s.once.Do(s.sub.Cancel)
}

func (s *CounterStream) forward() {
	defer close(s.out)
	for snap := range s.sub.Updates() {
		select {
		case s.out <- counterValue(snap.Value):
		case <-s.sub.Done():
			return
		}
	}
}
