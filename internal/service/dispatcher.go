package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
	"github.com/clippy-oss/homie/chat-sync/internal/realtime"
)

// RetryPolicy bounds the retries of one background task.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     2 * time.Second,
	MaxRetries:      5,
}

// Task is one unit of fan-out work. RoomID and UserID identify it in logs
// and failure events.
type Task struct {
	Name   string
	RoomID domain.RoomID
	UserID string
	Run    func(ctx context.Context) error
}

// Dispatcher runs send-side fan-out work in the background so that a send
// never waits on it. Failed tasks are retried with exponential
// backoff; a task that still fails is logged and published as a
// fanout.failed event.
type Dispatcher struct {
	bus    domain.EventBus
	log    zerolog.Logger
	policy RetryPolicy

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(bus domain.EventBus, policy RetryPolicy, log zerolog.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		bus:    bus,
		log:    log,
		policy: policy,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (d *Dispatcher) Go(task Task) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(task)
	}()
}

func (d *Dispatcher) run(task Task) {
	if d.ctx.Err() != nil {
		return
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = d.policy.InitialInterval
	eb.MaxInterval = d.policy.MaxInterval
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, d.policy.MaxRetries), d.ctx)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := task.Run(d.ctx)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
	if err == nil {
		return
	}

	d.log.Error().Err(err).
		Str("task", task.Name).
		Str("room", task.RoomID.String()).
		Str("user", task.UserID).
		Int("attempts", attempts).
		Msg("Background task failed")
	d.bus.Publish(domain.FanoutFailedEvent{
		RoomID:    task.RoomID,
		UserID:    task.UserID,
		Err:       err.Error(),
		EventTime: time.Now(),
	})
}

func retryable(err error) bool {
	switch {
	case realtime.IsTransient(err):
		return true
	case errors.Is(err, realtime.ErrClosed), errors.Is(err, realtime.ErrInvalidPath),
		errors.Is(err, context.Canceled), errors.Is(err, ErrInvalidIdentifier):
		return false
	}
	return true
}

// Wait blocks until every dispatched task has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops retrying and waits for running tasks.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}
