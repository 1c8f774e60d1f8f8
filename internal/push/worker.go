package push

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/chat-sync/internal/broker"
)

// Source is implemented by broker.RabbitMQClient.
type Source interface {
	ConsumePushQueue() (<-chan amqp.Delivery, error)
}

// Sender delivers a push notification to an offline user.
type Sender interface {
	Send(ctx context.Context, userID string, payload broker.MessagePayload) error
}

// LogSender only logs pushes.
type LogSender struct {
	Log zerolog.Logger
}

func (s LogSender) Send(ctx context.Context, userID string, payload broker.MessagePayload) error {
	s.Log.Info().
		Str("user", userID).
		Str("room", payload.RoomID.String()).
		Str("from", payload.SenderName).
		Str("type", string(payload.Type)).
		Msg("[PUSH] new message while offline")
	return nil
}

// Worker turns notifications that expired in a user queue into pushes.
type Worker struct {
	source Source
	sender Sender
	log    zerolog.Logger
}

func NewWorker(source Source, sender Sender, log zerolog.Logger) *Worker {
	return &Worker{source: source, sender: sender, log: log}
}

// Run consumes the push queue until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	msgs, err := w.source.ConsumePushQueue()
	if err != nil {
		return fmt.Errorf("failed to start push consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			w.handle(ctx, d)
		}
	}
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	userID, payload, err := decode(d)
	if err != nil {
		w.log.Warn().Err(err).Str("routing_key", d.RoutingKey).Msg("Skipping push")
		d.Ack(false)
		return
	}
	if userID == "" {
		d.Ack(false)
		return
	}

	if err := w.sender.Send(ctx, userID, payload); err != nil {
		w.log.Error().Err(err).Str("user", userID).Msg("Failed to send push")
		d.Nack(false, false)
		return
	}
	d.Ack(false)
}

// decode extracts the offline user and the message from a dead-lettered
// notification. It returns an empty user for events that need no push.
func decode(d amqp.Delivery) (string, broker.MessagePayload, error) {
	var env broker.Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		return "", broker.MessagePayload{}, fmt.Errorf("malformed notification: %w", err)
	}
	if env.Type != broker.EventTypeMessageCreated {
		return "", env.Payload, nil
	}

	routingKey := d.RoutingKey
	if !strings.HasPrefix(routingKey, "user.") {
		routingKey = deadLetterRoutingKey(d.Headers)
	}
	if !strings.HasPrefix(routingKey, "user.") {
		return "", env.Payload, fmt.Errorf("invalid routing key %q", routingKey)
	}
	return strings.TrimPrefix(routingKey, "user."), env.Payload, nil
}

// deadLetterRoutingKey reads the original routing key from x-death.
func deadLetterRoutingKey(headers amqp.Table) string {
	deaths, ok := headers["x-death"].([]interface{})
	if !ok || len(deaths) == 0 {
		return ""
	}
	death, ok := deaths[0].(amqp.Table)
	if !ok {
		return ""
	}
	keys, ok := death["routing-keys"].([]interface{})
	if !ok || len(keys) == 0 {
		return ""
	}
	s, _ := keys[0].(string)
	return s
}
