package broker

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// UserQueueConsumer is implemented by RabbitMQClient.
type UserQueueConsumer interface {
	ConsumeUserQueue(userID string) (<-chan amqp.Delivery, func(), error)
}

// Presence keeps the current user's notification queue drained while the
// process runs, so notifications only turn into pushes when the user is
// offline.
type Presence struct {
	consumer UserQueueConsumer
	userID   string
	log      zerolog.Logger
}

func NewPresence(consumer UserQueueConsumer, userID string, log zerolog.Logger) *Presence {
	return &Presence{consumer: consumer, userID: userID, log: log}
}

// Run consumes until ctx is done.
func (p *Presence) Run(ctx context.Context) error {
	msgs, cancel, err := p.consumer.ConsumeUserQueue(p.userID)
	if err != nil {
		return err
	}
	defer cancel()

	p.log.Info().Str("user", p.userID).Msg("Consuming user notification queue")
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal(d.Body, &env); err != nil {
				p.log.Warn().Err(err).Msg("Dropping malformed notification")
				continue
			}
			p.log.Debug().
				Str("room", env.Payload.RoomID.String()).
				Str("sender", env.Payload.SenderID).
				Msg("Notification received while online")
		}
	}
}
