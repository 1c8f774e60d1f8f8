package broker

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeTopic = "chat.topic"
	ExchangePush  = "chat.push"

	pushQueue = "chat_sync_push_dlx"

	// Notifications wait this long in an online user's queue before they are
	// dead-lettered to the push exchange.
	userQueueTTLMillis    = int32(5000)
	userQueueExpiryMillis = int32(60000)
)

// Publisher publishes JSON bodies to the chat topic exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body interface{}) error
}

type RabbitMQClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewRabbitMQClient(url string) (*RabbitMQClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeTopic, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare topic exchange: %w", err)
	}

	// dead-letter target for notifications nobody picked up
	if err := ch.ExchangeDeclare(ExchangePush, "fanout", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare push exchange: %w", err)
	}

	return &RabbitMQClient{
		conn:    conn,
		channel: ch,
	}, nil
}

func (c *RabbitMQClient) Publish(ctx context.Context, routingKey string, body interface{}) error {
	return c.PublishToExchange(ctx, ExchangeTopic, routingKey, body)
}

func (c *RabbitMQClient) PublishToExchange(ctx context.Context, exchange, routingKey string, body interface{}) error {
	bytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal body: %w", err)
	}

	return c.channel.PublishWithContext(ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        bytes,
		},
	)
}

func (c *RabbitMQClient) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

// ConsumeUserQueue consumes the notification queue of an online user.
// Unconsumed notifications expire into the push exchange. The returned
// function cancels the consumer; the queue itself expires when unused.
func (c *RabbitMQClient) ConsumeUserQueue(userID string) (<-chan amqp.Delivery, func(), error) {
	queueName := UserRoutingKey(userID)

	args := amqp.Table{
		"x-message-ttl":          userQueueTTLMillis,
		"x-dead-letter-exchange": ExchangePush,
		"x-expires":              userQueueExpiryMillis,
	}

	q, err := c.channel.QueueDeclare(queueName, false, false, false, false, args)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to declare user queue: %w", err)
	}

	if err := c.channel.QueueBind(q.Name, UserRoutingKey(userID), ExchangeTopic, false, nil); err != nil {
		return nil, nil, fmt.Errorf("failed to bind user queue: %w", err)
	}

	consumerTag := fmt.Sprintf("chat-sync-%s", userID)
	msgs, err := c.channel.Consume(q.Name, consumerTag, true, false, false, false, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	cancel := func() {
		c.channel.Cancel(consumerTag, false)
	}
	return msgs, cancel, nil
}

// ConsumePushQueue consumes notifications dead-lettered to the push
// exchange. Deliveries must be acked.
func (c *RabbitMQClient) ConsumePushQueue() (<-chan amqp.Delivery, error) {
	q, err := c.channel.QueueDeclare(pushQueue, true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to declare push queue: %w", err)
	}

	if err := c.channel.QueueBind(q.Name, "#", ExchangePush, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind push queue: %w", err)
	}

	return c.channel.Consume(q.Name, "", false, false, false, false, nil)
}
