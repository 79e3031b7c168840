// README: RabbitMQ backend. Publishes messages as JSON for a downstream push gateway.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the subset of *amqp.Channel used here.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type AMQPNotifier struct {
	pub        Publisher
	exchange   string
	routingKey string
}

func NewAMQPNotifier(pub Publisher, exchange, routingKey string) *AMQPNotifier {
	return &AMQPNotifier{pub: pub, exchange: exchange, routingKey: routingKey}
}

func (n *AMQPNotifier) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	err = n.pub.PublishWithContext(ctx, n.exchange, n.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    msg.CreatedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", n.exchange, n.routingKey, err)
	}
	return nil
}
