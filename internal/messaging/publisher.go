package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/models"
)

// publishTimeout bounds one publish call
const publishTimeout = 10 * time.Second

// Publisher sends check events and kitchen alerts to RabbitMQ
type Publisher struct {
	conn   *Connection
	logger *logger.Logger
}

// NewPublisher creates a new message publisher
func NewPublisher(conn *Connection, log *logger.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: log,
	}
}

// PublishCheckEvent publishes a status change to the events topic exchange
// under check.<new_status>.
func (p *Publisher) PublishCheckEvent(ctx context.Context, evt *models.CheckEvent) error {
	routingKey := models.GenerateRoutingKey(models.CheckStatus(evt.NewStatus))
	return p.publishMessage(ctx, ExchangeEvents, routingKey, evt, true)
}

// PublishKitchenAlert publishes a new order alert to the kitchen fanout exchange
func (p *Publisher) PublishKitchenAlert(ctx context.Context, alert *models.KitchenAlert) error {
	return p.publishMessage(ctx, ExchangeKitchenAlerts, "", alert, false)
}

// newPublishing encodes a message as a JSON publishing
func newPublishing(message interface{}, persistent bool) (amqp091.Publishing, error) {
	body, err := json.Marshal(message)
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("failed to marshal message: %w", err)
	}

	deliveryMode := amqp091.Transient
	if persistent {
		deliveryMode = amqp091.Persistent
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: deliveryMode,
		Timestamp:    time.Now().UTC(),
	}, nil
}

func (p *Publisher) publishMessage(ctx context.Context, exchange, routingKey string, message interface{}, persistent bool) error {
	if err := p.conn.ensure(); err != nil {
		return fmt.Errorf("failed to reconnect: %w", err)
	}

	publishing, err := newPublishing(message, persistent)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.conn.Channel().PublishWithContext(ctx, exchange, routingKey, false, false, publishing)
	if err != nil {
		p.logger.Error("message_publish_failed",
			fmt.Sprintf("Failed to publish message to exchange %s", exchange),
			"", err, map[string]interface{}{
				"exchange":    exchange,
				"routing_key": routingKey,
			})
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.Debug("message_published",
		fmt.Sprintf("Published message to exchange %s", exchange),
		"", map[string]interface{}{
			"exchange":     exchange,
			"routing_key":  routingKey,
			"message_size": len(publishing.Body),
		})
	return nil
}
