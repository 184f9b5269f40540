package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"restaurant-pos/internal/logger"
)

// handlerTimeout bounds the processing of one delivery
const handlerTimeout = 30 * time.Second

// MessageHandler processes one message body. A returned error requeues the
// message.
type MessageHandler func(ctx context.Context, body []byte) error

// Consumer handles message consumption from RabbitMQ
type Consumer struct {
	conn        *Connection
	logger      *logger.Logger
	queueName   string
	consumerTag string
	prefetch    int
}

// NewConsumer creates a new message consumer
func NewConsumer(conn *Connection, log *logger.Logger, queueName, consumerTag string, prefetch int) *Consumer {
	return &Consumer{
		conn:        conn,
		logger:      log,
		queueName:   queueName,
		consumerTag: consumerTag,
		prefetch:    prefetch,
	}
}

// StartConsuming delivers messages to handler until ctx is done. Messages are
// acked after the handler succeeds and nacked with requeue otherwise.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	for {
		if err := c.conn.ensure(); err != nil {
			return fmt.Errorf("failed to reconnect: %w", err)
		}

		msgs, err := c.subscribe()
		if err != nil {
			return err
		}

		c.logger.Info("consumer_started",
			fmt.Sprintf("Started consuming from queue %s", c.queueName),
			"", map[string]interface{}{
				"queue":    c.queueName,
				"consumer": c.consumerTag,
				"prefetch": c.prefetch,
			})

		if closed := c.drain(ctx, msgs, handler); !closed {
			c.logger.Info("consumer_stopped", "Consumer stopped by context", "", nil)
			return ctx.Err()
		}
		c.logger.Error("consumer_channel_closed", "Message channel closed, attempting to reconnect", "", nil, nil)
	}
}

func (c *Consumer) subscribe() (<-chan amqp091.Delivery, error) {
	ch := c.conn.Channel()
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}
	msgs, err := ch.Consume(c.queueName, c.consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}
	return msgs, nil
}

// drain processes deliveries and reports true when the broker closed the
// delivery channel, false when ctx ended.
func (c *Consumer) drain(ctx context.Context, msgs <-chan amqp091.Delivery, handler MessageHandler) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case d, ok := <-msgs:
			if !ok {
				return true
			}
			c.processMessage(ctx, d, handler)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, delivery amqp091.Delivery, handler MessageHandler) {
	start := time.Now()
	fields := map[string]interface{}{
		"queue":        c.queueName,
		"routing_key":  delivery.RoutingKey,
		"delivery_tag": delivery.DeliveryTag,
	}

	processingCtx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	err := handler(processingCtx, delivery.Body)
	fields["duration_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		c.logger.Error("message_processing_failed", "Failed to process message", "", err, fields)
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			c.logger.Error("message_nack_failed", "Failed to nack message", "", nackErr, nil)
		}
		return
	}

	c.logger.Debug("message_processed", "Successfully processed message", "", fields)
	if ackErr := delivery.Ack(false); ackErr != nil {
		c.logger.Error("message_ack_failed", "Failed to ack message", "", ackErr, nil)
	}
}

// Close cancels the consumer and closes the connection
func (c *Consumer) Close() error {
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	if err := c.conn.Channel().Cancel(c.consumerTag, false); err != nil {
		c.logger.Error("consumer_cancel_failed", "Failed to cancel consumer", "", err, nil)
	}
	return c.conn.Close()
}
