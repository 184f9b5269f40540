package messaging

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"restaurant-pos/internal/config"
	"restaurant-pos/internal/logger"
)

// Exchange and queue names
const (
	ExchangeEvents        = "pos_events"
	ExchangeKitchenAlerts = "kitchen_alerts"
	QueueKitchenDisplay   = "kitchen_display_queue"
	QueueCheckEvents      = "check_events_queue"
)

// messageTTL bounds how long an unconsumed message is kept, in milliseconds
const messageTTL = 300000

type exchangeSpec struct {
	name string
	kind string
}

type bindingSpec struct {
	queue      string
	routingKey string
	exchange   string
}

var (
	exchanges = []exchangeSpec{
		{ExchangeEvents, amqp091.ExchangeTopic},
		{ExchangeKitchenAlerts, amqp091.ExchangeFanout},
	}
	bindings = []bindingSpec{
		{QueueCheckEvents, "check.#", ExchangeEvents},
		// routing key is ignored by the fanout exchange
		{QueueKitchenDisplay, "", ExchangeKitchenAlerts},
	}
)

// Connection wraps RabbitMQ connection with reconnection logic
type Connection struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	logger  *logger.Logger
	url     string
	retries int
}

// New creates a new RabbitMQ connection
func New(cfg *config.Config, log *logger.Logger) (*Connection, error) {
	conn := &Connection{
		logger:  log,
		url:     cfg.RabbitMQURL(),
		retries: 5,
	}

	if err := conn.connect(); err != nil {
		return nil, fmt.Errorf("failed to establish initial connection: %w", err)
	}
	return conn, nil
}

// connect dials RabbitMQ with a linear backoff and declares the topology
func (c *Connection) connect() error {
	var err error
	for i := 0; i < c.retries; i++ {
		if err = c.dial(); err == nil {
			return nil
		}

		if i < c.retries-1 {
			wait := time.Duration(i+1) * 2 * time.Second
			c.logger.Error("rabbitmq_connection_failed",
				fmt.Sprintf("Failed to connect to RabbitMQ, retrying in %v", wait),
				"startup", err, nil)
			time.Sleep(wait)
		}
	}
	return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", c.retries, err)
}

func (c *Connection) dial() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	if err := setupTopology(ch); err != nil {
		c.logger.Error("rabbitmq_setup_failed", "Failed to set up topology", "startup", err, nil)
		ch.Close()
		conn.Close()
		return err
	}
	c.conn, c.channel = conn, ch
	return nil
}

// setupTopology declares the exchanges and queues and binds them
func setupTopology(ch *amqp091.Channel) error {
	for _, ex := range exchanges {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare %s exchange: %w", ex.name, err)
		}
	}

	for _, b := range bindings {
		_, err := ch.QueueDeclare(b.queue, true, false, false, false, amqp091.Table{
			"x-message-ttl": messageTTL,
		})
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", b.queue, err)
		}
		if err := ch.QueueBind(b.queue, b.routingKey, b.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s with routing key %q: %w", b.queue, b.routingKey, err)
		}
	}
	return nil
}

// Channel returns the current channel
func (c *Connection) Channel() *amqp091.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// ensure reconnects when the broker dropped the connection
func (c *Connection) ensure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && !c.conn.IsClosed() {
		return nil
	}
	c.close()
	return c.connect()
}

// Close closes the connection
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.close()
}

func (c *Connection) close() error {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		if err != nil && !errors.Is(err, amqp091.ErrClosed) {
			return err
		}
	}
	return nil
}

// IsClosed checks if the connection is closed
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == nil || c.conn.IsClosed()
}
