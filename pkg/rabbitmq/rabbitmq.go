package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"storefront/internal/models"

	amqp "github.com/streadway/amqp"
)

const (
	OrdersExchange   = "orders"
	OrderQueue       = "order_queue"
	OrderPlacedRoute = "order.placed"
)

// Client holds the RabbitMQ connection and channel.
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex // amqp channels are not safe for concurrent publishing
	logger  *slog.Logger
}

// Config holds RabbitMQ connection details.
type Config struct {
	URL string
}

// NewClient connects, opens a channel and declares the orders topic exchange
// with order_queue bound to it.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("RabbitMQ client connected", "exchange", OrdersExchange, "queue", OrderQueue)
	return &Client{conn: conn, channel: ch, logger: logger}, nil
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		OrdersExchange, // name
		"topic",        // kind
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	); err != nil {
		return fmt.Errorf("failed to declare %s exchange: %w", OrdersExchange, err)
	}
	if _, err := ch.QueueDeclare(
		OrderQueue, // name
		true,       // durable
		false,      // delete when unused
		false,      // exclusive
		false,      // no-wait
		nil,        // arguments
	); err != nil {
		return fmt.Errorf("failed to declare %s: %w", OrderQueue, err)
	}
	if err := ch.QueueBind(OrderQueue, "order.#", OrdersExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind %s: %w", OrderQueue, err)
	}
	return nil
}

// Close closes the RabbitMQ connection and channel.
func (c *Client) Close() error {
	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("multiple errors occurred during RabbitMQ client close: %v", errs)
	}
	return nil
}

// PublishOrderPlaced publishes a persistent order.placed event.
func (c *Client) PublishOrderPlaced(ctx context.Context, event models.OrderPlacedEvent) error {
	if c.channel == nil {
		return fmt.Errorf("RabbitMQ channel is not available")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := newPublishing(event)
	if err != nil {
		return err
	}

	c.mu.Lock()
	err = c.channel.Publish(
		OrdersExchange,   // exchange
		OrderPlacedRoute, // routing key
		false,            // mandatory
		false,            // immediate
		msg,
	)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	c.logger.Debug("order event sent", "order_id", event.OrderID)
	return nil
}

func newPublishing(event models.OrderPlacedEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal order event to JSON: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		Type:         OrderPlacedRoute,
		MessageId:    event.OrderID,
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}, nil
}

// OrderHandler processes one decoded order event.
type OrderHandler func(ctx context.Context, event models.OrderPlacedEvent) error

// ConsumeOrderEvents starts a goroutine that feeds order_queue deliveries to
// handler until ctx is done or the channel closes.
func (c *Client) ConsumeOrderEvents(ctx context.Context, handler OrderHandler) error {
	if c.channel == nil {
		return fmt.Errorf("RabbitMQ channel is not available for consumption")
	}

	msgs, err := c.channel.Consume(
		OrderQueue, // queue
		"",         // consumer tag
		false,      // auto-ack
		false,      // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("waiting for order events", "queue", OrderQueue)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn("order event channel closed")
					return
				}
				handleDelivery(ctx, msg, handler, c.logger)
			}
		}
	}()
	return nil
}

// handleDelivery acks on success, requeues on handler failure and drops
// messages that cannot be decoded.
func handleDelivery(ctx context.Context, msg amqp.Delivery, handler OrderHandler, logger *slog.Logger) {
	var event models.OrderPlacedEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		logger.Error("dropping malformed order event", "delivery_tag", msg.DeliveryTag, "error", err)
		if nackErr := msg.Nack(false, false); nackErr != nil {
			logger.Error("failed to nack message", "delivery_tag", msg.DeliveryTag, "error", nackErr)
		}
		return
	}

	if err := handler(ctx, event); err != nil {
		logger.Warn("order event handler failed", "order_id", event.OrderID, "error", err)
		if nackErr := msg.Nack(false, !msg.Redelivered); nackErr != nil {
			logger.Error("failed to nack message", "delivery_tag", msg.DeliveryTag, "error", nackErr)
		}
		return
	}
	if ackErr := msg.Ack(false); ackErr != nil {
		logger.Error("failed to ack message", "delivery_tag", msg.DeliveryTag, "error", ackErr)
	}
}

// LogOrderEvent is the default consumer handler: it records the order.
func LogOrderEvent(logger *slog.Logger) OrderHandler {
	return func(_ context.Context, event models.OrderPlacedEvent) error {
		logger.Info("order event received",
			"order_id", event.OrderID,
			"user_id", event.UserID,
			"total", event.Total.String(),
			"lines", len(event.Items),
		)
		return nil
	}
}
