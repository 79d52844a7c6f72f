// Package mq declares the derivative job topology on RabbitMQ.
//
// Jobs go to the task queue. A failed attempt is parked in the retry queue
// with a per-message TTL and dead-lettered back into the task queue when it
// expires. Jobs that ran out of attempts land in the DLQ for inspection.
package mq

import (
	"Cabinet/config"
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeTasks = "derivative.exchange"
	ExchangeRetry = "derivative.retry.exchange"
	ExchangeDLQ   = "derivative.dlq.exchange"

	QueueTasks = "derivative.queue"
	QueueRetry = "derivative.retry.queue"
	QueueDLQ   = "derivative.dlq.queue"

	RoutingTask  = "derivative"
	RoutingRetry = "derivative.retry"
	RoutingDLQ   = "derivative.dlq"
)

type Client struct {
	Conn      *amqp.Connection
	Channel   *amqp.Channel
	publishMu sync.Mutex
}

var publisherMu sync.Mutex
var publisher *Client

// Dial opens a connection and a channel to the configured broker.
func Dial() (*Client, error) {
	conn, err := amqp.Dial(config.AppConfig.RabbitMQURL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Client{Conn: conn, Channel: ch}, nil
}

// GetPublisher returns the shared publishing client, reconnecting if it was closed.
func GetPublisher() (*Client, error) {
	publisherMu.Lock()
	defer publisherMu.Unlock()
	if publisher != nil {
		if !publisher.Conn.IsClosed() && !publisher.Channel.IsClosed() {
			return publisher, nil
		}
		publisher.Close()
		publisher = nil
	}
	client, err := Dial()
	if err != nil {
		return nil, err
	}
	if err := client.DeclareTopology(); err != nil {
		client.Close()
		return nil, err
	}
	publisher = client
	return publisher, nil
}

// ClosePublisher drops the shared publishing client.
func ClosePublisher() {
	publisherMu.Lock()
	defer publisherMu.Unlock()
	publisher.Close()
	publisher = nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.Channel != nil {
		_ = c.Channel.Close()
	}
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}

type queueSpec struct {
	queue    string
	exchange string
	key      string
	args     amqp.Table
}

func topology() []queueSpec {
	return []queueSpec{
		{queue: QueueTasks, exchange: ExchangeTasks, key: RoutingTask},
		{
			queue:    QueueRetry,
			exchange: ExchangeRetry,
			key:      RoutingRetry,
			args: amqp.Table{
				"x-dead-letter-exchange":    ExchangeTasks,
				"x-dead-letter-routing-key": RoutingTask,
			},
		},
		{queue: QueueDLQ, exchange: ExchangeDLQ, key: RoutingDLQ},
	}
}

// DeclareTopology declares the three durable exchanges and queues and binds them.
func (c *Client) DeclareTopology() error {
	for _, q := range topology() {
		if err := c.Channel.ExchangeDeclare(q.exchange, "direct", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", q.exchange, err)
		}
		if _, err := c.Channel.QueueDeclare(q.queue, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.queue, err)
		}
		if err := c.Channel.QueueBind(q.queue, q.key, q.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q.queue, err)
		}
	}
	return nil
}

func (c *Client) PublishTask(ctx context.Context, body []byte) error {
	return c.publish(ctx, ExchangeTasks, RoutingTask, body, "")
}

// PublishRetry parks body in the retry queue for delay before it is redelivered.
func (c *Client) PublishRetry(ctx context.Context, body []byte, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	return c.publish(ctx, ExchangeRetry, RoutingRetry, body, fmt.Sprintf("%d", delay.Milliseconds()))
}

func (c *Client) PublishDLQ(ctx context.Context, body []byte) error {
	return c.publish(ctx, ExchangeDLQ, RoutingDLQ, body, "")
}

func (c *Client) publish(ctx context.Context, exchange, key string, body []byte, expiration string) error {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Expiration:   expiration,
	}
	return c.Channel.PublishWithContext(ctx, exchange, key, false, false, msg)
}
