package rabbit

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wb-go/wbf/zlog"
)

const (
	consumerTag   = "eventpress-notifications"
	attemptHeader = "x-attempt"

	DefaultMaxAttempts = 5
	DefaultRetryDelay  = 5 * time.Second
	maxRetryDelay      = 10 * time.Minute
	republishTimeout   = 5 * time.Second
)

type Config struct {
	URL      string
	Exchange string
	Queue    string
	// Delayed declares an x-delayed-message exchange; it needs the
	// rabbitmq_delayed_message_exchange plugin on the broker. Without it
	// retries are redelivered at once.
	Delayed bool
	// MaxAttempts bounds how often a failing message is handled.
	MaxAttempts int
	// RetryDelay is the wait before the second attempt; it doubles after that.
	RetryDelay time.Duration
}

type Client struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
	delayed  bool
	retry    retryPolicy

	mu sync.Mutex
}

func NewRabbit(cfg Config) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to connect to RabbitMQ")
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		zlog.Logger.Error().Err(err).Msg("failed to open RabbitMQ channel")
		return nil, err
	}

	client := &Client{
		conn:     conn,
		channel:  ch,
		exchange: cfg.Exchange,
		queue:    cfg.Queue,
		delayed:  cfg.Delayed,
	}
	client.retry = newRetryPolicy(cfg.MaxAttempts, cfg.RetryDelay, client.republish)
	if err := client.declare(); err != nil {
		client.Close()
		return nil, err
	}

	zlog.Logger.Info().Msgf("RabbitMQ initialized (exchange=%s, queue=%s, delayed=%t, max_attempts=%d)",
		cfg.Exchange, cfg.Queue, cfg.Delayed, client.retry.maxAttempts)
	if !cfg.Delayed && client.retry.maxAttempts > 1 {
		zlog.Logger.Warn().Msg("RabbitMQ delayed exchange disabled, failed messages are retried without delay")
	}
	return client, nil
}

func (c *Client) declare() error {
	kind, args := "direct", amqp.Table(nil)
	if c.delayed {
		kind, args = "x-delayed-message", amqp.Table{"x-delayed-type": "direct"}
	}

	if err := c.channel.ExchangeDeclare(
		c.exchange,
		kind,
		true,
		false,
		false,
		false,
		args,
	); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to declare exchange")
		return fmt.Errorf("declare exchange %s: %w", c.exchange, err)
	}

	if _, err := c.channel.QueueDeclare(
		c.queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to declare queue")
		return fmt.Errorf("declare queue %s: %w", c.queue, err)
	}

	if err := c.channel.QueueBind(
		c.queue,
		"",
		c.exchange,
		false,
		nil,
	); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to bind queue")
		return fmt.Errorf("bind queue %s: %w", c.queue, err)
	}
	return nil
}

func (c *Client) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	zlog.Logger.Info().Msg("RabbitMQ connection closed")
}

// Publish sends a persistent JSON message.
func (c *Client) Publish(ctx context.Context, message []byte) error {
	return c.publish(ctx, message, amqp.Table{})
}

func (c *Client) publish(ctx context.Context, message []byte, headers amqp.Table) error {
	c.mu.Lock()
	err := c.channel.PublishWithContext(
		ctx,
		c.exchange,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         message,
			Timestamp:    time.Now(),
			Headers:      headers,
		},
	)
	c.mu.Unlock()

	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to publish message to RabbitMQ")
		return fmt.Errorf("publish to %s: %w", c.exchange, err)
	}
	zlog.Logger.Debug().Msgf("Message published to exchange=%s", c.exchange)
	return nil
}

// republish schedules attempt number attempt of a failed message.
func (c *Client) republish(body []byte, attempt int, delay time.Duration) error {
	headers := amqp.Table{attemptHeader: int32(attempt)}
	if c.delayed {
		headers["x-delay"] = int32(delay / time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), republishTimeout)
	defer cancel()
	return c.publish(ctx, body, headers)
}

// Consume delivers each message to handler on a background goroutine.
// A handler error schedules a delayed retry until MaxAttempts is reached.
func (c *Client) Consume(handler func([]byte) error) error {
	msgs, err := c.channel.Consume(
		c.queue,
		consumerTag,
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to start consuming messages")
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	go c.drain(msgs, handler)

	zlog.Logger.Info().Msgf("Started consuming from queue %s", c.queue)
	return nil
}

// Cancel stops the consumer; in-flight deliveries finish first.
func (c *Client) Cancel() error {
	return c.channel.Cancel(consumerTag, false)
}

func (c *Client) drain(msgs <-chan amqp.Delivery, handler func([]byte) error) {
	for d := range msgs {
		c.retry.settle(&d, d.Body, attemptOf(d.Headers), handler)
	}
}

// Acknowledger is the ack side of an amqp.Delivery.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// retryPolicy acks every handled delivery. A failed one is republished as a
// new message carrying its attempt number, with a doubling delay, until
// maxAttempts attempts have failed; then it is dropped.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	republish   func(body []byte, attempt int, delay time.Duration) error
}

func newRetryPolicy(maxAttempts int, baseDelay time.Duration, republish func([]byte, int, time.Duration) error) retryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultRetryDelay
	}
	return retryPolicy{maxAttempts: maxAttempts, baseDelay: baseDelay, republish: republish}
}

func (p retryPolicy) settle(ack Acknowledger, body []byte, attempt int, handler func([]byte) error) {
	err := handler(body)
	if err == nil {
		_ = ack.Ack(false)
		return
	}

	if attempt >= p.maxAttempts {
		zlog.Logger.Error().Err(err).Int("attempt", attempt).Msg("dropping message after final attempt")
		_ = ack.Ack(false)
		return
	}

	delay := p.delay(attempt)
	if perr := p.republish(body, attempt+1, delay); perr != nil {
		// keep the original until a retry is safely queued
		zlog.Logger.Error().Err(perr).Msg("failed to schedule retry, requeueing message")
		_ = ack.Nack(false, true)
		return
	}
	zlog.Logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("failed to process message, retry scheduled")
	_ = ack.Ack(false)
}

// delay is the wait after the given failed attempt.
func (p retryPolicy) delay(attempt int) time.Duration {
	d := p.baseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return d
}

// attemptOf reads the attempt header; first deliveries have none.
func attemptOf(headers amqp.Table) int {
	var n int64
	switch v := headers[attemptHeader].(type) {
	case int32:
		n = int64(v)
	case int64:
		n = v
	case int:
		n = int64(v)
	case int16:
		n = int64(v)
	case int8:
		n = int64(v)
	}
	if n < 1 {
		return 1
	}
	return int(n)
}
