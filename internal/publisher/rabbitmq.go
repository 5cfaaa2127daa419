package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"social_ingest/internal/domain"
)

const (
	exchangeKind          = "topic"
	defaultConfirmTimeout = 5 * time.Second
)

var ErrNotAcked = errors.New("broker did not acknowledge message")

// RabbitMQ emits post events on a topic exchange. Every message is routed as
// <prefix>.<platform>.<action> and waits for a broker confirm before Publish
// returns.
type RabbitMQ struct {
	conn           *amqp.Connection
	channel        *amqp.Channel
	exchange       string
	prefix         string
	confirmTimeout time.Duration
	logger         *slog.Logger
}

type Config struct {
	URL            string
	Exchange       string
	RoutingKey     string
	QueueName      string
	ConfirmTimeout time.Duration
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = defaultConfirmTimeout
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := openChannel(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}

	logger = logger.With("component", "publisher", "exchange", cfg.Exchange)
	logger.Info("connected to rabbitmq",
		"queue", cfg.QueueName,
		"binding", bindingKey(cfg.RoutingKey),
	)

	return &RabbitMQ{
		conn:           conn,
		channel:        ch,
		exchange:       cfg.Exchange,
		prefix:         cfg.RoutingKey,
		confirmTimeout: cfg.ConfirmTimeout,
		logger:         logger,
	}, nil
}

// openChannel declares the exchange and the durable queue that receives every
// post event, then switches the channel into confirm mode.
func openChannel(conn *amqp.Connection, cfg Config) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"declare exchange", func() error {
			return ch.ExchangeDeclare(cfg.Exchange, exchangeKind, true, false, false, false, nil)
		}},
		{"declare queue", func() error {
			_, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil)
			return err
		}},
		{"bind queue", func() error {
			return ch.QueueBind(cfg.QueueName, bindingKey(cfg.RoutingKey), cfg.Exchange, false, nil)
		}},
		{"enable confirms", func() error {
			return ch.Confirm(false)
		}},
	}

	for _, step := range steps {
		if err := step.run(); err != nil {
			ch.Close()
			return nil, fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return ch, nil
}

// PostMessage is the event emitted after a post is written.
type PostMessage struct {
	Action    string      `json:"action"` // "create" or "update"
	ProfileID *int64      `json:"profileId,omitempty"`
	Post      domain.Post `json:"post"`
	Timestamp time.Time   `json:"timestamp"`
}

func actionName(action domain.UpsertAction) string {
	if action == domain.ActionInserted {
		return "create"
	}
	return "update"
}

func routingKey(prefix string, platform domain.Platform, action string) string {
	return prefix + "." + string(platform) + "." + action
}

func bindingKey(prefix string) string {
	return prefix + ".#"
}

func newPublishing(post *domain.Post, action domain.UpsertAction, profileID *int64, at time.Time) (amqp.Publishing, error) {
	msg := PostMessage{
		Action:    actionName(action),
		ProfileID: profileID,
		Post:      *post,
		Timestamp: at,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal message: %w", err)
	}

	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Type:         "post." + msg.Action,
		MessageId:    string(post.Platform) + ":" + post.ID,
		Body:         body,
		Timestamp:    at,
	}, nil
}

func (r *RabbitMQ) Publish(ctx context.Context, post *domain.Post, action domain.UpsertAction, profileID *int64) error {
	msg, err := newPublishing(post, action, profileID, time.Now().UTC())
	if err != nil {
		return err
	}
	key := routingKey(r.prefix, post.Platform, actionName(action))

	confirm, err := r.channel.PublishWithDeferredConfirmWithContext(ctx, r.exchange, key, false, false, msg)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, r.confirmTimeout)
	defer cancel()

	acked, err := confirm.WaitContext(waitCtx)
	if err != nil {
		return fmt.Errorf("wait for confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("%w: %s", ErrNotAcked, msg.MessageId)
	}

	r.logger.Debug("published post", "message_id", msg.MessageId, "routing_key", key)
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
