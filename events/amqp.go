package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// DefaultDialTimeout bounds connecting and the AMQP handshake. Publishing
// runs on the match path, so an unreachable broker must fail fast.
const DefaultDialTimeout = 2 * time.Second

// AMQPPublisher publishes events to a durable topic exchange, routed by event
// type. The connection is opened lazily and re-dialed after it drops.
type AMQPPublisher struct {
	url         string
	exchange    string
	DialTimeout time.Duration
	log         zerolog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

var _ Publisher = (*AMQPPublisher)(nil)

func NewAMQPPublisher(url, exchange string, log zerolog.Logger) *AMQPPublisher {
	return &AMQPPublisher{
		url:         url,
		exchange:    exchange,
		DialTimeout: DefaultDialTimeout,
		log:         log.With().Str("component", "events").Logger(),
	}
}

func (p *AMQPPublisher) Publish(ctx context.Context, e ContestEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "failed to marshal event")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx,
		p.exchange, // exchange
		e.Type,     // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			MessageId:    e.ContestID + ":" + e.Type,
			Type:         e.Type,
			Body:         body,
		},
	)
	if err != nil {
		p.reset()
		return eris.Wrapf(err, "failed to publish %s", e.Type)
	}
	p.log.Debug().Str("type", e.Type).Str("contest_id", e.ContestID).Msg("event published")
	return nil
}

// channel returns an open channel, dialing when needed. Callers hold p.mu.
func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	timeout := p.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, eris.Wrap(err, "rabbitmq dial failed")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, eris.Wrap(err, "rabbitmq channel open failed")
	}
	if err := ch.ExchangeDeclare(
		p.exchange, // name
		"topic",    // kind
		true,       // durable
		false,      // autoDelete
		false,      // internal
		false,      // noWait
		nil,        // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, eris.Wrapf(err, "failed to declare exchange %s", p.exchange)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// Close shuts the connection down.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
