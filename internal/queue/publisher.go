package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/eventease/internal/ledger"
	"github.com/iliyamo/eventease/internal/logger"
)

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Dialer opens a channel to the broker.  The returned closer releases the
// underlying connection.
type Dialer func() (Channel, func() error, error)

// AMQPDialer dials url with amqp091.
func AMQPDialer(url string) Dialer {
	return func() (Channel, func() error, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, nil, fmt.Errorf("dial broker: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("open channel: %w", err)
		}
		return ch, conn.Close, nil
	}
}

// Publisher sends booking events to BookingQueue.  It keeps one channel
// open and redials after a failed publish.  Publisher implements
// ledger.Observer.
type Publisher struct {
	dial    Dialer
	log     *logger.Logger
	timeout time.Duration

	mu        sync.Mutex
	ch        Channel
	closeConn func() error
}

// NewPublisher returns a Publisher.  No connection is made until the
// first event.
func NewPublisher(dial Dialer, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Discard()
	}
	return &Publisher{dial: dial, log: log, timeout: 3 * time.Second}
}

// Observe publishes ev.  Errors are logged and returned; the ledger
// ignores them.
func (p *Publisher) Observe(ctx context.Context, ev ledger.Event) error {
	if err := p.Publish(ctx, FromLedger(ev)); err != nil {
		p.log.WarnContext(ctx, "publish booking event failed", "kind", ev.Kind, "booking_id", ev.BookingID, "error", err)
		return err
	}
	return nil
}

// Publish sends one message as a persistent JSON delivery.
func (p *Publisher) Publish(ctx context.Context, ev BookingEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureChannel(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Type:         ev.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", BookingQueue, false, false, pub); err != nil {
		p.reset()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (p *Publisher) ensureChannel() error {
	if p.ch != nil {
		return nil
	}
	ch, closeConn, err := p.dial()
	if err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(BookingQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		if closeConn != nil {
			_ = closeConn()
		}
		return fmt.Errorf("declare queue: %w", err)
	}
	p.ch, p.closeConn = ch, closeConn
	return nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.closeConn != nil {
		_ = p.closeConn()
	}
	p.ch, p.closeConn = nil, nil
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
