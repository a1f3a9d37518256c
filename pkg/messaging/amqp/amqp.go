package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"

	"github.com/servicebook/booking-api/pkg/logger"
	"github.com/servicebook/booking-api/pkg/messaging"
)

type Config struct {
	URL      string
	Exchange string
	// QueuePrefix names the durable queue bound per subscribed routing key.
	QueuePrefix string
	Prefetch    int
	Breaker     messaging.BreakerSettings
}

// Broker publishes to a topic exchange using the channel as routing key
type Broker struct {
	conn   *amqp.Connection
	pubCh  *amqp.Channel
	mu     sync.Mutex
	config Config
	cb     *gobreaker.CircuitBreaker
	logger *logger.Logger
}

func NewBroker(config Config, log *logger.Logger) (*Broker, error) {
	if config.Exchange == "" {
		config.Exchange = "servicebook.events"
	}
	if config.QueuePrefix == "" {
		config.QueuePrefix = "servicebook"
	}
	if config.Prefetch <= 0 {
		config.Prefetch = 50
	}

	conn, err := amqp.Dial(config.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(config.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &Broker{
		conn:   conn,
		pubCh:  ch,
		config: config,
		cb:     messaging.NewBreaker("amqp-broker", config.Breaker, log),
		logger: log,
	}, nil
}

func (b *Broker) Publish(ctx context.Context, channel string, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = b.cb.Execute(func() (interface{}, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		return nil, b.pubCh.PublishWithContext(ctx, b.config.Exchange, channel, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe binds a durable queue to channel and acknowledges each delivery
// once it is handed to the reader.
func (b *Broker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Qos(b.config.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	q, err := ch.QueueDeclare(b.config.QueuePrefix+"."+channel, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, channel, b.config.Exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("bind %s: %w", channel, err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume %s: %w", q.Name, err)
	}

	out := make(chan []byte, b.config.Prefetch)
	go func() {
		defer func() {
			_ = ch.Close()
			close(out)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				select {
				case out <- d.Body:
					if err := d.Ack(false); err != nil {
						b.logger.Error(err, "Failed to ack delivery", "queue", q.Name)
					}
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			}
		}
	}()

	return out, nil
}

func (b *Broker) Close() error {
	if b.pubCh != nil {
		_ = b.pubCh.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
