package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/servicebook/booking-api/pkg/logger"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("broker closed")

// BreakerSettings tunes the circuit breaker wrapped around broker calls
type BreakerSettings struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:      1,
		Interval:         10 * time.Second,
		Timeout:          5 * time.Second,
		FailureThreshold: 5,
	}
}

// NewBreaker opens after FailureThreshold consecutive failures and lets
// MaxRequests probes through once Timeout has passed.
func NewBreaker(name string, s BreakerSettings, log *logger.Logger) *gobreaker.CircuitBreaker {
	threshold := s.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// Consume delivers every message on channel to handle until ctx is done or
// the subscription closes. Handler errors are logged and do not stop the loop.
func Consume(ctx context.Context, b Broker, channel string, handle func(context.Context, []byte) error, log *logger.Logger) error {
	msgs, err := b.Subscribe(ctx, channel)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := handle(ctx, msg); err != nil {
				log.Error(err, "Failed to handle message", "channel", channel)
			}
		}
	}
}
