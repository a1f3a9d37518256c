// Package memory is an in-process broker for local runs and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/servicebook/booking-api/pkg/messaging"
)

type Broker struct {
	mu     sync.Mutex
	subs   map[string][]chan []byte
	sent   map[string][][]byte
	fail   error
	closed bool
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string][]chan []byte),
		sent: make(map[string][][]byte),
	}
}

var _ messaging.Broker = (*Broker)(nil)

// FailWith makes every later Publish return err. nil restores delivery.
func (b *Broker) FailWith(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = err
}

func (b *Broker) Publish(ctx context.Context, channel string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return messaging.ErrClosed
	}
	if b.fail != nil {
		return b.fail
	}
	b.sent[channel] = append(b.sent[channel], payload)
	for _, sub := range b.subs[channel] {
		select {
		case sub <- payload:
		default:
		}
	}
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, messaging.ErrClosed
	}

	ch := make(chan []byte, 100)
	b.subs[channel] = append(b.subs[channel], ch)

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[channel]
		for i, s := range subs {
			if s == ch {
				b.subs[channel] = append(subs[:i], subs[i+1:]...)
				close(ch)
				return
			}
		}
	}()
	return ch, nil
}

// Published returns the payloads sent on channel so far.
func (b *Broker) Published(channel string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.sent[channel]...)
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for channel, subs := range b.subs {
		for _, s := range subs {
			close(s)
		}
		delete(b.subs, channel)
	}
	return nil
}
