package messaging_test

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicebook/booking-api/pkg/logger"
	"github.com/servicebook/booking-api/pkg/messaging"
	"github.com/servicebook/booking-api/pkg/messaging/memory"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := messaging.NewBreaker("test", messaging.BreakerSettings{
		MaxRequests:      1,
		Timeout:          time.Minute,
		FailureThreshold: 3,
	}, logger.Nop())

	boom := stderrors.New("boom")
	for i := 0; i < 3; i++ {
		_, err := cb.Execute(func() (interface{}, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.Execute(func() (interface{}, error) { return nil, nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestConsumeDeliversUntilCancelled(t *testing.T) {
	broker := memory.NewBroker()
	ctx, cancel := context.WithCancel(context.Background())

	var (
		mu   sync.Mutex
		got  []string
		done = make(chan struct{})
	)
	ready := make(chan struct{})
	go func() {
		defer close(done)
		close(ready)
		err := messaging.Consume(ctx, broker, "booking.created", func(ctx context.Context, msg []byte) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, string(msg))
			if len(got) == 1 {
				return stderrors.New("handler errors do not stop the loop")
			}
			return nil
		}, logger.Nop())
		assert.NoError(t, err)
	}()
	<-ready

	require.Eventually(t, func() bool {
		_ = broker.Publish(ctx, "booking.created", map[string]int{"n": 1})
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Consume did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, `{"n":1}`, got[0])
}

func TestMemoryBrokerClose(t *testing.T) {
	broker := memory.NewBroker()
	ch, err := broker.Subscribe(context.Background(), "x")
	require.NoError(t, err)

	require.NoError(t, broker.Close())
	_, open := <-ch
	assert.False(t, open)
	assert.ErrorIs(t, broker.Publish(context.Background(), "x", 1), messaging.ErrClosed)
}
