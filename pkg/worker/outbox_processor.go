package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/servicebook/booking-api/internal/model"
	"github.com/servicebook/booking-api/internal/repository"
	"github.com/servicebook/booking-api/internal/service/event"
	"github.com/servicebook/booking-api/pkg/logger"
	"github.com/servicebook/booking-api/pkg/messaging"
	"github.com/servicebook/booking-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// MaxRetries is the number of failed publishes after which an event is
	// parked as failed.
	MaxRetries int
	RetryDelay time.Duration
}

func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:    100,
		PollInterval: 5 * time.Second,
		MaxRetries:   5,
		RetryDelay:   5 * time.Second,
	}
}

// OutboxProcessor relays committed outbox events to the broker. Each event
// is published on the channel named by its type.
type OutboxProcessor struct {
	store   repository.Store
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewOutboxProcessor(
	store repository.Store,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) (*OutboxProcessor, error) {
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be greater than 0")
	}
	if config.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be greater than 0")
	}
	if config.MaxRetries <= 0 {
		return nil, fmt.Errorf("max retries must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		return nil, fmt.Errorf("retry delay must be greater than 0")
	}

	return &OutboxProcessor{
		store:   store,
		broker:  broker,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}, nil
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor", "batch_size", p.config.BatchSize)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessBatch locks up to BatchSize due events, publishes them and records
// the outcome of each. It returns the number of events published.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	published := 0
	err := p.store.WithTx(ctx, func(tx repository.Tx) error {
		events, err := tx.Outbox().GetPendingEventsWithLock(ctx, p.config.BatchSize)
		if err != nil {
			p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "error").Inc()
			return fmt.Errorf("failed to get pending events: %w", err)
		}
		p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "success").Inc()

		for _, evt := range events {
			ok, err := p.processEvent(ctx, tx.Outbox(), evt)
			if err != nil {
				return err
			}
			if ok {
				published++
			}
		}
		return nil
	})
	return published, err
}

// processEvent reports whether evt was published. A publish failure is
// recorded on the event; only a failure to record it is returned.
func (p *OutboxProcessor) processEvent(ctx context.Context, outbox repository.OutboxRepository, evt *model.OutboxEvent) (bool, error) {
	pubErr := p.broker.Publish(ctx, evt.EventType, event.Envelope{
		ID:      evt.ID.String(),
		Type:    evt.EventType,
		Payload: evt.Payload,
	})

	if pubErr == nil {
		if err := outbox.UpdateStatus(ctx, evt.ID, model.OutboxStatusProcessed, nil, nil); err != nil {
			return false, fmt.Errorf("failed to mark event %s processed: %w", evt.ID, err)
		}
		p.metrics.OutboxEventsProcessed.Inc()
		return true, nil
	}

	errMsg := pubErr.Error()
	attempts := evt.RetryCount + 1
	if attempts >= p.config.MaxRetries {
		p.metrics.OutboxEventsFailed.Inc()
		p.logger.Error(pubErr, "Giving up on outbox event",
			"event_id", evt.ID.String(),
			"event_type", evt.EventType,
			"attempts", attempts)
		if err := outbox.UpdateStatus(ctx, evt.ID, model.OutboxStatusFailed, &errMsg, nil); err != nil {
			return false, fmt.Errorf("failed to mark event %s failed: %w", evt.ID, err)
		}
		return false, nil
	}

	p.metrics.OutboxRetries.WithLabelValues(evt.EventType).Inc()
	retryAt := p.now().Add(p.backoff(evt.RetryCount))
	p.logger.Warn("Outbox publish failed, retry scheduled",
		"event_id", evt.ID.String(),
		"event_type", evt.EventType,
		"retry_at", retryAt,
		"error", errMsg)
	if err := outbox.UpdateStatus(ctx, evt.ID, model.OutboxStatusRetry, &errMsg, &retryAt); err != nil {
		return false, fmt.Errorf("failed to schedule retry of event %s: %w", evt.ID, err)
	}
	return false, nil
}

// backoff doubles RetryDelay per earlier attempt, capped at 64x.
func (p *OutboxProcessor) backoff(retryCount int) time.Duration {
	if retryCount > 6 {
		retryCount = 6
	}
	return p.config.RetryDelay << uint(retryCount)
}
