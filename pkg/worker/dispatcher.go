package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/config-api/internal/model"
	"github.com/jwalitptl/config-api/internal/repository"
	"github.com/jwalitptl/config-api/pkg/logger"
	"github.com/jwalitptl/config-api/pkg/messaging"
	"github.com/jwalitptl/config-api/pkg/metrics"
)

type DispatcherConfig struct {
	BatchSize    int
	PollInterval time.Duration
	Topic        string
}

// Dispatcher drains undispatched outbox events to the broker on a fixed
// poll interval. Publish failures are never fatal: the event stays
// undispatched, its attempt counter grows, and the loop moves on to the
// next event. Operators alert on the backlog gauge, not on individual
// failures.
type Dispatcher struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  DispatcherConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config DispatcherConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Dispatcher {
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.Topic == "" {
		panic("Topic must not be empty")
	}

	return &Dispatcher{
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	d.logger.Info("Starting outbox dispatcher",
		"batch_size", d.config.BatchSize,
		"poll_interval", d.config.PollInterval.String(),
		"topic", d.config.Topic)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Shutting down outbox dispatcher")
			return
		case <-ticker.C:
			if err := d.Drain(ctx); err != nil {
				d.logger.Error(err, "Failed to drain outbox")
			}
			d.refreshBacklog(ctx)
		}
	}
}

// Drain claims one batch of undispatched events, oldest first, and
// publishes each independently. An error on one event does not roll back
// or block the ones around it.
func (d *Dispatcher) Drain(ctx context.Context) error {
	timer := prometheus.NewTimer(d.metrics.OutboxDrainLatency)
	defer timer.ObserveDuration()

	events, err := d.repo.GetUndispatched(ctx, d.config.BatchSize)
	if err != nil {
		d.metrics.DatabaseOperations.WithLabelValues("get_undispatched", "error").Inc()
		return fmt.Errorf("failed to get undispatched events: %w", err)
	}
	d.metrics.DatabaseOperations.WithLabelValues("get_undispatched", "success").Inc()

	for _, event := range events {
		if err := d.dispatchEvent(ctx, event); err != nil {
			d.logger.Error(err, "Failed to dispatch event",
				"event_id", event.ID.String(),
				"event_type", string(event.EventType),
				"attempts", event.Attempts+1)
			continue
		}
	}

	return nil
}

func (d *Dispatcher) dispatchEvent(ctx context.Context, event *model.OutboxEvent) error {
	d.metrics.OutboxAttempts.WithLabelValues(string(event.EventType)).Inc()

	if err := d.broker.Publish(ctx, d.config.Topic, event); err != nil {
		d.metrics.OutboxEventsFailed.Inc()
		if recordErr := d.repo.RecordFailure(ctx, event.ID, err.Error()); recordErr != nil {
			d.logger.Error(recordErr, "Failed to record publish failure", "event_id", event.ID.String())
		}
		return err
	}

	// Marking is a separate small write per event. A crash between the
	// publish and this mark causes a duplicate publish on restart;
	// consumers dedupe by event id.
	if err := d.repo.MarkDispatched(ctx, event.ID); err != nil {
		d.logger.Error(err, "Failed to mark event dispatched", "event_id", event.ID.String())
		return err
	}

	d.metrics.OutboxEventsDispatched.Inc()
	d.logger.Debug("dispatched outbox event",
		"event_id", event.ID.String(),
		"event_type", string(event.EventType),
		"correlation_id", event.CorrelationID)
	return nil
}

func (d *Dispatcher) refreshBacklog(ctx context.Context) {
	count, err := d.repo.CountUndispatched(ctx)
	if err != nil {
		d.logger.Error(err, "Failed to count outbox backlog")
		return
	}
	d.metrics.OutboxBacklog.Set(float64(count))
}
