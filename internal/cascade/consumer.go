package cascade

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/danielortuno/splittab-backend/pkg/enums"
	"github.com/danielortuno/splittab-backend/pkg/logger"
	"github.com/danielortuno/splittab-backend/pkg/metrics"
	"github.com/danielortuno/splittab-backend/pkg/outbox"
	"github.com/danielortuno/splittab-backend/pkg/outbox/idempotency"
	"github.com/danielortuno/splittab-backend/pkg/outbox/payloads"
)

const cascadeConsumer = "cascade"

// Consumer drives the cascade delete from event deletion events.
type Consumer struct {
	service      Service
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	metrics      *metrics.ConsumerMetrics
	logg         *logger.Logger
}

// NewConsumer builds the cascade consumer.
func NewConsumer(service Service, subscription *pubsub.Subscriber, manager *idempotency.Manager, consumerMetrics *metrics.ConsumerMetrics, logg *logger.Logger) (*Consumer, error) {
	if service == nil {
		return nil, fmt.Errorf("cascade service required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("cascade subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		service:      service,
		subscription: subscription,
		idempotency:  manager,
		metrics:      consumerMetrics,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if enums.OutboxEventType(eventType) != enums.EventEventDeleted {
		c.metrics.IncSkipped(cascadeConsumer, eventType)
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		c.metrics.IncSkipped(cascadeConsumer, eventType)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		c.metrics.IncSkipped(cascadeConsumer, eventType)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, cascadeConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		c.metrics.IncSkipped(cascadeConsumer, eventType)
		return processResult{ack: true}
	}

	var payload payloads.EventDeletedEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to decode payload", err)
		c.metrics.IncSkipped(cascadeConsumer, eventType)
		return processResult{ack: true}
	}

	started := time.Now()
	if err := c.service.ProcessEventDeletion(ctx, payload); err != nil {
		c.logg.Error(logCtx, "cascade handling failed", err)
		_ = c.idempotency.Delete(ctx, cascadeConsumer, eventID)
		c.metrics.IncFailed(cascadeConsumer, eventType)
		return processResult{nack: true}
	}
	c.metrics.ObserveDuration(cascadeConsumer, eventType, time.Since(started))
	c.metrics.IncProcessed(cascadeConsumer, eventType)
	c.logg.Info(c.logg.WithEventID(logCtx, payload.EventID), "event cascade processed")

	return processResult{ack: true}
}
