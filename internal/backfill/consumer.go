package backfill

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

const backfillConsumer = "backfill"

// Consumer drives the friend link backfill from friends updated events.
type Consumer struct {
	service      Service
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	metrics      *metrics.ConsumerMetrics
	logg         *logger.Logger
}

// NewConsumer builds the backfill consumer.
func NewConsumer(service Service, subscription *pubsub.Subscriber, manager *idempotency.Manager, consumerMetrics *metrics.ConsumerMetrics, logg *logger.Logger) (*Consumer, error) {
	if service == nil {
		return nil, fmt.Errorf("backfill service required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("backfill subscription required")
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

	if enums.OutboxEventType(eventType) != enums.EventUserFriendsUpdated {
		c.metrics.IncSkipped(backfillConsumer, eventType)
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		c.metrics.IncSkipped(backfillConsumer, eventType)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		c.metrics.IncSkipped(backfillConsumer, eventType)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, backfillConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		c.metrics.IncSkipped(backfillConsumer, eventType)
		return processResult{ack: true}
	}

	var payload payloads.FriendsUpdatedEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to decode payload", err)
		c.metrics.IncSkipped(backfillConsumer, eventType)
		return processResult{ack: true}
	}

	started := time.Now()
	if err := c.service.ProcessFriendsUpdated(ctx, payload); err != nil {
		c.logg.Error(logCtx, "backfill handling failed", err)
		_ = c.idempotency.Delete(ctx, backfillConsumer, eventID)
		c.metrics.IncFailed(backfillConsumer, eventType)
		return processResult{nack: true}
	}
	c.metrics.ObserveDuration(backfillConsumer, eventType, time.Since(started))
	c.metrics.IncProcessed(backfillConsumer, eventType)
	c.logg.Info(c.logg.WithUserID(logCtx, payload.UserID), "friend backfill processed")

	return processResult{ack: true}
}
