package ledger

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

const ledgerConsumer = "ledger"

// Consumer drives the ledger pipeline from bill change events.
type Consumer struct {
	service      Service
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	metrics      *metrics.ConsumerMetrics
	logg         *logger.Logger
}

// NewConsumer builds the ledger consumer.
func NewConsumer(service Service, subscription *pubsub.Subscriber, manager *idempotency.Manager, consumerMetrics *metrics.ConsumerMetrics, logg *logger.Logger) (*Consumer, error) {
	if service == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("ledger subscription required")
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
	fields := map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	}
	logCtx := c.logg.WithFields(ctx, fields)

	switch enums.OutboxEventType(eventType) {
	case enums.EventBillCreated, enums.EventBillUpdated, enums.EventBillDeleted:
	default:
		c.metrics.IncSkipped(ledgerConsumer, eventType)
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		c.metrics.IncSkipped(ledgerConsumer, eventType)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		c.metrics.IncSkipped(ledgerConsumer, eventType)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, ledgerConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		c.metrics.IncSkipped(ledgerConsumer, eventType)
		return processResult{ack: true}
	}

	started := time.Now()
	if err := c.handle(ctx, enums.OutboxEventType(eventType), envelope.Data, logCtx); err != nil {
		c.logg.Error(logCtx, "ledger handling failed", err)
		_ = c.idempotency.Delete(ctx, ledgerConsumer, eventID)
		c.metrics.IncFailed(ledgerConsumer, eventType)
		return processResult{nack: true}
	}
	c.metrics.ObserveDuration(ledgerConsumer, eventType, time.Since(started))
	c.metrics.IncProcessed(ledgerConsumer, eventType)

	return processResult{ack: true}
}

func (c *Consumer) handle(ctx context.Context, eventType enums.OutboxEventType, data json.RawMessage, logCtx context.Context) error {
	if eventType == enums.EventBillDeleted {
		var payload payloads.BillDeletedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("parse deletion payload: %w", err)
		}
		if err := c.service.ProcessBillDeletion(ctx, payload); err != nil {
			return err
		}
		c.logg.Info(c.logg.WithBillID(logCtx, payload.BillID), "bill footprint unwound")
		return nil
	}

	var payload payloads.BillChangedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse change payload: %w", err)
	}
	if err := c.service.ProcessBillChange(ctx, payload.BillID); err != nil {
		return err
	}
	c.logg.Info(c.logg.WithBillID(logCtx, payload.BillID), "bill footprint applied")
	return nil
}
