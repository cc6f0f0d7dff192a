package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/engine"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/kafka"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/logger"
	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/model"
)

// applier is the writer-side surface the ingest loop needs.
type applier interface {
	Apply(ctx context.Context, intent model.OperationIntent) (string, error)
}

type fetcher interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// Consumer turns entity change events published by the CRUD services into
// writer applies. Delivery is at-least-once; replays are safe because the
// caller idempotency key and the operation log both dedup downstream.
//
// Each partition is pinned to one processor and a message is committed only
// after it is applied or declared unfixable. A transient store failure is
// retried in place, holding the partition: committing a later offset would
// advance the group past the failed message and lose it across a rebalance.
type Consumer struct {
	// Dependencies
	Source fetcher
	Writer applier

	// Behavior
	Workers    int
	RetryDelay time.Duration // pause between in-place retries
}

func NewConsumer(source fetcher, writer applier) *Consumer {
	return &Consumer{Source: source, Writer: writer, Workers: 16, RetryDelay: time.Second}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.Workers <= 0 {
		c.Workers = 16
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}

	chans := make([]chan kafka.Message, c.Workers)
	for i := range chans {
		chans[i] = make(chan kafka.Message, 2)
	}

	// Fetcher goroutine. Routing by partition keeps one partition on one
	// processor, so commits stay in offset order.
	go func() {
		defer func() {
			for _, ch := range chans {
				close(ch)
			}
		}()
		for {
			m, err := c.Source.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Log.Warn("ingest fetch failed", zap.Error(err))
				time.Sleep(200 * time.Millisecond)
				continue
			}
			select {
			case <-ctx.Done():
				return
			case chans[m.Partition%len(chans)] <- m:
			}
		}
	}()

	for i := 0; i < c.Workers; i++ {
		go c.runProcessor(ctx, chans[i])
	}

	<-ctx.Done()
	return ctx.Err()
}

func (c *Consumer) runProcessor(ctx context.Context, in <-chan kafka.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			c.handle(ctx, m)
		}
	}
}

// handle blocks its partition until the message settles.
func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	for {
		if c.processOne(ctx, m) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.RetryDelay):
		}
	}
}

// processOne returns whether the message settled: applied or unfixable, and
// in either case committed. False means retry in place.
func (c *Consumer) processOne(ctx context.Context, m kafka.Message) bool {
	var ev model.ChangeEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		// poison message: commit and skip, there is nothing to retry
		logger.Log.Warn("bad change event json", zap.Error(err))
		_ = c.Source.Commit(ctx, m)
		return true
	}

	kind, _ := model.ParseOperationKind(ev.Kind)
	intent := model.OperationIntent{
		TenantID:       ev.TenantID,
		EntityType:     ev.EntityType,
		EntityID:       ev.EntityID,
		Kind:           kind,
		Version:        ev.Version,
		Payload:        ev.Payload,
		IdempotencyKey: ev.IdempotencyKey,
	}

	_, err := c.Writer.Apply(ctx, intent)
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrTenantRequired),
		errors.Is(err, engine.ErrInvalidIntent),
		errors.Is(err, engine.ErrInvalidPayload):
		// malformed event: retrying will never help, commit and move on
		logger.Log.Warn("change event rejected",
			zap.String("tenant", ev.TenantID),
			zap.String("entity_type", ev.EntityType),
			zap.String("entity_id", ev.EntityID),
			zap.Error(err))
	default:
		// relational store trouble: hold the offset and retry here, so no
		// later commit can move the group past this message
		logger.Log.Error("apply from change event failed", zap.Error(err))
		return false
	}

	if err := c.Source.Commit(ctx, m); err != nil {
		logger.Log.Warn("ingest commit failed", zap.Error(err))
	}
	return true
}
