package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"FinLedger/internal/event"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// OutboundPublisher publishes domain events to NATS for downstream
// consumers (settlement engine, risk monitors, audit).
// Subjects follow the pattern: fin.ledger.events.{event_type}
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan event.Event
	sequence  atomic.Int64
	log       zerolog.Logger
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan event.Event, log zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		log:       log,
	}
}

// Run starts the outbound publisher loop. Blocks until ctx is
// cancelled or the input channel closes.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, evt); err != nil {
				// Non-fatal: downstream consumers can reconstruct from
				// the Postgres history tables.
				op.log.Warn().
					Err(err).
					Str("event_type", evt.EventType().String()).
					Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, evt event.Event) error {
	env := event.Envelope{
		Sequence:       op.sequence.Add(1),
		EventType:      evt.EventType().String(),
		IdempotencyKey: evt.IdempotencyKey(),
		PositionID:     evt.PositionID(),
		Timestamp:      time.Now(),
		Payload:        evt,
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("fin.ledger.events.%s", env.EventType)
	_, err = op.js.Publish(ctx, subject, data)
	return err
}
