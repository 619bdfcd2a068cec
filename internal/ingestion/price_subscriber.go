package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"FinLedger/internal/observability"
	"FinLedger/internal/oracle"
	"FinLedger/internal/position"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// PriceMessage is the wire shape of one oracle observation on
// fin.prices.{asset}.
type PriceMessage struct {
	PositionID uuid.UUID `json:"position_id"`
	Asset      string    `json:"asset"`
	Price      int64     `json:"price_8dp"`
	Confidence int64     `json:"confidence_8dp"`
	Authority  uuid.UUID `json:"authority"`
	Timestamp  time.Time `json:"timestamp"`
}

// PriceSink receives one guarded price update per message. The core
// facade implements it; the subscriber never touches the ledger
// directly.
type PriceSink interface {
	UpdatePrice(positionID uuid.UUID, newPrice int64, authority uuid.UUID) error
}

// PriceSubscriber consumes validated oracle observations from JetStream
// and runs each through the price guard. Guard rejections are terminal
// for the message (ACKed, counted); only transport/parse trouble NAKs
// for redelivery.
type PriceSubscriber struct {
	js       jetstream.JetStream
	sink     PriceSink
	feed     *oracle.Feed
	metrics  *observability.Metrics
	log      zerolog.Logger
	consumer jetstream.ConsumeContext
}

func NewPriceSubscriber(
	js jetstream.JetStream,
	sink PriceSink,
	feed *oracle.Feed,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *PriceSubscriber {
	return &PriceSubscriber{
		js:      js,
		sink:    sink,
		feed:    feed,
		metrics: metrics,
		log:     log,
	}
}

// Subscribe creates the durable consumer on FIN_PRICES. Explicit ACK,
// max_deliver=5, ack_wait=30s.
func (ps *PriceSubscriber) Subscribe(ctx context.Context) error {
	consumer, err := ps.js.CreateOrUpdateConsumer(ctx, "FIN_PRICES", jetstream.ConsumerConfig{
		Durable:       "finledger-prices",
		FilterSubject: "fin.prices.>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create price consumer: %w", err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := ps.handle(msg.Data()); err != nil {
			if isTerminal(err) {
				msg.Ack()
				return
			}
			msg.Nak()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("consume prices: %w", err)
	}

	ps.consumer = consumeCtx
	ps.log.Info().Str("subject", "fin.prices.>").Msg("subscribed")
	return nil
}

func (ps *PriceSubscriber) handle(data []byte) error {
	var pm PriceMessage
	if err := json.Unmarshal(data, &pm); err != nil {
		ps.log.Warn().Err(err).Msg("malformed price message")
		return errMalformed
	}

	if err := ps.sink.UpdatePrice(pm.PositionID, pm.Price, pm.Authority); err != nil {
		switch {
		case errors.Is(err, oracle.ErrPriceDeviationTooHigh):
			ps.metrics.PriceUpdates.WithLabelValues("rejected_deviation").Inc()
		case errors.Is(err, position.ErrUnauthorized):
			ps.metrics.PriceUpdates.WithLabelValues("rejected_auth").Inc()
		default:
			ps.metrics.PriceUpdates.WithLabelValues("rejected_other").Inc()
		}
		ps.log.Warn().
			Err(err).
			Str("position_id", pm.PositionID.String()).
			Int64("price", pm.Price).
			Msg("price rejected")
		return errRejected
	}

	// Only guard-accepted observations reach the per-asset feed that
	// liquidation snapshots freeze from.
	ps.feed.Publish(pm.Asset, pm.Price, pm.Confidence, pm.Timestamp)

	ps.metrics.PriceUpdates.WithLabelValues("accepted").Inc()
	if !pm.Timestamp.IsZero() {
		ps.metrics.PriceUpdateLag.Observe(time.Since(pm.Timestamp).Seconds())
	}
	return nil
}

// Stop drains the consumer.
func (ps *PriceSubscriber) Stop() {
	if ps.consumer != nil {
		ps.consumer.Stop()
	}
}

var (
	errMalformed = errors.New("malformed message")
	errRejected  = errors.New("guard rejected")
)

// isTerminal reports whether redelivery could ever succeed.
func isTerminal(err error) bool {
	return errors.Is(err, errMalformed) || errors.Is(err, errRejected)
}

// EnsureStreams creates the required JetStream streams if they don't
// exist. FileStorage, limits retention, 72h max age.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "FIN_PRICES",
			Subjects:  []string{"fin.prices.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "FIN_LEDGER_EVENTS",
			Subjects:  []string{"fin.ledger.events.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}
