package persistence

import (
	"context"
	"database/sql"
	"time"

	"FinLedger/internal/observability"

	"github.com/rs/zerolog"
)

// Record is one unit of work for the persistence worker. Exactly one
// field is set.
type Record struct {
	Position    *PositionRow
	Liquidation *LiquidationRow
	PriceUpdate *PriceUpdateRow
}

// Worker drains the persist channel and batch-writes to Postgres. The
// channel uses blocking sends from the core, so a worker falling behind
// stalls producers instead of dropping rows.
type Worker struct {
	writer       *Writer
	inputChan    <-chan Record
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan Record,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Worker {
	return &Worker{
		writer:       NewWriter(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		log:          log,
	}
}

// Run batches incoming records and flushes either when a batch is full
// or the flush timeout expires. Blocks until ctx is cancelled or the
// input channel closes; remaining rows are flushed on the way out.
func (w *Worker) Run(ctx context.Context) error {
	var (
		positions    []PositionRow
		liquidations []LiquidationRow
		prices       []PriceUpdateRow
	)
	pending := 0

	reset := func() {
		positions = positions[:0]
		liquidations = liquidations[:0]
		prices = prices[:0]
		pending = 0
	}

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if pending > 0 {
				w.flushWithRetry(context.Background(), positions, liquidations, prices)
			}
			return ctx.Err()

		case rec, ok := <-w.inputChan:
			if !ok {
				if pending > 0 {
					w.flushWithRetry(context.Background(), positions, liquidations, prices)
				}
				return nil
			}

			switch {
			case rec.Position != nil:
				positions = append(positions, *rec.Position)
			case rec.Liquidation != nil:
				liquidations = append(liquidations, *rec.Liquidation)
			case rec.PriceUpdate != nil:
				prices = append(prices, *rec.PriceUpdate)
			}
			pending++

			if pending >= w.batchSize {
				w.flushWithRetry(ctx, positions, liquidations, prices)
				reset()
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if pending > 0 {
				w.flushWithRetry(ctx, positions, liquidations, prices)
				reset()
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff until the write
// succeeds or the context is cancelled. The worker never drops rows.
func (w *Worker) flushWithRetry(ctx context.Context, positions []PositionRow, liquidations []LiquidationRow, prices []PriceUpdateRow) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("persistence retry")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		if err := w.flush(ctx, positions, liquidations, prices); err != nil {
			w.metrics.PersistErrors.WithLabelValues("write").Inc()
			w.log.Error().Err(err).Msg("batch flush failed")
			continue
		}
		return
	}
}

func (w *Worker) flush(ctx context.Context, positions []PositionRow, liquidations []LiquidationRow, prices []PriceUpdateRow) error {
	start := time.Now()

	if err := w.writer.UpsertPositions(ctx, positions); err != nil {
		return err
	}
	if err := w.writer.WriteLiquidations(ctx, liquidations); err != nil {
		return err
	}
	if err := w.writer.WritePriceUpdates(ctx, prices); err != nil {
		return err
	}

	w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
	w.metrics.PersistRowsWritten.Add(float64(len(positions) + len(liquidations) + len(prices)))
	return nil
}
