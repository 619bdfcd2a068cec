package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for FinLedger.
type Metrics struct {
	// --- Positions ---
	PositionsOpened  prometheus.Counter
	OpenRejected     *prometheus.CounterVec
	ActivePositions  prometheus.Gauge
	PositionsSettled *prometheus.CounterVec

	// --- Price guard ---
	PriceUpdates   *prometheus.CounterVec
	PriceUpdateLag prometheus.Histogram

	// --- Liquidation ---
	LiquidationTriggered prometheus.Counter
	LiquidationRejected  *prometheus.CounterVec
	LiquidationExecuted  *prometheus.CounterVec
	LiquidationDuration  prometheus.Histogram
	DebtRepaid           prometheus.Counter
	BonusPaid            prometheus.Counter

	// --- Persistence ---
	PersistRowsWritten prometheus.Counter
	PersistErrors      *prometheus.CounterVec
	PersistBatchDur    prometheus.Histogram

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer)
}

// NewTestMetrics registers on a private registry so parallel test
// packages never collide on duplicate registration.
func NewTestMetrics() *Metrics {
	return newMetrics(prometheus.NewRegistry())
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	latencyBuckets := []float64{
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1,
	}

	return &Metrics{
		PositionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "fin_positions_opened_total",
			Help: "Positions successfully opened",
		}),

		OpenRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fin_open_rejected_total",
			Help: "Open attempts rejected (by reason)",
		}, []string{"reason"}),

		ActivePositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fin_active_positions",
			Help: "Records currently held by the ledger",
		}),

		PositionsSettled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fin_positions_settled_total",
			Help: "Positions settled (maturity/early_close)",
		}, []string{"kind"}),

		PriceUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fin_price_updates_total",
			Help: "Price updates by result (accepted, rejected_deviation, rejected_auth)",
		}, []string{"result"}),

		PriceUpdateLag: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fin_price_update_lag_seconds",
			Help:    "Observation timestamp to guard acceptance",
			Buckets: latencyBuckets,
		}),

		LiquidationTriggered: factory.NewCounter(prometheus.CounterOpts{
			Name: "fin_liquidation_triggered_total",
			Help: "Trigger checks that breached the threshold",
		}),

		LiquidationRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fin_liquidation_rejected_total",
			Help: "Execution attempts rejected (by guard)",
		}, []string{"guard"}),

		LiquidationExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fin_liquidation_executed_total",
			Help: "Executed liquidations (by resulting status)",
		}, []string{"outcome"}),

		LiquidationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fin_liquidation_duration_seconds",
			Help:    "ExecuteLiquidation wall time",
			Buckets: latencyBuckets,
		}),

		DebtRepaid: factory.NewCounter(prometheus.CounterOpts{
			Name: "fin_debt_repaid_total",
			Help: "Total debt repaid via liquidation (whole units)",
		}),

		BonusPaid: factory.NewCounter(prometheus.CounterOpts{
			Name: "fin_liquidation_bonus_paid_total",
			Help: "Total liquidator bonus paid (whole units)",
		}),

		PersistRowsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "fin_persist_rows_written_total",
			Help: "Rows written to Postgres",
		}),

		PersistErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fin_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistBatchDur: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fin_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		QueryRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fin_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fin_query_duration_seconds",
			Help:    "Query latency",
			Buckets: latencyBuckets,
		}, []string{"endpoint"}),
	}
}
