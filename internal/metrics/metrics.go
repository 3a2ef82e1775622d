// Package metrics defines the Prometheus metrics the trading engine exposes:
// order flow, repricing activity, risk trips, and per-cycle latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the process registers.
type Metrics struct {
	OrdersPlaced   prometheus.Counter // orders submitted to the exchange
	OrdersCanceled prometheus.Counter // cancels submitted
	OrdersRejected prometheus.Counter // per-order failures (rejected, balance)
	Reprices       prometheus.Counter // cancel/replace pairs by the maker
	RiskTrips      prometheus.Counter // terminal risk-guard trips
	GridFills      prometheus.Counter // grid legs filled (either side)

	RealizedPnL    prometheus.Gauge     // realized P&L summed across sessions
	ActiveSessions prometheus.Gauge     // engines currently running
	CycleDuration  prometheus.Histogram // one engine cycle, seconds

	ProxyLookups prometheus.Counter // proxy resolutions that hit the network
	ErrorsTotal  prometheus.Counter // recoverable errors across the process
}

// New registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers on a custom registry, keeping tests isolated
// from the global state.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		OrdersPlaced: factory.NewCounter(prometheus.CounterOpts{
			Name: "orders_placed_total",
			Help: "Total number of orders submitted to the exchange",
		}),
		OrdersCanceled: factory.NewCounter(prometheus.CounterOpts{
			Name: "orders_canceled_total",
			Help: "Total number of cancel requests submitted",
		}),
		OrdersRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "orders_rejected_total",
			Help: "Total number of orders the exchange rejected",
		}),
		Reprices: factory.NewCounter(prometheus.CounterOpts{
			Name: "reprices_total",
			Help: "Total number of cancel/replace reprice actions",
		}),
		RiskTrips: factory.NewCounter(prometheus.CounterOpts{
			Name: "risk_trips_total",
			Help: "Total number of terminal risk-guard trips",
		}),
		GridFills: factory.NewCounter(prometheus.CounterOpts{
			Name: "grid_fills_total",
			Help: "Total number of grid legs filled",
		}),
		RealizedPnL: factory.NewGauge(prometheus.GaugeOpts{
			Name: "realized_pnl_dollars",
			Help: "Realized profit and loss across all sessions",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "active_sessions",
			Help: "Number of per-account engine sessions currently running",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cycle_duration_seconds",
			Help:    "Duration of one maker engine cycle",
			Buckets: prometheus.DefBuckets,
		}),
		ProxyLookups: factory.NewCounter(prometheus.CounterOpts{
			Name: "proxy_lookups_total",
			Help: "Proxy wallet resolutions that went to the network",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of recoverable errors",
		}),
	}
}
