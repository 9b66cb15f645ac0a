// Package monitor collects Prometheus metrics for the exchange. It owns
// a private registry so tests can run many instances without default
// registry collisions.
package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Monitor struct {
	registry *prometheus.Registry

	ordersPlaced    prometheus.Counter
	ordersCancelled prometheus.Counter
	ordersRejected  prometheus.Counter

	tradesTotal  prometheus.Counter
	tradedVolume prometheus.Counter
	tradedValue  prometheus.Counter

	mintedTokens prometheus.Counter
}

func New() *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Monitor{
		registry: reg,
		ordersPlaced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "exchange",
			Name:      "orders_placed_total",
			Help:      "Accepted orders, resting or matched.",
		}),
		ordersCancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "exchange",
			Name:      "orders_cancelled_total",
			Help:      "Resting orders removed by their owner.",
		}),
		ordersRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "exchange",
			Name:      "orders_rejected_total",
			Help:      "Intents rejected before touching a book.",
		}),
		tradesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "exchange",
			Name:      "trades_total",
			Help:      "Settlement records created.",
		}),
		tradedVolume: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "exchange",
			Name:      "traded_volume_total",
			Help:      "Token quantity settled across all trades.",
		}),
		tradedValue: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "exchange",
			Name:      "traded_value_total",
			Help:      "Currency notional settled across all trades.",
		}),
		mintedTokens: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "exchange",
			Name:      "minted_tokens_total",
			Help:      "Token pairs created by minting.",
		}),
	}
}

func (m *Monitor) RecordOrderPlaced()    { m.ordersPlaced.Inc() }
func (m *Monitor) RecordOrderCancelled() { m.ordersCancelled.Inc() }
func (m *Monitor) RecordOrderRejected()  { m.ordersRejected.Inc() }

func (m *Monitor) RecordTrade(qty, notional int64) {
	m.tradesTotal.Inc()
	m.tradedVolume.Add(float64(qty))
	m.tradedValue.Add(float64(notional))
}

func (m *Monitor) RecordMint(qty int64) { m.mintedTokens.Add(float64(qty)) }

// Handler serves the scrape endpoint for this monitor's registry.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
