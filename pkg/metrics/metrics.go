// Package metrics holds the Prometheus collectors of the order coordinator.
//
//   - oms_orders_enqueued_total            requests accepted onto the submission queue
//   - oms_orders_rejected_total{reason}    requests refused before queuing
//   - oms_orders_submitted_total           submissions handed to the gateway
//   - oms_submission_failures_total{reason} queued requests that never reached the gateway
//   - oms_fills_total{exit}                terminal fills of correlated orders
//   - oms_realized_profit                  running sum of emitted sale profit
//   - oms_queue_depth                      requests waiting for an identifier
//   - oms_open_orders                      ledger size
//   - oms_query_timeouts_total{query}      bounded queries that gave up
//   - oms_gateway_callbacks_total{kind}    callbacks received from the gateway
//   - oms_benign_races_total{kind}         callbacks that matched nothing
//
// Collectors are registered on the default registry in init() and served by
// promhttp on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OrdersEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "oms_orders_enqueued_total",
			Help: "Order requests accepted onto the submission queue",
		},
	)

	OrdersRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oms_orders_rejected_total",
			Help: "Order requests refused before queuing",
		},
		[]string{"reason"}, // invalid|duplicate|position|rule
	)

	OrdersSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "oms_orders_submitted_total",
			Help: "Orders handed to the gateway",
		},
	)

	SubmissionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oms_submission_failures_total",
			Help: "Queued requests that never reached the gateway",
		},
		[]string{"reason"}, // missing_parameters|identifier_timeout|cancelled|gateway|stopped
	)

	Fills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oms_fills_total",
			Help: "Terminal fills of orders placed through the coordinator",
		},
		[]string{"exit"},
	)

	RealizedProfit = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "oms_realized_profit",
			Help: "Sum of profit over emitted sales",
		},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "oms_queue_depth",
			Help: "Requests waiting for a gateway identifier",
		},
	)

	OpenOrders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "oms_open_orders",
			Help: "Orders currently in the open order ledger",
		},
	)

	QueryTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oms_query_timeouts_total",
			Help: "Bounded open-order/position queries that returned inconclusive",
		},
		[]string{"query"}, // open_orders|positions
	)

	GatewayCallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oms_gateway_callbacks_total",
			Help: "Callbacks received from the broker gateway",
		},
		[]string{"kind"},
	)

	BenignRaces = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oms_benign_races_total",
			Help: "Gateway callbacks that matched no pending request or known order",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersEnqueued,
		OrdersRejected,
		OrdersSubmitted,
		SubmissionFailures,
		Fills,
		RealizedProfit,
		QueueDepth,
		OpenOrders,
		QueryTimeouts,
		GatewayCallbacks,
		BenignRaces,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
