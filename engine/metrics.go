// Prometheus metrics for the lifecycle engine, served at /metrics by the run
// command. The connect-failure counter is the external health signal for a
// gateway that keeps refusing the handshake.
package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxConnectFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "optrader_connect_failures_total",
			Help: "Failed gateway connect attempts",
		},
	)

	mtxConnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "optrader_connects_total",
			Help: "Successful gateway connects",
		},
	)

	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optrader_orders_total",
			Help: "Orders submitted to the gateway",
		},
		[]string{"side", "kind"},
	)

	mtxRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "optrader_order_rejections_total",
			Help: "Orders the gateway rejected at submission",
		},
	)

	mtxTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optrader_stop_triggers_total",
			Help: "Stop-loss monitors fired, by option right",
		},
		[]string{"right"},
	)

	mtxMonitors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "optrader_monitors_active",
			Help: "Stop-loss monitors currently armed",
		},
	)
)

func init() {
	prometheus.MustRegister(
		mtxConnectFailures,
		mtxConnects,
		mtxOrders,
		mtxRejections,
		mtxTriggers,
		mtxMonitors,
	)
}
