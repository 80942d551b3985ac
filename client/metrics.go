package client

import "github.com/prometheus/client_golang/prometheus"

// Metric name constants, mirroring the device package's
// Connect/Disconnect/Ping/Pong/RequestResponse counter set.
const (
	MetricConnectTotal         = "buttplug_client_connect_total"
	MetricDisconnectTotal      = "buttplug_client_disconnect_total"
	MetricPingTotal            = "buttplug_client_ping_total"
	MetricPongTotal            = "buttplug_client_pong_total"
	MetricTransactionTotal     = "buttplug_client_transaction_total"
	MetricTransactionFailTotal = "buttplug_client_transaction_fail_total"
)

// Metrics bundles the counters the client and its transports increment.
// The client checks for a nil *Metrics before every increment, so a nil
// value acts as a no-op collector. NewMetrics never returns nil.
type Metrics struct {
	Connect         prometheus.Counter
	Disconnect      prometheus.Counter
	Ping            prometheus.Counter
	Pong            prometheus.Counter
	Transaction     prometheus.Counter
	TransactionFail prometheus.Counter
}

// NewMetrics builds a Metrics bundle and registers it with registerer. A
// nil registerer registers against prometheus.DefaultRegisterer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Connect:         prometheus.NewCounter(prometheus.CounterOpts{Name: MetricConnectTotal, Help: "Successful handshake completions."}),
		Disconnect:      prometheus.NewCounter(prometheus.CounterOpts{Name: MetricDisconnectTotal, Help: "Disconnects, cooperative or transport-driven."}),
		Ping:            prometheus.NewCounter(prometheus.CounterOpts{Name: MetricPingTotal, Help: "Ping requests sent."}),
		Pong:            prometheus.NewCounter(prometheus.CounterOpts{Name: MetricPongTotal, Help: "Pongs observed by a transport's keepalive."}),
		Transaction:     prometheus.NewCounter(prometheus.CounterOpts{Name: MetricTransactionTotal, Help: "Request/reply pairs resolved by the sorter."}),
		TransactionFail: prometheus.NewCounter(prometheus.CounterOpts{Name: MetricTransactionFailTotal, Help: "Pending requests failed by connector teardown."}),
	}

	registerer.MustRegister(m.Connect, m.Disconnect, m.Ping, m.Pong, m.Transaction, m.TransactionFail)
	return m
}
