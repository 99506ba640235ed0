package netaio

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the prometheus collectors a node updates as it
// processes messages. Register them with a prometheus.Registerer of
// the caller's choosing; NewMetrics does not register anything
// itself, so multiple nodes in one process can share a registry
// without double-registration panics as long as each gets distinct
// constant labels.
type Metrics struct {
	MessagesReceived *prometheus.CounterVec
	MessagesSent     *prometheus.CounterVec
	DispatchErrors   *prometheus.CounterVec
	PeersKnown       prometheus.Gauge
	Subscriptions    prometheus.Gauge
}

// NewMetrics constructs a Metrics with the given constant labels
// (typically {"node": selfID}) applied to every collector.
func NewMetrics(constLabels prometheus.Labels) *Metrics {
	return &Metrics{
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "netaio_messages_received_total",
			Help:        "Messages received, labeled by message type.",
			ConstLabels: constLabels,
		}, []string{"type"}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "netaio_messages_sent_total",
			Help:        "Messages sent, labeled by message type.",
			ConstLabels: constLabels,
		}, []string{"type"}),
		DispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "netaio_dispatch_errors_total",
			Help:        "Errors returned from the security pipeline or a handler, labeled by kind.",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		PeersKnown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "netaio_peers_known",
			Help:        "Peers currently tracked by this node's PeerRegistry.",
			ConstLabels: constLabels,
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "netaio_subscriptions",
			Help:        "Active URI subscriptions across all connections.",
			ConstLabels: constLabels,
		}),
	}
}

// MustRegister registers every collector with reg, panicking on
// failure as prometheus.MustRegister does.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.MessagesReceived, m.MessagesSent, m.DispatchErrors, m.PeersKnown, m.Subscriptions)
}

// recvd, sent, and dispatchErr are nil-safe so every call site in the
// transports can record metrics unconditionally instead of checking
// for a nil *Metrics first.

func (m *Metrics) recvd(msgType MessageType) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(msgType.String()).Inc()
}

func (m *Metrics) sent(msgType MessageType) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(msgType.String()).Inc()
}

func (m *Metrics) dispatchErr(kind string) {
	if m == nil {
		return
	}
	m.DispatchErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) setPeersKnown(n int) {
	if m == nil {
		return
	}
	m.PeersKnown.Set(float64(n))
}

func (m *Metrics) setSubscriptions(n int) {
	if m == nil {
		return
	}
	m.Subscriptions.Set(float64(n))
}
