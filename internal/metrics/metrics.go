// Package metrics exports channel and server counters to Prometheus. A
// *Metrics is a netchan.Observer, so channels report into it directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/1ureka/netchan/internal/netchan"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "netchan").
	Namespace string

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) { c.Namespace = namespace }
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) { c.Registry = registry }
}

// Metrics holds every collector.
type Metrics struct {
	packetsSent    prometheus.Counter
	packetsRecv    prometheus.Counter
	bytesSent      prometheus.Counter
	bytesRecv      prometheus.Counter
	packetsLost    prometheus.Counter
	rejected       *prometheus.CounterVec
	retransmits    prometheus.Counter
	fragments      prometheus.Counter
	fatal          *prometheus.CounterVec
	clients        prometheus.Gauge
	connects       *prometheus.CounterVec
	frameBytes     prometheus.Histogram
	outOfBand      *prometheus.CounterVec
	ambientResyncs prometheus.Counter
}

var _ netchan.Observer = (*Metrics)(nil)

// New registers the collectors.
func New(opts ...Option) *Metrics {
	cfg := Config{
		Namespace: "netchan",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	factory := promauto.With(cfg.Registry)
	ns := cfg.Namespace

	return &Metrics{
		packetsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "packets_sent_total",
			Help: "Sequenced datagrams handed to the socket",
		}),
		packetsRecv: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "packets_received_total",
			Help: "Sequenced datagrams accepted by a channel",
		}),
		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "sent_bytes_total",
			Help: "Bytes of sequenced datagrams sent, headers included",
		}),
		bytesRecv: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "received_bytes_total",
			Help: "Bytes of sequenced datagrams accepted, headers included",
		}),
		packetsLost: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "packets_lost_total",
			Help: "Sequence gaps seen by receiving channels",
		}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "packets_rejected_total",
			Help: "Datagrams a channel refused, by reason",
		}, []string{"reason"}),
		retransmits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "reliable_retransmits_total",
			Help: "Reliable payloads sent again",
		}),
		fragments: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "fragments_sent_total",
			Help: "Fragment datagrams sent",
		}),
		fatal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "channel_fatal_total",
			Help: "Channels stopped by a fatal error, by reason",
		}, []string{"reason"}),
		clients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "clients",
			Help: "Connected clients",
		}),
		connects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "connects_total",
			Help: "Connection attempts, by outcome",
		}, []string{"outcome"}),
		frameBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "frame_bytes",
			Help:    "Size of the unreliable frame message per client",
			Buckets: prometheus.ExponentialBuckets(16, 2, 10),
		}),
		outOfBand: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "out_of_band_total",
			Help: "Connectionless commands received, by command",
		}, []string{"command"}),
		ambientResyncs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "ambient_resyncs_total",
			Help: "Ambient messages sent",
		}),
	}
}

// ---------------------------------------------------------------------------
// netchan.Observer
// ---------------------------------------------------------------------------

func (m *Metrics) PacketSent(bytes int) {
	m.packetsSent.Inc()
	m.bytesSent.Add(float64(bytes))
}

func (m *Metrics) PacketReceived(bytes int) {
	m.packetsRecv.Inc()
	m.bytesRecv.Add(float64(bytes))
}

func (m *Metrics) PacketsDropped(n int)         { m.packetsLost.Add(float64(n)) }
func (m *Metrics) PacketRejected(reason string) { m.rejected.WithLabelValues(reason).Inc() }
func (m *Metrics) Retransmitted()               { m.retransmits.Inc() }
func (m *Metrics) FragmentSent()                { m.fragments.Inc() }
func (m *Metrics) Fatal(reason string)          { m.fatal.WithLabelValues(reason).Inc() }

// ---------------------------------------------------------------------------
// Server events
// ---------------------------------------------------------------------------

// ClientConnected counts a successful connect.
func (m *Metrics) ClientConnected() {
	m.clients.Inc()
	m.connects.WithLabelValues("accepted").Inc()
}

// ClientRefused counts a connect that was turned away.
func (m *Metrics) ClientRefused(reason string) {
	m.connects.WithLabelValues(reason).Inc()
}

// ClientDropped counts a client leaving for any reason.
func (m *Metrics) ClientDropped() { m.clients.Dec() }

// FrameSent records the size of one client's frame message.
func (m *Metrics) FrameSent(bytes int) { m.frameBytes.Observe(float64(bytes)) }

// OutOfBand counts a connectionless command.
func (m *Metrics) OutOfBand(command string) { m.outOfBand.WithLabelValues(command).Inc() }

// AmbientResync counts an ambient message.
func (m *Metrics) AmbientResync() { m.ambientResyncs.Inc() }
