// Package metrics exposes server counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "blazer"

// Metrics holds every collector the server updates. A nil *Metrics records
// nothing.
type Metrics struct {
	Registry *prometheus.Registry

	connections     prometheus.Gauge
	connsTotal      prometheus.Counter
	packetsIn       *prometheus.CounterVec
	packetsOut      *prometheus.CounterVec
	dispatchErrors  *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	dropped         prometheus.Counter
	games           prometheus.Gauge
	players         prometheus.Gauge
	queued          prometheus.Gauge
	authFailures    prometheus.Counter
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open client connections",
		}),
		connsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Accepted client connections",
		}),
		packetsIn: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "Packets received by command",
		}, []string{"command", "type"}),
		packetsOut: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_sent_total",
			Help:      "Packets written by command",
		}, []string{"command", "type"}),
		dispatchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_errors_total",
			Help:      "Error responses by command and code",
		}, []string{"command", "code"}),
		handlerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Command handler latency",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"command"}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Pushes discarded because a session queue was full",
		}),
		games: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "games",
			Help:      "Active games",
		}),
		players: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "players_in_game",
			Help:      "Sessions seated in a game",
		}),
		queued: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "matchmaking_queue",
			Help:      "Pending matchmaking requests",
		}),
		authFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected login attempts",
		}),
	}
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
	m.connsTotal.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) PacketReceived(command, typ string) {
	if m == nil {
		return
	}
	m.packetsIn.WithLabelValues(command, typ).Inc()
}

func (m *Metrics) PacketSent(command, typ string) {
	if m == nil {
		return
	}
	m.packetsOut.WithLabelValues(command, typ).Inc()
}

// Dispatched records one handled request.
func (m *Metrics) Dispatched(command string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.handlerDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

func (m *Metrics) DispatchError(command, code string) {
	if m == nil {
		return
	}
	m.dispatchErrors.WithLabelValues(command, code).Inc()
}

func (m *Metrics) NotificationDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *Metrics) AuthFailed() {
	if m == nil {
		return
	}
	m.authFailures.Inc()
}

// SetGameStats updates the engine gauges.
func (m *Metrics) SetGameStats(games, players, queued int) {
	if m == nil {
		return
	}
	m.games.Set(float64(games))
	m.players.Set(float64(players))
	m.queued.Set(float64(queued))
}
