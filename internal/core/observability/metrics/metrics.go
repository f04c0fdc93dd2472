// Package metrics exports behavior tree activity to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zeusync/npcbrain/internal/core/bt"
	"github.com/zeusync/npcbrain/internal/core/events/bus"
)

const namespace = "npcbrain"

// Metrics owns a private Prometheus registry. It observes players through
// bt.Observer and the session bus through bus.EventBusObserver.
type Metrics struct {
	registry *prometheus.Registry

	activations   *prometheus.CounterVec
	deactivations *prometheus.CounterVec
	preemptions   *prometheus.CounterVec
	finished      *prometheus.CounterVec
	tickDuration  prometheus.Histogram
	agents        prometheus.Gauge
	frameDuration prometheus.Histogram

	events        *prometheus.CounterVec
	eventErrors   *prometheus.CounterVec
	eventHandlers prometheus.Counter
	eventDelivery prometheus.Histogram
}

var (
	_ bt.Observer          = (*Metrics)(nil)
	_ bus.EventBusObserver = (*Metrics)(nil)
)

// New creates the collectors and registers them, along with the Go runtime
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaf_activations_total",
			Help:      "Leaf activations by node type.",
		}, []string{"type"}),
		deactivations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaf_deactivations_total",
			Help:      "Leaf deactivations by node type.",
		}, []string{"type"}),
		preemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preemptions_total",
			Help:      "Running leaves interrupted by a higher-priority node, by requesting node index.",
		}, []string{"node"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trees_finished_total",
			Help:      "Trees that concluded, by final status.",
		}, []string{"status"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one player tick.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		agents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agents",
			Help:      "Agents currently hosted.",
		}),
		frameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_duration_seconds",
			Help:      "Time spent updating every agent for one simulation frame.",
			Buckets:   prometheus.DefBuckets,
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events published on the session bus, by type and scope (global or agent).",
		}, []string{"type", "scope"}),
		eventErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_handler_errors_total",
			Help:      "Deliveries where at least one handler failed, by event type.",
		}, []string{"type"}),
		eventHandlers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_handler_calls_total",
			Help:      "Handler invocations made by the session bus.",
		}),
		eventDelivery: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_delivery_seconds",
			Help:      "Time spent running the handlers of one event.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
	}
	m.registry.MustRegister(
		m.activations, m.deactivations, m.preemptions, m.finished,
		m.tickDuration, m.agents, m.frameDuration,
		m.events, m.eventErrors, m.eventHandlers, m.eventDelivery,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) OnActivate(_ uuid.UUID, _ int, typ string) {
	m.activations.WithLabelValues(typ).Inc()
}

func (m *Metrics) OnDeactivate(_ uuid.UUID, _ int, typ string) {
	m.deactivations.WithLabelValues(typ).Inc()
}

func (m *Metrics) OnPreempt(_ uuid.UUID, _, to int) {
	m.preemptions.WithLabelValues(strconv.Itoa(to)).Inc()
}

func (m *Metrics) OnFinish(_ uuid.UUID, status bt.Status) {
	m.finished.WithLabelValues(status.String()).Inc()
}

func (m *Metrics) OnTick(_ uuid.UUID, d time.Duration) {
	m.tickDuration.Observe(d.Seconds())
}

// SetAgents records the number of hosted agents.
func (m *Metrics) SetAgents(n int) { m.agents.Set(float64(n)) }

// ObserveFrame records how long one simulation frame took.
func (m *Metrics) ObserveFrame(d time.Duration) { m.frameDuration.Observe(d.Seconds()) }

// OnPublish counts an event. Agent topics collapse into one scope to keep
// label cardinality bounded.
func (m *Metrics) OnPublish(topic, eventType string, _ bus.Event) {
	scope := "global"
	if topic != "" {
		scope = "agent"
	}
	m.events.WithLabelValues(eventType, scope).Inc()
}

func (m *Metrics) OnDelivered(_, eventType string, handlers int, err error, took time.Duration) {
	m.eventHandlers.Add(float64(handlers))
	if err != nil {
		m.eventErrors.WithLabelValues(eventType).Inc()
	}
	m.eventDelivery.Observe(took.Seconds())
}
