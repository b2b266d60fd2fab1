package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "streamer"

// Metrics holds the collectors shared by the streamer components.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ConnectionState    prometheus.Gauge
	Restarts           prometheus.Counter
	TrackedInstruments prometheus.Gauge
	IntentsDispatched  *prometheus.CounterVec
	RequestFailures    *prometheus.CounterVec
	Events             *prometheus.CounterVec
	DecodeErrors       prometheus.Counter
	DroppedPushes      prometheus.Counter
	HandlerPanics      prometheus.Counter
	WriterRows         *prometheus.CounterVec
	WriterErrors       *prometheus.CounterVec
	PublishErrors      prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Session state: 0 disconnected, 1 connecting, 2 connected.",
		}),
		Restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_restarts_total",
			Help:      "Session restarts after an unsolicited disconnect.",
		}),
		TrackedInstruments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_instruments",
			Help:      "Instruments with at least one quote subscription holder.",
		}),
		IntentsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_dispatched_total",
			Help:      "Instrument keys sent in subscribe and unsubscribe batches.",
		}, []string{"op", "level"}),
		RequestFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_failures_total",
			Help:      "Hub invocations that failed or were rejected.",
		}, []string{"target"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Decoded push events by kind.",
		}, []string{"kind"}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Pushes that could not be decoded.",
		}),
		DroppedPushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_pushes_total",
			Help:      "Pushes dropped because the event queue was full or closed.",
		}),
		HandlerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_panics_total",
			Help:      "Event handlers that panicked.",
		}),
		WriterRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writer_rows_total",
			Help:      "Rows inserted by the recorder.",
		}, []string{"table"}),
		WriterErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writer_errors_total",
			Help:      "Failed recorder batch inserts.",
		}, []string{"table"}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Events that could not be published to redis.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ConnectionState,
			m.Restarts,
			m.TrackedInstruments,
			m.IntentsDispatched,
			m.RequestFailures,
			m.Events,
			m.DecodeErrors,
			m.DroppedPushes,
			m.HandlerPanics,
			m.WriterRows,
			m.WriterErrors,
			m.PublishErrors,
		)
	}

	return m
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) SetConnectionState(state int) {
	if m == nil {
		return
	}
	m.ConnectionState.Set(float64(state))
}

func (m *Metrics) IncRestarts() {
	if m == nil {
		return
	}
	m.Restarts.Inc()
}

func (m *Metrics) SetTrackedInstruments(n int) {
	if m == nil {
		return
	}
	m.TrackedInstruments.Set(float64(n))
}

func (m *Metrics) AddIntents(op, level string, n int) {
	if m == nil {
		return
	}
	m.IntentsDispatched.WithLabelValues(op, level).Add(float64(n))
}

func (m *Metrics) IncRequestFailure(target string) {
	if m == nil {
		return
	}
	m.RequestFailures.WithLabelValues(target).Inc()
}

func (m *Metrics) IncEvent(kind string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncDecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

func (m *Metrics) IncDroppedPush() {
	if m == nil {
		return
	}
	m.DroppedPushes.Inc()
}

func (m *Metrics) IncHandlerPanic() {
	if m == nil {
		return
	}
	m.HandlerPanics.Inc()
}

func (m *Metrics) AddWriterRows(table string, n int) {
	if m == nil {
		return
	}
	m.WriterRows.WithLabelValues(table).Add(float64(n))
}

func (m *Metrics) IncWriterError(table string) {
	if m == nil {
		return
	}
	m.WriterErrors.WithLabelValues(table).Inc()
}

func (m *Metrics) IncPublishError() {
	if m == nil {
		return
	}
	m.PublishErrors.Inc()
}
