package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the coordinator's Prometheus instruments on a private
// registry.
type Metrics struct {
	registry            *prometheus.Registry
	streamsStartedTotal prometheus.Counter
	streamsEndedTotal   prometheus.Counter
	liveStreams         prometheus.Gauge
	viewers             prometheus.Gauge
	eventsDroppedTotal  prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	streamsStartedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livecast_streams_started_total",
		Help: "Total number of sessions that transitioned to live",
	})
	streamsEndedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livecast_streams_ended_total",
		Help: "Total number of sessions that transitioned to ended",
	})
	liveStreams := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livecast_live_streams",
		Help: "Number of sessions currently live",
	})
	viewers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livecast_viewers",
		Help: "Number of connections currently joined to a room",
	})
	eventsDroppedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livecast_events_dropped_total",
		Help: "Total number of subscriber deliveries skipped for slow clients",
	})

	registry.MustRegister(
		streamsStartedTotal,
		streamsEndedTotal,
		liveStreams,
		viewers,
		eventsDroppedTotal,
	)

	return &Metrics{
		registry:            registry,
		streamsStartedTotal: streamsStartedTotal,
		streamsEndedTotal:   streamsEndedTotal,
		liveStreams:         liveStreams,
		viewers:             viewers,
		eventsDroppedTotal:  eventsDroppedTotal,
	}
}

func (m *Metrics) IncStreamsStarted() {
	m.streamsStartedTotal.Inc()
}

func (m *Metrics) IncStreamsEnded() {
	m.streamsEndedTotal.Inc()
}

func (m *Metrics) SetLiveStreams(n int) {
	m.liveStreams.Set(float64(n))
}

func (m *Metrics) SetViewers(n int) {
	m.viewers.Set(float64(n))
}

func (m *Metrics) IncEventsDropped() {
	m.eventsDroppedTotal.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
