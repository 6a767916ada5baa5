package orchestration

import (
	"net/http"
	"sync"
	"time"

	"github.com/koscakluka/ema-companion/core/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics of the companion on a private
// registry. Tool, playback and recording metrics are fed from the event bus.
type Metrics struct {
	registry *prometheus.Registry

	TurnsTotal      *prometheus.CounterVec
	TurnDuration    prometheus.Histogram
	TurnIterations  prometheus.Histogram
	ToolCallsTotal  *prometheus.CounterVec
	PlaybacksTotal  *prometheus.CounterVec
	OutputActive    prometheus.Gauge
	RecordingsTotal *prometheus.CounterVec
	EventsTotal     *prometheus.CounterVec

	mu          sync.Mutex
	unsubscribe []func()
}

func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "companion"
	}

	registry := prometheus.NewRegistry()

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of conversation turns by outcome",
		},
		[]string{"outcome"},
	)

	turnDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Conversation turn duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	turnIterations := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_iterations",
			Help:      "Model calls per conversation turn",
			Buckets:   []float64{1, 2, 3, 5, 10, 20, 30},
		},
	)

	toolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls by result",
		},
		[]string{"tool", "result"},
	)

	playbacksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playbacks_total",
			Help:      "Total number of finished playbacks",
		},
		[]string{"result"},
	)

	outputActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "output_active",
			Help:      "Whether assistant audio is currently playing",
		},
	)

	recordingsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_total",
			Help:      "Total number of voice recordings by result",
		},
		[]string{"result"},
	)

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of published events by namespace",
		},
		[]string{"namespace"},
	)

	registry.MustRegister(
		turnsTotal,
		turnDuration,
		turnIterations,
		toolCallsTotal,
		playbacksTotal,
		outputActive,
		recordingsTotal,
		eventsTotal,
	)

	return &Metrics{
		registry:        registry,
		TurnsTotal:      turnsTotal,
		TurnDuration:    turnDuration,
		TurnIterations:  turnIterations,
		ToolCallsTotal:  toolCallsTotal,
		PlaybacksTotal:  playbacksTotal,
		OutputActive:    outputActive,
		RecordingsTotal: recordingsTotal,
		EventsTotal:     eventsTotal,
	}
}

// Observe subscribes the bus driven metrics.
func (m *Metrics) Observe(bus *events.Bus) {
	if m == nil || bus == nil {
		return
	}

	unsubscribe := []func(){
		bus.SubscribeAll(func(event events.Event) {
			m.EventsTotal.WithLabelValues(event.Kind().Namespace()).Inc()
		}),
		bus.Subscribe(events.KindToolCallCompleted, func(event events.Event) {
			if e, ok := event.(events.ToolCallCompleted); ok {
				m.ToolCallsTotal.WithLabelValues(e.Name, "success").Inc()
			}
		}),
		bus.Subscribe(events.KindToolCallFailed, func(event events.Event) {
			if e, ok := event.(events.ToolCallFailed); ok {
				m.ToolCallsTotal.WithLabelValues(e.Name, "failure").Inc()
			}
		}),
		bus.Subscribe(events.KindAssistantPlaybackStarted, func(events.Event) {
			m.OutputActive.Set(1)
		}),
		bus.Subscribe(events.KindAssistantPlaybackEnded, func(event events.Event) {
			m.OutputActive.Set(0)
			if e, ok := event.(events.AssistantPlaybackEnded); ok {
				result := "completed"
				if e.Interrupted {
					result = "interrupted"
				}
				m.PlaybacksTotal.WithLabelValues(result).Inc()
			}
		}),
		bus.Subscribe(events.KindUserSpeechEnded, func(event events.Event) {
			if e, ok := event.(events.UserSpeechEnded); ok {
				result := "submitted"
				if e.Discarded {
					result = "discarded"
				}
				m.RecordingsTotal.WithLabelValues(result).Inc()
			}
		}),
	}

	m.mu.Lock()
	m.unsubscribe = append(m.unsubscribe, unsubscribe...)
	m.mu.Unlock()
}

func (m *Metrics) observeTurn(outcome string, iterations int, duration time.Duration) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
	m.TurnIterations.Observe(float64(iterations))
	m.TurnDuration.Observe(duration.Seconds())
}

// Registry returns the Prometheus registry, or nil on a nil Metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint. A nil Metrics
// serves 404.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Close() {
	if m == nil {
		return
	}

	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
}
