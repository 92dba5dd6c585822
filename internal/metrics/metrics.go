// Package metrics exposes Prometheus counters for the message pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	inboundEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kira_inbound_events_total",
			Help: "Inbound events received from adapters",
		},
		[]string{"adapter"},
	)

	bufferFlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kira_buffer_flushes_total",
			Help: "Inbound buffer flushes",
		},
		[]string{"adapter"},
	)

	bufferBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kira_buffer_batch_size",
			Help:    "Events per flushed batch",
			Buckets: []float64{1, 2, 3, 5, 8, 13},
		},
	)

	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kira_turns_total",
			Help: "Agent turns by outcome",
		},
		[]string{"adapter", "outcome"},
	)

	turnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kira_turn_duration_seconds",
			Help:    "Agent turn duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"adapter"},
	)

	llmCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kira_llm_calls_total",
			Help: "LLM calls by kind and status",
		},
		[]string{"kind", "status"},
	)

	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kira_tool_calls_total",
			Help: "Tool invocations by tool and status",
		},
		[]string{"tool", "status"},
	)

	protocolParsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kira_protocol_parses_total",
			Help: "Reply parses by path: direct, repaired, fallback",
		},
		[]string{"path"},
	)

	messagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kira_messages_sent_total",
			Help: "Outbound messages by adapter and status",
		},
		[]string{"adapter", "status"},
	)

	activeTurns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kira_active_turns",
			Help: "Turns currently holding an admission slot",
		},
	)

	initOnce sync.Once
)

// Init registers the collectors with the default registry.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			inboundEventsTotal,
			bufferFlushesTotal,
			bufferBatchSize,
			turnsTotal,
			turnDuration,
			llmCallsTotal,
			toolCallsTotal,
			protocolParsesTotal,
			messagesSentTotal,
			activeTurns,
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordInbound(adapter string) {
	inboundEventsTotal.WithLabelValues(adapter).Inc()
}

func RecordFlush(adapter string, size int) {
	bufferFlushesTotal.WithLabelValues(adapter).Inc()
	bufferBatchSize.Observe(float64(size))
}

// RecordTurn records a finished turn. outcome is "ok" or "error".
func RecordTurn(adapter, outcome string, d time.Duration) {
	turnsTotal.WithLabelValues(adapter, outcome).Inc()
	turnDuration.WithLabelValues(adapter).Observe(d.Seconds())
}

// RecordLLMCall records a model call. kind is "agent" or "repair".
func RecordLLMCall(kind string, err error) {
	llmCallsTotal.WithLabelValues(kind, status(err)).Inc()
}

func RecordToolCall(tool string, err error) {
	toolCallsTotal.WithLabelValues(tool, status(err)).Inc()
}

func RecordParse(path string) {
	protocolParsesTotal.WithLabelValues(path).Inc()
}

func RecordSend(adapter string, err error) {
	messagesSentTotal.WithLabelValues(adapter, status(err)).Inc()
}

// TurnStarted and TurnFinished track admission slot usage.
func TurnStarted()  { activeTurns.Inc() }
func TurnFinished() { activeTurns.Dec() }

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
