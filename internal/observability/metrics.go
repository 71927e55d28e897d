package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle outcomes reported by RecordCycleOutcome.
const (
	OutcomeText     = "text"
	OutcomeNoResult = "no_result"
	OutcomeError    = "error"
)

var (
	// Session metrics
	activeCycles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicekey_active_cycles",
		Help: "Number of push-to-talk cycles currently recording",
	})

	cyclesStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicekey_cycles_started_total",
		Help: "Total number of push-to-talk cycles started",
	}, []string{"backend"})

	cycleOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicekey_cycle_outcomes_total",
		Help: "Push-to-talk cycle outcomes",
	}, []string{"backend", "outcome"})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicekey_cycle_duration_seconds",
		Help:    "Time from Start to delivered outcome",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	stopWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicekey_stop_wait_seconds",
		Help:    "Time Stop spent waiting for the backend to finish",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	stopTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicekey_stop_timeouts_total",
		Help: "Stops that gave up waiting and used the best text so far",
	})

	staleEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicekey_stale_events_total",
		Help: "Backend events discarded because their cycle was no longer current",
	}, []string{"kind"}) // kind: "transcript" or "completion"

	// STT metrics
	transcriptsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicekey_transcripts_total",
		Help: "Transcripts received from backends",
	}, []string{"backend", "final"})

	streamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicekey_stream_errors_total",
		Help: "Transcript streams that ended with an error",
	}, []string{"backend"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voicekey_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicekey_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesCaptured = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicekey_audio_bytes_total",
		Help: "Audio bytes captured and forwarded to backends",
	}, []string{"backend"})
)

// RecordCycleStart records the start of a push-to-talk cycle
func RecordCycleStart(backend string) {
	activeCycles.Inc()
	cyclesStarted.WithLabelValues(backend).Inc()
}

// RecordCycleOutcome records how a cycle ended and how long it lasted
func RecordCycleOutcome(backend, outcome string, started time.Time) {
	activeCycles.Dec()
	cycleOutcomes.WithLabelValues(backend, outcome).Inc()
	if !started.IsZero() {
		cycleDuration.Observe(time.Since(started).Seconds())
	}
}

// RecordStopWait records how long Stop waited and whether it timed out
func RecordStopWait(d time.Duration, timedOut bool) {
	stopWait.Observe(d.Seconds())
	if timedOut {
		stopTimeouts.Inc()
	}
}

// RecordStaleEvent records a discarded event from a superseded cycle
func RecordStaleEvent(kind string) {
	staleEvents.WithLabelValues(kind).Inc()
}

// RecordTranscript records a transcript delivered by a backend
func RecordTranscript(backend string, final bool) {
	label := "false"
	if final {
		label = "true"
	}
	transcriptsReceived.WithLabelValues(backend, label).Inc()
}

// RecordStreamError records a stream that completed with an error
func RecordStreamError(backend string) {
	streamErrors.WithLabelValues(backend).Inc()
}

// RecordAudioBytes records audio bytes forwarded to a backend
func RecordAudioBytes(backend string, bytes int) {
	audioBytesCaptured.WithLabelValues(backend).Add(float64(bytes))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
