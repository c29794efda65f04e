package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus collectors. Registered once at init; scraped from the ops
// listener, never from the protocol socket.
var (
	connectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatd_connections_total",
		Help: "Total client connections accepted",
	})

	connectionsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatd_connections_rejected_total",
		Help: "Connections rejected before dispatch, by reason",
	}, []string{"reason"})

	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatd_requests_total",
		Help: "Requests dispatched, by opcode name and outcome",
	}, []string{"opcode", "outcome"})

	requestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatd_request_duration_seconds",
		Help:    "Wall time per request on the timeline worker",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
	})

	journalRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatd_journal_records_total",
		Help: "Records appended to the transaction log",
	})

	timelineDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatd_timeline_queue_depth",
		Help: "Tasks currently queued on the timeline",
	})

	relayBundlesApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatd_relay_bundles_applied_total",
		Help: "Relay bundles pulled and applied to the model",
	})

	relayWrites = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatd_relay_writes_total",
		Help: "Locally authored message packs pushed to the relay",
	})

	relayFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatd_relay_failures_total",
		Help: "Relay operation failures, by operation",
	}, []string{"op"})

	cpuPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatd_process_cpu_percent",
		Help: "Process CPU usage percent",
	})

	memoryBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatd_process_memory_bytes",
		Help: "Process resident memory in bytes",
	})
)

func init() {
	prometheus.MustRegister(
		connectionsTotal,
		connectionsRejected,
		requestsTotal,
		requestDuration,
		journalRecords,
		timelineDepth,
		relayBundlesApplied,
		relayWrites,
		relayFailures,
		cpuPercent,
		memoryBytes,
	)
}

// RecordConnection counts one accepted connection.
func RecordConnection() {
	connectionsTotal.Inc()
}

// RecordConnectionRejected counts one rejected connection.
func RecordConnectionRejected(reason string) {
	connectionsRejected.WithLabelValues(reason).Inc()
}

// RecordRequest counts one dispatched request with its outcome
// ("ok", "absent", "wire_error", "unknown_opcode").
func RecordRequest(opcode, outcome string) {
	requestsTotal.WithLabelValues(opcode, outcome).Inc()
}

// ObserveRequestDuration records request wall time in seconds.
func ObserveRequestDuration(seconds float64) {
	requestDuration.Observe(seconds)
}

// RecordJournalAppend counts one journal record.
func RecordJournalAppend() {
	journalRecords.Inc()
}

// SetTimelineDepth publishes the current queue depth.
func SetTimelineDepth(depth int) {
	timelineDepth.Set(float64(depth))
}

// RecordRelayBundle counts one applied relay bundle.
func RecordRelayBundle() {
	relayBundlesApplied.Inc()
}

// RecordRelayWrite counts one outbound relay pack.
func RecordRelayWrite() {
	relayWrites.Inc()
}

// RecordRelayFailure counts one relay failure ("read" or "write").
func RecordRelayFailure(op string) {
	relayFailures.WithLabelValues(op).Inc()
}

// SetProcessUsage publishes sampled CPU and memory usage.
func SetProcessUsage(cpu float64, memBytes uint64) {
	cpuPercent.Set(cpu)
	memoryBytes.Set(float64(memBytes))
}

// HandleMetrics serves the prometheus scrape endpoint.
func HandleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}
