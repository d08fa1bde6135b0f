package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector of the process. It is served on /metrics.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	UpstreamRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eoxsync",
		Name:      "upstream_requests_total",
		Help:      "Requests sent to the Cisco EoX API by endpoint and result.",
	}, []string{"endpoint", "result"})

	TokenRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eoxsync",
		Name:      "token_requests_total",
		Help:      "OAuth2 token requests by result.",
	}, []string{"result"})

	RecordOutcomes = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eoxsync",
		Name:      "record_outcomes_total",
		Help:      "Reconciled EoX records by outcome.",
	}, []string{"outcome"})

	TaskRuns = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eoxsync",
		Name:      "task_runs_total",
		Help:      "Executed tasks by type and final state.",
	}, []string{"type", "state"})

	TaskDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "eoxsync",
		Name:      "task_duration_seconds",
		Help:      "Task execution time by type.",
		Buckets:   []float64{1, 10, 60, 300, 900, 3600, 4 * 3600, 12 * 3600, 24 * 3600},
	}, []string{"type"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
