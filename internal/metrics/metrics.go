package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pdfqa_http_requests_total",
	Help: "Total number of requests labelled by route and status",
}, []string{"route", "status"})

var httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "pdfqa_http_request_duration_seconds",
	Help:    "Time spent serving requests.",
	Buckets: []float64{.01, .05, .1, .5, 1, 2, 5, 10, 30},
}, []string{"route"})

var backendLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "pdfqa_backend_latency_seconds",
	Help:    "Latency of answer backend calls.",
	Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 30, 60},
}, []string{"backend", "outcome"})

var chunksIngested = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pdfqa_chunks_ingested_total",
	Help: "Chunks written to the vector store.",
})

var chunksSkipped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pdfqa_chunks_skipped_total",
	Help: "Chunks skipped because their id was already indexed.",
})

var historyPersistFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pdfqa_history_persist_failures_total",
	Help: "Question/answer rows the worker could not persist.",
})

func ObserveRequest(route, status string, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(route, status).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func ObserveBackend(backend string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	backendLatency.WithLabelValues(backend, outcome).Observe(elapsed.Seconds())
}

func AddChunksIngested(n int) {
	chunksIngested.Add(float64(n))
}

func AddChunksSkipped(n int) {
	chunksSkipped.Add(float64(n))
}

func IncHistoryPersistFailures() {
	historyPersistFailures.Inc()
}
