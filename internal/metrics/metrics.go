package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal *prometheus.CounterVec
	storeOpsTotal     *prometheus.CounterVec
	resultsTotal      *prometheus.CounterVec
	resultsDuration   prometheus.Histogram
	registerOnce      sync.Once
)

// Register initializes Prometheus metrics on the default registry.
func Register() {
	registerOnce.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hivemind",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests processed by the hivemind API.",
		}, []string{"method", "path", "status"})

		storeOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hivemind",
			Name:      "store_operations_total",
			Help:      "Content store operations by backend, operation and outcome.",
		}, []string{"backend", "op", "result"})

		resultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hivemind",
			Name:      "results_calculations_total",
			Help:      "Consensus recalculations by outcome.",
		}, []string{"result"})

		resultsDuration = promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hivemind",
			Name:      "results_duration_seconds",
			Help:      "Time spent recalculating and saving a state.",
			Buckets:   prometheus.DefBuckets,
		})
	})
}

// IncRequest increments the http_requests_total counter with the given labels.
func IncRequest(method, path string, status int) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

// IncStoreOp records one store call. A nil err counts as "ok".
func IncStoreOp(backend, op string, err error) {
	if storeOpsTotal == nil {
		return
	}
	storeOpsTotal.WithLabelValues(backend, op, outcome(err)).Inc()
}

// ObserveResults records one recalculation of a state.
func ObserveResults(d time.Duration, err error) {
	if resultsTotal == nil {
		return
	}
	resultsTotal.WithLabelValues(outcome(err)).Inc()
	resultsDuration.Observe(d.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
