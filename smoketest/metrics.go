package smoketest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var smokeTestRuns = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "smoketest_run_duration_seconds",
	Help:    "The time spent running the smoke test scenarios.",
	Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
}, []string{"status"})

func instrumentRun(status string, d time.Duration) {
	smokeTestRuns.
		With(prometheus.Labels{"status": status}).
		Observe(d.Seconds())
}
