package occlusion

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	managerLabel  = "manager"
	categoryLabel = "category"
)

var (
	occlusionObjects = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "occlusion_objects",
		Help: "The number of objects linked into a category tree.",
	}, []string{managerLabel, categoryLabel})

	occlusionUpdateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "occlusion_update_duration_seconds",
		Help:    "The time spent updating every category tree of a manager.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	}, []string{managerLabel})

	occlusionQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "occlusion_query_duration_seconds",
		Help:    "The time spent dispatching and joining a query.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	}, []string{managerLabel})
)

func instrumentObjects(manager string, c Category, n int) {
	occlusionObjects.
		With(prometheus.Labels{
			managerLabel:  manager,
			categoryLabel: c.String(),
		}).
		Set(float64(n))
}

func instrumentUpdate(manager string, d time.Duration) {
	occlusionUpdateDuration.
		With(prometheus.Labels{managerLabel: manager}).
		Observe(d.Seconds())
}

func instrumentQuery(manager string, d time.Duration) {
	occlusionQueryDuration.
		With(prometheus.Labels{managerLabel: manager}).
		Observe(d.Seconds())
}
