package bvh

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	treeLabel = "tree"
	opLabel   = "op"
	modeLabel = "mode"

	opInsert   = "insert"
	opRemove   = "remove"
	opRelayout = "relayout"
)

var (
	bvhLinkedObjects = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bvh_linked_objects",
		Help: "The number of objects linked into a tree.",
	}, []string{treeLabel})

	bvhArenaCapacity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bvh_arena_capacity",
		Help: "The number of node slots allocated by a tree.",
	}, []string{treeLabel})

	bvhPendingOps = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bvh_pending_ops",
		Help: "The number of buffered tree operations waiting for an update.",
	}, []string{treeLabel, opLabel})

	bvhUpdateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bvh_update_duration_seconds",
		Help:    "The time spent applying buffered operations to a tree.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	}, []string{treeLabel})

	bvhQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bvh_queries_total",
		Help: "The total number of tree queries.",
	}, []string{treeLabel, modeLabel})

	bvhQueryResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bvh_query_results_total",
		Help: "The total number of objects returned by tree queries.",
	}, []string{treeLabel})
)

func instrumentArenaCapacity(tree string, capacity int) {
	bvhArenaCapacity.
		With(prometheus.Labels{treeLabel: tree}).
		Set(float64(capacity))
}

func instrumentPendingOps(tree string, op string, n int) {
	bvhPendingOps.
		With(prometheus.Labels{treeLabel: tree, opLabel: op}).
		Set(float64(n))
}

func instrumentUpdate(tree string, d time.Duration, objects int) {
	bvhUpdateDuration.
		With(prometheus.Labels{treeLabel: tree}).
		Observe(d.Seconds())

	bvhLinkedObjects.
		With(prometheus.Labels{treeLabel: tree}).
		Set(float64(objects))
}

func instrumentQuery(tree string, mode string, results int) {
	bvhQueries.
		With(prometheus.Labels{treeLabel: tree, modeLabel: mode}).
		Inc()

	bvhQueryResults.
		With(prometheus.Labels{treeLabel: tree}).
		Add(float64(results))
}
