package models

import (
	"time"

	"github.com/aukilabs/occlusion/occlusion"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	categoryLabel = "category"
)

var (
	sceneCountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scene_count_total",
		Help: "The total number of scenes.",
	})

	sceneEntityCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scene_entity_count",
		Help: "The number of entities in scenes.",
	}, []string{categoryLabel})

	sceneFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scene_frames_total",
		Help: "The total number of dispatched frames.",
	})

	sceneFrameDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scene_frame_duration_seconds",
		Help:    "The time spent updating trees and running frame handlers.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	})
)

func instrumentCountScene() {
	sceneCountTotal.Inc()
}

func instrumentIncreaseEntityGauge(c occlusion.Category) {
	sceneEntityCount.
		With(prometheus.Labels{categoryLabel: c.String()}).
		Inc()
}

func instrumentDecreaseEntityGauge(c occlusion.Category) {
	sceneEntityCount.
		With(prometheus.Labels{categoryLabel: c.String()}).
		Dec()
}

func instrumentFrame(d time.Duration) {
	sceneFramesTotal.Inc()
	sceneFrameDuration.Observe(d.Seconds())
}
