package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	executorLabel = "executor"
)

var (
	jobsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobs_scheduled_total",
		Help: "The total number of scheduled jobs.",
	})

	jobsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_executed_total",
		Help: "The total number of executed jobs.",
	}, []string{executorLabel})

	jobsPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_panics_total",
		Help: "The total number of jobs that panicked.",
	}, []string{executorLabel})

	jobsWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jobs_workers",
		Help: "The number of running pool workers.",
	})
)

func instrumentSchedule(n int) {
	jobsScheduled.Add(float64(n))
}

func instrumentExecution(executor string) {
	jobsExecuted.
		With(prometheus.Labels{executorLabel: executor}).
		Inc()
}

func instrumentPanic(executor string) {
	jobsPanics.
		With(prometheus.Labels{executorLabel: executor}).
		Inc()
}

func instrumentWorkers(delta int) {
	jobsWorkers.Add(float64(delta))
}
