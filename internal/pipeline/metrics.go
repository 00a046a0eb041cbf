package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tagforge",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Time spent in each pipeline stage",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"stage"})

	stageOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tagforge",
		Subsystem: "pipeline",
		Name:      "stage_outcomes_total",
		Help:      "Stage completions by outcome: ok, failed, degraded or panic",
	}, []string{"stage", "outcome"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tagforge",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Analysis runs by result",
	}, []string{"result"})

	finalTagCount = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tagforge",
		Subsystem: "pipeline",
		Name:      "final_tag_count",
		Help:      "Number of tags in a successful run's final set",
		Buckets:   []float64{0, 1, 3, 5, 7, 10},
	})
)
