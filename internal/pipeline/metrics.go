package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"familyvault/internal/domain"
)

var (
	// stageResultsTotal 各阶段的执行结果计数
	stageResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "file_pipeline_stage_results_total",
			Help: "Pipeline stage executions by stage, operation and outcome",
		},
		[]string{"stage", "operation", "outcome"},
	)

	// stageDuration 各阶段耗时
	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "file_pipeline_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"stage", "operation"},
	)
)

func observeStage(stage string, op domain.FileOperation, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		code, _ := domain.Classify(err)
		outcome = string(code)
	}
	stageResultsTotal.WithLabelValues(stage, string(op), outcome).Inc()
	stageDuration.WithLabelValues(stage, string(op)).Observe(elapsed.Seconds())
}
