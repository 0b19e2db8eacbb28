package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics records per-stage processing outcomes for media items.
type PipelineMetrics struct {
	stageDuration *prometheus.HistogramVec
	stageSuccess  *prometheus.CounterVec
	stageFailure  *prometheus.CounterVec
	recovery      *prometheus.CounterVec
	quotaDenied   *prometheus.CounterVec
}

// NewPipelineMetrics registers the pipeline metrics on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Duration of pipeline stages in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"stage"})
	stageSuccess := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_stage_success",
		Help: "Successful pipeline stage executions.",
	}, []string{"stage"})
	stageFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_stage_failure",
		Help: "Failed pipeline stage executions.",
	}, []string{"stage", "category"})
	recovery := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_recovery_actions",
		Help: "Recovery actions applied to stuck media items.",
	}, []string{"action"})
	quotaDenied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_quota_denied",
		Help: "Submissions rejected by quota checks.",
	}, []string{"reason"})
	reg.MustRegister(stageDuration, stageSuccess, stageFailure, recovery, quotaDenied)
	return &PipelineMetrics{
		stageDuration: stageDuration,
		stageSuccess:  stageSuccess,
		stageFailure:  stageFailure,
		recovery:      recovery,
		quotaDenied:   quotaDenied,
	}
}

// ObserveStageDuration records how long a stage took for one item.
func (p *PipelineMetrics) ObserveStageDuration(stage string, duration time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(normalizeLabel(stage)).Observe(duration.Seconds())
}

// IncStageSuccess increments the success counter for the named stage.
func (p *PipelineMetrics) IncStageSuccess(stage string) {
	if p == nil || p.stageSuccess == nil {
		return
	}
	p.stageSuccess.WithLabelValues(normalizeLabel(stage)).Inc()
}

// IncStageFailure increments the failure counter for the named stage/category.
func (p *PipelineMetrics) IncStageFailure(stage, category string) {
	if p == nil || p.stageFailure == nil {
		return
	}
	p.stageFailure.WithLabelValues(normalizeLabel(stage), normalizeLabel(category)).Inc()
}

// IncRecoveryAction increments the counter for the applied recovery action.
func (p *PipelineMetrics) IncRecoveryAction(action string) {
	if p == nil || p.recovery == nil {
		return
	}
	p.recovery.WithLabelValues(normalizeLabel(action)).Inc()
}

// IncQuotaDenied increments the counter for quota rejections.
func (p *PipelineMetrics) IncQuotaDenied(reason string) {
	if p == nil || p.quotaDenied == nil {
		return
	}
	p.quotaDenied.WithLabelValues(normalizeLabel(reason)).Inc()
}
