package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPipelineMetricsExports(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewPipelineMetrics(reg)

	metrics.ObserveStageDuration("transcribing", 3*time.Second)
	metrics.IncStageSuccess("transcribing")
	metrics.IncStageFailure("embedding", "transient")
	metrics.IncRecoveryAction("retry_embeddings")
	metrics.IncQuotaDenied("storage")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "pipeline_stage_success", "stage", "transcribing"); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "pipeline_recovery_actions", "action", "retry_embeddings"); err != nil {
		t.Fatalf("fetch recovery: %v", err)
	} else if got != 1 {
		t.Fatalf("expected recovery=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "pipeline_quota_denied", "reason", "storage"); err != nil {
		t.Fatalf("fetch quota denied: %v", err)
	} else if got != 1 {
		t.Fatalf("expected quota denied=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "pipeline_stage_duration_seconds", "stage", "transcribing"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestPipelineMetricsNilRegisterer(t *testing.T) {
	metrics := NewPipelineMetrics(nil)
	metrics.ObserveStageDuration("processing", time.Second)
	metrics.IncStageSuccess("processing")
	metrics.IncStageFailure("processing", "terminal")
	metrics.IncRecoveryAction("fix_status")
	metrics.IncQuotaDenied("minutes")
}
