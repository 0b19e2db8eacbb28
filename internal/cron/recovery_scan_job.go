package cron

import (
	"context"
	"fmt"

	"github.com/voxline-ai/voxline-backend/internal/recovery"
	"github.com/voxline-ai/voxline-backend/pkg/logger"
)

type RecoveryScanJobParams struct {
	Logger   *logger.Logger
	Recovery recoveryRunner
}

type recoveryRunner interface {
	Recover(ctx context.Context, req recovery.RecoverRequest) (*recovery.Report, error)
}

func NewRecoveryScanJob(params RecoveryScanJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Recovery == nil {
		return nil, fmt.Errorf("recovery service required")
	}
	return &recoveryScanJob{
		logg:     params.Logger,
		recovery: params.Recovery,
	}, nil
}

type recoveryScanJob struct {
	logg     *logger.Logger
	recovery recoveryRunner
}

func (j *recoveryScanJob) Name() string { return "recovery-scan" }

// Run sweeps every stale non-terminal item through the recovery engine.
// Per-item failures are already aggregated by the service; the job reports
// them without aborting the sweep.
func (j *recoveryScanJob) Run(ctx context.Context) error {
	report, err := j.recovery.Recover(ctx, recovery.RecoverRequest{All: true})
	if report != nil {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"recovered": report.Recovered,
			"skipped":   report.Skipped,
			"failed":    report.Failed,
		})
		j.logg.Info(logCtx, "recovery scan complete")
	}
	if err != nil {
		return fmt.Errorf("recovery scan: %w", err)
	}
	return nil
}
