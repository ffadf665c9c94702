package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/gmottadev/pageturner-backend/internal/cron"
	"github.com/gmottadev/pageturner-backend/pkg/logger"
	"github.com/gmottadev/pageturner-backend/pkg/metrics"
)

const defaultPassTimeout = 5 * time.Minute

// PassRunner runs one reconciliation pass.
type PassRunner interface {
	RunPass(ctx context.Context) (Summary, error)
}

// JobParams configures the order reconciliation cron job.
type JobParams struct {
	Logger      *logger.Logger
	Reconciler  PassRunner
	Metrics     *metrics.ReconcileMetrics
	PassTimeout time.Duration
}

type job struct {
	logg        *logger.Logger
	reconciler  PassRunner
	metrics     *metrics.ReconcileMetrics
	passTimeout time.Duration
}

// NewJob wraps the batch reconciler as a scheduled job with a pass deadline.
func NewJob(params JobParams) (cron.Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	timeout := params.PassTimeout
	if timeout <= 0 {
		timeout = defaultPassTimeout
	}
	return &job{
		logg:        params.Logger,
		reconciler:  params.Reconciler,
		metrics:     params.Metrics,
		passTimeout: timeout,
	}, nil
}

func (j *job) Name() string { return "order-reconcile" }

// Run executes one pass. Per-order failures are counted, not propagated; the
// job only fails when the pass itself could not run.
func (j *job) Run(ctx context.Context) error {
	passCtx, cancel := context.WithTimeout(ctx, j.passTimeout)
	defer cancel()

	start := time.Now()
	summary, err := j.reconciler.RunPass(passCtx)
	duration := time.Since(start)
	if err != nil {
		return fmt.Errorf("reconciliation pass: %w", err)
	}

	if j.metrics != nil {
		j.metrics.ObservePass(duration, summary.Succeeded, summary.Failed)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"attempted":   summary.Attempted,
		"succeeded":   summary.Succeeded,
		"failed":      summary.Failed,
		"duration_ms": duration.Milliseconds(),
	})
	if summary.Failed > 0 {
		j.logg.Warn(logCtx, "reconciliation pass finished with failures")
		return nil
	}
	j.logg.Info(logCtx, "reconciliation pass finished")
	return nil
}
