package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/gl"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// IntegrityChecker reports accounts whose balance disagrees with the GL.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context) ([]gl.Drift, error)
}

// GLIntegrityJob runs the balance versus GL consistency check.
type GLIntegrityJob struct {
	Checker IntegrityChecker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewGLIntegrityJob initialises the integrity handler.
func NewGLIntegrityJob(checker IntegrityChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{Checker: checker, Logger: logger, Metrics: metrics}
}

// Handle logs every drifting account. Drift is reported, never repaired.
func (j *GLIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Checker == nil {
		return errors.New("gl integrity: handler not configured")
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracker := j.Metrics.Track(TaskGLIntegrity)
	drift, err := j.Checker.CheckIntegrity(ctx)
	if err != nil {
		logger.Error("gl integrity check failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.Metrics.SetDrift(len(drift))
	for _, d := range drift {
		logger.Warn("gl balance drift",
			slog.Int64("account_id", d.AccountID),
			slog.String("code", d.Code),
			slog.String("stored", d.Stored.StringFixed(2)),
			slog.String("expected", d.Expected.StringFixed(2)),
		)
	}
	logger.Info("gl integrity check executed", slog.String("job", TaskGLIntegrity), slog.Int("drift", len(drift)))
	return tracker.End(nil)
}
