package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/provisions"
)

// Sweeper runs one provision sweep.
type Sweeper interface {
	Sweep(ctx context.Context, asOf time.Time, userID int64) (provisions.SweepReport, error)
}

// ProvisionSweepJob executes scheduled provision recalculation.
type ProvisionSweepJob struct {
	Sweeper Sweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	// SystemUserID is recorded on journals when the payload names no user.
	SystemUserID int64
	clock        func() time.Time
}

// NewProvisionSweepJob initialises the sweep handler.
func NewProvisionSweepJob(sweeper Sweeper, logger *slog.Logger, metrics *jobmetrics.Metrics, systemUserID int64) *ProvisionSweepJob {
	return &ProvisionSweepJob{
		Sweeper:      sweeper,
		Logger:       logger,
		Metrics:      metrics,
		SystemUserID: systemUserID,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the sweep. Individual provision failures are logged and
// counted but do not fail the task; only an infrastructure error does.
func (j *ProvisionSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sweeper == nil {
		return errors.New("provision sweep: handler not configured")
	}
	var payload ProvisionSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.AsOf.IsZero() {
		payload.AsOf = j.now()
	}
	if payload.UserID == 0 {
		payload.UserID = j.SystemUserID
	}

	tracker := j.Metrics.Track(TaskProvisionSweep)
	logger := j.logger().With(slog.Time("as_of", payload.AsOf))
	report, err := j.Sweeper.Sweep(ctx, payload.AsOf, payload.UserID)
	if err != nil {
		logger.Error("provision sweep failed", slog.Any("error", err))
		return tracker.End(err)
	}
	if report.Skipped {
		logger.Info("provision sweep skipped, another run holds the lock")
		return tracker.End(nil)
	}
	for id, reason := range report.Failed {
		logger.Warn("provision not updated", slog.Int64("provision_id", id), slog.String("error", reason))
	}
	j.Metrics.AddProvisions("posted", report.Posted)
	j.Metrics.AddProvisions("unchanged", report.Processed-report.Posted)
	j.Metrics.AddProvisions("failed", len(report.Failed))
	logger.Info("provision sweep completed",
		slog.Int("due", report.Due),
		slog.Int("processed", report.Processed),
		slog.Int("posted", report.Posted),
		slog.Int("failed", len(report.Failed)),
	)
	return tracker.End(nil)
}

func (j *ProvisionSweepJob) now() time.Time {
	if j.clock == nil {
		return time.Now().UTC()
	}
	return j.clock()
}

func (j *ProvisionSweepJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
