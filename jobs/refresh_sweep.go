package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/bizgate/bizgate/internal/jobs"
)

// RefreshTokenSweeper clears stored refresh tokens that have expired.
type RefreshTokenSweeper interface {
	SweepExpiredRefreshTokens(ctx context.Context) (int64, error)
}

// RefreshSweepJob handles TaskRefreshSweep.
type RefreshSweepJob struct {
	Sweeper RefreshTokenSweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRefreshSweepJob constructs the job handler.
func NewRefreshSweepJob(sweeper RefreshTokenSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *RefreshSweepJob {
	return &RefreshSweepJob{Sweeper: sweeper, Logger: logger, Metrics: metrics}
}

// Handle executes one sweep.
func (j *RefreshSweepJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Sweeper == nil {
		return errors.New("refresh sweep: dependencies not configured")
	}
	var payload RefreshSweepPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.Metrics.Track(TaskRefreshSweep)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	cleared, err := j.Sweeper.SweepExpiredRefreshTokens(ctx)
	if err != nil {
		j.log().Error("refresh sweep", slog.String("trigger", payload.Trigger), slog.Any("error", err))
		return err
	}
	j.Metrics.AddSweptTokens(cleared)
	j.log().Info("refresh sweep done",
		slog.String("trigger", payload.Trigger),
		slog.Int64("cleared", cleared),
		slog.Duration("took", time.Since(start)))
	return nil
}

func (j *RefreshSweepJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
