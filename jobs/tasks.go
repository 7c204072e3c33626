package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRefreshSweep clears refresh tokens whose expiry has passed.
	TaskRefreshSweep = "auth:refresh_sweep"
)

// RefreshSweepPayload describes one sweep run.
type RefreshSweepPayload struct {
	Trigger string `json:"trigger"`
}

// NewRefreshSweepTask constructs an Asynq task. trigger labels the run in logs ("cron", "manual").
func NewRefreshSweepTask(trigger string) (*asynq.Task, error) {
	if trigger == "" {
		trigger = "cron"
	}
	data, err := json.Marshal(RefreshSweepPayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRefreshSweep, data, asynq.Queue(QueueDefault)), nil
}
