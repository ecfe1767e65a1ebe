package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskProvisionSweep recalculates every provision whose date has come due.
	TaskProvisionSweep = "ledger:provision_sweep"
	// TaskGLIntegrity compares stored balances with live GL entries.
	TaskGLIntegrity = "ledger:gl_integrity"
)

// ProvisionSweepPayload carries the sweep cut-off. A zero AsOf means "now".
type ProvisionSweepPayload struct {
	AsOf   time.Time `json:"as_of,omitempty"`
	UserID int64     `json:"user_id,omitempty"`
}

// GLIntegrityPayload is empty today; the type keeps the task payload stable.
type GLIntegrityPayload struct {
	RequestedBy int64 `json:"requested_by,omitempty"`
}

// NewProvisionSweepTask constructs the sweep task.
func NewProvisionSweepTask(payload ProvisionSweepPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProvisionSweep, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewGLIntegrityTask constructs the integrity check task.
func NewGLIntegrityTask(payload GLIntegrityPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrity, body, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}
