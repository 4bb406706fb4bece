package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity runs the ledger invariant checks.
	TaskLedgerIntegrity = "ledger:integrity"
)

// IntegrityPayload parameterises an integrity run.
type IntegrityPayload struct {
	RequestedBy string `json:"requested_by,omitempty"`
}

// NewIntegrityTask constructs an integrity check task.
func NewIntegrityTask(payload IntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data, asynq.MaxRetry(3)), nil
}
