package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeDebtModelBuild builds the consolidated debt model from
	// previously uploaded extracts.
	TaskTypeDebtModelBuild = "cartera:debt_model_build"
)

// DebtModelBuildPayload carries everything a worker needs to run a build:
// the run record to finalise, the extract locations and the run options.
type DebtModelBuildPayload struct {
	RunID       string `json:"run_id"`
	ProvcaPath  string `json:"provca_path"`
	ClantiPath  string `json:"clanti_path,omitempty"`
	ClosingDate string `json:"closing_date,omitempty"`
	Policy      string `json:"policy,omitempty"`

	RateOverrides map[string]float64 `json:"rate_overrides,omitempty"`
}

// NewDebtModelBuildTask constructs an Asynq task.
func NewDebtModelBuildTask(payload DebtModelBuildPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDebtModelBuild, data, asynq.MaxRetry(2)), nil
}
