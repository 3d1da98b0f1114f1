package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskNightlyBalanceCheck verifies every organization's ledger nets to zero.
	TaskNightlyBalanceCheck = "recon:nightly_check"
	// TaskLedgerBackfill synthesizes missing journal lines for one organization.
	TaskLedgerBackfill = "ledger:backfill"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "shared:idempotency_cleanup"
)

// BackfillPayload selects the organization to backfill.
type BackfillPayload struct {
	OrgID  int64 `json:"org_id"`
	Verify bool  `json:"verify"`
}

// NewNightlyBalanceCheckTask constructs the nightly check task.
func NewNightlyBalanceCheckTask() *asynq.Task {
	return asynq.NewTask(TaskNightlyBalanceCheck, nil)
}

// NewLedgerBackfillTask constructs a backfill task for one organization.
func NewLedgerBackfillTask(payload BackfillPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerBackfill, data), nil
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
