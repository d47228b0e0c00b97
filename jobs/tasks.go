package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRecurringGenerate creates the bills due from recurring entries.
	TaskRecurringGenerate = "ledger:recurring_generate"
	// TaskDueScan flags overdue bills and raises due-date alerts.
	TaskDueScan = "ledger:due_scan"
	// TaskIntegrity compares stored balances with movement history.
	TaskIntegrity = "ledger:integrity"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "ledger:idempotency_cleanup"

	dateLayout = "2006-01-02"
)

// LedgerPayload scopes a ledger job. A zero TenantID means every tenant; an
// empty AsOf means the day the job runs.
type LedgerPayload struct {
	TenantID    int64  `json:"tenant_id,omitempty"`
	AsOf        string `json:"as_of,omitempty"`
	DueSoonDays int    `json:"due_soon_days,omitempty"`
}

func (p LedgerPayload) asOf(now time.Time) (time.Time, error) {
	if p.AsOf == "" {
		return now, nil
	}
	t, err := time.Parse(dateLayout, p.AsOf)
	if err != nil {
		return time.Time{}, fmt.Errorf("as_of %q must be YYYY-MM-DD", p.AsOf)
	}
	return t, nil
}

func newLedgerTask(typ string, payload LedgerPayload) (*asynq.Task, error) {
	if payload.TenantID < 0 {
		return nil, fmt.Errorf("jobs: tenant id must not be negative")
	}
	if payload.AsOf != "" {
		if _, err := payload.asOf(time.Time{}); err != nil {
			return nil, fmt.Errorf("jobs: %w", err)
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, body, asynq.Queue(QueueDefault)), nil
}

// NewRecurringGenerateTask builds a recurring generation task.
func NewRecurringGenerateTask(payload LedgerPayload) (*asynq.Task, error) {
	return newLedgerTask(TaskRecurringGenerate, payload)
}

// NewDueScanTask builds a due-date scan task.
func NewDueScanTask(payload LedgerPayload) (*asynq.Task, error) {
	return newLedgerTask(TaskDueScan, payload)
}

// NewIntegrityTask builds a balance integrity task.
func NewIntegrityTask(payload LedgerPayload) (*asynq.Task, error) {
	return newLedgerTask(TaskIntegrity, payload)
}

// NewTask builds any ledger task by type name.
func NewTask(typ string, payload LedgerPayload) (*asynq.Task, error) {
	switch typ {
	case TaskRecurringGenerate, TaskDueScan, TaskIntegrity, TaskIdempotencyCleanup:
		return newLedgerTask(typ, payload)
	default:
		return nil, fmt.Errorf("jobs: unsupported task %s", typ)
	}
}

func decodePayload(task *asynq.Task) (LedgerPayload, error) {
	var payload LedgerPayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	return payload, nil
}
