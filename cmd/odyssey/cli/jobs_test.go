package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

type recordingEnqueuer struct {
	tasks []*asynq.Task
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, typ string, payload jobs.LedgerPayload) (*asynq.TaskInfo, error) {
	task, err := jobs.NewTask(typ, payload)
	if err != nil {
		return nil, err
	}
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func TestParseTriggerArgs(t *testing.T) {
	name, opts, err := ParseTriggerArgs([]string{jobs.TaskRecurringGenerate, "7", "2025-03-01"})
	require.NoError(t, err)
	require.Equal(t, jobs.TaskRecurringGenerate, name)
	require.Equal(t, TriggerOptions{TenantID: 7, AsOf: "2025-03-01"}, opts)

	_, _, err = ParseTriggerArgs(nil)
	require.Error(t, err)
	_, _, err = ParseTriggerArgs([]string{jobs.TaskDueScan, "abc"})
	require.Error(t, err)
	_, _, err = ParseTriggerArgs([]string{jobs.TaskDueScan, "1", "2025-03-01", "extra"})
	require.Error(t, err)
}

func TestTriggerBuildsLedgerTask(t *testing.T) {
	enqueuer := &recordingEnqueuer{}
	c := &JobsCLI{client: enqueuer}

	info, err := c.Trigger(context.Background(), jobs.TaskDueScan, TriggerOptions{TenantID: 3})
	require.NoError(t, err)
	require.Equal(t, jobs.TaskDueScan, info.Type)
	require.Len(t, enqueuer.tasks, 1)

	var payload jobs.LedgerPayload
	require.NoError(t, json.Unmarshal(enqueuer.tasks[0].Payload(), &payload))
	require.Equal(t, int64(3), payload.TenantID)

	_, err = c.Trigger(context.Background(), "mail:send", TriggerOptions{})
	require.Error(t, err)
	require.Len(t, enqueuer.tasks, 1)
}
