package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// Enqueuer submits ledger tasks by type name; *jobs.Client satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, typ string, payload jobs.LedgerPayload) (*asynq.TaskInfo, error)
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    Enqueuer
	inspector *asynq.Inspector
	closers   []func() error
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client, err := jobs.NewClient(opts)
	if err != nil {
		return nil, err
	}
	inspector := asynq.NewInspector(opts)
	return &JobsCLI{
		client:    client,
		inspector: inspector,
		closers:   []func() error{inspector.Close, client.Close},
	}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	for _, closeFn := range c.closers {
		if closeErr := closeFn(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// TriggerOptions scopes a manual job run.
type TriggerOptions struct {
	TenantID    int64
	AsOf        string
	DueSoonDays int
}

// ParseTriggerArgs reads `<job> [tenant_id] [as_of]`.
func ParseTriggerArgs(args []string) (string, TriggerOptions, error) {
	var opts TriggerOptions
	if len(args) == 0 {
		return "", opts, errors.New("jobs trigger: job name required")
	}
	if len(args) > 3 {
		return "", opts, errors.New("jobs trigger: usage <job> [tenant_id] [as_of]")
	}
	if len(args) > 1 {
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || id < 0 {
			return "", opts, fmt.Errorf("jobs trigger: invalid tenant id %q", args[1])
		}
		opts.TenantID = id
	}
	if len(args) > 2 {
		opts.AsOf = args[2]
	}
	return args[0], opts, nil
}

// Trigger enqueues a ledger job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string, opts TriggerOptions) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	return c.client.Enqueue(ctx, name, jobs.LedgerPayload{
		TenantID:    opts.TenantID,
		AsOf:        opts.AsOf,
		DueSoonDays: opts.DueSoonDays,
	})
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = int(info.Pending)
		stats.Active = int(info.Active)
		stats.Scheduled = int(info.Scheduled)
		stats.Retry = int(info.Retry)
	}
	return stats, nil
}
