package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockledger/jobs"
)

// JobsCLI wraps manual management helpers for the background checks.
type JobsCLI struct {
	client    *jobs.Client
	inspector jobs.QueueInspector
	closers   []func() error
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) *JobsCLI {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client := jobs.NewClient(opts)
	inspector := asynq.NewInspector(opts)
	return &JobsCLI{client: client, inspector: inspector, closers: []func() error{inspector.Close, client.Close}}
}

// NewJobsCLIWith builds the helpers over existing dependencies.
func NewJobsCLIWith(client *jobs.Client, inspector jobs.QueueInspector) *JobsCLI {
	return &JobsCLI{client: client, inspector: inspector}
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

// Trigger enqueues a check by short name (integrity, reconcile) or task type.
func (c *JobsCLI) Trigger(ctx context.Context, name string, payload jobs.CheckPayload) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	switch name {
	case "integrity", jobs.TaskLedgerIntegrity:
		return c.client.EnqueueLedgerIntegrity(ctx, payload)
	case "reconcile", jobs.TaskInventoryReconcile:
		return c.client.EnqueueInventoryReconcile(ctx, payload)
	}
	return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
}

// TriggerCommand enqueues a check and reports the task id. A check already queued for the same
// scope and day is not an error.
func (c *JobsCLI) TriggerCommand(ctx context.Context, name string, payload jobs.CheckPayload, out Output) int {
	out = out.withDefaults()
	info, err := c.Trigger(ctx, name, payload)
	switch {
	case errors.Is(err, asynq.ErrTaskIDConflict):
		_, _ = fmt.Fprintf(out.Stdout, "%s already queued\n", name)
		return 0
	case err != nil:
		return out.fail("jobs trigger", err)
	}
	if out.JSONOutput {
		return out.encode("jobs trigger", map[string]string{"id": info.ID, "type": info.Type, "queue": info.Queue})
	}
	_, _ = fmt.Fprintf(out.Stdout, "queued %s as %s\n", info.Type, info.ID)
	return 0
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue() (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return stats, nil
	}
	if err != nil {
		return QueueStats{}, err
	}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// StatsCommand prints the default queue state.
func (c *JobsCLI) StatsCommand(out Output) int {
	out = out.withDefaults()
	stats, err := c.InspectQueue()
	if err != nil {
		return out.fail("jobs stats", err)
	}
	if out.JSONOutput {
		return out.encode("jobs stats", stats)
	}
	_, _ = fmt.Fprintf(out.Stdout, "%s: pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	return 0
}
