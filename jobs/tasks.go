package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity checks that every tenant's trial balance is balanced.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskInventoryReconcile checks batch invariants and item cost on-hand against batches.
	TaskInventoryReconcile = "inventory:reconcile"
)

// taskNamespace scopes deterministic task ids.
var taskNamespace = uuid.MustParse("8f0e6f7c-3b1e-4c51-9a57-5b0f3f1d2a10")

// CheckPayload selects the tenants and cut-off date of a check. Empty tenants means all.
type CheckPayload struct {
	TenantIDs []int64   `json:"tenant_ids,omitempty"`
	AsOf      time.Time `json:"as_of"`
}

func (p CheckPayload) normalized() CheckPayload {
	ids := slices.Clone(p.TenantIDs)
	slices.Sort(ids)
	p.TenantIDs = slices.Compact(ids)
	if !p.AsOf.IsZero() {
		y, m, d := p.AsOf.UTC().Date()
		p.AsOf = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return p
}

// TaskID derives a stable id so a check triggered twice for the same scope and day is queued once.
func TaskID(taskType string, payload CheckPayload) string {
	p := payload.normalized()
	parts := make([]string, 0, len(p.TenantIDs))
	for _, id := range p.TenantIDs {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	name := fmt.Sprintf("%s|%s|%s", taskType, p.AsOf.Format(time.DateOnly), strings.Join(parts, ","))
	return uuid.NewSHA1(taskNamespace, []byte(name)).String()
}

func newCheckTask(taskType string, payload CheckPayload) (*asynq.Task, error) {
	p := payload.normalized()
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault), asynq.TaskID(TaskID(taskType, p)), asynq.MaxRetry(3)), nil
}

// NewLedgerIntegrityTask constructs an Asynq task for the ledger integrity check.
func NewLedgerIntegrityTask(payload CheckPayload) (*asynq.Task, error) {
	return newCheckTask(TaskLedgerIntegrity, payload)
}

// NewInventoryReconcileTask constructs an Asynq task for the inventory reconciliation check.
func NewInventoryReconcileTask(payload CheckPayload) (*asynq.Task, error) {
	return newCheckTask(TaskInventoryReconcile, payload)
}

// NewCronTask builds the payload-free task a scheduler entry enqueues. The handler then checks
// every tenant as of the run time.
func NewCronTask(taskType string) *asynq.Task {
	return asynq.NewTask(taskType, []byte(`{}`), asynq.Queue(QueueDefault))
}

func decodePayload(t *asynq.Task) (CheckPayload, error) {
	var payload CheckPayload
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return CheckPayload{}, fmt.Errorf("%w: decode %s payload: %v", asynq.SkipRetry, t.Type(), err)
	}
	return payload.normalized(), nil
}

// Enqueuer is the subset of the Asynq client used to trigger checks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}
