package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
	"github.com/odyssey-erp/stockledger/internal/batches"
	"github.com/odyssey-erp/stockledger/internal/costing"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// BatchLister lists a tenant's batches.
type BatchLister interface {
	List(ctx context.Context, tc shared.TenantContext, filter batches.Filter) ([]batches.Batch, error)
}

// CostLister lists a tenant's item cost rows.
type CostLister interface {
	List(ctx context.Context, tc shared.TenantContext) ([]costing.ItemCost, error)
}

// InventoryReconcileJob compares batch state with its own invariants and with item cost on-hand.
type InventoryReconcileJob struct {
	Batches     BatchLister
	Costs       CostLister
	Tenants     TenantLister
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
}

type stockKey struct{ item, site int64 }

// Run checks the tenants in payload, or every tenant. AsOf is ignored: batches only hold current state.
func (j *InventoryReconcileJob) Run(ctx context.Context, payload CheckPayload) (Report, error) {
	if j == nil || j.Batches == nil || j.Costs == nil {
		return Report{}, errors.New("inventory reconcile: dependencies not configured")
	}
	tenants, err := resolveTenants(ctx, payload.TenantIDs, j.Tenants)
	if err != nil {
		return Report{}, err
	}

	found := &collector{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit(j.Concurrency))
	for _, tenantID := range tenants {
		g.Go(func() error {
			return j.checkTenant(gctx, tenantID, found)
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	report := Report{Tenants: len(tenants), Findings: found.findings}
	publish(j.log(), j.Metrics, TaskInventoryReconcile, report)
	return report, nil
}

func (j *InventoryReconcileJob) checkTenant(ctx context.Context, tenantID int64, found *collector) error {
	tc := shared.TenantContext{TenantID: tenantID}
	list, err := j.Batches.List(ctx, tc, batches.Filter{})
	if err != nil {
		return fmt.Errorf("inventory reconcile: tenant %d batches: %w", tenantID, err)
	}
	costs, err := j.Costs.List(ctx, tc)
	if err != nil {
		return fmt.Errorf("inventory reconcile: tenant %d costs: %w", tenantID, err)
	}

	remaining := make(map[stockKey]decimal.Decimal)
	for _, b := range list {
		if err := b.CheckInvariants(); err != nil {
			found.add(Finding{TenantID: tenantID, Check: "batch_invariant", Detail: err.Error()})
		}
		k := stockKey{b.ItemID, b.SiteID}
		remaining[k] = remaining[k].Add(b.QuantityRemaining)
	}
	for _, c := range costs {
		k := stockKey{c.ItemID, c.SiteID}
		onBatches := remaining[k]
		delete(remaining, k)
		if !c.OnHand.Equal(onBatches) {
			found.add(Finding{
				TenantID: tenantID,
				Check:    "item_cost_drift",
				Detail:   fmt.Sprintf("item %d site %d: on-hand %s, batches hold %s", c.ItemID, c.SiteID, c.OnHand, onBatches),
			})
		}
	}
	for k, qty := range remaining {
		if qty.IsPositive() {
			found.add(Finding{
				TenantID: tenantID,
				Check:    "item_cost_drift",
				Detail:   fmt.Sprintf("item %d site %d: batches hold %s but no cost row exists", k.item, k.site, qty),
			})
		}
	}
	return nil
}

// Handle executes the inventory reconcile task.
func (j *InventoryReconcileJob) Handle(ctx context.Context, task *asynq.Task) error {
	payload, err := decodePayload(task)
	if err != nil {
		return err
	}
	var m *jobmetrics.Metrics
	if j != nil {
		m = j.Metrics
	}
	tracker := m.Track(TaskInventoryReconcile)
	_, err = j.Run(ctx, payload)
	if err != nil {
		j.log().Error("inventory reconcile failed", slog.Any("error", err))
	}
	return tracker.End(err)
}

func (j *InventoryReconcileJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskInventoryReconcile))
	}
	return slog.Default().With(slog.String("job", TaskInventoryReconcile))
}
