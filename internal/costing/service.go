package costing

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Valuator maintains weighted-average item cost.
type Valuator struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewValuator constructs the cost valuator.
func NewValuator(repo RepositoryPort, logger *slog.Logger) *Valuator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Valuator{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (v *Valuator) WithNow(now func() time.Time) {
	if now != nil {
		v.now = now
	}
}

// OnReceive blends a receipt into the item's average cost.
func (v *Valuator) OnReceive(ctx context.Context, tc shared.TenantContext, itemID, siteID int64, qty, unitCost decimal.Decimal) (ItemCost, error) {
	var cost ItemCost
	err := v.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		cost, err = v.OnReceiveTx(ctx, tx, tc, itemID, siteID, qty, unitCost)
		return err
	})
	return cost, err
}

// OnReceiveTx updates the average inside a caller-owned transaction.
func (v *Valuator) OnReceiveTx(ctx context.Context, tx TxRepository, tc shared.TenantContext, itemID, siteID int64, qty, unitCost decimal.Decimal) (ItemCost, error) {
	if err := tc.Validate(); err != nil {
		return ItemCost{}, err
	}
	current, err := tx.GetItemCostForUpdate(ctx, tc.TenantID, itemID, siteID)
	if err != nil {
		return ItemCost{}, err
	}
	avg, err := WeightedAverage(current.OnHand, current.AverageCost, qty, unitCost)
	if err != nil {
		return ItemCost{}, err
	}
	next := ItemCost{
		TenantID:    tc.TenantID,
		ItemID:      itemID,
		SiteID:      siteID,
		AverageCost: avg,
		OnHand:      shared.RoundQuantity(current.OnHand.Add(qty)),
		UpdatedAt:   v.now(),
	}
	if err := tx.UpsertItemCost(ctx, next); err != nil {
		return ItemCost{}, err
	}
	return next, nil
}

// OnReturnTx brings returned units back at the cost of the batches they came from.
func (v *Valuator) OnReturnTx(ctx context.Context, tx TxRepository, tc shared.TenantContext, itemID, siteID int64, qty, value decimal.Decimal) (ItemCost, error) {
	if !qty.IsPositive() {
		return ItemCost{}, shared.Invalid("quantity", "must be greater than zero")
	}
	return v.OnReceiveTx(ctx, tx, tc, itemID, siteID, qty, value.Div(qty))
}

// OnIssueTx reduces on-hand quantity; the average is unchanged.
func (v *Valuator) OnIssueTx(ctx context.Context, tx TxRepository, tc shared.TenantContext, itemID, siteID int64, qty decimal.Decimal) (ItemCost, error) {
	if err := tc.Validate(); err != nil {
		return ItemCost{}, err
	}
	if err := shared.RequirePositive("quantity", qty); err != nil {
		return ItemCost{}, err
	}
	current, err := tx.GetItemCostForUpdate(ctx, tc.TenantID, itemID, siteID)
	if err != nil {
		return ItemCost{}, err
	}
	if qty.GreaterThan(current.OnHand) {
		return ItemCost{}, shared.Invalid("quantity", "issue %s exceeds on-hand %s for item %d", qty, current.OnHand, itemID)
	}
	current.OnHand = current.OnHand.Sub(qty)
	current.UpdatedAt = v.now()
	if err := tx.UpsertItemCost(ctx, current); err != nil {
		return ItemCost{}, err
	}
	return current, nil
}

// ItemCost returns the current state; an unknown item yields a zero state.
func (v *Valuator) ItemCost(ctx context.Context, tc shared.TenantContext, itemID, siteID int64) (ItemCost, error) {
	if err := tc.Validate(); err != nil {
		return ItemCost{}, err
	}
	var cost ItemCost
	err := v.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		cost, err = tx.GetItemCostForUpdate(ctx, tc.TenantID, itemID, siteID)
		return err
	})
	return cost, err
}

// List returns every cost row of the tenant.
func (v *Valuator) List(ctx context.Context, tc shared.TenantContext) ([]ItemCost, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	var out []ItemCost
	err := v.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListItemCosts(ctx, tc.TenantID)
		return err
	})
	return out, err
}
