package costing

import "context"

// TxRepository exposes item cost rows inside a transaction.
type TxRepository interface {
	// GetItemCostForUpdate locks and returns the row, or a zero state when none exists yet.
	GetItemCostForUpdate(ctx context.Context, tenantID, itemID, siteID int64) (ItemCost, error)
	UpsertItemCost(ctx context.Context, cost ItemCost) error
	ListItemCosts(ctx context.Context, tenantID int64) ([]ItemCost, error)
}

// RepositoryPort opens transactions over cost storage.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}
