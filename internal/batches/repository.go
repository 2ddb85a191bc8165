package batches

import "context"

// TxRepository exposes batch persistence inside a transaction.
type TxRepository interface {
	InsertBatch(ctx context.Context, batch Batch) (Batch, error)
	GetBatch(ctx context.Context, tenantID, id int64) (Batch, error)
	// GetBatchForUpdate locks the batch row until the transaction ends.
	GetBatchForUpdate(ctx context.Context, tenantID, id int64) (Batch, error)
	// LockAllocatableBatches locks every active batch with remaining stock for the item at the site.
	LockAllocatableBatches(ctx context.Context, tenantID, itemID, siteID int64) ([]Batch, error)
	UpdateBatch(ctx context.Context, batch Batch) error
	ListBatches(ctx context.Context, tenantID int64, filter Filter) ([]Batch, error)

	InsertAllocation(ctx context.Context, allocation Allocation) (Allocation, error)
	GetAllocationForUpdate(ctx context.Context, tenantID, id int64) (Allocation, error)
	UpdateAllocationReturn(ctx context.Context, allocation Allocation) error
	ListAllocations(ctx context.Context, tenantID int64, consumingRef string) ([]Allocation, error)
}

// RepositoryPort opens transactions over batch storage.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}
