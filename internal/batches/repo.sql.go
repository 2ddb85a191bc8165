package batches

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Repository persists batches and allocations in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a serializable transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, "batches", func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// NewTxRepository binds batch queries to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

type txRepository struct {
	tx pgx.Tx
}

const batchColumns = `id, tenant_id, item_id, site_id, batch_number, purchase_date, expiry_date, vendor_ref, purchase_ref,
quantity_purchased, quantity_remaining, quantity_sold, quantity_adjusted, purchased_with_gst, base_cost_per_unit,
gst_rate, itc_per_unit, itc_total_available, itc_claimed, itc_remaining, itc_reversed, status, created_at, updated_at`

func scanBatch(row pgx.Row) (Batch, error) {
	var b Batch
	err := row.Scan(&b.ID, &b.TenantID, &b.ItemID, &b.SiteID, &b.BatchNumber, &b.PurchaseDate, &b.ExpiryDate, &b.VendorRef, &b.PurchaseRef,
		&b.QuantityPurchased, &b.QuantityRemaining, &b.QuantitySold, &b.QuantityAdjusted, &b.PurchasedWithGST, &b.BaseCostPerUnit,
		&b.GSTRate, &b.ITCPerUnit, &b.ITCTotalAvailable, &b.ITCClaimed, &b.ITCRemaining, &b.ITCReversed, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func collectBatches(rows pgx.Rows) ([]Batch, error) {
	defer rows.Close()
	var out []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertBatch(ctx context.Context, b Batch) (Batch, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO stock_batches (tenant_id, item_id, site_id, batch_number, purchase_date, expiry_date, vendor_ref, purchase_ref,
quantity_purchased, quantity_remaining, quantity_sold, quantity_adjusted, purchased_with_gst, base_cost_per_unit,
gst_rate, itc_per_unit, itc_total_available, itc_claimed, itc_remaining, itc_reversed, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
RETURNING `+batchColumns,
		b.TenantID, b.ItemID, b.SiteID, b.BatchNumber, b.PurchaseDate, b.ExpiryDate, b.VendorRef, b.PurchaseRef,
		b.QuantityPurchased, b.QuantityRemaining, b.QuantitySold, b.QuantityAdjusted, b.PurchasedWithGST, b.BaseCostPerUnit,
		b.GSTRate, b.ITCPerUnit, b.ITCTotalAvailable, b.ITCClaimed, b.ITCRemaining, b.ITCReversed, b.Status, b.CreatedAt, b.UpdatedAt)
	return scanBatch(row)
}

func (r *txRepository) getBatch(ctx context.Context, tenantID, id int64, lock bool) (Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM stock_batches WHERE tenant_id = $1 AND id = $2`
	if lock {
		query += ` FOR UPDATE`
	}
	b, err := scanBatch(r.tx.QueryRow(ctx, query, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Batch{}, shared.NotFound("batch", id)
	}
	return b, err
}

func (r *txRepository) GetBatch(ctx context.Context, tenantID, id int64) (Batch, error) {
	return r.getBatch(ctx, tenantID, id, false)
}

func (r *txRepository) GetBatchForUpdate(ctx context.Context, tenantID, id int64) (Batch, error) {
	return r.getBatch(ctx, tenantID, id, true)
}

func (r *txRepository) LockAllocatableBatches(ctx context.Context, tenantID, itemID, siteID int64) ([]Batch, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+batchColumns+` FROM stock_batches
WHERE tenant_id = $1 AND item_id = $2 AND site_id = $3 AND status = 'active' AND quantity_remaining > 0
ORDER BY id
FOR UPDATE`, tenantID, itemID, siteID)
	if err != nil {
		return nil, err
	}
	return collectBatches(rows)
}

func (r *txRepository) UpdateBatch(ctx context.Context, b Batch) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_batches SET
quantity_remaining = $3, quantity_sold = $4, quantity_adjusted = $5,
itc_total_available = $6, itc_claimed = $7, itc_remaining = $8, itc_reversed = $9,
status = $10, updated_at = $11
WHERE tenant_id = $1 AND id = $2`,
		b.TenantID, b.ID, b.QuantityRemaining, b.QuantitySold, b.QuantityAdjusted,
		b.ITCTotalAvailable, b.ITCClaimed, b.ITCRemaining, b.ITCReversed, b.Status, b.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("batch", b.ID)
	}
	return nil
}

func (r *txRepository) ListBatches(ctx context.Context, tenantID int64, filter Filter) ([]Batch, error) {
	clauses := []string{"tenant_id = $1"}
	args := []any{tenantID}
	if filter.ItemID != 0 {
		args = append(args, filter.ItemID)
		clauses = append(clauses, fmt.Sprintf("item_id = $%d", len(args)))
	}
	if filter.SiteID != 0 {
		args = append(args, filter.SiteID)
		clauses = append(clauses, fmt.Sprintf("site_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	rows, err := r.tx.Query(ctx, `SELECT `+batchColumns+` FROM stock_batches WHERE `+strings.Join(clauses, " AND ")+` ORDER BY purchase_date, id`, args...)
	if err != nil {
		return nil, err
	}
	return collectBatches(rows)
}

const allocationColumns = `id, tenant_id, batch_id, consuming_ref, quantity, unit_cost, cost_consumed, itc_consumed,
quantity_returned, cost_returned, itc_returned, created_at`

func scanAllocation(row pgx.Row) (Allocation, error) {
	var a Allocation
	err := row.Scan(&a.ID, &a.TenantID, &a.BatchID, &a.ConsumingRef, &a.Quantity, &a.UnitCost, &a.CostConsumed, &a.ITCConsumed,
		&a.QuantityReturned, &a.CostReturned, &a.ITCReturned, &a.CreatedAt)
	return a, err
}

func (r *txRepository) InsertAllocation(ctx context.Context, a Allocation) (Allocation, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO consumption_allocations (tenant_id, batch_id, consuming_ref, quantity, unit_cost, cost_consumed, itc_consumed,
quantity_returned, cost_returned, itc_returned, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING `+allocationColumns,
		a.TenantID, a.BatchID, a.ConsumingRef, a.Quantity, a.UnitCost, a.CostConsumed, a.ITCConsumed,
		a.QuantityReturned, a.CostReturned, a.ITCReturned, a.CreatedAt)
	return scanAllocation(row)
}

func (r *txRepository) GetAllocationForUpdate(ctx context.Context, tenantID, id int64) (Allocation, error) {
	a, err := scanAllocation(r.tx.QueryRow(ctx, `SELECT `+allocationColumns+` FROM consumption_allocations
WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Allocation{}, shared.NotFound("allocation", id)
	}
	return a, err
}

func (r *txRepository) UpdateAllocationReturn(ctx context.Context, a Allocation) error {
	_, err := r.tx.Exec(ctx, `UPDATE consumption_allocations SET quantity_returned = $3, cost_returned = $4, itc_returned = $5
WHERE tenant_id = $1 AND id = $2`, a.TenantID, a.ID, a.QuantityReturned, a.CostReturned, a.ITCReturned)
	return err
}

func (r *txRepository) ListAllocations(ctx context.Context, tenantID int64, consumingRef string) ([]Allocation, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+allocationColumns+` FROM consumption_allocations
WHERE tenant_id = $1 AND consuming_ref = $2 ORDER BY id`, tenantID, consumingRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
