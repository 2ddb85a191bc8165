package costing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/platform/db"
)

// Repository persists item cost rows in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a serializable transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, "costing", func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// NewTxRepository binds cost queries to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetItemCostForUpdate(ctx context.Context, tenantID, itemID, siteID int64) (ItemCost, error) {
	cost := ItemCost{TenantID: tenantID, ItemID: itemID, SiteID: siteID, AverageCost: decimal.Zero, OnHand: decimal.Zero}
	err := r.tx.QueryRow(ctx, `SELECT avg_cost, on_hand, updated_at FROM item_costs
WHERE tenant_id = $1 AND item_id = $2 AND site_id = $3 FOR UPDATE`, tenantID, itemID, siteID).
		Scan(&cost.AverageCost, &cost.OnHand, &cost.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return cost, nil
	}
	return cost, err
}

func (r *txRepository) UpsertItemCost(ctx context.Context, cost ItemCost) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO item_costs (tenant_id, item_id, site_id, avg_cost, on_hand, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (tenant_id, item_id, site_id) DO UPDATE
SET avg_cost = EXCLUDED.avg_cost, on_hand = EXCLUDED.on_hand, updated_at = EXCLUDED.updated_at`,
		cost.TenantID, cost.ItemID, cost.SiteID, cost.AverageCost, cost.OnHand, cost.UpdatedAt)
	return err
}

func (r *txRepository) ListItemCosts(ctx context.Context, tenantID int64) ([]ItemCost, error) {
	rows, err := r.tx.Query(ctx, `SELECT tenant_id, item_id, site_id, avg_cost, on_hand, updated_at
FROM item_costs WHERE tenant_id = $1 ORDER BY item_id, site_id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ItemCost
	for rows.Next() {
		var c ItemCost
		if err := rows.Scan(&c.TenantID, &c.ItemID, &c.SiteID, &c.AverageCost, &c.OnHand, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
