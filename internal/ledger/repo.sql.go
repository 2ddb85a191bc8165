package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockledger/internal/accounts"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

const (
	uniqueTenantSource = "vouchers_tenant_source_key"
	uniqueReversal     = "vouchers_reverses_key"
)

// Repository persists vouchers in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a serializable transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, "ledger", func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// NewTxRepository binds ledger queries to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{TxRepository: accounts.NewTxRepository(tx), tx: tx}
}

type txRepository struct {
	accounts.TxRepository
	tx pgx.Tx
}

func (r *txRepository) InsertVoucher(ctx context.Context, voucher Voucher) (Voucher, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO vouchers (tenant_id, voucher_date, source_type, source_id, narration, reverses_id, posted_by, posted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`,
		voucher.TenantID, voucher.Date, voucher.Source.Type, voucher.Source.ID, voucher.Narration, voucher.ReversesID, voucher.PostedBy, voucher.PostedAt,
	).Scan(&voucher.ID)
	if err != nil {
		switch {
		case db.IsUniqueViolation(err, uniqueTenantSource):
			return Voucher{}, shared.ErrSourceAlreadyPosted
		case db.IsUniqueViolation(err, uniqueReversal):
			return Voucher{}, shared.ErrAlreadyReversed
		}
		return Voucher{}, err
	}
	for i := range voucher.Legs {
		leg := &voucher.Legs[i]
		leg.VoucherID = voucher.ID
		err := r.tx.QueryRow(ctx, `INSERT INTO voucher_legs (voucher_id, tenant_id, line_no, account_id, leg_date, debit, credit)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING seq`, voucher.ID, voucher.TenantID, leg.LineNo, leg.AccountID, leg.Date, leg.Debit, leg.Credit).Scan(&leg.Seq)
		if err != nil {
			return Voucher{}, err
		}
	}
	return voucher, nil
}

const voucherColumns = `id, tenant_id, voucher_date, source_type, source_id, narration, reverses_id, posted_by, posted_at`

func scanVoucher(row pgx.Row) (Voucher, error) {
	var v Voucher
	err := row.Scan(&v.ID, &v.TenantID, &v.Date, &v.Source.Type, &v.Source.ID, &v.Narration, &v.ReversesID, &v.PostedBy, &v.PostedAt)
	return v, err
}

func (r *txRepository) GetVoucher(ctx context.Context, tenantID, id int64) (Voucher, error) {
	voucher, err := scanVoucher(r.tx.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Voucher{}, shared.NotFound("voucher", id)
	}
	if err != nil {
		return Voucher{}, err
	}
	return r.withLegs(ctx, voucher)
}

func (r *txRepository) GetVoucherBySource(ctx context.Context, tenantID int64, source SourceRef) (Voucher, error) {
	voucher, err := scanVoucher(r.tx.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE tenant_id = $1 AND source_type = $2 AND source_id = $3`,
		tenantID, source.Type, source.ID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Voucher{}, &shared.NotFoundError{Kind: "voucher", Key: source.String()}
	}
	if err != nil {
		return Voucher{}, err
	}
	return r.withLegs(ctx, voucher)
}

func (r *txRepository) FindReversal(ctx context.Context, tenantID, id int64) (Voucher, bool, error) {
	voucher, err := scanVoucher(r.tx.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE tenant_id = $1 AND reverses_id = $2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Voucher{}, false, nil
	}
	if err != nil {
		return Voucher{}, false, err
	}
	return voucher, true, nil
}

func (r *txRepository) ListVouchersBySourceType(ctx context.Context, tenantID int64, sourceType string) ([]Voucher, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE tenant_id = $1 AND source_type = $2 ORDER BY voucher_date, id`, tenantID, sourceType)
	if err != nil {
		return nil, err
	}
	var out []Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i], err = r.withLegs(ctx, out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *txRepository) withLegs(ctx context.Context, voucher Voucher) (Voucher, error) {
	rows, err := r.tx.Query(ctx, `SELECT seq, voucher_id, line_no, account_id, leg_date, debit, credit
FROM voucher_legs WHERE voucher_id = $1 ORDER BY line_no`, voucher.ID)
	if err != nil {
		return Voucher{}, err
	}
	legs, err := scanLegs(rows)
	if err != nil {
		return Voucher{}, err
	}
	voucher.Legs = legs
	return voucher, nil
}

func scanLegs(rows pgx.Rows) ([]Leg, error) {
	defer rows.Close()
	var legs []Leg
	for rows.Next() {
		var leg Leg
		if err := rows.Scan(&leg.Seq, &leg.VoucherID, &leg.LineNo, &leg.AccountID, &leg.Date, &leg.Debit, &leg.Credit); err != nil {
			return nil, err
		}
		legs = append(legs, leg)
	}
	return legs, rows.Err()
}

func (r *txRepository) ListAccountLegs(ctx context.Context, tenantID, accountID int64, asOf time.Time) ([]Leg, error) {
	rows, err := r.tx.Query(ctx, `SELECT seq, voucher_id, line_no, account_id, leg_date, debit, credit
FROM voucher_legs
WHERE tenant_id = $1 AND account_id = $2 AND ($3::date IS NULL OR leg_date <= $3::date)
ORDER BY leg_date, seq`, tenantID, accountID, nullableDate(asOf))
	if err != nil {
		return nil, err
	}
	return scanLegs(rows)
}

func (r *txRepository) AccountTotals(ctx context.Context, tenantID int64, asOf time.Time) ([]AccountTotal, error) {
	rows, err := r.tx.Query(ctx, `SELECT a.id, a.tenant_id, a.code, a.name, a.type, a.normal_side, a.is_active, a.created_at,
       COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM accounts a
JOIN voucher_legs l ON l.account_id = a.id AND l.tenant_id = a.tenant_id
WHERE a.tenant_id = $1 AND ($2::date IS NULL OR l.leg_date <= $2::date)
GROUP BY a.id
ORDER BY a.code`, tenantID, nullableDate(asOf))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountTotal
	for rows.Next() {
		var t AccountTotal
		a := &t.Account
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.NormalSide, &a.IsActive, &a.CreatedAt, &t.Debit, &t.Credit); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
