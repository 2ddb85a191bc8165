package recorder

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockledger/internal/batches"
	"github.com/odyssey-erp/stockledger/internal/costing"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

const (
	uniqueSaleSource       = "sale_documents_tenant_source_key"
	uniqueNoteSaleAgent    = "commission_notes_sale_agent_key"
	uniqueReversalBySource = "commission_reversals_note_source_key"
)

// Repository opens one Postgres transaction spanning ledger, batches, costs and documents.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a serializable transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, "recorder", func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{
			ledger:    ledger.NewTxRepository(tx),
			batches:   batches.NewTxRepository(tx),
			costs:     costing.NewTxRepository(tx),
			documents: &documentRepository{tx: tx},
		})
	})
}

type txRepository struct {
	ledger    ledger.TxRepository
	batches   batches.TxRepository
	costs     costing.TxRepository
	documents DocumentRepository
}

func (t *txRepository) Ledger() ledger.TxRepository   { return t.ledger }
func (t *txRepository) Batches() batches.TxRepository { return t.batches }
func (t *txRepository) Costs() costing.TxRepository   { return t.costs }
func (t *txRepository) Documents() DocumentRepository { return t.documents }

type documentRepository struct {
	tx pgx.Tx
}

func (r *documentRepository) InsertSale(ctx context.Context, sale SaleDocument) (SaleDocument, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO sale_documents (tenant_id, source_type, source_id, settlement, taxable, voucher_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		sale.TenantID, sale.Source.Type, sale.Source.ID, sale.Settlement, sale.Taxable, sale.VoucherID, sale.CreatedAt).Scan(&sale.ID)
	if err != nil {
		if db.IsUniqueViolation(err, uniqueSaleSource) {
			return SaleDocument{}, shared.ErrSourceAlreadyPosted
		}
		return SaleDocument{}, err
	}
	for i := range sale.Lines {
		line := &sale.Lines[i]
		line.SaleID = sale.ID
		err := r.tx.QueryRow(ctx, `INSERT INTO sale_lines (sale_id, line_no, item_id, site_id, quantity, net_amount, tax_amount,
quantity_returned, net_returned, tax_returned, consuming_ref)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
			line.SaleID, line.LineNo, line.ItemID, line.SiteID, line.Quantity, line.NetAmount, line.TaxAmount,
			line.QuantityReturned, line.NetReturned, line.TaxReturned, line.ConsumingRef).Scan(&line.ID)
		if err != nil {
			return SaleDocument{}, err
		}
	}
	return sale, nil
}

func (r *documentRepository) GetSaleBySourceForUpdate(ctx context.Context, tenantID int64, source ledger.SourceRef) (SaleDocument, error) {
	sale := SaleDocument{Source: source}
	err := r.tx.QueryRow(ctx, `SELECT id, tenant_id, settlement, taxable, voucher_id, created_at FROM sale_documents
WHERE tenant_id = $1 AND source_type = $2 AND source_id = $3 FOR UPDATE`, tenantID, source.Type, source.ID).
		Scan(&sale.ID, &sale.TenantID, &sale.Settlement, &sale.Taxable, &sale.VoucherID, &sale.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SaleDocument{}, &shared.NotFoundError{Kind: "sale", Key: source.String()}
	}
	if err != nil {
		return SaleDocument{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, sale_id, line_no, item_id, site_id, quantity, net_amount, tax_amount,
quantity_returned, net_returned, tax_returned, consuming_ref
FROM sale_lines WHERE sale_id = $1 ORDER BY line_no FOR UPDATE`, sale.ID)
	if err != nil {
		return SaleDocument{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l SaleDocumentLine
		if err := rows.Scan(&l.ID, &l.SaleID, &l.LineNo, &l.ItemID, &l.SiteID, &l.Quantity, &l.NetAmount, &l.TaxAmount,
			&l.QuantityReturned, &l.NetReturned, &l.TaxReturned, &l.ConsumingRef); err != nil {
			return SaleDocument{}, err
		}
		sale.Lines = append(sale.Lines, l)
	}
	return sale, rows.Err()
}

func (r *documentRepository) UpdateSaleLineReturn(ctx context.Context, line SaleDocumentLine) error {
	_, err := r.tx.Exec(ctx, `UPDATE sale_lines SET quantity_returned = $2, net_returned = $3, tax_returned = $4 WHERE id = $1`,
		line.ID, line.QuantityReturned, line.NetReturned, line.TaxReturned)
	return err
}

const noteColumns = `id, tenant_id, agent_id, sale_id, invoice_amount, percentage, amount, reversed_amount, created_at`

func scanNote(row pgx.Row) (CommissionNote, error) {
	var n CommissionNote
	err := row.Scan(&n.ID, &n.TenantID, &n.AgentID, &n.SaleID, &n.InvoiceAmount, &n.Percentage, &n.Amount, &n.ReversedAmount, &n.CreatedAt)
	return n, err
}

func (r *documentRepository) InsertCommissionNote(ctx context.Context, note CommissionNote) (CommissionNote, error) {
	saved, err := scanNote(r.tx.QueryRow(ctx, `INSERT INTO commission_notes (tenant_id, agent_id, sale_id, invoice_amount, percentage, amount, reversed_amount, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+noteColumns,
		note.TenantID, note.AgentID, note.SaleID, note.InvoiceAmount, note.Percentage, note.Amount, note.ReversedAmount, note.CreatedAt))
	if db.IsUniqueViolation(err, uniqueNoteSaleAgent) {
		return CommissionNote{}, shared.ErrSourceAlreadyPosted
	}
	return saved, err
}

func (r *documentRepository) GetCommissionNoteForUpdate(ctx context.Context, tenantID, id int64) (CommissionNote, error) {
	note, err := scanNote(r.tx.QueryRow(ctx, `SELECT `+noteColumns+` FROM commission_notes WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return CommissionNote{}, shared.NotFound("commission note", id)
	}
	return note, err
}

func (r *documentRepository) ListCommissionNotesBySale(ctx context.Context, tenantID, saleID int64) ([]CommissionNote, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+noteColumns+` FROM commission_notes WHERE tenant_id = $1 AND sale_id = $2 ORDER BY id`, tenantID, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CommissionNote
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *documentRepository) UpdateCommissionNoteReversed(ctx context.Context, note CommissionNote) error {
	_, err := r.tx.Exec(ctx, `UPDATE commission_notes SET reversed_amount = $3 WHERE tenant_id = $1 AND id = $2`,
		note.TenantID, note.ID, note.ReversedAmount)
	return err
}

func (r *documentRepository) InsertCommissionReversal(ctx context.Context, reversal CommissionReversal) (CommissionReversal, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO commission_reversals (tenant_id, note_id, amount, source_ref, created_at)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		reversal.TenantID, reversal.NoteID, reversal.Amount, reversal.SourceRef, reversal.CreatedAt).Scan(&reversal.ID)
	if db.IsUniqueViolation(err, uniqueReversalBySource) {
		return CommissionReversal{}, shared.ErrSourceAlreadyPosted
	}
	return reversal, err
}

func (r *documentRepository) InsertCommissionPayment(ctx context.Context, payment CommissionPayment) (CommissionPayment, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO commission_payments (tenant_id, agent_id, amount, voucher_id, paid_at)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		payment.TenantID, payment.AgentID, payment.Amount, payment.VoucherID, payment.PaidAt).Scan(&payment.ID)
	return payment, err
}

func (r *documentRepository) AgentBalance(ctx context.Context, tenantID, agentID int64) (AgentBalance, error) {
	balance := AgentBalance{AgentID: agentID}
	err := r.tx.QueryRow(ctx, `SELECT
    COALESCE((SELECT SUM(amount) FROM commission_notes WHERE tenant_id = $1 AND agent_id = $2), 0),
    COALESCE((SELECT SUM(reversed_amount) FROM commission_notes WHERE tenant_id = $1 AND agent_id = $2), 0),
    COALESCE((SELECT SUM(amount) FROM commission_payments WHERE tenant_id = $1 AND agent_id = $2), 0)`,
		tenantID, agentID).Scan(&balance.Earned, &balance.Reversed, &balance.Paid)
	return balance, err
}
