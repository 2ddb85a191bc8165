package recorder

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// CalculateCommission returns pct percent of amount, rounded half-up to whole units or to minor units.
func CalculateCommission(amount, pct decimal.Decimal, roundToWhole bool) decimal.Decimal {
	raw := shared.Percent(amount, pct)
	if roundToWhole {
		return raw.Round(0)
	}
	return shared.RoundMoney(raw)
}

// CommissionEarnedInput notes an agent's commission on a sale. SaleSource links the note to a
// recorded sale so returns can reverse it.
type CommissionEarnedInput struct {
	AgentID       int64 `validate:"required,gt=0"`
	SaleSource    *ledger.SourceRef
	InvoiceAmount decimal.Decimal
	Percentage    decimal.Decimal
	RoundToWhole  bool
}

// RecordCommissionEarned stores a pending-commission note. Nothing is posted to the ledger.
func (r *Recorder) RecordCommissionEarned(ctx context.Context, tc shared.TenantContext, in CommissionEarnedInput) (Result, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return Result{}, err
	}
	if err := shared.RequirePositive("invoice_amount", in.InvoiceAmount); err != nil {
		return Result{}, err
	}
	if in.Percentage.IsNegative() || in.Percentage.GreaterThan(decimal.NewFromInt(100)) {
		return Result{}, shared.Invalid("percentage", "must be between 0 and 100, got %s", in.Percentage)
	}
	amount := CalculateCommission(in.InvoiceAmount, in.Percentage, in.RoundToWhole)
	tpl := CommissionEarnedTemplate{Amount: amount}
	var res Result
	err := r.run(ctx, tc, tpl.Event(), nil, func(ctx context.Context, tx TxRepository) error {
		if _, err := tpl.Legs(r.cfg.Accounts); err != nil {
			return err
		}
		note := CommissionNote{
			TenantID:       tc.TenantID,
			AgentID:        in.AgentID,
			InvoiceAmount:  shared.RoundMoney(in.InvoiceAmount),
			Percentage:     in.Percentage,
			Amount:         amount,
			ReversedAmount: decimal.Zero,
			CreatedAt:      r.now(),
		}
		if in.SaleSource != nil {
			sale, err := tx.Documents().GetSaleBySourceForUpdate(ctx, tc.TenantID, *in.SaleSource)
			if err != nil {
				return err
			}
			note.SaleID = &sale.ID
		}
		saved, err := tx.Documents().InsertCommissionNote(ctx, note)
		if err != nil {
			return err
		}
		res = Result{Note: &saved}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	r.record(ctx, tc, tpl.Event(), idString(res.Note.ID), map[string]any{
		"agent_id": in.AgentID,
		"amount":   amount.StringFixed(shared.MoneyPlaces),
	})
	return res, nil
}

// CommissionReversalInput reduces a note by Amount. Source identifies what caused the reversal
// and makes the call idempotent.
type CommissionReversalInput struct {
	NoteID int64 `validate:"required,gt=0"`
	Amount decimal.Decimal
	Source ledger.SourceRef
}

// RecordCommissionReversal credits against a prior note, linked by its id.
func (r *Recorder) RecordCommissionReversal(ctx context.Context, tc shared.TenantContext, in CommissionReversalInput) (Result, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return Result{}, err
	}
	tpl := CommissionReversedTemplate{Amount: shared.RoundMoney(in.Amount)}
	if _, err := tpl.Legs(r.cfg.Accounts); err != nil {
		return Result{}, err
	}
	var res Result
	err := r.run(ctx, tc, tpl.Event(), nil, func(ctx context.Context, tx TxRepository) error {
		note, err := tx.Documents().GetCommissionNoteForUpdate(ctx, tc.TenantID, in.NoteID)
		if err != nil {
			return err
		}
		reversal, note, err := r.reverseNote(ctx, tx, note, tpl.Amount, in.Source)
		if err != nil {
			return err
		}
		res = Result{Note: &note, Reversals: []CommissionReversal{reversal}}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	r.record(ctx, tc, tpl.Event(), idString(in.NoteID), map[string]any{
		"amount": tpl.Amount.StringFixed(shared.MoneyPlaces),
		"source": in.Source.String(),
	})
	return res, nil
}

func (r *Recorder) reverseNote(ctx context.Context, tx TxRepository, note CommissionNote, amount decimal.Decimal, source ledger.SourceRef) (CommissionReversal, CommissionNote, error) {
	if amount.GreaterThan(note.Outstanding()) {
		return CommissionReversal{}, note, shared.Invalid("amount", "reverses %s but note %d has %s outstanding",
			amount.StringFixed(shared.MoneyPlaces), note.ID, note.Outstanding().StringFixed(shared.MoneyPlaces))
	}
	reversal, err := tx.Documents().InsertCommissionReversal(ctx, CommissionReversal{
		TenantID:  note.TenantID,
		NoteID:    note.ID,
		Amount:    amount,
		SourceRef: source.String(),
		CreatedAt: r.now(),
	})
	if err != nil {
		return CommissionReversal{}, note, err
	}
	note.ReversedAmount = note.ReversedAmount.Add(amount)
	if err := tx.Documents().UpdateCommissionNoteReversed(ctx, note); err != nil {
		return CommissionReversal{}, note, err
	}
	return reversal, note, nil
}

// reverseSaleCommissions reverses every note on the sale in proportion to the returned amount.
// Once the whole sale is back, each note's outstanding amount is reversed in full.
func (r *Recorder) reverseSaleCommissions(ctx context.Context, tx TxRepository, tc shared.TenantContext, sale SaleDocument, returned decimal.Decimal, source ledger.SourceRef) ([]CommissionReversal, error) {
	notes, err := tx.Documents().ListCommissionNotesBySale(ctx, tc.TenantID, sale.ID)
	if err != nil || len(notes) == 0 {
		return nil, err
	}
	total := sale.Total()
	var out []CommissionReversal
	for _, listed := range notes {
		note, err := tx.Documents().GetCommissionNoteForUpdate(ctx, tc.TenantID, listed.ID)
		if err != nil {
			return nil, err
		}
		amount := note.Outstanding()
		if !sale.FullyReturned() && total.IsPositive() {
			amount = decimal.Min(amount, shared.RoundMoney(note.Amount.Mul(returned).Div(total)))
		}
		if !amount.IsPositive() {
			continue
		}
		reversal, _, err := r.reverseNote(ctx, tx, note, amount, source)
		if err != nil {
			return nil, err
		}
		out = append(out, reversal)
	}
	return out, nil
}

// CommissionPaymentInput pays an agent from cash or bank.
type CommissionPaymentInput struct {
	Source     ledger.SourceRef
	AgentID    int64           `validate:"required,gt=0"`
	Date       time.Time       `validate:"required"`
	Amount     decimal.Decimal
	Settlement Settlement `validate:"required,oneof=cash bank"`
	Narration  string     `validate:"max=512"`
}

// RecordCommissionPaid posts Dr Commission-Expense / Cr Cash or Bank and lowers the agent's
// pending balance. Paying more than is pending is rejected.
func (r *Recorder) RecordCommissionPaid(ctx context.Context, tc shared.TenantContext, in CommissionPaymentInput) (Result, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return Result{}, err
	}
	amount := shared.RoundMoney(in.Amount)
	tpl := CommissionPaidTemplate{Amount: amount, Settlement: in.Settlement}
	var res Result
	err := r.run(ctx, tc, tpl.Event(), nil, func(ctx context.Context, tx TxRepository) error {
		balance, err := tx.Documents().AgentBalance(ctx, tc.TenantID, in.AgentID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(balance.Pending()) {
			return shared.Invalid("amount", "pays %s but agent %d has %s pending",
				amount.StringFixed(shared.MoneyPlaces), in.AgentID, balance.Pending().StringFixed(shared.MoneyPlaces))
		}
		voucher, err := r.post(ctx, tx, tc, in.Date, in.Source, narrationOr(in.Narration, "Commission paid to agent %d", in.AgentID), tpl)
		if err != nil {
			return err
		}
		payment, err := tx.Documents().InsertCommissionPayment(ctx, CommissionPayment{
			TenantID:  tc.TenantID,
			AgentID:   in.AgentID,
			Amount:    amount,
			VoucherID: voucher.ID,
			PaidAt:    r.now(),
		})
		if err != nil {
			return err
		}
		res = Result{Voucher: voucher, Payment: &payment}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	r.record(ctx, tc, tpl.Event(), in.Source.String(), map[string]any{
		"voucher_id": res.Voucher.ID,
		"agent_id":   in.AgentID,
	})
	return res, nil
}

// AgentBalance reports earned, reversed and paid commission for an agent.
func (r *Recorder) AgentBalance(ctx context.Context, tc shared.TenantContext, agentID int64) (AgentBalance, error) {
	if err := tc.Validate(); err != nil {
		return AgentBalance{}, err
	}
	if agentID <= 0 {
		return AgentBalance{}, shared.Invalid("agent_id", "must be positive")
	}
	var balance AgentBalance
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		balance, err = tx.Documents().AgentBalance(ctx, tc.TenantID, agentID)
		return err
	})
	if errors.Is(err, shared.ErrNotFound) {
		return AgentBalance{AgentID: agentID, Earned: decimal.Zero, Reversed: decimal.Zero, Paid: decimal.Zero}, nil
	}
	return balance, err
}
