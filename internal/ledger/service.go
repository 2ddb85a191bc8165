package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/accounts"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Config tunes rounding absorption.
type Config struct {
	// RoundingEpsilon is the largest imbalance absorbed into the rounding account. Zero disables absorption.
	RoundingEpsilon decimal.Decimal
	// RoundingAccountCode names the account that receives the absorbing leg.
	RoundingAccountCode string
}

// DefaultConfig absorbs up to one minor unit.
func DefaultConfig() Config {
	return Config{RoundingEpsilon: decimal.New(1, -shared.MoneyPlaces), RoundingAccountCode: accounts.CodeRounding}
}

// Engine posts vouchers and answers balance queries.
type Engine struct {
	repo   RepositoryPort
	audit  shared.AuditPort
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine constructs the ledger engine. audit may be nil.
func NewEngine(repo RepositoryPort, audit shared.AuditPort, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RoundingAccountCode == "" {
		cfg.RoundingAccountCode = accounts.CodeRounding
	}
	return &Engine{repo: repo, audit: audit, cfg: cfg, logger: logger, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Post validates and persists a voucher atomically.
func (e *Engine) Post(ctx context.Context, tc shared.TenantContext, in PostingInput) (Voucher, error) {
	var voucher Voucher
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		voucher, err = e.PostTx(ctx, tx, tc, in)
		return err
	})
	if err != nil {
		return Voucher{}, err
	}
	e.record(ctx, tc, "voucher.post", voucher)
	return voucher, nil
}

// PostTx posts inside a transaction opened by the caller, so several components can commit as one unit.
func (e *Engine) PostTx(ctx context.Context, tx TxRepository, tc shared.TenantContext, in PostingInput) (Voucher, error) {
	if err := tc.Validate(); err != nil {
		return Voucher{}, err
	}
	if err := shared.ValidateStruct(in); err != nil {
		return Voucher{}, err
	}
	legs, debit, credit, err := normalizedLegs(in.Legs)
	if err != nil {
		return Voucher{}, err
	}
	if !debit.Equal(credit) {
		leg, err := e.absorbRounding(ctx, tx, tc, debit, credit)
		if err != nil {
			return Voucher{}, err
		}
		legs = append(legs, leg)
		e.logger.Info("rounding absorbed",
			slog.Int64("tenant_id", tc.TenantID),
			slog.String("source", in.Source.String()),
			slog.String("difference", debit.Sub(credit).StringFixed(shared.MoneyPlaces)))
	}

	date := truncateDay(in.Date)
	voucher := Voucher{
		TenantID:  tc.TenantID,
		Date:      date,
		Source:    in.Source,
		Narration: in.Narration,
		PostedBy:  tc.ActorID,
		PostedAt:  e.now(),
		Legs:      make([]Leg, 0, len(legs)),
	}
	for i, leg := range legs {
		account, err := e.resolveAccount(ctx, tx, tc, leg)
		if err != nil {
			return Voucher{}, fmt.Errorf("legs[%d]: %w", i, err)
		}
		voucher.Legs = append(voucher.Legs, Leg{
			LineNo:    i + 1,
			AccountID: account.ID,
			Date:      date,
			Debit:     leg.Debit,
			Credit:    leg.Credit,
		})
	}
	if d, c := voucher.Totals(); !d.Equal(c) {
		return Voucher{}, &shared.ImbalancedVoucherError{Debit: d, Credit: c}
	}
	return tx.InsertVoucher(ctx, voucher)
}

// absorbRounding returns the leg that closes a drift no larger than the configured epsilon.
func (e *Engine) absorbRounding(ctx context.Context, tx TxRepository, tc shared.TenantContext, debit, credit decimal.Decimal) (LegInput, error) {
	diff := debit.Sub(credit)
	if !e.cfg.RoundingEpsilon.IsPositive() || diff.Abs().GreaterThan(e.cfg.RoundingEpsilon) {
		return LegInput{}, &shared.ImbalancedVoucherError{Debit: debit, Credit: credit}
	}
	account, err := tx.GetAccountByCode(ctx, tc.TenantID, e.cfg.RoundingAccountCode)
	if err != nil || !account.IsActive {
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return LegInput{}, err
		}
		return LegInput{}, &shared.ImbalancedVoucherError{Debit: debit, Credit: credit}
	}
	if diff.IsPositive() {
		return LegInput{AccountID: account.ID, Credit: diff}, nil
	}
	return LegInput{AccountID: account.ID, Debit: diff.Neg()}, nil
}

func (e *Engine) resolveAccount(ctx context.Context, tx TxRepository, tc shared.TenantContext, leg LegInput) (accounts.Account, error) {
	var (
		account accounts.Account
		err     error
	)
	if leg.AccountID != 0 {
		account, err = tx.GetAccount(ctx, tc.TenantID, leg.AccountID)
	} else {
		account, err = tx.GetAccountByCode(ctx, tc.TenantID, leg.AccountCode)
	}
	if err != nil {
		return accounts.Account{}, err
	}
	if !account.IsActive {
		return accounts.Account{}, shared.Invalid("account", "account %s is inactive", leg.ref())
	}
	return account, nil
}

// Reverse posts a voucher whose legs swap debit and credit of the original.
func (e *Engine) Reverse(ctx context.Context, tc shared.TenantContext, voucherID int64, in ReverseInput) (Voucher, error) {
	var reversal Voucher
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		reversal, err = e.ReverseTx(ctx, tx, tc, voucherID, in)
		return err
	})
	if err != nil {
		return Voucher{}, err
	}
	e.record(ctx, tc, "voucher.reverse", reversal)
	return reversal, nil
}

// ReverseTx reverses inside a caller-owned transaction.
func (e *Engine) ReverseTx(ctx context.Context, tx TxRepository, tc shared.TenantContext, voucherID int64, in ReverseInput) (Voucher, error) {
	if err := tc.Validate(); err != nil {
		return Voucher{}, err
	}
	original, err := tx.GetVoucher(ctx, tc.TenantID, voucherID)
	if err != nil {
		return Voucher{}, err
	}
	if _, found, err := tx.FindReversal(ctx, tc.TenantID, voucherID); err != nil {
		return Voucher{}, err
	} else if found {
		return Voucher{}, fmt.Errorf("ledger: voucher %d: %w", voucherID, shared.ErrAlreadyReversed)
	}
	date := in.Date
	if date.IsZero() {
		date = original.Date
	}
	narration := in.Narration
	if narration == "" {
		narration = defaultReversalNarration(original)
	}
	// Reversal legs reference accounts by id, including ones deactivated since the original posting.
	legs := reverseLegs(original.Legs)
	voucher := Voucher{
		TenantID:   tc.TenantID,
		Date:       truncateDay(date),
		Source:     SourceRef{Type: SourceReversal, ID: strconv.FormatInt(original.ID, 10)},
		Narration:  narration,
		ReversesID: &original.ID,
		PostedBy:   tc.ActorID,
		PostedAt:   e.now(),
	}
	for i, leg := range legs {
		voucher.Legs = append(voucher.Legs, Leg{
			LineNo:    i + 1,
			AccountID: leg.AccountID,
			Date:      voucher.Date,
			Debit:     leg.Debit,
			Credit:    leg.Credit,
		})
	}
	return tx.InsertVoucher(ctx, voucher)
}

// AccountBalance folds the account's legs up to asOf onto its normal side.
func (e *Engine) AccountBalance(ctx context.Context, tc shared.TenantContext, accountID int64, asOf time.Time) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		balance, err = AccountBalanceTx(ctx, tx, tc, accountID, asOf)
		return err
	})
	return balance, err
}

// AccountBalanceTx computes a balance inside an open transaction.
func AccountBalanceTx(ctx context.Context, tx TxRepository, tc shared.TenantContext, accountID int64, asOf time.Time) (decimal.Decimal, error) {
	if err := tc.Validate(); err != nil {
		return decimal.Zero, err
	}
	account, err := tx.GetAccount(ctx, tc.TenantID, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	legs, err := tx.ListAccountLegs(ctx, tc.TenantID, accountID, asOfDay(asOf))
	if err != nil {
		return decimal.Zero, err
	}
	debit, credit := decimal.Zero, decimal.Zero
	for _, leg := range legs {
		debit = debit.Add(leg.Debit)
		credit = credit.Add(leg.Credit)
	}
	return normalBalance(account.NormalSide, debit, credit), nil
}

// TrialBalance totals every account up to asOf.
func (e *Engine) TrialBalance(ctx context.Context, tc shared.TenantContext, asOf time.Time) (TrialBalance, error) {
	var tb TrialBalance
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		tb, err = TrialBalanceTx(ctx, tx, tc, asOf)
		return err
	})
	return tb, err
}

// TrialBalanceTx builds the trial balance inside an open transaction.
func TrialBalanceTx(ctx context.Context, tx TxRepository, tc shared.TenantContext, asOf time.Time) (TrialBalance, error) {
	if err := tc.Validate(); err != nil {
		return TrialBalance{}, err
	}
	totals, err := tx.AccountTotals(ctx, tc.TenantID, asOfDay(asOf))
	if err != nil {
		return TrialBalance{}, err
	}
	return BuildTrialBalance(asOf, totals), nil
}

// GetVoucher loads a voucher with its legs.
func (e *Engine) GetVoucher(ctx context.Context, tc shared.TenantContext, id int64) (Voucher, error) {
	if err := tc.Validate(); err != nil {
		return Voucher{}, err
	}
	var voucher Voucher
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		voucher, err = tx.GetVoucher(ctx, tc.TenantID, id)
		return err
	})
	return voucher, err
}

// VouchersBySource lists vouchers posted for one document type.
func (e *Engine) VouchersBySource(ctx context.Context, tc shared.TenantContext, sourceType string) ([]Voucher, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	var out []Voucher
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListVouchersBySourceType(ctx, tc.TenantID, sourceType)
		return err
	})
	return out, err
}

func (e *Engine) record(ctx context.Context, tc shared.TenantContext, action string, voucher Voucher) {
	if e.audit == nil {
		return
	}
	debit, _ := voucher.Totals()
	err := e.audit.Record(ctx, shared.AuditLog{
		TenantID: tc.TenantID,
		ActorID:  tc.ActorID,
		Action:   action,
		Entity:   "voucher",
		EntityID: strconv.FormatInt(voucher.ID, 10),
		Meta: map[string]any{
			"source": voucher.Source.String(),
			"total":  debit.StringFixed(shared.MoneyPlaces),
			"legs":   len(voucher.Legs),
		},
		At: e.now(),
	})
	if err != nil {
		e.logger.Warn("audit voucher", slog.String("action", action), slog.Any("error", err))
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// asOfDay keeps zero as "no bound" and otherwise drops the time of day; legs dated on asOf are included.
func asOfDay(asOf time.Time) time.Time {
	if asOf.IsZero() {
		return asOf
	}
	return truncateDay(asOf)
}
