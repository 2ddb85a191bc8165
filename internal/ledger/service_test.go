package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/accounts"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/store/memory"
)

type fixture struct {
	store    *memory.Store
	accounts *accounts.Service
	engine   *ledger.Engine
	tc       shared.TenantContext
}

func newFixture(t *testing.T, cfg ledger.Config) fixture {
	t.Helper()
	store := memory.New()
	f := fixture{
		store:    store,
		accounts: accounts.NewService(store.Accounts(), nil),
		engine:   ledger.NewEngine(store.Ledger(), store, cfg, nil),
		tc:       shared.TenantContext{TenantID: 1, ActorID: 7},
	}
	_, err := f.accounts.SeedStandardChart(context.Background(), f.tc)
	require.NoError(t, err)
	return f
}

func (f fixture) accountID(t *testing.T, code string) int64 {
	t.Helper()
	acct, err := f.accounts.GetByCode(context.Background(), f.tc, code)
	require.NoError(t, err)
	return acct.ID
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(d int) time.Time { return time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC) }

func TestPostBalancedVoucher(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.DefaultConfig())

	voucher, err := f.engine.Post(ctx, f.tc, ledger.PostingInput{
		Date:      day(1).Add(15 * time.Hour),
		Source:    ledger.Source("purchase_bill", 1),
		Narration: "stock",
		Legs: []ledger.LegInput{
			ledger.Dr(accounts.CodeInventory, dec("5000")),
			ledger.Dr(accounts.CodeInputTaxCredit, dec("900")),
			ledger.Cr(accounts.CodePayable, dec("5900")),
		},
	})
	require.NoError(t, err)
	require.NotZero(t, voucher.ID)
	require.Equal(t, day(1), voucher.Date)
	require.Equal(t, int64(7), voucher.PostedBy)
	require.Len(t, voucher.Legs, 3)
	debit, credit := voucher.Totals()
	require.True(t, debit.Equal(credit))
	for i, leg := range voucher.Legs {
		require.Equal(t, i+1, leg.LineNo)
		require.NotZero(t, leg.Seq)
	}

	payable, err := f.engine.AccountBalance(ctx, f.tc, f.accountID(t, accounts.CodePayable), time.Time{})
	require.NoError(t, err)
	require.Equal(t, "5900.00", payable.StringFixed(2))

	trail := f.store.AuditTrail()
	require.Len(t, trail, 1)
	require.Equal(t, "voucher.post", trail[0].Action)
	require.Equal(t, "purchase_bill:1", trail[0].Meta["source"])
}

func TestPostRejectsInvalidVouchers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.DefaultConfig())
	cases := map[string]ledger.PostingInput{
		"single leg": {Date: day(1), Source: ledger.Source("x", 1), Legs: []ledger.LegInput{
			ledger.Dr(accounts.CodeCash, dec("1")),
		}},
		"both sides": {Date: day(1), Source: ledger.Source("x", 2), Legs: []ledger.LegInput{
			{AccountCode: accounts.CodeCash, Debit: dec("1"), Credit: dec("1")},
			ledger.Cr(accounts.CodeBank, dec("1")),
		}},
		"zero leg": {Date: day(1), Source: ledger.Source("x", 3), Legs: []ledger.LegInput{
			ledger.Dr(accounts.CodeCash, dec("0.001")),
			ledger.Cr(accounts.CodeBank, dec("0.001")),
		}},
		"negative": {Date: day(1), Source: ledger.Source("x", 4), Legs: []ledger.LegInput{
			ledger.Dr(accounts.CodeCash, dec("-5")),
			ledger.Cr(accounts.CodeBank, dec("-5")),
		}},
		"no account": {Date: day(1), Source: ledger.Source("x", 5), Legs: []ledger.LegInput{
			ledger.Dr("", dec("5")),
			ledger.Cr(accounts.CodeBank, dec("5")),
		}},
		"no source": {Date: day(1), Legs: []ledger.LegInput{
			ledger.Dr(accounts.CodeCash, dec("5")),
			ledger.Cr(accounts.CodeBank, dec("5")),
		}},
		"no date": {Source: ledger.Source("x", 6), Legs: []ledger.LegInput{
			ledger.Dr(accounts.CodeCash, dec("5")),
			ledger.Cr(accounts.CodeBank, dec("5")),
		}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.engine.Post(ctx, f.tc, in)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}

	_, err := f.engine.Post(ctx, f.tc, ledger.PostingInput{Date: day(1), Source: ledger.Source("x", 7), Legs: []ledger.LegInput{
		ledger.Dr(accounts.CodeCash, dec("5")),
		ledger.Cr("8888", dec("5")),
	}})
	require.ErrorIs(t, err, shared.ErrNotFound)

	tb, err := f.engine.TrialBalance(ctx, f.tc, time.Time{})
	require.NoError(t, err)
	require.Empty(t, tb.Rows, "rejected vouchers leave no legs behind")
}

func TestPostImbalanceAndRoundingAbsorption(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.DefaultConfig())

	_, err := f.engine.Post(ctx, f.tc, ledger.PostingInput{Date: day(2), Source: ledger.Source("sale", 1), Legs: []ledger.LegInput{
		ledger.Dr(accounts.CodeReceivable, dec("100")),
		ledger.Cr(accounts.CodeSalesIncome, dec("99")),
	}})
	require.ErrorIs(t, err, shared.ErrImbalanced)
	var imbalance *shared.ImbalancedVoucherError
	require.ErrorAs(t, err, &imbalance)
	require.Equal(t, "1.00", imbalance.Difference().StringFixed(2))

	voucher, err := f.engine.Post(ctx, f.tc, ledger.PostingInput{Date: day(2), Source: ledger.Source("sale", 2), Legs: []ledger.LegInput{
		ledger.Dr(accounts.CodeReceivable, dec("100.01")),
		ledger.Cr(accounts.CodeSalesIncome, dec("100")),
	}})
	require.NoError(t, err)
	require.Len(t, voucher.Legs, 3)
	rounding := voucher.Legs[2]
	require.Equal(t, f.accountID(t, accounts.CodeRounding), rounding.AccountID)
	require.Equal(t, "0.01", rounding.Credit.StringFixed(2))

	// An inactive rounding account turns the drift into a rejection.
	require.NoError(t, f.accounts.Deactivate(ctx, f.tc, f.accountID(t, accounts.CodeRounding)))
	_, err = f.engine.Post(ctx, f.tc, ledger.PostingInput{Date: day(2), Source: ledger.Source("sale", 3), Legs: []ledger.LegInput{
		ledger.Dr(accounts.CodeReceivable, dec("100")),
		ledger.Cr(accounts.CodeSalesIncome, dec("100.01")),
	}})
	require.ErrorIs(t, err, shared.ErrImbalanced)

	strict := ledger.NewEngine(f.store.Ledger(), nil, ledger.Config{}, nil)
	_, err = strict.Post(ctx, f.tc, ledger.PostingInput{Date: day(2), Source: ledger.Source("sale", 4), Legs: []ledger.LegInput{
		ledger.Dr(accounts.CodeReceivable, dec("100.01")),
		ledger.Cr(accounts.CodeSalesIncome, dec("100")),
	}})
	require.ErrorIs(t, err, shared.ErrImbalanced, "zero epsilon disables absorption")
}

func TestPostRejectsReusedSourceAndInactiveAccounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.DefaultConfig())
	in := ledger.PostingInput{Date: day(3), Source: ledger.Source("receipt", 9), Legs: []ledger.LegInput{
		ledger.Dr(accounts.CodeCash, dec("10")),
		ledger.Cr(accounts.CodeReceivable, dec("10")),
	}}
	_, err := f.engine.Post(ctx, f.tc, in)
	require.NoError(t, err)
	_, err = f.engine.Post(ctx, f.tc, in)
	require.ErrorIs(t, err, shared.ErrSourceAlreadyPosted)

	require.NoError(t, f.accounts.Deactivate(ctx, f.tc, f.accountID(t, accounts.CodeCash)))
	in.Source = ledger.Source("receipt", 10)
	_, err = f.engine.Post(ctx, f.tc, in)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestReverse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.DefaultConfig())
	original, err := f.engine.Post(ctx, f.tc, ledger.PostingInput{Date: day(4), Source: ledger.Source("payment", 1), Narration: "rent", Legs: []ledger.LegInput{
		ledger.Dr(accounts.CodePayable, dec("250")),
		ledger.Cr(accounts.CodeBank, dec("250")),
	}})
	require.NoError(t, err)

	// Reversals still post against accounts deactivated after the original.
	require.NoError(t, f.accounts.Deactivate(ctx, f.tc, f.accountID(t, accounts.CodeBank)))

	reversal, err := f.engine.Reverse(ctx, f.tc, original.ID, ledger.ReverseInput{})
	require.NoError(t, err)
	require.Equal(t, original.Date, reversal.Date)
	require.Equal(t, ledger.SourceReversal, reversal.Source.Type)
	require.NotNil(t, reversal.ReversesID)
	require.Equal(t, original.ID, *reversal.ReversesID)
	require.Contains(t, reversal.Narration, "rent")
	require.True(t, reversal.Legs[0].Credit.Equal(original.Legs[0].Debit))
	require.True(t, reversal.Legs[1].Debit.Equal(original.Legs[1].Credit))

	bank, err := f.engine.AccountBalance(ctx, f.tc, f.accountID(t, accounts.CodeBank), time.Time{})
	require.NoError(t, err)
	require.True(t, bank.IsZero())

	_, err = f.engine.Reverse(ctx, f.tc, original.ID, ledger.ReverseInput{Date: day(5)})
	require.ErrorIs(t, err, shared.ErrAlreadyReversed)
	_, err = f.engine.Reverse(ctx, f.tc, 999, ledger.ReverseInput{})
	require.ErrorIs(t, err, shared.ErrNotFound)

	vouchers, err := f.engine.VouchersBySource(ctx, f.tc, ledger.SourceReversal)
	require.NoError(t, err)
	require.Len(t, vouchers, 1)
}

func TestTrialBalanceAsOf(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.DefaultConfig())
	post := func(d int, id int64, amount string) {
		_, err := f.engine.Post(ctx, f.tc, ledger.PostingInput{Date: day(d), Source: ledger.Source("sale", id), Legs: []ledger.LegInput{
			ledger.Dr(accounts.CodeCash, dec(amount)),
			ledger.Cr(accounts.CodeSalesIncome, dec(amount)),
		}})
		require.NoError(t, err)
	}
	post(1, 1, "100")
	post(10, 2, "50.50")

	tb, err := f.engine.TrialBalance(ctx, f.tc, day(1).Add(23*time.Hour))
	require.NoError(t, err)
	require.True(t, tb.Balanced())
	require.Len(t, tb.Rows, 2)
	require.Equal(t, accounts.CodeCash, tb.Rows[0].Code)
	require.Equal(t, "100.00", tb.Rows[0].Balance.StringFixed(2))
	require.Equal(t, "100.00", tb.Rows[1].Balance.StringFixed(2), "income balances are credit-positive")

	tb, err = f.engine.TrialBalance(ctx, f.tc, time.Time{})
	require.NoError(t, err)
	require.Equal(t, "150.50", tb.TotalDebit.StringFixed(2))
	require.Equal(t, "150.50", tb.TotalCredit.StringFixed(2))

	other, err := f.engine.TrialBalance(ctx, shared.TenantContext{TenantID: 2}, time.Time{})
	require.NoError(t, err)
	require.Empty(t, other.Rows)
}

func TestParseSourceRef(t *testing.T) {
	ref, err := ledger.ParseSourceRef("purchase_bill:42")
	require.NoError(t, err)
	require.Equal(t, ledger.Source("purchase_bill", 42), ref)
	require.Equal(t, "purchase_bill:42", ref.String())

	_, err = ledger.ParseSourceRef("42")
	require.ErrorIs(t, err, shared.ErrValidation)
}
