package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/accounts"
	"github.com/odyssey-erp/stockledger/internal/app"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/recorder"
	"github.com/odyssey-erp/stockledger/internal/shared"
	testsupport "github.com/odyssey-erp/stockledger/testing"
)

func TestPostgresPurchaseAndSale(t *testing.T) {
	pool := testsupport.OpenDatabase(t)
	ctx := context.Background()
	services := app.NewServices(&app.Config{RoundingEpsilon: decimal.New(1, -2), RoundingAccount: accounts.CodeRounding}, app.PostgresStores(pool), nil)
	tc := shared.TenantContext{TenantID: 1, ActorID: 1}

	_, err := services.Accounts.SeedStandardChart(ctx, tc)
	require.NoError(t, err)

	date := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	bill := recorder.PurchaseInput{
		Source:           ledger.Source("purchase_bill", 1),
		Date:             date,
		PurchasedWithGST: true,
		Settlement:       recorder.SettleCredit,
		Lines: []recorder.PurchaseLine{{
			ItemID: 1, SiteID: 1, Quantity: decimal.NewFromInt(100), UnitCost: decimal.NewFromInt(50), GSTRate: decimal.NewFromInt(18),
		}},
	}
	_, err = services.Recorder.RecordPurchase(ctx, tc, bill)
	require.NoError(t, err)
	_, err = services.Recorder.RecordPurchase(ctx, tc, bill)
	require.ErrorIs(t, err, shared.ErrSourceAlreadyPosted)

	sale, err := services.Recorder.RecordSale(ctx, tc, recorder.SaleInput{
		Source:     ledger.Source("sale", 1),
		Date:       date.AddDate(0, 0, 1),
		Taxable:    true,
		Settlement: recorder.SettleCredit,
		Lines: []recorder.SaleLine{{
			ItemID: 1, SiteID: 1, Quantity: decimal.NewFromInt(60), UnitPrice: decimal.NewFromInt(80), TaxAmount: decimal.NewFromInt(864),
		}},
	})
	require.NoError(t, err)
	require.Equal(t, "540.00", sale.Allocations[0].ITCConsumed.StringFixed(2))

	tb, err := services.Ledger.TrialBalance(ctx, tc, time.Time{})
	require.NoError(t, err)
	require.True(t, tb.Balanced())
	require.Equal(t, "14564.00", tb.TotalDebit.StringFixed(2))

	summary, err := services.Batches.StockSummary(ctx, tc, 1)
	require.NoError(t, err)
	require.Equal(t, "40", summary.GSTQuantity.String())
	require.Equal(t, "360.00", summary.ITCAvailable.StringFixed(2))

	cost, err := services.Costs.ItemCost(ctx, tc, 1, 1)
	require.NoError(t, err)
	require.Equal(t, "40", cost.OnHand.String())
}
