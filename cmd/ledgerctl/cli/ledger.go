package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/app"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Output directs command output.
type Output struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

func (o Output) withDefaults() Output {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	return o
}

func (o Output) fail(cmd string, err error) int {
	_, _ = fmt.Fprintf(o.Stderr, "%s: %v\n", cmd, err)
	if shared.IsRetryable(err) {
		return 75
	}
	return 1
}

func (o Output) encode(cmd string, v any) int {
	if err := json.NewEncoder(o.Stdout).Encode(v); err != nil {
		_, _ = fmt.Fprintf(o.Stderr, "%s: encode json: %v\n", cmd, err)
		return 1
	}
	return 0
}

// LedgerCLI runs operator commands against the ledger and stock services.
type LedgerCLI struct {
	services *app.Services
}

// NewLedgerCLI wraps the wired services.
func NewLedgerCLI(services *app.Services) *LedgerCLI {
	return &LedgerCLI{services: services}
}

// ParseDate reads YYYY-MM-DD; an empty string yields the zero time.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", s)
	}
	return t, nil
}

// SeedChartCommand creates the standard accounts of a tenant.
func (c *LedgerCLI) SeedChartCommand(ctx context.Context, tenantID int64, out Output) int {
	out = out.withDefaults()
	accts, err := c.services.Accounts.SeedStandardChart(ctx, shared.TenantContext{TenantID: tenantID})
	if err != nil {
		return out.fail("seed-chart", err)
	}
	if out.JSONOutput {
		type row struct {
			ID   int64  `json:"id"`
			Code string `json:"code"`
			Name string `json:"name"`
			Type string `json:"type"`
		}
		rows := make([]row, 0, len(accts))
		for _, a := range accts {
			rows = append(rows, row{ID: a.ID, Code: a.Code, Name: a.Name, Type: string(a.Type)})
		}
		return out.encode("seed-chart", rows)
	}
	_, _ = fmt.Fprintf(out.Stdout, "tenant %d has %d standard accounts\n", tenantID, len(accts))
	return 0
}

// TrialBalanceOptions selects the trial balance to print.
type TrialBalanceOptions struct {
	TenantID int64
	AsOf     time.Time
	Output
}

// TrialBalanceRowJSON is one account line of the JSON trial balance.
type TrialBalanceRowJSON struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Debit   string `json:"debit"`
	Credit  string `json:"credit"`
	Balance string `json:"balance"`
}

// TrialBalanceJSON is the JSON form of a trial balance.
type TrialBalanceJSON struct {
	AsOf        string                `json:"as_of,omitempty"`
	Balanced    bool                  `json:"balanced"`
	TotalDebit  string                `json:"total_debit"`
	TotalCredit string                `json:"total_credit"`
	Rows        []TrialBalanceRowJSON `json:"rows"`
}

// TrialBalanceCommand prints the trial balance. It exits 10 when debits and credits differ.
func (c *LedgerCLI) TrialBalanceCommand(ctx context.Context, opts TrialBalanceOptions) int {
	out := opts.Output.withDefaults()
	tb, err := c.services.Ledger.TrialBalance(ctx, shared.TenantContext{TenantID: opts.TenantID}, opts.AsOf)
	if err != nil {
		return out.fail("trial-balance", err)
	}
	if out.JSONOutput {
		summary := TrialBalanceJSON{
			Balanced:    tb.Balanced(),
			TotalDebit:  money(tb.TotalDebit),
			TotalCredit: money(tb.TotalCredit),
			Rows:        make([]TrialBalanceRowJSON, 0, len(tb.Rows)),
		}
		if !opts.AsOf.IsZero() {
			summary.AsOf = opts.AsOf.Format(time.DateOnly)
		}
		for _, row := range tb.Rows {
			summary.Rows = append(summary.Rows, TrialBalanceRowJSON{
				Code: row.Code, Name: row.Name, Type: string(row.Type),
				Debit: money(row.Debit), Credit: money(row.Credit), Balance: money(row.Balance),
			})
		}
		if code := out.encode("trial-balance", summary); code != 0 {
			return code
		}
	} else {
		w := tabwriter.NewWriter(out.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
		_, _ = fmt.Fprintln(w, "CODE\tNAME\tDEBIT\tCREDIT\tBALANCE\t")
		for _, row := range tb.Rows {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n", row.Code, row.Name, money(row.Debit), money(row.Credit), money(row.Balance))
		}
		_, _ = fmt.Fprintf(w, "\tTOTAL\t%s\t%s\t\t\n", money(tb.TotalDebit), money(tb.TotalCredit))
		_ = w.Flush()
	}
	if !tb.Balanced() {
		_, _ = fmt.Fprintf(out.Stderr, "trial-balance: tenant %d is out of balance\n", opts.TenantID)
		return 10
	}
	return 0
}

// BalanceOptions selects one account balance.
type BalanceOptions struct {
	TenantID int64
	Account  string
	AsOf     time.Time
	Output
}

// BalanceCommand prints an account's normal-side balance. Account accepts a code or an id.
func (c *LedgerCLI) BalanceCommand(ctx context.Context, opts BalanceOptions) int {
	out := opts.Output.withDefaults()
	tc := shared.TenantContext{TenantID: opts.TenantID}
	account, err := c.services.Accounts.Resolve(ctx, tc, opts.Account)
	if err != nil {
		return out.fail("balance", err)
	}
	balance, err := c.services.Ledger.AccountBalance(ctx, tc, account.ID, opts.AsOf)
	if err != nil {
		return out.fail("balance", err)
	}
	if out.JSONOutput {
		return out.encode("balance", map[string]string{
			"code":    account.Code,
			"name":    account.Name,
			"balance": money(balance),
		})
	}
	_, _ = fmt.Fprintf(out.Stdout, "%s %s: %s\n", account.Code, account.Name, money(balance))
	return 0
}

// StockOptions selects the stock summary scope. ItemID zero covers every item.
type StockOptions struct {
	TenantID int64
	ItemID   int64
	Output
}

// StockCommand prints remaining stock split by GST backing.
func (c *LedgerCLI) StockCommand(ctx context.Context, opts StockOptions) int {
	out := opts.Output.withDefaults()
	summary, err := c.services.Batches.StockSummary(ctx, shared.TenantContext{TenantID: opts.TenantID}, opts.ItemID)
	if err != nil {
		return out.fail("stock", err)
	}
	if out.JSONOutput {
		return out.encode("stock", map[string]any{
			"gst_quantity":     summary.GSTQuantity.String(),
			"non_gst_quantity": summary.NonGSTQuantity.String(),
			"gst_value":        money(summary.GSTValue),
			"non_gst_value":    money(summary.NonGSTValue),
			"itc_available":    money(summary.ITCAvailable),
			"active_batches":   summary.ActiveBatches,
			"total_batches":    summary.TotalBatches,
		})
	}
	_, _ = fmt.Fprintf(out.Stdout, "GST stock:     %s units, value %s, ITC available %s\n",
		summary.GSTQuantity, money(summary.GSTValue), money(summary.ITCAvailable))
	_, _ = fmt.Fprintf(out.Stdout, "Non-GST stock: %s units, value %s\n", summary.NonGSTQuantity, money(summary.NonGSTValue))
	_, _ = fmt.Fprintf(out.Stdout, "Batches:       %d active of %d\n", summary.ActiveBatches, summary.TotalBatches)
	return 0
}

func money(d decimal.Decimal) string {
	return d.StringFixed(shared.MoneyPlaces)
}
